package param

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/go-playground/validator/v10"
)

// SlotCheck holds an optional custom constraint function.
const SlotCheck = "check"

// ruleValidator backs the Rule option with struct-tag style expressions.
var ruleValidator = validator.New()

// Parameter is the accessor object backing one declared attribute: it holds
// the metadata slots, validates candidate values, and routes reads and
// writes through the instance/class dual store.
//
// Slots explicitly set on a declaration are stored sparsely; an absent slot
// is the "unspecified" sentinel that inheritance resolution fills from
// ancestor declarations, falling back to the kind defaults. Explicitly
// setting a slot to nil or a zero value is therefore distinct from leaving
// it unset.
type Parameter struct {
	name  string
	owner *Class
	kind  Kind
	slots map[string]any

	// watchers holds class-level value watchers (what == "value") and all
	// metadata-slot watchers, keyed by what. Instance-level value watchers
	// live on the instance instead.
	watchers map[string][]*Watcher

	regex *regexp.Regexp
}

// Option customizes a parameter declaration.
type Option func(*Parameter)

// Default declares the default value. An explicit nil default implies
// AllowNone unless AllowNone was set explicitly.
func Default(v any) Option {
	return func(p *Parameter) { p.slots[SlotDefault] = v }
}

// Doc attaches documentation to the declaration.
func Doc(s string) Option {
	return func(p *Parameter) { p.slots[SlotDoc] = s }
}

// Label attaches a display label.
func Label(s string) Option {
	return func(p *Parameter) { p.slots[SlotLabel] = s }
}

// AllowNone permits nil values independent of the other constraints.
func AllowNone() Option {
	return func(p *Parameter) { p.slots[SlotAllowNone] = true }
}

// Constant forbids sets once the owning instance finished construction,
// except inside an EditConstant scope.
func Constant() Option {
	return func(p *Parameter) { p.slots[SlotConstant] = true }
}

// ReadOnly forbids every set after declaration.
func ReadOnly() Option {
	return func(p *Parameter) { p.slots[SlotReadOnly] = true }
}

// Instantiate gives every instance its own deep copy of the default instead
// of sharing the class-level object. Inherited contagiously: a subclass
// redeclaration inherits instantiate=true from any ancestor that set it.
func Instantiate() Option {
	return func(p *Parameter) { p.slots[SlotInstantiate] = true }
}

// AllowRefs permits binding a dynamic reference in place of a literal value;
// reads resolve the reference to its current underlying value.
func AllowRefs() Option {
	return func(p *Parameter) { p.slots[SlotAllowRefs] = true }
}

// Precedence sets a display/ordering hint for introspection consumers.
func Precedence(v float64) Option {
	return func(p *Parameter) { p.slots[SlotPrecedence] = v }
}

// F returns a pointer to v, for bound declarations.
func F(v float64) *float64 { return &v }

// Bounds declares hard bounds; either end may be nil for unbounded. For
// List parameters the bounds constrain the length.
func Bounds(lower, upper *float64) Option {
	return func(p *Parameter) { p.slots[SlotBounds] = boundsSpec{lower, upper} }
}

// InclusiveBounds marks each bound end inclusive or exclusive independently.
func InclusiveBounds(lower, upper bool) Option {
	return func(p *Parameter) { p.slots[SlotInclusiveBounds] = inclusiveSpec{lower, upper} }
}

// SoftBounds declares advisory bounds that are reported but not enforced.
func SoftBounds(lower, upper *float64) Option {
	return func(p *Parameter) { p.slots[SlotSoftBounds] = boundsSpec{lower, upper} }
}

// Step declares the typical increment between values, for introspection.
func Step(v float64) Option {
	return func(p *Parameter) { p.slots[SlotStep] = v }
}

// Regex constrains string values to the given pattern.
func Regex(pattern string) Option {
	return func(p *Parameter) { p.slots[SlotRegex] = pattern }
}

// Objects declares the membership set for Selector parameters.
func Objects(objects ...any) Option {
	return func(p *Parameter) { p.slots[SlotObjects] = objects }
}

// Rule constrains values with a go-playground/validator tag expression,
// e.g. Rule("email") or Rule("gte=0,lte=150").
func Rule(tag string) Option {
	return func(p *Parameter) { p.slots[SlotRule] = tag }
}

// Check attaches a custom constraint function, invoked after the kind's own
// validation.
func Check(fn func(any) error) Option {
	return func(p *Parameter) { p.slots[SlotCheck] = fn }
}

// New declares a parameter of the given kind. The concrete constructors
// (Number, String, ...) are the usual entry points.
func New(kind Kind, opts ...Option) *Parameter {
	if _, ok := kindRegistry[kind]; !ok {
		kind = KindParameter
	}
	p := &Parameter{
		kind:     kind,
		slots:    map[string]any{},
		watchers: map[string][]*Watcher{},
	}
	for _, opt := range opts {
		opt(p)
	}
	// A declared nil default implies nullability unless stated otherwise.
	if v, ok := p.slots[SlotDefault]; ok && v == nil {
		if _, set := p.slots[SlotAllowNone]; !set {
			p.slots[SlotAllowNone] = true
		}
	}
	return p
}

// Number declares a float-valued parameter with optional bounds.
func Number(opts ...Option) *Parameter { return New(KindNumber, opts...) }

// Integer declares an integer-valued parameter with optional bounds.
func Integer(opts ...Option) *Parameter { return New(KindInteger, opts...) }

// String declares a string-valued parameter with optional regex constraint.
func String(opts ...Option) *Parameter { return New(KindString, opts...) }

// Boolean declares a boolean parameter.
func Boolean(opts ...Option) *Parameter { return New(KindBoolean, opts...) }

// List declares a slice-valued parameter whose default is copied per
// instance; bounds constrain the length.
func List(opts ...Option) *Parameter { return New(KindList, opts...) }

// Dict declares a map-valued parameter whose default is copied per instance.
func Dict(opts ...Option) *Parameter { return New(KindDict, opts...) }

// Selector declares a parameter constrained to a membership set.
func Selector(opts ...Option) *Parameter { return New(KindSelector, opts...) }

// Trigger declares a momentary event-style parameter: Trigger presents its
// active value to watchers and resets to the resting value afterwards.
func Trigger(opts ...Option) *Parameter { return New(KindTrigger, opts...) }

// Name returns the attribute name, fixed once the parameter is bound.
func (p *Parameter) Name() string { return p.name }

// Owner returns the owning class, or nil before binding.
func (p *Parameter) Owner() *Class { return p.owner }

// Kind returns the parameter's kind tag.
func (p *Parameter) Kind() Kind { return p.kind }

func (p *Parameter) ownerName() string {
	if p.owner == nil {
		return "<unbound>"
	}
	return p.owner.Name()
}

// Slot returns the explicitly set value of a metadata slot. ok is false when
// the slot was left at the unspecified sentinel.
func (p *Parameter) Slot(name string) (any, bool) {
	v, ok := p.slots[name]
	return v, ok
}

// SlotOrDefault returns the slot value, falling back to the kind default
// when unspecified.
func (p *Parameter) SlotOrDefault(name string) any {
	if v, ok := p.slots[name]; ok {
		return v
	}
	if d, ok := kindRegistry[p.kind].slotDefaults[name]; ok {
		return d
	}
	return nil
}

// Default returns the resolved default value.
func (p *Parameter) Default() any { return p.SlotOrDefault(SlotDefault) }

// Doc returns the resolved documentation string.
func (p *Parameter) Doc() string {
	s, _ := p.SlotOrDefault(SlotDoc).(string)
	return s
}

// Label returns the resolved display label, falling back to the parameter
// name when none was declared.
func (p *Parameter) Label() string {
	if s, _ := p.SlotOrDefault(SlotLabel).(string); s != "" {
		return s
	}
	return p.name
}

// AllowsNone reports whether nil is a permitted value.
func (p *Parameter) AllowsNone() bool {
	b, _ := p.SlotOrDefault(SlotAllowNone).(bool)
	return b
}

// IsConstant reports whether sets are forbidden after construction.
func (p *Parameter) IsConstant() bool {
	b, _ := p.SlotOrDefault(SlotConstant).(bool)
	return b
}

// IsReadOnly reports whether all sets are forbidden.
func (p *Parameter) IsReadOnly() bool {
	b, _ := p.SlotOrDefault(SlotReadOnly).(bool)
	return b
}

// Instantiates reports whether instances receive their own copy of the
// default value.
func (p *Parameter) Instantiates() bool {
	b, _ := p.SlotOrDefault(SlotInstantiate).(bool)
	return b
}

// AllowsRefs reports whether dynamic references may be bound to this
// parameter.
func (p *Parameter) AllowsRefs() bool {
	b, _ := p.SlotOrDefault(SlotAllowRefs).(bool)
	return b
}

// BoundsValues returns the resolved hard bounds; nil ends are unbounded.
func (p *Parameter) BoundsValues() (lower, upper *float64) {
	b, _ := p.SlotOrDefault(SlotBounds).(boundsSpec)
	return b[0], b[1]
}

// SoftBoundsValues returns the resolved advisory bounds.
func (p *Parameter) SoftBoundsValues() (lower, upper *float64) {
	b, _ := p.SlotOrDefault(SlotSoftBounds).(boundsSpec)
	return b[0], b[1]
}

func (p *Parameter) compiledRegex() *regexp.Regexp {
	if p.regex != nil {
		return p.regex
	}
	pattern, _ := p.SlotOrDefault(SlotRegex).(string)
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	p.regex = re
	return re
}

// Validate checks a candidate value against the resolved constraints without
// storing anything. A nil value is permitted only when AllowsNone.
func (p *Parameter) Validate(val any) error {
	if val == nil {
		if p.AllowsNone() {
			return nil
		}
		return p.validationError("allow_none", "nil is not permitted")
	}
	if err := kindRegistry[p.kind].validate(p, val); err != nil {
		return err
	}
	if tag, _ := p.SlotOrDefault(SlotRule).(string); tag != "" {
		if err := p.validateRule(tag, val); err != nil {
			return err
		}
	}
	if check, ok := p.SlotOrDefault(SlotCheck).(func(any) error); ok && check != nil {
		if err := check(val); err != nil {
			return p.validationError("check", "%v", err)
		}
	}
	return nil
}

func (p *Parameter) validateRule(tag string, val any) (err error) {
	// validator panics on malformed tag expressions; fold that into the
	// normal error path.
	defer func() {
		if r := recover(); r != nil {
			err = p.validationError("rule", "invalid rule %q: %v", tag, r)
		}
	}()
	if verr := ruleValidator.Var(val, tag); verr != nil {
		return p.validationError("rule", "value %v fails rule %q", val, tag)
	}
	return nil
}

// bind names the parameter and attaches it to its owning class. The name is
// immutable once assigned.
func (p *Parameter) bind(name string, owner *Class) error {
	if p.owner != nil {
		return fmt.Errorf("parameter %q is already bound to %s; declare a fresh Parameter per class", p.name, p.owner.Name())
	}
	if p.name != "" && p.name != name {
		return fmt.Errorf("parameter %q has already been bound; cannot rebind as %q", p.name, name)
	}
	p.name = name
	p.owner = owner
	return nil
}

// SetSlot updates a metadata slot on a bound parameter and notifies slot
// watchers. Value defaults are changed through Class.Set instead.
func (p *Parameter) SetSlot(name string, value any) error {
	if name == "name" || name == SlotDefault {
		return fmt.Errorf("slot %q of %s.%s cannot be set directly", name, p.ownerName(), p.name)
	}
	old := p.SlotOrDefault(name)
	p.slots[name] = value
	if name == SlotRegex {
		p.regex = nil
	}
	if p.owner == nil || len(p.watchers[name]) == 0 {
		return nil
	}
	ns := p.owner.ns
	e := Event{What: name, Name: p.name, Obj: nil, Cls: p.owner, Old: old, New: value}
	for _, w := range sortedWatchers(p.watchers[name]) {
		ns.callWatcher(w, e)
	}
	if !ns.batching {
		ns.batchCallWatchers()
	}
	return ns.drainErrors()
}

func sortedWatchers(ws []*Watcher) []*Watcher {
	out := make([]*Watcher, len(ws))
	copy(out, ws)
	sort.SliceStable(out, func(i, j int) bool { return out[i].precedence < out[j].precedence })
	return out
}

// copyShallow clones the descriptor for subclass merging; the slot table is
// copied, never shared with the ancestor's descriptor.
func (p *Parameter) copyShallow() *Parameter {
	slots := make(map[string]any, len(p.slots))
	for k, v := range p.slots {
		slots[k] = v
	}
	return &Parameter{
		kind:     p.kind,
		slots:    slots,
		watchers: map[string][]*Watcher{},
	}
}
