package param

import (
	"fmt"
	"regexp"
	"sync/atomic"
)

// Class is a finalized set of parameter declarations. Creating one through
// NewClass runs the inheritance resolver exactly once, merging locally
// declared descriptors slot-by-slot with same-named ancestor declarations.
//
// Parameters not redeclared locally are shared by reference with the
// nearest ancestor that declares them, so a class-level write to such a
// parameter updates the shared default seen by every class in the hierarchy
// that has not overridden it.
type Class struct {
	name string

	bases []*Class
	// lin is the deterministic linearization used for slot inheritance:
	// the class itself first, then ancestors depth-first in declaration
	// order, duplicates keeping their first (most derived) position.
	lin []*Class

	// owned holds descriptors declared (and merged) on this class; params
	// holds the effective set including inherited references.
	owned  map[string]*Parameter
	params map[string]*Parameter
	order  []string

	methods      map[string]*methodDef
	watchMethods []*methodDef

	hooks []Hook

	ns            *namespace
	instanceCount atomic.Uint64
}

type classBuilder struct {
	bases     []*Class
	declOrder []string
	decls     map[string]*Parameter
	defs      []*methodDef
	hooks     []Hook
}

// ClassOption configures a class under construction.
type ClassOption func(*classBuilder)

// Extends declares ancestor classes, most specific first.
func Extends(bases ...*Class) ClassOption {
	return func(b *classBuilder) { b.bases = append(b.bases, bases...) }
}

// Declare adds a named parameter to the class body.
func Declare(name string, p *Parameter) ClassOption {
	return func(b *classBuilder) {
		if _, dup := b.decls[name]; !dup {
			b.declOrder = append(b.declOrder, name)
		}
		b.decls[name] = p
	}
}

// WithHook registers a hook wrapping set and trigger operations on
// instances of the class.
func WithHook(h Hook) ClassOption {
	return func(b *classBuilder) { b.hooks = append(b.hooks, h) }
}

// MethodFunc is a declared method body, invoked with the events that fired
// it (none when called at initialization).
type MethodFunc func(in *Instance, events ...Event) error

// MethodOption configures a declared method.
type MethodOption func(*methodDef)

// Depends lists the method's dependency specifications: bare parameter
// names, dotted sub-object paths ("sub.attr"), metadata references
// ("attr:slot"), sub-object wildcards ("sub.param"), or names of other
// declared methods (inheriting their dependencies transitively).
func Depends(specs ...string) MethodOption {
	return func(m *methodDef) { m.specs = append(m.specs, specs...) }
}

// Watch arranges for the method to be invoked when its dependencies change.
// With no Depends given, the method conservatively depends on every
// parameter of its owner.
func Watch() MethodOption {
	return func(m *methodDef) { m.watch = true }
}

// OnInit additionally invokes the method once when an instance finishes
// construction.
func OnInit() MethodOption {
	return func(m *methodDef) { m.onInit = true }
}

// Queued defers events generated inside the method until the triggering
// cycle has settled.
func Queued() MethodOption {
	return func(m *methodDef) { m.queued = true }
}

// Define declares a named method on the class.
func Define(name string, fn MethodFunc, opts ...MethodOption) ClassOption {
	return func(b *classBuilder) {
		m := &methodDef{name: name, fn: fn}
		for _, opt := range opts {
			opt(m)
		}
		b.defs = append(b.defs, m)
	}
}

// NewClass finalizes a class: it linearizes the ancestry, merges descriptor
// slots, validates the resolved defaults and dependency specifications, and
// registers declared methods. Declaration problems are reported according
// to the active DeclarationPolicy.
func NewClass(name string, opts ...ClassOption) *Class {
	b := &classBuilder{decls: map[string]*Parameter{}}
	for _, opt := range opts {
		opt(b)
	}

	c := &Class{
		name:    name,
		bases:   b.bases,
		owned:   map[string]*Parameter{},
		params:  map[string]*Parameter{},
		methods: map[string]*methodDef{},
		hooks:   b.hooks,
	}
	c.ns = newNamespace(nil, c)
	c.lin = linearize(c)

	// Inherit parameter order from ancestors (root-most first), then the
	// local declarations.
	seen := map[string]bool{}
	for i := len(c.lin) - 1; i >= 1; i-- {
		for _, pname := range c.lin[i].order {
			if !seen[pname] {
				seen[pname] = true
				c.order = append(c.order, pname)
			}
		}
	}
	for _, pname := range b.declOrder {
		if !seen[pname] {
			seen[pname] = true
			c.order = append(c.order, pname)
		}
	}

	// Local declarations are merged into fresh descriptors; everything else
	// is inherited by reference from the nearest ancestor.
	for _, pname := range b.declOrder {
		merged := b.decls[pname].copyShallow()
		if err := merged.bind(pname, c); err != nil {
			reportDeclaration(&DeclarationError{Class: name, Attribute: pname, Err: err})
			continue
		}
		c.mergeSlots(pname, merged)
		c.owned[pname] = merged
		c.params[pname] = merged
	}
	for _, pname := range c.order {
		if _, ok := c.params[pname]; ok {
			continue
		}
		for _, ancestor := range c.lin[1:] {
			if p, ok := ancestor.params[pname]; ok {
				c.params[pname] = p
				break
			}
		}
	}

	for _, pname := range b.declOrder {
		c.checkDeclaration(c.owned[pname])
	}

	// Methods are registered before spec resolution so they can reference
	// one another transitively. Local definitions shadow inherited ones.
	var localDefs []*methodDef
	for _, m := range b.defs {
		if _, dup := c.methods[m.name]; dup {
			reportDeclaration(&DeclarationError{Class: name, Attribute: m.name,
				Err: fmt.Errorf("duplicate method definition")})
			continue
		}
		c.methods[m.name] = m
		localDefs = append(localDefs, m)
	}
	for _, ancestor := range c.lin[1:] {
		for mname, m := range ancestor.methods {
			if _, exists := c.methods[mname]; !exists {
				c.methods[mname] = m
			}
		}
	}
	// Watching methods fire in definition order, ancestors first; a local
	// redefinition replaces the inherited method in its position.
	inherited := map[string]bool{}
	for i := len(c.lin) - 1; i >= 1; i-- {
		for _, am := range c.lin[i].watchMethods {
			if inherited[am.name] {
				continue
			}
			inherited[am.name] = true
			if eff := c.methods[am.name]; eff.watch {
				c.watchMethods = append(c.watchMethods, eff)
			}
		}
	}
	for _, m := range localDefs {
		if err := c.resolveMethodSpecs(m); err != nil {
			reportDeclaration(&DeclarationError{Class: name, Attribute: m.name, Err: err})
			continue
		}
		if m.watch && !inherited[m.name] {
			c.watchMethods = append(c.watchMethods, m)
		}
	}

	return c
}

// linearize computes the deterministic ancestor order: the class first, then
// each base's linearization depth-first, keeping the first occurrence.
func linearize(c *Class) []*Class {
	out := []*Class{c}
	seen := map[*Class]bool{c: true}
	for _, base := range c.bases {
		for _, ancestor := range base.lin {
			if !seen[ancestor] {
				seen[ancestor] = true
				out = append(out, ancestor)
			}
		}
	}
	return out
}

// mergeSlots fills each unspecified slot of a locally declared descriptor
// from the nearest ancestor declaration of the same name. Explicitly set
// values, including nil and false, are never overridden: only the absence
// of a slot inherits.
func (c *Class) mergeSlots(pname string, p *Parameter) {
	// The slot universe is the kind's known slots plus anything explicitly
	// set on an ancestor declaration (custom slots inherit too).
	universe := map[string]bool{}
	for slot := range kindRegistry[p.kind].slotDefaults {
		universe[slot] = true
	}
	for _, ancestor := range c.lin[1:] {
		if ap, ok := ancestor.owned[pname]; ok {
			for slot := range ap.slots {
				universe[slot] = true
			}
		}
	}

	for slot := range universe {
		if _, set := p.slots[slot]; set {
			continue
		}
		for _, ancestor := range c.lin[1:] {
			ap, ok := ancestor.owned[pname]
			if !ok {
				continue
			}
			if v, set := ap.slots[slot]; set {
				p.slots[slot] = inheritedSlotValue(slot, v)
				break
			}
		}
	}

	// instantiate inherits contagiously: any ancestor that opts in forces
	// per-instance copies for the whole hierarchy below it.
	for _, ancestor := range c.lin[1:] {
		if ap, ok := ancestor.owned[pname]; ok {
			if inst, set := ap.slots[SlotInstantiate]; set && inst == true {
				p.slots[SlotInstantiate] = true
			}
			if ap.kind != p.kind && !kindNarrows(p.kind, ap.kind) {
				logger().Debug("parameter redeclared with unrelated kind",
					"class", c.name, "parameter", pname,
					"kind", p.kind, "ancestor_kind", ap.kind)
			}
		}
	}

	// A nil resolved default implies nullability, whether it comes from an
	// explicit declaration or from the kind itself.
	if p.SlotOrDefault(SlotDefault) == nil {
		if _, aset := p.slots[SlotAllowNone]; !aset {
			p.slots[SlotAllowNone] = true
		}
	}
}

// inheritedSlotValue copies mutable container defaults into the inheriting
// class's descriptor so sibling classes never alias the same container.
func inheritedSlotValue(slot string, v any) any {
	if slot != SlotDefault {
		return v
	}
	switch vv := v.(type) {
	case []any:
		out := make([]any, len(vv))
		copy(out, vv)
		return out
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[k] = val
		}
		return out
	}
	return v
}

// checkDeclaration validates the fully resolved descriptor: the default must
// satisfy the descriptor's own constraints and declared patterns must
// compile. Violations are real but surface according to policy, since hard
// failure at definition time is especially disruptive.
func (c *Class) checkDeclaration(p *Parameter) {
	if p == nil {
		return
	}
	if pattern, _ := p.SlotOrDefault(SlotRegex).(string); pattern != "" {
		if _, err := regexp.Compile(pattern); err != nil {
			reportDeclaration(&DeclarationError{Class: c.name, Attribute: p.name,
				Err: fmt.Errorf("invalid regex %q: %w", pattern, err)})
		}
	}
	if err := p.Validate(p.Default()); err != nil {
		reportDeclaration(&DeclarationError{Class: c.name, Attribute: p.name,
			Err: fmt.Errorf("default value fails resolved constraints: %w", err)})
	}
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Parameter returns the effective descriptor for a name.
func (c *Class) Parameter(name string) (*Parameter, bool) {
	p, ok := c.params[name]
	return p, ok
}

// Parameters returns the effective descriptor set, keyed by name.
func (c *Class) Parameters() map[string]*Parameter {
	out := make(map[string]*Parameter, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

// ParameterNames returns the declared names in definition order, ancestors
// first.
func (c *Class) ParameterNames() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// AddParameter grafts a parameter onto the class after definition, with the
// same merge and validation as a body declaration. Classes already derived
// from this one do not see the addition.
func (c *Class) AddParameter(name string, p *Parameter) error {
	if _, exists := c.owned[name]; exists {
		return &DeclarationError{Class: c.name, Attribute: name,
			Err: fmt.Errorf("parameter already declared")}
	}
	merged := p.copyShallow()
	if err := merged.bind(name, c); err != nil {
		return &DeclarationError{Class: c.name, Attribute: name, Err: err}
	}
	c.mergeSlots(name, merged)
	if _, inherited := c.params[name]; !inherited {
		c.order = append(c.order, name)
	}
	c.owned[name] = merged
	c.params[name] = merged
	c.checkDeclaration(merged)
	return nil
}

// Get returns the class-level value of a parameter, i.e. its resolved
// default.
func (c *Class) Get(name string) (any, error) {
	p, ok := c.params[name]
	if !ok {
		return nil, &UnexpectedAttributeError{Class: c.name, Attribute: name}
	}
	return p.Default(), nil
}

// Set updates the class-level value (the shared default): every subclass
// and instance without an override observes the new value, and class-level
// watchers fire.
func (c *Class) Set(name string, val any) error {
	p, ok := c.params[name]
	if !ok {
		return &UnexpectedAttributeError{Class: c.name, Attribute: name}
	}
	op := &Operation{Kind: OpSet, Name: name, Class: c}
	return c.runHooks(op, func() error {
		return c.setDefault(p, val)
	})
}

func (c *Class) setDefault(p *Parameter, val any) error {
	if p.IsReadOnly() {
		return &ReadOnlyError{Class: p.ownerName(), Attribute: p.name}
	}
	if err := p.Validate(val); err != nil {
		return err
	}
	old := p.Default()
	p.slots[SlotDefault] = val

	watchers := p.watchers[WhatValue]
	if len(watchers) == 0 {
		return nil
	}
	owner := p.owner
	if owner == nil {
		owner = c
	}
	ns := owner.ns
	e := Event{What: WhatValue, Name: p.name, Obj: nil, Cls: owner, Old: old, New: val}
	for _, w := range sortedWatchers(watchers) {
		ns.callWatcher(w, e)
	}
	if !ns.batching {
		ns.batchCallWatchers()
	}
	return ns.drainErrors()
}

// Watch registers a class-level watcher: it fires on class-level value
// writes (shared default changes) and, for metadata kinds, on slot changes.
func (c *Class) Watch(fn Callback, names []string, opts ...WatchOption) (*Watcher, error) {
	w := newWatcher(nil, c, fn, names, opts...)
	if w.precedence < 0 {
		return nil, fmt.Errorf("user watchers must declare a non-negative precedence; negative precedences are reserved")
	}
	if err := c.registerWatcher(w); err != nil {
		return nil, err
	}
	return w, nil
}

func (c *Class) registerWatcher(w *Watcher) error {
	if w.async && !hasAsyncExecutor() {
		return &DeclarationError{Class: c.name, Attribute: fmt.Sprint(w.names),
			Err: fmt.Errorf("async watcher registered with no executor; call SetAsyncExecutor first")}
	}
	for _, name := range w.names {
		p, ok := c.params[name]
		if !ok {
			return &UnexpectedAttributeError{Class: c.name, Attribute: name}
		}
		p.watchers[w.what] = append(p.watchers[w.what], w)
	}
	return nil
}

// Unwatch removes a class-level watcher. Removing an already removed
// watcher is a no-op, and a removed watcher never fires again even if a
// dispatch cycle is in flight.
func (c *Class) Unwatch(w *Watcher) {
	w.dead = true
	for _, name := range w.names {
		p, ok := c.params[name]
		if !ok {
			continue
		}
		p.watchers[w.what] = removeWatcher(p.watchers[w.what], w)
	}
}

func removeWatcher(ws []*Watcher, w *Watcher) []*Watcher {
	for i, existing := range ws {
		if existing == w {
			return append(ws[:i], ws[i+1:]...)
		}
	}
	return ws
}

func (c *Class) runHooks(op *Operation, next func() error) error {
	hooks := c.collectHooks()
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		currentNext := next
		next = func() error {
			return h.Wrap(currentNext, op)
		}
	}
	err := next()
	if err != nil {
		for _, h := range hooks {
			h.OnError(err, op)
		}
	}
	return err
}

// collectHooks gathers hooks from the whole ancestry, ordered by Order.
func (c *Class) collectHooks() []Hook {
	var out []Hook
	for i := len(c.lin) - 1; i >= 0; i-- {
		out = append(out, c.lin[i].hooks...)
	}
	sortHooks(out)
	return out
}

// DependencySpecs exposes the declared dependency wiring for debugging and
// visualization: method name to its raw dependency specifications, covering
// inherited methods too.
func (c *Class) DependencySpecs() map[string][]string {
	out := make(map[string][]string, len(c.methods))
	for name, m := range c.methods {
		out[name] = append([]string(nil), m.specs...)
	}
	return out
}

// MethodNames returns the watching methods in their firing order.
func (c *Class) MethodNames() []string {
	out := make([]string, 0, len(c.watchMethods))
	for _, m := range c.watchMethods {
		out = append(out, m.name)
	}
	return out
}

func (c *Class) nextInstanceName() string {
	return fmt.Sprintf("%s%05d", c.name, c.instanceCount.Add(1))
}
