package param

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/copystructure"
)

// Values maps parameter names to values, for construction and bulk updates.
type Values map[string]any

// Instance is one object of a Class: a sparse override store layered over
// the class-level defaults, plus per-instance watchers and dependency
// wiring.
type Instance struct {
	cls    *Class
	name   string
	values *valueStore
	ns     *namespace

	// watchers holds instance-level value watchers: name -> what -> list.
	watchers map[string]map[string][]*Watcher
	// dynamic holds dependency watchers that must be rewired when a
	// sub-object parameter is reassigned, keyed by (method, root attribute).
	dynamic map[dynKey][]*Watcher

	refs map[string]*refBinding

	initialized  bool
	editConstant bool
}

// InstanceOption configures instance construction.
type InstanceOption func(*Instance)

// WithName overrides the generated instance name.
func WithName(name string) InstanceOption {
	return func(in *Instance) { in.name = name }
}

// WithUniqueName names the instance with a random UUID suffix instead of
// the per-class counter.
func WithUniqueName() InstanceOption {
	return func(in *Instance) {
		in.name = fmt.Sprintf("%s-%s", in.cls.name, uuid.NewString())
	}
}

// New constructs an instance. Construction-time values are validated like
// any other write, but constant parameters may still be assigned since the
// instance is not yet initialized. Parameters marked Instantiate (and
// constants) receive a deep copy of the class default so instances never
// alias mutable defaults.
func (c *Class) New(values Values, opts ...InstanceOption) (*Instance, error) {
	in := &Instance{
		cls:      c,
		values:   newValueStore(),
		watchers: map[string]map[string][]*Watcher{},
		dynamic:  map[dynKey][]*Watcher{},
		refs:     map[string]*refBinding{},
	}
	in.ns = newNamespace(in, c)
	for _, opt := range opts {
		opt(in)
	}
	if in.name == "" {
		in.name = c.nextInstanceName()
	}

	for _, pname := range c.order {
		p := c.params[pname]
		if !p.Instantiates() && !p.IsConstant() {
			continue
		}
		if _, overridden := values[pname]; overridden {
			continue
		}
		copied, err := copystructure.Copy(p.Default())
		if err != nil {
			return nil, fmt.Errorf("%s.%s: copying default: %w", c.name, pname, err)
		}
		in.values.Store(pname, copied)
	}

	for name := range values {
		if _, ok := c.params[name]; !ok {
			return nil, &UnexpectedAttributeError{Class: c.name, Attribute: name}
		}
	}
	for _, pname := range c.order {
		val, given := values[pname]
		if !given {
			continue
		}
		if err := in.setValue(c.params[pname], val); err != nil {
			return nil, err
		}
	}

	in.initialized = true
	if err := in.updateDeps("", true); err != nil {
		return nil, err
	}
	return in, nil
}

// Name returns the instance name, generated as Class00001-style unless
// overridden.
func (in *Instance) Name() string { return in.name }

// Class returns the defining class.
func (in *Instance) Class() *Class { return in.cls }

// Get returns the effective value of a parameter: the instance override if
// one exists, otherwise the class-level default.
func (in *Instance) Get(name string) (any, error) {
	p, ok := in.cls.params[name]
	if !ok {
		return nil, &UnexpectedAttributeError{Class: in.cls.name, Attribute: name}
	}
	if v, ok := in.values.Load(name); ok {
		return v, nil
	}
	return p.Default(), nil
}

// GetAs returns the effective value asserted to T. Unknown names and
// mismatched types both report errors; a nil value yields T's zero value.
func GetAs[T any](in *Instance, name string) (T, error) {
	v, err := in.Get(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return SafeCast[T](v)
}

// MustGet is Get for known-declared names; it panics on unknown names.
func (in *Instance) MustGet(name string) any {
	v, err := in.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// HasOverride reports whether the instance stores its own value for the
// parameter rather than deferring to the class default.
func (in *Instance) HasOverride(name string) bool {
	_, ok := in.values.Load(name)
	return ok
}

// Set validates and writes a parameter value, then dispatches change events.
// Watcher errors are aggregated into a DispatchError; the write itself is
// never rolled back by a failing watcher.
func (in *Instance) Set(name string, val any) error {
	p, ok := in.cls.params[name]
	if !ok {
		return &UnexpectedAttributeError{Class: in.cls.name, Attribute: name}
	}
	op := &Operation{Kind: OpSet, Name: name, Instance: in, Class: in.cls}
	return in.cls.runHooks(op, func() error {
		return in.setValue(p, val)
	})
}

func (in *Instance) setValue(p *Parameter, val any) error {
	name := p.name

	if ref, ok := asReference(val); ok && p.AllowsRefs() {
		return in.bindRef(name, ref)
	}
	if b, bound := in.refs[name]; bound && !in.ns.syncing[name] {
		b.unbind()
		delete(in.refs, name)
	}

	if err := p.Validate(val); err != nil {
		return err
	}
	if p.IsReadOnly() {
		return &ReadOnlyError{Class: in.cls.name, Attribute: name}
	}
	if p.IsConstant() && in.initialized && !in.editConstant {
		return &ConstantError{Class: in.cls.name, Attribute: name}
	}

	old, _ := in.Get(name)
	in.values.Store(name, val)

	if in.initialized {
		if err := in.updateDeps(name, false); err != nil {
			return err
		}
	}

	etype := TypeSet
	if in.ns.triggering {
		etype = TypeTriggered
	}
	e := Event{What: WhatValue, Name: name, Obj: in, Cls: in.cls, Old: old, New: val, Type: etype}

	// Instance-level value watchers own delivery for the name. The
	// descriptor's watchers stand in only when the instance tracks the name
	// for some other kind; a name with no instance entry at all dispatches
	// nothing here (descriptor watchers fire on class-level value writes).
	var watchers []*Watcher
	if byWhat, ok := in.watchers[name]; ok {
		watchers = byWhat[WhatValue]
		if watchers == nil {
			watchers = p.watchers[WhatValue]
		}
	}
	for _, w := range sortedWatchers(watchers) {
		in.ns.callWatcher(w, e)
	}
	if !in.ns.batching {
		in.ns.batchCallWatchers()
	}
	return in.ns.drainErrors()
}

// Update applies several values inside one batch: watchers observe the
// settled state once instead of each intermediate write. If any write
// fails, previously applied writes are restored and their events discarded.
func (in *Instance) Update(values Values) error {
	for name := range values {
		if _, ok := in.cls.params[name]; !ok {
			return &UnexpectedAttributeError{Class: in.cls.name, Attribute: name}
		}
	}

	type applied struct {
		name     string
		old      any
		override bool
	}
	var done []applied
	var failed error

	saved := in.ns.saveQueue()
	in.ns.withBatch(true, true, func() {
		for _, pname := range in.cls.order {
			val, given := values[pname]
			if !given {
				continue
			}
			old, hadOverride := in.values.Load(pname)
			if err := in.setValue(in.cls.params[pname], val); err != nil {
				failed = fmt.Errorf("parameter %q: %w", pname, err)
				break
			}
			done = append(done, applied{pname, old, hadOverride})
		}
		if failed != nil {
			for i := len(done) - 1; i >= 0; i-- {
				a := done[i]
				if a.override {
					in.values.Store(a.name, a.old)
				} else {
					in.values.Delete(a.name)
				}
			}
			in.ns.restoreQueue(saved)
		}
	})
	if failed != nil {
		return failed
	}
	return in.ns.drainErrors()
}

// Trigger fires the named parameters' watchers without changing values.
// Events already queued by an enclosing batch are set aside and restored
// afterwards, so triggering never duplicates pending change events.
func (in *Instance) Trigger(names ...string) error {
	if !in.initialized {
		return &UnsafeOperationError{Operation: "Trigger",
			Reason: "watchers cannot be triggered until construction completes"}
	}
	values := Values{}
	var autoreset []string
	for _, name := range names {
		p, ok := in.cls.params[name]
		if !ok {
			return &UnexpectedAttributeError{Class: in.cls.name, Attribute: name}
		}
		if p.kind == KindTrigger {
			values[name] = true
			autoreset = append(autoreset, name)
		} else {
			cur, _ := in.Get(name)
			values[name] = cur
		}
	}

	op := &Operation{Kind: OpTrigger, Name: fmt.Sprint(names), Instance: in, Class: in.cls}
	return in.cls.runHooks(op, func() error {
		saved := in.ns.saveQueue()
		in.ns.resetQueue()
		in.ns.triggering = true
		err := in.Update(values)
		in.ns.triggering = false

		for _, name := range autoreset {
			in.values.Store(name, false)
		}
		for _, e := range saved.events {
			in.ns.recordEvent(*e)
		}
		for _, w := range saved.pending {
			if !in.ns.pendingSet[w] {
				in.ns.pendingSet[w] = true
				in.ns.pending = append(in.ns.pending, w)
			}
		}
		return err
	})
}

// Batch runs fn with event batching enabled: all events generated inside
// coalesce per parameter and dispatch together when the scope exits.
func (in *Instance) Batch(fn func() error) error {
	var err error
	in.ns.withBatch(true, true, func() { err = fn() })
	if err != nil {
		return err
	}
	return in.ns.drainErrors()
}

// DiscardEvents runs fn with batching on and then throws the generated
// events away: values written inside stick, but no watcher observes them.
func (in *Instance) DiscardEvents(fn func() error) error {
	saved := in.ns.saveQueue()
	var err error
	in.ns.withBatch(true, false, func() { err = fn() })
	in.ns.restoreQueue(saved)
	return err
}

// EditConstant runs fn with constant protection lifted, for controlled
// post-construction adjustment of constant parameters.
func (in *Instance) EditConstant(fn func() error) error {
	prev := in.editConstant
	in.editConstant = true
	defer func() { in.editConstant = prev }()
	return fn()
}

// CurrentValues returns the effective value of every parameter, in
// declaration order when iterated via the class's ParameterNames. A
// partially constructed instance has no stable value set to report.
func (in *Instance) CurrentValues() (Values, error) {
	if !in.initialized {
		return nil, &UnsafeOperationError{Operation: "CurrentValues",
			Reason: "values are not settled until construction completes"}
	}
	out := make(Values, len(in.cls.order))
	for _, pname := range in.cls.order {
		v, _ := in.Get(pname)
		out[pname] = v
	}
	return out, nil
}

func (in *Instance) String() string {
	return fmt.Sprintf("%s(%s)", in.cls.name, in.name)
}
