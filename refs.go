package param

import (
	"sync"
)

// Reference is a value source a parameter can be bound to: assigning a
// Reference to a parameter declared with AllowRefs keeps the parameter in
// sync with the source until a plain value is assigned over it.
type Reference interface {
	// Value returns the current value of the source.
	Value() any
	// Subscribe registers a change notification and returns the
	// corresponding unsubscribe function.
	Subscribe(fn func()) (unsubscribe func())
}

type refBinding struct {
	ref         Reference
	unsubscribe func()
}

func (b *refBinding) unbind() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
}

// bindRef ties a parameter to a reference: the current source value is
// written immediately and every source notification re-syncs it. Validation
// failures during sync are logged, not raised, since they happen outside
// any caller's control flow.
func (in *Instance) bindRef(name string, ref Reference) error {
	if prev, bound := in.refs[name]; bound {
		prev.unbind()
	}
	b := &refBinding{ref: ref}
	b.unsubscribe = ref.Subscribe(func() { in.syncRef(name) })
	in.refs[name] = b

	in.ns.syncing[name] = true
	defer delete(in.ns.syncing, name)
	return in.setValue(in.cls.params[name], ref.Value())
}

func (in *Instance) syncRef(name string) {
	b, bound := in.refs[name]
	if !bound {
		return
	}
	in.ns.syncing[name] = true
	defer delete(in.ns.syncing, name)
	if err := in.setValue(in.cls.params[name], b.ref.Value()); err != nil {
		logger().Error("reference sync failed",
			"instance", in.name, "parameter", name, "error", err)
	}
}

// BoundRef returns the reference currently driving the parameter, if any.
func (in *Instance) BoundRef(name string) (Reference, bool) {
	b, ok := in.refs[name]
	if !ok {
		return nil, false
	}
	return b.ref, true
}

// paramRef exposes one instance parameter as a Reference.
type paramRef struct {
	in   *Instance
	name string
}

func (r *paramRef) Value() any {
	v, _ := r.in.Get(r.name)
	return v
}

func (r *paramRef) Subscribe(fn func()) func() {
	w, err := r.in.watchInternal(func(...Event) error {
		fn()
		return nil
	}, []string{r.name}, -1, false)
	if err != nil {
		return func() {}
	}
	return func() { r.in.Unwatch(w) }
}

// Ref exposes the named parameter as a Reference suitable for binding to
// AllowRefs parameters of other instances.
func (in *Instance) Ref(name string) Reference {
	return &paramRef{in: in, name: name}
}

// computedRef derives a value from several upstream references.
type computedRef struct {
	fn   func() any
	deps []Reference
}

func (r *computedRef) Value() any { return r.fn() }

func (r *computedRef) Subscribe(fn func()) func() {
	unsubs := make([]func(), 0, len(r.deps))
	for _, dep := range r.deps {
		unsubs = append(unsubs, dep.Subscribe(fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Computed builds a derived Reference: fn recomputes the value on demand
// and any dependency change propagates a notification.
func Computed(fn func() any, deps ...Reference) Reference {
	return &computedRef{fn: fn, deps: deps}
}

// Reference adapters convert foreign value sources (channels, observables
// from other libraries) into References at assignment time.
var (
	refAdaptersMu sync.RWMutex
	refAdapters   []func(any) (Reference, bool)
)

// RegisterRefAdapter installs a converter consulted when a non-Reference
// value is assigned to an AllowRefs parameter.
func RegisterRefAdapter(adapt func(any) (Reference, bool)) {
	refAdaptersMu.Lock()
	defer refAdaptersMu.Unlock()
	refAdapters = append(refAdapters, adapt)
}

func asReference(v any) (Reference, bool) {
	if ref, ok := v.(Reference); ok {
		return ref, true
	}
	refAdaptersMu.RLock()
	defer refAdaptersMu.RUnlock()
	for _, adapt := range refAdapters {
		if ref, ok := adapt(v); ok {
			return ref, true
		}
	}
	return nil, false
}
