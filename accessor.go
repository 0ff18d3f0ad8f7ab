package param

// Accessor is a handle on one parameter of one instance, bundling the
// common operations without repeating the name at every call site.
type Accessor struct {
	in   *Instance
	name string
}

// Param returns an accessor for the named parameter. The name is not
// validated here; operations on an unknown name fail the way their
// instance-level counterparts do.
func (in *Instance) Param(name string) *Accessor {
	return &Accessor{in: in, name: name}
}

// Name returns the parameter name the accessor is bound to.
func (a *Accessor) Name() string { return a.name }

// Descriptor returns the underlying parameter declaration.
func (a *Accessor) Descriptor() (*Parameter, bool) {
	return a.in.cls.Parameter(a.name)
}

// Get returns the effective value.
func (a *Accessor) Get() (any, error) { return a.in.Get(a.name) }

// Peek returns the effective value, or nil for unknown names.
func (a *Accessor) Peek() any {
	v, _ := a.in.Get(a.name)
	return v
}

// Set validates and writes the value through the full set pipeline.
func (a *Accessor) Set(val any) error { return a.in.Set(a.name, val) }

// Watch registers an instance watcher on just this parameter.
func (a *Accessor) Watch(fn Callback, opts ...WatchOption) (*Watcher, error) {
	return a.in.Watch(fn, []string{a.name}, opts...)
}

// Trigger fires this parameter's watchers without changing its value.
func (a *Accessor) Trigger() error { return a.in.Trigger(a.name) }

// Ref exposes the parameter as a bindable Reference.
func (a *Accessor) Ref() Reference { return a.in.Ref(a.name) }
