package param

import (
	"fmt"
	"math"
	"reflect"

	"github.com/google/uuid"
)

// WhatValue is the change kind for parameter value changes, as opposed to
// metadata-slot changes which use the slot name.
const WhatValue = "value"

// ChangeType tags how an event was produced.
type ChangeType string

const (
	// TypeSet marks an event delivered to a watcher that fires on every set.
	TypeSet ChangeType = "set"
	// TypeChanged marks an event delivered to an only-changed watcher.
	TypeChanged ChangeType = "changed"
	// TypeTriggered marks an event synthesized by Trigger without a value change.
	TypeTriggered ChangeType = "triggered"
)

// Event is an immutable record of one fired change. Obj is nil for
// class-level changes.
type Event struct {
	// What identifies the changed item: WhatValue or a metadata slot name.
	What string
	// Name is the parameter that was set or triggered.
	Name string
	// Obj is the instance owning the watched parameter, or nil.
	Obj *Instance
	// Cls is the class owning the watched parameter.
	Cls *Class
	// Old and New hold the previous and current values of the watched item.
	Old any
	New any
	// Type is set when the event is delivered to a watcher.
	Type ChangeType
}

// Callback receives the events that fired a watcher.
type Callback func(events ...Event) error

// ValuesCallback receives name -> new value pairs instead of Event records.
type ValuesCallback func(values map[string]any) error

// Watcher is a registration of a callback against a set of watched
// (parameter, kind) pairs on one instance or class. It stays registered
// until explicitly removed; removal is safe mid-dispatch.
type Watcher struct {
	id          uuid.UUID
	inst        *Instance
	cls         *Class
	fn          Callback
	names       []string
	what        string
	onlychanged bool
	queued      bool
	async       bool
	precedence  int
	dead        bool
}

// ID returns the watcher's unique identity.
func (w *Watcher) ID() uuid.UUID { return w.id }

// ParameterNames returns the watched parameter names.
func (w *Watcher) ParameterNames() []string {
	out := make([]string, len(w.names))
	copy(out, w.names)
	return out
}

// What returns the watched change kind (WhatValue or a slot name).
func (w *Watcher) What() string { return w.what }

// Precedence returns the ordering key; lower runs first.
func (w *Watcher) Precedence() int { return w.precedence }

func (w *Watcher) String() string {
	target := "<class>"
	if w.inst != nil {
		target = w.inst.Name()
	} else if w.cls != nil {
		target = w.cls.Name()
	}
	return fmt.Sprintf("Watcher(%s, target=%s, names=%v, what=%s, onlychanged=%t, queued=%t, precedence=%d)",
		w.id, target, w.names, w.what, w.onlychanged, w.queued, w.precedence)
}

// WatchOption customizes a watcher registration.
type WatchOption func(*Watcher)

// WithOnlyChanged controls suppression of no-op sets. Watchers default to
// onlychanged=true: setting a parameter to its current value fires nothing.
func WithOnlyChanged(onlychanged bool) WatchOption {
	return func(w *Watcher) { w.onlychanged = onlychanged }
}

// WithQueued defers the watcher until all non-queued processing of the
// current batch, including cascades, has completed (breadth-first delivery).
func WithQueued() WatchOption {
	return func(w *Watcher) { w.queued = true }
}

// WithPrecedence sets the ordering key; lower precedences run first.
// User watchers must use non-negative precedences.
func WithPrecedence(p int) WatchOption {
	return func(w *Watcher) { w.precedence = p }
}

// WithWhat watches a metadata slot instead of the parameter value.
func WithWhat(what string) WatchOption {
	return func(w *Watcher) { w.what = what }
}

// WithAsync schedules the callback on the process-wide async executor
// instead of invoking it inline. Registration fails if no executor is
// installed.
func WithAsync() WatchOption {
	return func(w *Watcher) { w.async = true }
}

func newWatcher(inst *Instance, cls *Class, fn Callback, names []string, opts ...WatchOption) *Watcher {
	w := &Watcher{
		id:          uuid.New(),
		inst:        inst,
		cls:         cls,
		fn:          fn,
		names:       append([]string(nil), names...),
		what:        WhatValue,
		onlychanged: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// eventChanged reports whether an event represents an actual change.
func eventChanged(e Event) bool {
	return !valuesEqual(e.Old, e.New)
}

// valuesEqual is the change comparator used by onlychanged suppression.
// NaN compares equal to itself so repeated NaN sets do not fire forever.
func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			if math.IsNaN(af) && math.IsNaN(bf) {
				return true
			}
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// withUpdatedType returns a copy of the event with Type set for delivery to
// the given watcher.
func withUpdatedType(w *Watcher, e Event, triggered bool) Event {
	switch {
	case triggered:
		e.Type = TypeTriggered
	case w.onlychanged:
		e.Type = TypeChanged
	default:
		e.Type = TypeSet
	}
	return e
}
