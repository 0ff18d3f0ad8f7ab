package param

import (
	"fmt"
)

// Watch registers a watcher on the named parameters of this instance. The
// callback receives one Event per changed parameter; inside a batch the
// events coalesce to the net transition. User watchers must use
// non-negative precedences; negative values are reserved for internal
// machinery so it always runs first.
func (in *Instance) Watch(fn Callback, names []string, opts ...WatchOption) (*Watcher, error) {
	if !in.initialized {
		return nil, &UnsafeOperationError{Operation: "Watch",
			Reason: "watchers cannot be registered until construction completes"}
	}
	w := newWatcher(in, in.cls, fn, names, opts...)
	if w.precedence < 0 {
		return nil, fmt.Errorf("user watchers must declare a non-negative precedence; negative precedences are reserved")
	}
	if err := in.registerWatcher(w); err != nil {
		return nil, err
	}
	return w, nil
}

// WatchValues is Watch with a map-of-new-values callback instead of raw
// events, for callers that only care about the settled values.
func (in *Instance) WatchValues(fn ValuesCallback, names []string, opts ...WatchOption) (*Watcher, error) {
	wrapped := func(events ...Event) error {
		vals := make(map[string]any, len(events))
		for _, e := range events {
			vals[e.Name] = e.New
		}
		return fn(vals)
	}
	return in.Watch(wrapped, names, opts...)
}

func (in *Instance) watchInternal(fn Callback, names []string, precedence int, queued bool) (*Watcher, error) {
	w := newWatcher(in, in.cls, fn, names)
	w.precedence = precedence
	w.queued = queued
	if err := in.registerWatcher(w); err != nil {
		return nil, err
	}
	return w, nil
}

func (in *Instance) registerWatcher(w *Watcher) error {
	if w.async && !hasAsyncExecutor() {
		return fmt.Errorf("async watcher on %s: no executor registered; call SetAsyncExecutor first", in.name)
	}
	for _, name := range w.names {
		p, ok := in.cls.params[name]
		if !ok {
			return &UnexpectedAttributeError{Class: in.cls.name, Attribute: name}
		}
		// Value watchers live on the instance; slot watchers live on the
		// descriptor, since metadata is class-wide state.
		if w.what == WhatValue {
			byWhat, ok := in.watchers[name]
			if !ok {
				byWhat = map[string][]*Watcher{}
				in.watchers[name] = byWhat
			}
			byWhat[w.what] = append(byWhat[w.what], w)
		} else {
			p.watchers[w.what] = append(p.watchers[w.what], w)
		}
	}
	return nil
}

// Unwatch removes a watcher. It is idempotent, and a removed watcher never
// fires again even when removal happens mid-dispatch.
func (in *Instance) Unwatch(w *Watcher) {
	w.dead = true
	for _, name := range w.names {
		if w.what == WhatValue {
			if byWhat, ok := in.watchers[name]; ok {
				byWhat[w.what] = removeWatcher(byWhat[w.what], w)
			}
			continue
		}
		if p, ok := in.cls.params[name]; ok {
			p.watchers[w.what] = removeWatcher(p.watchers[w.what], w)
		}
	}
}
