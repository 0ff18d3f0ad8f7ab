package param

import (
	"fmt"
	"strings"
)

// methodDef is a declared method plus its dependency wiring, resolved once
// at class definition into static endpoints (own parameters) and dynamic
// ones (dotted paths through sub-object parameters, re-resolved per
// instance and rewired when a sub-object is reassigned).
type methodDef struct {
	name   string
	fn     MethodFunc
	specs  []string
	watch  bool
	onInit bool
	queued bool

	static  []depInfo
	dynamic []depInfo
}

// depInfo is one parsed dependency specification.
type depInfo struct {
	spec     string
	path     []string // attribute segments; final segment is the parameter
	what     string   // slot name, WhatValue by default
	wildcard bool     // trailing ".param": every parameter of the sub-object
}

type dynKey struct {
	method string
	root   string
}

// parseSpec splits a dependency specification into its path segments and
// watched aspect. Accepted forms: "name", "name:slot", "sub.name",
// "sub.name:slot", and the wildcard "sub.param".
func parseSpec(spec string) (depInfo, error) {
	info := depInfo{spec: spec, what: WhatValue}
	rest := spec
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		info.what = rest[i+1:]
		rest = rest[:i]
		if info.what == "" {
			return info, fmt.Errorf("dependency %q: empty slot name", spec)
		}
	}
	if rest == "" {
		return info, fmt.Errorf("dependency %q: empty path", spec)
	}
	info.path = strings.Split(rest, ".")
	for _, seg := range info.path {
		if seg == "" {
			return info, fmt.Errorf("dependency %q: empty path segment", spec)
		}
	}
	last := len(info.path) - 1
	if last > 0 && info.path[last] == "param" {
		info.wildcard = true
		info.path = info.path[:last]
		if info.what != WhatValue {
			return info, fmt.Errorf("dependency %q: wildcard cannot name a slot", spec)
		}
	}
	return info, nil
}

// resolveMethodSpecs expands method name references transitively, then
// classifies every specification as static (single own parameter) or
// dynamic (path through sub-objects). Unknown roots fail class definition.
func (c *Class) resolveMethodSpecs(m *methodDef) error {
	expanded, err := c.expandSpecs(m)
	if err != nil {
		return err
	}

	if len(expanded) == 0 && m.watch {
		// A watching method with no declared dependencies conservatively
		// depends on every parameter of its class.
		for _, pname := range c.order {
			m.static = append(m.static, depInfo{
				spec: pname, path: []string{pname}, what: WhatValue,
			})
		}
		return nil
	}

	for _, spec := range expanded {
		info, err := parseSpec(spec)
		if err != nil {
			return err
		}
		root := info.path[0]
		if _, ok := c.params[root]; !ok {
			return fmt.Errorf("dependency %q: %q is not a parameter of %s", spec, root, c.name)
		}
		if len(info.path) == 1 && !info.wildcard {
			m.static = append(m.static, info)
		} else {
			m.dynamic = append(m.dynamic, info)
		}
	}
	return nil
}

// expandSpecs substitutes references to other declared methods with their
// own specifications, breadth-first with cycle protection.
func (c *Class) expandSpecs(m *methodDef) ([]string, error) {
	var out []string
	visited := map[string]bool{m.name: true}
	queue := append([]string(nil), m.specs...)
	for len(queue) > 0 {
		spec := queue[0]
		queue = queue[1:]
		// Parameters shadow methods of the same name.
		if _, isParam := c.params[spec]; !isParam {
			if ref, isMethod := c.methods[spec]; isMethod {
				if visited[ref.name] {
					continue
				}
				visited[ref.name] = true
				queue = append(queue, ref.specs...)
				continue
			}
		}
		out = appendUnique(out, spec)
	}
	return out, nil
}

func appendUnique(slice []string, s string) []string {
	for _, existing := range slice {
		if existing == s {
			return slice
		}
	}
	return append(slice, s)
}

// updateDeps wires dependency watchers for this instance. With init set it
// registers the static watchers and runs OnInit methods; otherwise it
// rewires only the dynamic dependencies rooted at the given attribute,
// dropping the stale watchers registered on the previous sub-object.
func (in *Instance) updateDeps(attribute string, init bool) error {
	var initMethods []*methodDef

	for _, m := range in.cls.watchMethods {
		var dyn []depInfo
		for _, d := range m.dynamic {
			if attribute == "" || d.path[0] == attribute {
				dyn = append(dyn, d)
			}
		}

		if init {
			if err := in.watchStatic(m); err != nil {
				return err
			}
			if m.onInit {
				initMethods = append(initMethods, m)
			}
		} else if len(dyn) == 0 {
			continue
		}

		for _, root := range dynRoots(dyn) {
			if err := in.rewireDynamic(m, root, init); err != nil {
				if init {
					return err
				}
				logger().Debug("dynamic dependency left unresolved",
					"instance", in.name, "method", m.name, "root", root, "error", err)
			}
		}
	}

	for _, m := range initMethods {
		if err := m.fn(in); err != nil {
			return fmt.Errorf("method %q at initialization: %w", m.name, err)
		}
	}
	return nil
}

func dynRoots(dyn []depInfo) []string {
	var roots []string
	for _, d := range dyn {
		roots = appendUnique(roots, d.path[0])
	}
	return roots
}

// watchStatic registers one watcher per watched aspect covering the
// method's single-segment dependencies.
func (in *Instance) watchStatic(m *methodDef) error {
	byWhat := map[string][]string{}
	var whats []string
	for _, d := range m.static {
		if _, seen := byWhat[d.what]; !seen {
			whats = append(whats, d.what)
		}
		byWhat[d.what] = append(byWhat[d.what], d.path[0])
	}
	for _, what := range whats {
		w := newWatcher(in, in.cls, methodCaller(in, m), byWhat[what])
		w.what = what
		w.queued = m.queued
		if err := in.registerWatcher(w); err != nil {
			return err
		}
	}
	return nil
}

// rewireDynamic drops the watchers previously registered for (method, root)
// and walks each dotted path from the root attribute, registering a rewire
// watcher on every intermediate segment and a method watcher on the finally
// resolved owner. A path broken by a nil or non-instance intermediate is
// watched as far as it resolves.
func (in *Instance) rewireDynamic(m *methodDef, root string, init bool) error {
	key := dynKey{m.name, root}
	for _, w := range in.dynamic[key] {
		if w.inst != nil {
			w.inst.Unwatch(w)
		}
	}
	delete(in.dynamic, key)

	var firstErr error
	for _, d := range m.dynamic {
		if d.path[0] != root {
			continue
		}
		if err := in.wireDynamicSpec(m, key, d); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (in *Instance) wireDynamicSpec(m *methodDef, key dynKey, d depInfo) error {
	cur := in
	for i := 0; i < len(d.path)-1 || (d.wildcard && i < len(d.path)); i++ {
		seg := d.path[i]
		if _, ok := cur.cls.params[seg]; !ok {
			return fmt.Errorf("dependency %q: %q is not a parameter of %s", d.spec, seg, cur.cls.name)
		}
		remaining := d.path[i+1:]
		w, err := cur.watchInternal(
			rewireCaller(in, m, key.root, remaining, d), []string{seg}, -1, m.queued)
		if err != nil {
			return err
		}
		in.dynamic[key] = append(in.dynamic[key], w)

		v, _ := cur.Get(seg)
		sub, ok := v.(*Instance)
		if !ok || sub == nil {
			// Partially resolvable path: the rewire watcher picks the rest
			// up once the segment is assigned an instance.
			return nil
		}
		cur = sub
	}

	var names []string
	if d.wildcard {
		names = cur.cls.ParameterNames()
	} else {
		final := d.path[len(d.path)-1]
		if _, ok := cur.cls.params[final]; !ok {
			return fmt.Errorf("dependency %q: %q is not a parameter of %s", d.spec, final, cur.cls.name)
		}
		names = []string{final}
	}
	w := newWatcher(cur, cur.cls, methodCaller(in, m), names)
	w.what = d.what
	w.queued = m.queued
	w.precedence = -1
	if err := cur.registerWatcher(w); err != nil {
		return err
	}
	in.dynamic[key] = append(in.dynamic[key], w)
	return nil
}

// methodCaller adapts a declared method into a watcher callback bound to
// the instance the method was declared on, regardless of which sub-object
// the watcher ends up registered with.
func methodCaller(in *Instance, m *methodDef) Callback {
	return func(events ...Event) error {
		return m.fn(in, events...)
	}
}

// rewireCaller handles reassignment of an intermediate attribute: it
// rewires the watchers below the changed segment, then invokes the method
// only if the values the method actually depends on differ between the old
// and new sub-objects.
func rewireCaller(in *Instance, m *methodDef, root string, remaining []string, d depInfo) Callback {
	return func(events ...Event) error {
		if err := in.rewireDynamic(m, root, false); err != nil {
			return err
		}
		if skipEvent(d, remaining, events...) {
			return nil
		}
		return m.fn(in, events...)
	}
}

// skipEvent reports whether a sub-object reassignment left every watched
// leaf value unchanged, in which case the method is not re-invoked.
func skipEvent(d depInfo, remaining []string, events ...Event) bool {
	for _, e := range events {
		if d.wildcard {
			if !wildcardEqual(e.Old, e.New, remaining) {
				return false
			}
			continue
		}
		oldV, oldOK := getattrPath(e.Old, remaining, d.what)
		newV, newOK := getattrPath(e.New, remaining, d.what)
		if oldOK != newOK || !valuesEqual(oldV, newV) {
			return false
		}
	}
	return true
}

func wildcardEqual(oldRoot, newRoot any, remaining []string) bool {
	oldSub, oldOK := instanceAtPath(oldRoot, remaining)
	newSub, newOK := instanceAtPath(newRoot, remaining)
	if oldOK != newOK {
		return false
	}
	if !newOK {
		return true
	}
	if oldSub.cls != newSub.cls {
		return false
	}
	for _, pname := range newSub.cls.order {
		ov, _ := oldSub.Get(pname)
		nv, _ := newSub.Get(pname)
		if !valuesEqual(ov, nv) {
			return false
		}
	}
	return true
}

func instanceAtPath(v any, path []string) (*Instance, bool) {
	cur, ok := v.(*Instance)
	if !ok || cur == nil {
		return nil, false
	}
	for _, seg := range path {
		next, err := cur.Get(seg)
		if err != nil {
			return nil, false
		}
		cur, ok = next.(*Instance)
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// getattrPath walks a dotted path from a value, returning the leaf value or
// slot. A broken path reports !ok rather than an error, since old values in
// rewire events are routinely nil.
func getattrPath(v any, path []string, what string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	cur, ok := v.(*Instance)
	if !ok || cur == nil {
		return nil, false
	}
	for _, seg := range path[:len(path)-1] {
		next, err := cur.Get(seg)
		if err != nil {
			return nil, false
		}
		cur, ok = next.(*Instance)
		if !ok || cur == nil {
			return nil, false
		}
	}
	final := path[len(path)-1]
	p, declared := cur.cls.params[final]
	if !declared {
		return nil, false
	}
	if what == WhatValue {
		val, err := cur.Get(final)
		if err != nil {
			return nil, false
		}
		return val, true
	}
	return p.SlotOrDefault(what), true
}
