package param

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// maxDispatchCycles bounds both recursion depth through watcher callbacks
// and batch settle iterations. A cascade that exceeds it is cut off and
// reported as an UnsafeOperationError instead of exhausting the stack.
const maxDispatchCycles = 1000

type eventKey struct {
	name string
	what string
}

// namespace is the per-owner dispatch state: either an instance's (inst set)
// or a class's (inst nil). All mutation of a given owner is expected from a
// single goroutine; cross-goroutine delivery goes through the async
// executor.
type namespace struct {
	inst *Instance
	cls  *Class

	// batching accumulates events instead of dispatching depth-first.
	batching bool
	// triggering marks events originating from an explicit Trigger so
	// delivery retypes them and onlychanged does not suppress them.
	triggering bool
	events     []*Event
	eventIndex map[eventKey]int
	pending    []*Watcher
	pendingSet map[*Watcher]bool
	syncing    map[string]bool
	errs       *multierror.Error
	depth      int
	cycles     int
}

func newNamespace(inst *Instance, cls *Class) *namespace {
	return &namespace{
		inst:       inst,
		cls:        cls,
		eventIndex: map[eventKey]int{},
		pendingSet: map[*Watcher]bool{},
		syncing:    map[string]bool{},
	}
}

func (ns *namespace) ownerName() string {
	if ns.inst != nil {
		return ns.inst.Name()
	}
	return ns.cls.name
}

// withBatch runs fn with batching forced on when enable is set, restoring
// the previous mode afterwards. With run set, pending events are dispatched
// on exit once the outermost batch scope unwinds.
func (ns *namespace) withBatch(enable, run bool, fn func()) {
	prev := ns.batching
	ns.batching = prev || enable
	defer func() {
		ns.batching = prev
		if run && !prev {
			ns.batchCallWatchers()
		}
	}()
	fn()
}

// callWatcher either records the event for batched delivery or executes the
// watcher immediately (depth-first) when no batch scope is active.
func (ns *namespace) callWatcher(w *Watcher, e Event) {
	if w.dead {
		return
	}
	if ns.batching {
		ns.recordEvent(e)
		if !ns.pendingSet[w] {
			ns.pendingSet[w] = true
			ns.pending = append(ns.pending, w)
		}
		return
	}
	if w.onlychanged && e.Type != TypeTriggered && !ns.triggering && !eventChanged(e) {
		return
	}
	ns.executeWatcher(w, []Event{withUpdatedType(w, e, ns.triggering || e.Type == TypeTriggered)})
}

// recordEvent coalesces into at most one pending event per (name, what):
// the first recorded old value is kept and the new value tracks the latest
// write, so a batch reports the net transition.
func (ns *namespace) recordEvent(e Event) {
	key := eventKey{e.Name, e.What}
	if i, ok := ns.eventIndex[key]; ok {
		prev := ns.events[i]
		prev.New = e.New
		if e.Type == TypeTriggered {
			prev.Type = TypeTriggered
		}
		return
	}
	if ns.events == nil {
		ns.events = eventBufGet()
	}
	stored := e
	ns.eventIndex[key] = len(ns.events)
	ns.events = append(ns.events, &stored)
}

// batchCallWatchers drains pending events breadth-first: each settle cycle
// snapshots the queue, delivers to watchers in precedence order, and loops
// while watcher side effects queued further events.
func (ns *namespace) batchCallWatchers() {
	for len(ns.events) > 0 {
		ns.cycles++
		if ns.cycles > maxDispatchCycles {
			ns.errs = multierror.Append(ns.errs, &UnsafeOperationError{
				Operation: "dispatch",
				Reason: fmt.Sprintf("%s: event cascade exceeded %d settle cycles",
					ns.ownerName(), maxDispatchCycles),
			})
			ns.resetQueue()
			break
		}
		events, index, pending := ns.events, ns.eventIndex, ns.pending
		ns.events = nil
		ns.eventIndex = map[eventKey]int{}
		ns.pending = nil
		ns.pendingSet = map[*Watcher]bool{}

		for _, w := range sortedWatchers(pending) {
			if w.dead {
				continue
			}
			evs := ns.selectEvents(w, events, index)
			if len(evs) == 0 {
				continue
			}
			ns.executeWatcher(w, evs)
		}
		eventBufPut(events)
	}
	if ns.depth == 0 {
		ns.cycles = 0
	}
}

// selectEvents picks the coalesced events a watcher subscribed to,
// re-applying onlychanged against the net transition: a parameter set and
// then restored within one batch produces nothing for onlychanged watchers.
func (ns *namespace) selectEvents(w *Watcher, events []*Event, index map[eventKey]int) []Event {
	var out []Event
	for _, name := range w.names {
		i, ok := index[eventKey{name, w.what}]
		if !ok {
			continue
		}
		e := *events[i]
		if w.onlychanged && e.Type != TypeTriggered && !eventChanged(e) {
			continue
		}
		out = append(out, withUpdatedType(w, e, e.Type == TypeTriggered))
	}
	return out
}

// executeWatcher invokes the callback, recovering panics and aggregating
// returned errors so one failing watcher never starves its peers. Queued
// watchers run with batching forced on: events they generate join the
// pending queue and dispatch in the next settle cycle.
func (ns *namespace) executeWatcher(w *Watcher, events []Event) {
	if w.dead {
		return
	}
	if w.async {
		if !scheduleAsync(func() {
			if err := w.fn(events...); err != nil {
				logger().Error("async watcher failed",
					"owner", ns.ownerName(), "watcher", w.String(), "error", err)
			}
		}) {
			ns.errs = multierror.Append(ns.errs, fmt.Errorf(
				"watcher %s: async executor unset at dispatch time", w))
		}
		return
	}

	ns.depth++
	defer func() { ns.depth-- }()
	if ns.depth > maxDispatchCycles {
		ns.errs = multierror.Append(ns.errs, &UnsafeOperationError{
			Operation: "dispatch",
			Reason: fmt.Sprintf("%s: watcher recursion exceeded depth %d",
				ns.ownerName(), maxDispatchCycles),
		})
		return
	}

	ns.withBatch(w.queued, false, func() {
		defer func() {
			if r := recover(); r != nil {
				ns.errs = multierror.Append(ns.errs, fmt.Errorf(
					"watcher %s panicked: %v", w, r))
			}
		}()
		if err := w.fn(events...); err != nil {
			ns.errs = multierror.Append(ns.errs, fmt.Errorf(
				"watcher %s: %w", w, err))
		}
	})
}

// drainErrors surfaces errors aggregated over a completed dispatch. Nested
// dispatch levels return nil so everything funnels to the outermost caller.
func (ns *namespace) drainErrors() error {
	if ns.depth > 0 || ns.batching || ns.errs == nil {
		return nil
	}
	errs := ns.errs
	ns.errs = nil
	return &DispatchError{Errs: errs}
}

func (ns *namespace) resetQueue() {
	if ns.events != nil {
		eventBufPut(ns.events)
	}
	ns.events = nil
	ns.eventIndex = map[eventKey]int{}
	ns.pending = nil
	ns.pendingSet = map[*Watcher]bool{}
}

// queueState is a snapshot of the pending queue, used to discard events
// generated inside a scope.
type queueState struct {
	events     []*Event
	eventIndex map[eventKey]int
	pending    []*Watcher
	pendingSet map[*Watcher]bool
}

func (ns *namespace) saveQueue() queueState {
	s := queueState{
		events:     append([]*Event(nil), ns.events...),
		eventIndex: map[eventKey]int{},
		pending:    append([]*Watcher(nil), ns.pending...),
		pendingSet: map[*Watcher]bool{},
	}
	for k, v := range ns.eventIndex {
		s.eventIndex[k] = v
	}
	for k, v := range ns.pendingSet {
		s.pendingSet[k] = v
	}
	return s
}

func (ns *namespace) restoreQueue(s queueState) {
	ns.events = s.events
	ns.eventIndex = s.eventIndex
	ns.pending = s.pending
	ns.pendingSet = s.pendingSet
}

func sortHooks(hooks []Hook) {
	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].Order() < hooks[j].Order()
	})
}
