package param

import (
	"errors"
	"sync"
	"testing"
)

func watchedNumber(t *testing.T) (*Class, *Instance) {
	t.Helper()
	c := NewClass("Counter",
		Declare("n", Number(Default(0.0))),
		Declare("m", Number(Default(0.0))),
		Declare("fire", Trigger()),
	)
	in, err := c.New(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return c, in
}

func TestWatcherSeesOldAndNew(t *testing.T) {
	_, in := watchedNumber(t)

	var got []Event
	_, _ = in.Watch(func(events ...Event) error {
		got = append(got, events...)
		return nil
	}, []string{"n"})

	if err := in.Set("n", 5.0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	e := got[0]
	if e.Old != 0.0 || e.New != 5.0 || e.Name != "n" || e.What != WhatValue {
		t.Errorf("unexpected event %+v", e)
	}
	if e.Type != TypeChanged {
		t.Errorf("expected changed type for an onlychanged watcher, got %v", e.Type)
	}
}

func TestOnlyChangedSuppression(t *testing.T) {
	_, in := watchedNumber(t)

	var changed, every int
	_, _ = in.Watch(func(events ...Event) error { changed++; return nil },
		[]string{"n"})
	_, _ = in.Watch(func(events ...Event) error { every++; return nil },
		[]string{"n"}, WithOnlyChanged(false))

	in.Set("n", 5.0)
	in.Set("n", 5.0) // no-op write

	if changed != 1 {
		t.Errorf("expected onlychanged watcher to fire once, got %d", changed)
	}
	if every != 2 {
		t.Errorf("expected every-set watcher to fire twice, got %d", every)
	}
}

func TestBatchCoalescesToNetTransition(t *testing.T) {
	_, in := watchedNumber(t)

	var got []Event
	_, _ = in.Watch(func(events ...Event) error {
		got = append(got, events...)
		return nil
	}, []string{"n"})

	err := in.Batch(func() error {
		if err := in.Set("n", 1.0); err != nil {
			return err
		}
		if err := in.Set("n", 2.0); err != nil {
			return err
		}
		return in.Set("n", 3.0)
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected one coalesced event, got %d", len(got))
	}
	if got[0].Old != 0.0 || got[0].New != 3.0 {
		t.Errorf("expected net transition 0 -> 3, got %v -> %v", got[0].Old, got[0].New)
	}
}

func TestBatchNetNoChangeSuppressed(t *testing.T) {
	_, in := watchedNumber(t)

	var fired int
	_, _ = in.Watch(func(events ...Event) error { fired++; return nil }, []string{"n"})

	err := in.Batch(func() error {
		if err := in.Set("n", 7.0); err != nil {
			return err
		}
		return in.Set("n", 0.0) // back to where it started
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fired != 0 {
		t.Errorf("expected a net-unchanged batch to fire nothing, got %d", fired)
	}
}

func TestPrecedenceOrdering(t *testing.T) {
	_, in := watchedNumber(t)

	var order []string
	mk := func(tag string) Callback {
		return func(...Event) error {
			order = append(order, tag)
			return nil
		}
	}
	_, _ = in.Watch(mk("late"), []string{"n"}, WithPrecedence(10))
	_, _ = in.Watch(mk("early"), []string{"n"}, WithPrecedence(0))
	_, _ = in.Watch(mk("mid"), []string{"n"}, WithPrecedence(5))

	if err := in.Batch(func() error { return in.Set("n", 1.0) }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []string{"early", "mid", "late"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestNegativePrecedenceReserved(t *testing.T) {
	_, in := watchedNumber(t)
	if _, err := in.Watch(func(...Event) error { return nil },
		[]string{"n"}, WithPrecedence(-1)); err == nil {
		t.Error("expected negative user precedence to be rejected")
	}
}

// A queued watcher's side effects dispatch breadth-first: watchers of the
// first transition all observe it before anything observes the second.
func TestQueuedBreadthFirst(t *testing.T) {
	_, in := watchedNumber(t)

	var order []string
	// W1 is queued and sets m when n changes.
	_, _ = in.Watch(func(events ...Event) error {
		order = append(order, "w1:n")
		return in.Set("m", 1.0)
	}, []string{"n"}, WithQueued())
	// W2 watches both n and m.
	_, _ = in.Watch(func(events ...Event) error {
		for _, e := range events {
			order = append(order, "w2:"+e.Name)
		}
		return nil
	}, []string{"n", "m"}, WithPrecedence(1))

	if err := in.Batch(func() error { return in.Set("n", 1.0) }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// w1 runs, its write to m is deferred to the next settle cycle, so w2
	// sees n before m.
	want := []string{"w1:n", "w2:n", "w2:m"}
	if len(order) != 3 || order[0] != want[0] || order[1] != want[1] || order[2] != want[2] {
		t.Errorf("expected %v, got %v", want, order)
	}
}

func TestTriggerFiresWithoutChange(t *testing.T) {
	_, in := watchedNumber(t)

	var got []Event
	_, _ = in.Watch(func(events ...Event) error {
		got = append(got, events...)
		return nil
	}, []string{"n"})

	if err := in.Trigger("n"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != TypeTriggered {
		t.Errorf("expected triggered type, got %v", got[0].Type)
	}
	if !valuesEqual(got[0].Old, got[0].New) {
		t.Errorf("expected old == new for a trigger, got %v -> %v", got[0].Old, got[0].New)
	}
}

func TestTriggerKindAutoResets(t *testing.T) {
	_, in := watchedNumber(t)

	var fired int
	_, _ = in.Watch(func(...Event) error { fired++; return nil }, []string{"fire"})

	if err := in.Trigger("fire"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := in.Trigger("fire"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fired != 2 {
		t.Errorf("expected trigger kind to fire every time, got %d", fired)
	}
	if v, _ := in.Get("fire"); v != false {
		t.Errorf("expected trigger parameter to reset to false, got %v", v)
	}
}

func TestDiscardEvents(t *testing.T) {
	_, in := watchedNumber(t)

	var fired int
	_, _ = in.Watch(func(...Event) error { fired++; return nil }, []string{"n"})

	err := in.DiscardEvents(func() error {
		return in.Set("n", 42.0)
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fired != 0 {
		t.Errorf("expected no watcher deliveries, got %d", fired)
	}
	if v, _ := in.Get("n"); v != 42.0 {
		t.Errorf("expected the value to stick, got %v", v)
	}
}

func TestWatcherErrorsAggregated(t *testing.T) {
	_, in := watchedNumber(t)

	_, _ = in.Watch(func(...Event) error { return errors.New("first failure") },
		[]string{"n"})
	var peerRan bool
	_, _ = in.Watch(func(...Event) error {
		peerRan = true
		return errors.New("second failure")
	}, []string{"n"}, WithPrecedence(1))

	err := in.Set("n", 1.0)
	if err == nil {
		t.Fatal("expected aggregated watcher errors")
	}
	if !peerRan {
		t.Error("expected a failing watcher not to starve its peers")
	}
	var derr *DispatchError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DispatchError, got %T", err)
	}
	if len(derr.Errors()) != 2 {
		t.Errorf("expected 2 aggregated errors, got %d", len(derr.Errors()))
	}
	if v, _ := in.Get("n"); v != 1.0 {
		t.Errorf("expected the write to survive watcher failures, got %v", v)
	}
}

func TestWatcherPanicRecovered(t *testing.T) {
	_, in := watchedNumber(t)

	_, _ = in.Watch(func(...Event) error { panic("boom") }, []string{"n"})

	err := in.Set("n", 1.0)
	var derr *DispatchError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DispatchError from a panicking watcher, got %v", err)
	}
}

func TestUnwatchMidDispatchNeverFires(t *testing.T) {
	_, in := watchedNumber(t)

	var removed *Watcher
	var removedFired bool
	_, _ = in.Watch(func(...Event) error {
		in.Unwatch(removed)
		return nil
	}, []string{"n"}, WithPrecedence(0))
	removed, _ = in.Watch(func(...Event) error {
		removedFired = true
		return nil
	}, []string{"n"}, WithPrecedence(1))

	if err := in.Batch(func() error { return in.Set("n", 1.0) }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if removedFired {
		t.Error("expected a watcher removed mid-dispatch to stay silent")
	}

	in.Unwatch(removed) // idempotent
}

func TestClassWatcherScope(t *testing.T) {
	c, in := watchedNumber(t)

	var classFired, instFired int
	_, err := c.Watch(func(...Event) error { classFired++; return nil }, []string{"n"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Instance-level sets never reach class watchers.
	if err := in.Set("n", 1.0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if classFired != 0 {
		t.Fatalf("expected the class watcher to stay silent on instance sets, got %d", classFired)
	}

	// Constructing a fresh instance with values is an instance-level write too.
	if _, err := c.New(Values{"n": 5.0}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if classFired != 0 {
		t.Fatalf("expected the class watcher to stay silent during construction, got %d", classFired)
	}

	// Writing the class-level default is what class watchers observe.
	if err := c.Set("n", 3.0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if classFired != 1 {
		t.Fatalf("expected the class watcher to fire on the class-level write, got %d", classFired)
	}

	// An instance watcher owns delivery for its instance.
	_, _ = in.Watch(func(...Event) error { instFired++; return nil }, []string{"n"})
	if err := in.Set("n", 2.0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if classFired != 1 || instFired != 1 {
		t.Errorf("expected only the instance watcher to fire, got class=%d inst=%d", classFired, instFired)
	}
}

func TestRunawayCascadeBounded(t *testing.T) {
	_, in := watchedNumber(t)

	// n and m feed each other forever.
	_, _ = in.Watch(func(events ...Event) error {
		v, _ := in.Get("m")
		return in.Set("m", v.(float64)+1)
	}, []string{"n"}, WithQueued())
	_, _ = in.Watch(func(events ...Event) error {
		v, _ := in.Get("n")
		return in.Set("n", v.(float64)+1)
	}, []string{"m"}, WithQueued())

	err := in.Batch(func() error { return in.Set("n", 1.0) })
	if err == nil {
		t.Fatal("expected the runaway cascade to be reported")
	}
	var uerr *UnsafeOperationError
	if !errors.As(err, &uerr) {
		t.Errorf("expected UnsafeOperationError in the aggregate, got %v", err)
	}
}

func TestAsyncWatcherRequiresExecutor(t *testing.T) {
	_, in := watchedNumber(t)
	if _, err := in.Watch(func(...Event) error { return nil },
		[]string{"n"}, WithAsync()); err == nil {
		t.Error("expected async registration to fail without an executor")
	}
}

func TestAsyncWatcherUsesExecutor(t *testing.T) {
	var wg sync.WaitGroup
	SetAsyncExecutor(func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	})
	defer SetAsyncExecutor(nil)

	_, in := watchedNumber(t)

	var mu sync.Mutex
	var got []Event
	_, err := in.Watch(func(events ...Event) error {
		mu.Lock()
		got = append(got, events...)
		mu.Unlock()
		return nil
	}, []string{"n"}, WithAsync())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := in.Set("n", 3.0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].New != 3.0 {
		t.Errorf("expected one async delivery of 3.0, got %v", got)
	}
}
