package param

import "sync/atomic"

// asyncExecutor is the process-wide hook used to schedule asynchronous
// watcher callbacks. The dispatcher never awaits the scheduled function;
// firing an event on a parameter must not block on async watchers.
var asyncExecutor atomic.Pointer[func(func())]

// SetAsyncExecutor installs the executor used for watchers registered with
// WithAsync. It is typically set once at startup by the embedding
// application, e.g. to submit onto an event loop or worker goroutine.
func SetAsyncExecutor(exec func(func())) {
	if exec == nil {
		asyncExecutor.Store(nil)
		return
	}
	asyncExecutor.Store(&exec)
}

func scheduleAsync(fn func()) bool {
	exec := asyncExecutor.Load()
	if exec == nil {
		return false
	}
	(*exec)(fn)
	return true
}

func hasAsyncExecutor() bool {
	return asyncExecutor.Load() != nil
}
