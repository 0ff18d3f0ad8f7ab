package param

import (
	"sync"
	"sync/atomic"
)

// Event queues churn heavily under batched updates, so their backing slices
// are recycled. Event values handed to watchers are copies; only the
// internal []*Event backing array is pooled.

const eventBufCapacity = 16

var eventBufPool = sync.Pool{
	New: func() any {
		poolMisses.Add(1)
		buf := make([]*Event, 0, eventBufCapacity)
		return &buf
	},
}

var (
	poolGets   atomic.Int64
	poolMisses atomic.Int64
)

func eventBufGet() []*Event {
	bufp := eventBufPool.Get().(*[]*Event)
	poolGets.Add(1)
	return (*bufp)[:0]
}

func eventBufPut(buf []*Event) {
	if cap(buf) == 0 {
		return
	}
	for i := range buf {
		buf[i] = nil
	}
	buf = buf[:0]
	eventBufPool.Put(&buf)
}

// PoolStats reports event buffer reuse counters, mainly for tests and
// debugging allocation behavior.
func PoolStats() (hits, misses int64) {
	misses = poolMisses.Load()
	return poolGets.Load() - misses, misses
}
