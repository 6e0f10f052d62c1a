package vm

import (
	"sync/atomic"

	deadlock "github.com/sasha-s/go-deadlock"
)

// deadlockRW is the mutex every process-wide table in this package uses.
// go-deadlock reports potential deadlocks (cycles, held-too-long locks)
// during development builds instead of hanging silently, which matters
// here since the collector, the safepoint coordinator, and ordinary
// mutator threads all take these locks from different call stacks.
type deadlockRW = deadlock.RWMutex

// deadlockMu is the non-RW variant, for tables with no meaningful
// read-mostly access pattern (the weak table, the literal pool).
type deadlockMu = deadlock.Mutex

// atomic64 is a tiny wrapper so struct fields read naturally as
// desc.liveCount.load() / .add(1) instead of repeating atomic.AddUint64
// with a pointer receiver at every call site.
type atomic64 struct {
	v atomic.Uint64
}

func (a *atomic64) add(delta uint64) uint64 { return a.v.Add(delta) }
func (a *atomic64) load() uint64            { return a.v.Load() }
