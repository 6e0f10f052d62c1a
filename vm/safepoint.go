package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// SafepointCoordinator implements cooperative stop-the-world: mutator
// threads call Poll at frame entry/exit, monitor acquisition, and
// bridge return; when a collection cycle needs exclusive access it sets
// suspend and waits until every live thread has either called Poll or
// is already quiescent (blocked on a monitor, or dead).
type SafepointCoordinator struct {
	threads *ThreadRegistry

	suspend  atomic.Bool
	exiting  atomic.Bool
	resumeCh chan struct{}
	mu       sync.Mutex // guards resumeCh replacement during StopTheWorld
}

// NewSafepointCoordinator binds a coordinator to the given thread registry.
func NewSafepointCoordinator(threads *ThreadRegistry) *SafepointCoordinator {
	return &SafepointCoordinator{threads: threads}
}

// Poll is called by mutator code at safepoint-eligible points. If a
// stop-the-world is in progress it parks the calling thread until
// ResumeTheWorld is called. If the VM is exiting, it raises the
// internal Exit sentinel instead of returning, so the calling thread
// unwinds to its outermost frame rather than resuming ordinary
// execution.
func (sc *SafepointCoordinator) Poll(ctx *ThreadContext) {
	if !sc.suspend.Load() {
		if sc.exiting.Load() {
			ctx.Throw(ExitSentinel())
		}
		return
	}
	ctx.suspended.Store(true)
	sc.mu.Lock()
	ch := sc.resumeCh
	sc.mu.Unlock()
	if ch != nil {
		<-ch
	}
	ctx.suspended.Store(false)
	if sc.exiting.Load() {
		ctx.Throw(ExitSentinel())
	}
}

// BeginShutdown raises the exiting flag and wakes every thread
// currently parked in Poll, so each observes the flag and unwinds via
// the Exit sentinel instead of waiting for a resume that will never
// come.
func (sc *SafepointCoordinator) BeginShutdown() {
	sc.exiting.Store(true)
	sc.mu.Lock()
	ch := sc.resumeCh
	sc.resumeCh = nil
	sc.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Exiting reports whether the VM has begun shutting down.
func (sc *SafepointCoordinator) Exiting() bool { return sc.exiting.Load() }

// StopTheWorld raises the suspend flag and blocks until every live
// thread is at a safepoint (polled, monitor-blocked, or dead), or until
// timeout elapses. Returns false on timeout, in which case the caller
// must not assume mutator threads are quiescent.
func (sc *SafepointCoordinator) StopTheWorld(timeout time.Duration) bool {
	sc.mu.Lock()
	sc.resumeCh = make(chan struct{})
	sc.mu.Unlock()
	sc.suspend.Store(true)

	deadline := time.Now().Add(timeout)
	for {
		allStopped := true
		sc.threads.Each(func(ctx *ThreadContext) {
			if !ctx.IsAtSafepoint() {
				allStopped = false
			}
		})
		if allStopped {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// ResumeTheWorld clears the suspend flag and releases every thread
// parked in Poll.
func (sc *SafepointCoordinator) ResumeTheWorld() {
	sc.suspend.Store(false)
	sc.mu.Lock()
	ch := sc.resumeCh
	sc.resumeCh = nil
	sc.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// Suspended reports whether a stop-the-world is currently in effect.
func (sc *SafepointCoordinator) Suspended() bool {
	return sc.suspend.Load()
}
