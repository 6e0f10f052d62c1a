package vm

import (
	"sync"

	"github.com/google/uuid"
)

// Monitor is a re-entrant lock bound to a single object, the same way
// every Java-family object carries an implicit monitor. Enter/Exit nest
// within the same thread; Wait/Notify/NotifyAll follow the standard
// wait-set protocol over a condition variable.
//
// Enter and Wait both report to the SafepointCoordinator that the
// calling thread is blocked, so a collection cycle started while this
// thread holds or waits on a monitor does not deadlock against it.
type Monitor struct {
	ID uuid.UUID

	owner *Object // the object this monitor belongs to, for diagnostics

	condMu sync.Mutex // the lock sync.Cond waits on
	cond   *sync.Cond

	depthMu    sync.Mutex
	heldBy     *ThreadContext
	depth      int
	waitingSet map[*ThreadContext]bool
}

func newMonitor(owner *Object) *Monitor {
	m := &Monitor{ID: uuid.New(), owner: owner, waitingSet: make(map[*ThreadContext]bool)}
	m.cond = sync.NewCond(&m.condMu)
	return m
}

// Enter acquires the monitor, blocking if another thread holds it.
// Re-entrant: the same thread may call Enter any number of times and
// must call Exit the same number of times.
func (m *Monitor) Enter(ctx *ThreadContext, sc *SafepointCoordinator) {
	m.depthMu.Lock()
	if m.heldBy == ctx {
		m.depth++
		m.depthMu.Unlock()
		return
	}
	for m.heldBy != nil {
		ctx.blockedBy = m
		m.depthMu.Unlock()
		sc.Poll(ctx)
		m.condMu.Lock()
		m.cond.Wait()
		m.condMu.Unlock()
		ctx.blockedBy = nil
		m.depthMu.Lock()
	}
	m.heldBy = ctx
	m.depth = 1
	m.depthMu.Unlock()
}

// TryEnter attempts to acquire the monitor without blocking. Returns
// true on success (and the caller must Exit exactly once per success,
// matching Enter's re-entrance accounting).
func (m *Monitor) TryEnter(ctx *ThreadContext) bool {
	m.depthMu.Lock()
	defer m.depthMu.Unlock()
	if m.heldBy == ctx {
		m.depth++
		return true
	}
	if m.heldBy == nil {
		m.heldBy = ctx
		m.depth = 1
		return true
	}
	return false
}

// Exit releases one level of the re-entrant lock. Raises
// IllegalMonitorStateException if the calling thread does not
// currently hold the monitor — the same contract as every
// Java-family runtime's monitorexit.
func (m *Monitor) Exit(ctx *ThreadContext) {
	m.depthMu.Lock()
	if m.heldBy != ctx {
		m.depthMu.Unlock()
		ctx.Throw(IllegalMonitorStateException())
		return
	}
	m.depth--
	if m.depth > 0 {
		m.depthMu.Unlock()
		return
	}
	m.heldBy = nil
	m.depthMu.Unlock()

	m.condMu.Lock()
	m.cond.Broadcast()
	m.condMu.Unlock()
}

// IsHeldBy reports whether ctx currently holds this monitor.
func (m *Monitor) IsHeldBy(ctx *ThreadContext) bool {
	m.depthMu.Lock()
	defer m.depthMu.Unlock()
	return m.heldBy == ctx
}

// Wait releases the monitor, parks until Notify/NotifyAll wakes this
// thread, then reacquires it at the same re-entrance depth it held
// before. Must be called while holding the monitor.
func (m *Monitor) Wait(ctx *ThreadContext, sc *SafepointCoordinator) {
	m.depthMu.Lock()
	if m.heldBy != ctx {
		m.depthMu.Unlock()
		ctx.Throw(IllegalMonitorStateException())
		return
	}
	savedDepth := m.depth
	m.heldBy = nil
	m.depth = 0
	m.waitingSet[ctx] = true
	m.depthMu.Unlock()

	m.condMu.Lock()
	m.cond.Broadcast() // release the lock for other waiters/enterers
	ctx.blockedBy = m
	sc.Poll(ctx)
	m.cond.Wait()
	m.condMu.Unlock()
	ctx.blockedBy = nil

	m.depthMu.Lock()
	delete(m.waitingSet, ctx)
	for m.heldBy != nil && m.heldBy != ctx {
		m.depthMu.Unlock()
		m.condMu.Lock()
		m.cond.Wait()
		m.condMu.Unlock()
		m.depthMu.Lock()
	}
	m.heldBy = ctx
	m.depth = savedDepth
	m.depthMu.Unlock()
}

// Notify wakes one waiting thread, if any.
func (m *Monitor) Notify() {
	m.condMu.Lock()
	m.cond.Signal()
	m.condMu.Unlock()
}

// NotifyAll wakes every waiting thread.
func (m *Monitor) NotifyAll() {
	m.condMu.Lock()
	m.cond.Broadcast()
	m.condMu.Unlock()
}

// WaitingCount returns the number of threads currently parked in Wait.
func (m *Monitor) WaitingCount() int {
	m.depthMu.Lock()
	defer m.depthMu.Unlock()
	return len(m.waitingSet)
}
