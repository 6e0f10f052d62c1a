package vm

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/petermattis/goid"
)

// DefaultMaxStackDepth is the default bound on a thread's frame stack,
// matching the interpreter's recursion guard.
const DefaultMaxStackDepth = 1000

// Frame is one activation record on a thread's call stack. Location is
// the bytecode offset the frame is currently executing, used by
// FindExceptionHandler to resolve which handler scope, if any, covers
// the current point of execution.
type Frame struct {
	Method   Method
	Receiver *Object
	Location int
	Info     *FrameInfo
}

// ThreadContext is the per-mutator-goroutine state the runtime needs:
// its frame stack, its pending exception, and the flags the safepoint
// coordinator and collector read to decide whether this thread is
// currently stopped at a safepoint.
type ThreadContext struct {
	ID uuid.UUID

	goroutineID int64

	frames   []Frame
	maxDepth int

	pending *Object // currently propagating exception, nil if none

	threadObj *Object // the language-level Thread object, if any

	suspended atomic.Bool // true once this thread has parked at a safepoint
	alive     atomic.Bool // false once the goroutine has exited

	blockedBy *Monitor // non-nil while parked in Monitor.Wait/Enter

	globals []*Object // extra GC roots this thread holds outside its frames

	interrupt atomic.Bool // cooperative interrupt request
}

// newThreadContext allocates a context for the calling goroutine.
func newThreadContext() *ThreadContext {
	ctx := &ThreadContext{
		ID:          uuid.New(),
		goroutineID: goid.Get(),
		maxDepth:    DefaultMaxStackDepth,
	}
	ctx.alive.Store(true)
	return ctx
}

// PushFrame adds a new activation record. Once the thread's maxDepth is
// exceeded it raises StackOverflowError through ctx.Throw instead of
// growing the Go stack unbounded; callers never see a frame pushed past
// the bound.
func (ctx *ThreadContext) PushFrame(f Frame) {
	if len(ctx.frames) >= ctx.maxDepth {
		ctx.Throw(StackOverflowError())
	}
	ctx.frames = append(ctx.frames, f)
}

// PopFrame removes and returns the top activation record.
func (ctx *ThreadContext) PopFrame() (Frame, bool) {
	if len(ctx.frames) == 0 {
		return Frame{}, false
	}
	n := len(ctx.frames) - 1
	f := ctx.frames[n]
	ctx.frames = ctx.frames[:n]
	return f, true
}

// CurrentFrame returns a pointer to the top frame, or nil if empty.
// The pointer is only valid until the next Push/Pop.
func (ctx *ThreadContext) CurrentFrame() *Frame {
	if len(ctx.frames) == 0 {
		return nil
	}
	return &ctx.frames[len(ctx.frames)-1]
}

// Depth returns the current frame stack depth.
func (ctx *ThreadContext) Depth() int { return len(ctx.frames) }

// SetMaxDepth overrides the stack depth bound (default DefaultMaxStackDepth).
func (ctx *ThreadContext) SetMaxDepth(n int) { ctx.maxDepth = n }

// Roots calls visit for every frame's receiver, the pending exception,
// the thread object, and any extra globals this thread holds, for the
// collector's root scan.
func (ctx *ThreadContext) Roots(visit func(*Object)) {
	for i := range ctx.frames {
		visit(ctx.frames[i].Receiver)
	}
	if ctx.pending != nil {
		visit(ctx.pending)
	}
	if ctx.threadObj != nil {
		visit(ctx.threadObj)
	}
	for _, g := range ctx.globals {
		visit(g)
	}
}

// AddGlobalRoot pins an extra object as a root for this thread, for
// values the generated code holds outside of any frame (thread-locals,
// pinned scratch references during a native call).
func (ctx *ThreadContext) AddGlobalRoot(obj *Object) {
	ctx.globals = append(ctx.globals, obj)
}

// RequestInterrupt marks the thread for cooperative interruption; the
// next CheckInterrupt call observes it.
func (ctx *ThreadContext) RequestInterrupt() { ctx.interrupt.Store(true) }

// CheckInterrupt clears and returns whether an interrupt was pending.
// It does not raise InterruptedException itself, and nothing in this
// package calls it: Monitor.Wait and SafepointCoordinator.Poll do not
// read the interrupt flag.
func (ctx *ThreadContext) CheckInterrupt() bool {
	return ctx.interrupt.Swap(false)
}

// IsAtSafepoint reports whether this thread is currently parked
// somewhere the collector may treat as quiescent: suspended at a
// safepoint poll, blocked on a monitor, or no longer running.
func (ctx *ThreadContext) IsAtSafepoint() bool {
	return ctx.suspended.Load() || ctx.blockedBy != nil || !ctx.alive.Load()
}

// ---------------------------------------------------------------------------
// ThreadRegistry
// ---------------------------------------------------------------------------

// ThreadRegistry is the process-wide list of live ThreadContexts. The
// safepoint coordinator and collector walk it to decide when every
// mutator has reached a safepoint, and to scan every thread's roots.
type ThreadRegistry struct {
	mu      deadlockRW
	byGoid  map[int64]*ThreadContext
	nextSeq atomic64
}

// NewThreadRegistry creates an empty registry.
func NewThreadRegistry() *ThreadRegistry {
	return &ThreadRegistry{byGoid: make(map[int64]*ThreadContext)}
}

// Attach creates and registers a ThreadContext for the calling goroutine.
// Call Detach when the goroutine exits.
func (r *ThreadRegistry) Attach() *ThreadContext {
	ctx := newThreadContext()
	r.mu.Lock()
	r.byGoid[ctx.goroutineID] = ctx
	r.mu.Unlock()
	r.nextSeq.add(1)
	return ctx
}

// Detach marks ctx dead and removes it from the registry.
func (r *ThreadRegistry) Detach(ctx *ThreadContext) {
	ctx.alive.Store(false)
	r.mu.Lock()
	delete(r.byGoid, ctx.goroutineID)
	r.mu.Unlock()
}

// Current looks up the ThreadContext for the calling goroutine. Returns
// nil if the goroutine never called Attach. This is sugar for bridge
// entry points; hot paths should thread *ThreadContext explicitly.
func (r *ThreadRegistry) Current() *ThreadContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byGoid[goid.Get()]
}

// Each calls fn for every live thread context. fn must not call back
// into Attach/Detach.
func (r *ThreadRegistry) Each(fn func(*ThreadContext)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ctx := range r.byGoid {
		fn(ctx)
	}
}

// Count returns the number of live registered threads.
func (r *ThreadRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byGoid)
}
