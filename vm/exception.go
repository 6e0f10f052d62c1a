package vm

import "fmt"

// HandlerScope covers a contiguous range of bytecode offsets within one
// method, declaring which exception classes it catches and where
// control resumes when it does. Scopes are recorded in declaration
// order by codegen; the first scope in that order whose range contains
// the current location and whose filter accepts the thrown exception
// wins, exactly like a compiled try/catch table.
type HandlerScope struct {
	Start, End   int
	Filter       *ClassDescriptor // nil matches any exception
	HandlerIndex int              // bytecode offset to resume at
}

// FrameInfo is the static exception metadata codegen attaches to a
// compiled method: just its ordered handler scopes. It is shared by
// every activation of the method, unlike Frame which is per-call.
type FrameInfo struct {
	Scopes []HandlerScope
}

// FindExceptionHandler returns the handler offset for the first scope
// in fi that covers loc and accepts exc's class, and true. Returns
// false if no scope matches, meaning the frame does not handle exc and
// the search must continue in the caller's frame.
func FindExceptionHandler(loc int, fi *FrameInfo, exc *Object) (int, bool) {
	if fi == nil {
		return 0, false
	}
	for _, scope := range fi.Scopes {
		if loc < scope.Start || loc > scope.End {
			continue
		}
		if scope.Filter == nil {
			return scope.HandlerIndex, true
		}
		if exc != nil && exc.Class() != nil && scope.Filter.IsAssignableFrom(exc.Class()) {
			return scope.HandlerIndex, true
		}
	}
	return 0, false
}

// unwindSignal is the internal panic value used to unwind the Go call
// stack back to the frame whose handler catches the thrown exception,
// mirroring how a recursive-descent interpreter uses panic/recover to
// implement non-local control flow without return-value plumbing at
// every call site.
type unwindSignal struct {
	exc         *Object
	targetDepth int // len(ctx.frames) the handler belongs to, after any pops
	handlerAt   int
}

// UncaughtException is returned to the bridge boundary when no frame on
// the thread's stack handles a thrown exception.
type UncaughtException struct {
	Exc *Object
}

func (e *UncaughtException) Error() string {
	if e.Exc == nil {
		return "vm: uncaught exception"
	}
	return fmt.Sprintf("vm: uncaught exception of class %s", e.Exc.ClassName())
}

// Throw searches ctx's frame stack, innermost first, for a handler
// scope covering that frame's current Location that accepts exc. If
// found, it pops every frame above the handling one, leaves exc as
// ctx.pending, and panics with unwindSignal so the generated dispatch
// loop can recover and jump to the handler offset. If no frame handles
// it, it panics with *UncaughtException instead, for the bridge
// boundary (or a test's recover) to observe.
func (ctx *ThreadContext) Throw(exc *Object) {
	if IsExitSentinel(exc) {
		ctx.frames = ctx.frames[:0]
		ctx.pending = nil
		panic(exitUnwind{})
	}

	ctx.pending = exc

	for i := len(ctx.frames) - 1; i >= 0; i-- {
		f := &ctx.frames[i]
		if handlerAt, ok := FindExceptionHandler(f.Location, f.Info, exc); ok {
			ctx.frames = ctx.frames[:i+1]
			panic(unwindSignal{exc: exc, targetDepth: i + 1, handlerAt: handlerAt})
		}
	}

	ctx.frames = ctx.frames[:0]
	panic(&UncaughtException{Exc: exc})
}

// RecoverUnwind is called by generated code immediately after invoking
// a method, wrapped in a deferred recover(). If r is an unwindSignal
// destined for this frame (targetDepth equals the frame depth at the
// point of the call), it clears ctx.pending, returns the handler offset
// and true, and the caller resumes execution there. Otherwise it
// re-panics so the signal continues propagating to an outer frame.
func RecoverUnwind(ctx *ThreadContext, frameDepth int, r interface{}) (handlerAt int, handled bool) {
	sig, ok := r.(unwindSignal)
	if !ok {
		panic(r)
	}
	if sig.targetDepth != frameDepth {
		panic(r)
	}
	ctx.pending = nil
	return sig.handlerAt, true
}

// exitUnwind is panicked to unwind a thread during shutdown. It is
// distinct from unwindSignal so that RecoverUnwind's handler-scope
// matching never intercepts it: the Exit sentinel must not be caught by
// user code, only swallowed at a thread's outermost frame via
// RecoverExit.
type exitUnwind struct{}

// RecoverExit reports whether r is an in-flight shutdown unwind. Called
// from the deferred recover at a thread's outermost frame; the shutdown
// path swallows the Exit sentinel there rather than letting it surface
// as an uncaught exception.
func RecoverExit(r interface{}) bool {
	_, ok := r.(exitUnwind)
	return ok
}

// PendingException returns the exception currently propagating on ctx,
// or nil.
func (ctx *ThreadContext) PendingException() *Object { return ctx.pending }

// ClearPending drops the currently propagating exception, used once a
// handler has fully processed it (an ensure:/finally block re-raises
// explicitly instead of relying on the clear still being in effect).
func (ctx *ThreadContext) ClearPending() { ctx.pending = nil }
