package vm

import "testing"

func TestFindExceptionHandlerMatchesByRangeAndFilter(t *testing.T) {
	object := NewClassDescriptor("Object", nil)
	exceptionClass := NewClassDescriptor("Exception", object)
	zeroDivide := NewClassDescriptor("ZeroDivide", exceptionClass)
	unrelated := NewClassDescriptor("Unrelated", object)

	fi := &FrameInfo{
		Scopes: []HandlerScope{
			{Start: 0, End: 10, Filter: unrelated, HandlerIndex: 100},
			{Start: 0, End: 10, Filter: exceptionClass, HandlerIndex: 200},
			{Start: 0, End: 10, Filter: nil, HandlerIndex: 300},
		},
	}

	exc := NewObject(zeroDivide, 0)
	handler, ok := FindExceptionHandler(5, fi, exc)
	if !ok {
		t.Fatalf("expected a handler match")
	}
	if handler != 200 {
		t.Fatalf("expected the first matching scope (200) to win, got %d", handler)
	}
}

func TestFindExceptionHandlerOutOfRange(t *testing.T) {
	object := NewClassDescriptor("Object", nil)
	exceptionClass := NewClassDescriptor("Exception", object)
	fi := &FrameInfo{Scopes: []HandlerScope{{Start: 0, End: 10, HandlerIndex: 1}}}

	exc := NewObject(exceptionClass, 0)
	if _, ok := FindExceptionHandler(20, fi, exc); ok {
		t.Fatalf("location outside every scope's range must not match")
	}
}

func TestFindExceptionHandlerRangeIsInclusiveOfEnd(t *testing.T) {
	object := NewClassDescriptor("Object", nil)
	exceptionClass := NewClassDescriptor("Exception", object)
	fi := &FrameInfo{Scopes: []HandlerScope{{Start: 0, End: 10, HandlerIndex: 1}}}
	exc := NewObject(exceptionClass, 0)

	if _, ok := FindExceptionHandler(10, fi, exc); !ok {
		t.Fatalf("expected a scope ending exactly at loc to match, since End is inclusive")
	}
	if _, ok := FindExceptionHandler(11, fi, exc); ok {
		t.Fatalf("expected a scope to stop matching just past its inclusive End")
	}
}

func TestThrowUnwindsToHandlingFrame(t *testing.T) {
	object := NewClassDescriptor("Object", nil)
	exceptionClass := NewClassDescriptor("Exception", object)

	ctx := newThreadContext()
	outer := Frame{Location: 0, Info: &FrameInfo{Scopes: []HandlerScope{{Start: 0, End: 5, HandlerIndex: 42}}}}
	inner := Frame{Location: 0, Info: &FrameInfo{}} // no handler
	ctx.PushFrame(outer)
	ctx.PushFrame(inner)

	exc := NewObject(exceptionClass, 0)

	defer func() {
		r := recover()
		sig, ok := r.(unwindSignal)
		if !ok {
			t.Fatalf("expected an unwindSignal panic, got %#v", r)
		}
		if sig.handlerAt != 42 {
			t.Fatalf("expected handlerAt 42, got %d", sig.handlerAt)
		}
		if ctx.Depth() != 1 {
			t.Fatalf("expected the inner frame to be popped, leaving depth 1, got %d", ctx.Depth())
		}
		if ctx.PendingException() != exc {
			t.Fatalf("expected the pending exception to remain set across unwind")
		}
	}()
	ctx.Throw(exc)
}

func TestThrowUncaughtWhenNoFrameHandles(t *testing.T) {
	object := NewClassDescriptor("Object", nil)
	exceptionClass := NewClassDescriptor("Exception", object)

	ctx := newThreadContext()
	ctx.PushFrame(Frame{Info: &FrameInfo{}})
	exc := NewObject(exceptionClass, 0)

	defer func() {
		r := recover()
		uncaught, ok := r.(*UncaughtException)
		if !ok {
			t.Fatalf("expected *UncaughtException, got %#v", r)
		}
		if uncaught.Exc != exc {
			t.Fatalf("expected the uncaught exception to be the one thrown")
		}
		if ctx.Depth() != 0 {
			t.Fatalf("expected every frame to be popped on an uncaught exception")
		}
	}()
	ctx.Throw(exc)
}

func TestThrowExitSentinelSkipsHandlerSearch(t *testing.T) {
	object := NewClassDescriptor("Object", nil)
	exceptionClass := NewClassDescriptor("Exception", object)

	ctx := newThreadContext()
	// A catch-all scope (nil filter) would ordinarily match any
	// exception, but the Exit sentinel must bypass handler search
	// entirely rather than be caught here.
	ctx.PushFrame(Frame{Info: &FrameInfo{Scopes: []HandlerScope{{Start: 0, End: 100, HandlerIndex: 1}}}})
	_ = exceptionClass

	defer func() {
		r := recover()
		if !RecoverExit(r) {
			t.Fatalf("expected the Exit sentinel to unwind past every handler scope, got %#v", r)
		}
		if ctx.Depth() != 0 {
			t.Fatalf("expected every frame to be popped by the Exit unwind, got depth %d", ctx.Depth())
		}
	}()
	ctx.Throw(ExitSentinel())
}

func TestRecoverUnwindRePanicsForWrongFrame(t *testing.T) {
	sig := unwindSignal{targetDepth: 2, handlerAt: 7}

	defer func() {
		r := recover()
		if _, ok := r.(unwindSignal); !ok {
			t.Fatalf("expected the signal to be re-panicked for a non-matching frame depth")
		}
	}()
	RecoverUnwind(newThreadContext(), 1, sig)
}

func TestRecoverUnwindHandlesMatchingFrame(t *testing.T) {
	ctx := newThreadContext()
	ctx.pending = NewObject(nil, 0)
	sig := unwindSignal{targetDepth: 1, handlerAt: 9}

	handlerAt, handled := func() (h int, ok bool) {
		defer func() {
			if r := recover(); r != nil {
				h, ok = RecoverUnwind(ctx, 1, r)
			}
		}()
		panic(sig)
	}()

	if !handled {
		t.Fatalf("expected the matching frame to handle the unwind")
	}
	if handlerAt != 9 {
		t.Fatalf("expected handlerAt 9, got %d", handlerAt)
	}
	if ctx.PendingException() != nil {
		t.Fatalf("expected pending exception cleared once the handler claims it")
	}
}
