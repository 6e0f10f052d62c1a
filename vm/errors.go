package vm

// Well-known exception classes the CORE itself raises at defined
// checkpoints (monitor misuse, stack overflow, exhausted heap,
// cooperative interrupt, bad argument, missing method) rather than
// leaving to the class library above it. Each is a bare, unregistered
// ClassDescriptor: the class library is free to register a richer
// descriptor of the same name later and these objects remain
// instanceof-compatible with it through Name-based lookup at the
// bridge boundary, but the CORE never depends on that happening.
var (
	illegalMonitorStateClass = NewClassDescriptor("IllegalMonitorStateException", nil)
	illegalArgumentClass     = NewClassDescriptor("IllegalArgumentException", nil)
	noSuchMethodClass        = NewClassDescriptor("NoSuchMethodError", nil)
	stackOverflowClass       = NewClassDescriptor("StackOverflowError", nil)
	outOfMemoryClass         = NewClassDescriptor("OutOfMemoryError", nil)
	interruptedClass         = NewClassDescriptor("InterruptedException", nil)
	exitSentinelClass        = NewClassDescriptor("Exit", nil)
)

// newManagedException builds a bare instance of class, bypassing
// Heap.Alloc: constructing one of these must never itself be able to
// trigger the allocator's own OOM path, which is exactly the
// recursion an exception raised from inside Heap.Alloc would invite.
func newManagedException(class *ClassDescriptor) *Object {
	exc := NewObject(class, 0)
	exc.SetMark(MarkRoot)
	return exc
}

// IllegalMonitorStateException is raised by Monitor.Exit/Wait when the
// calling thread does not hold the monitor.
func IllegalMonitorStateException() *Object { return newManagedException(illegalMonitorStateClass) }

// IllegalArgumentException is raised by core checkpoints given a value
// outside its accepted domain.
func IllegalArgumentException() *Object { return newManagedException(illegalArgumentClass) }

// NoSuchMethodError is raised when a dispatch site resolves to no
// vtable entry.
func NoSuchMethodError() *Object { return newManagedException(noSuchMethodClass) }

// StackOverflowError is raised by ThreadContext.PushFrame once a
// thread's frame stack exceeds its configured bound.
func StackOverflowError() *Object { return newManagedException(stackOverflowClass) }

// OutOfMemoryError is raised by Heap.Alloc when the heap remains over
// OOMThreshold after a collection attempt.
func OutOfMemoryError() *Object { return newManagedException(outOfMemoryClass) }

// InterruptedException is raised by a blocking operation that observes
// a cooperative interrupt request.
func InterruptedException() *Object { return newManagedException(interruptedClass) }

// ExitSentinel is the internal exception used only to unwind a
// thread's stack during shutdown. It must never be caught by an
// ordinary handler scope; ThreadContext.Throw special-cases it to skip
// the handler search entirely, and RecoverExit is the only sanctioned
// way to intercept it, at a thread's outermost frame.
func ExitSentinel() *Object { return newManagedException(exitSentinelClass) }

// IsExitSentinel reports whether exc is the shutdown unwind sentinel.
func IsExitSentinel(exc *Object) bool {
	return exc != nil && exc.Class() == exitSentinelClass
}
