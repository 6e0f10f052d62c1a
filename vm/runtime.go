package vm

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runtime bundles every CORE component into the object a generated
// program's entry point constructs once at process start: the class
// registry, the thread registry and safepoint coordinator, the heap and
// its collector, the weak table and its compactor, the finalizer queue,
// and the string-literal pool.
type Runtime struct {
	Config Config

	Classes   *ClassRegistry
	Threads   *ThreadRegistry
	Safepoint *SafepointCoordinator
	Weak      *WeakTable
	Finalizer *FinalizerQueue
	Collector *Collector
	Heap      *Heap
	Strings   *InternPool

	compactor *WeakTableCompactor
}

// NewRuntime wires a complete Runtime from cfg. The string class
// descriptor is supplied by the caller since it is itself the first
// class a bootstrap sequence registers.
func NewRuntime(cfg Config, stringClass *ClassDescriptor) *Runtime {
	rt := &Runtime{Config: cfg}

	rt.Classes = NewClassRegistry()
	rt.Threads = NewThreadRegistry()
	rt.Safepoint = NewSafepointCoordinator(rt.Threads)
	rt.Weak = NewWeakTable()
	rt.Finalizer = NewFinalizerQueue(cfg.Finalizer.QueueCapacity)

	rt.Collector = NewCollector(rt.Threads, rt.Weak, rt.Finalizer)
	rt.Collector.SetSafepoint(rt.Safepoint)
	rt.Collector.SetClasses(rt.Classes)
	rt.Collector.maxMarkDepth = cfg.GC.MaxMarkDepth
	rt.Collector.stopTheWorldFor = cfg.GC.StopTheWorldTimeout

	rt.Heap = NewHeap(rt.Collector, cfg.Thresholds())
	rt.Finalizer.SetHeap(rt.Heap)
	rt.Strings = NewInternPool(rt.Heap, stringClass)

	rt.compactor = NewWeakTableCompactor(rt.Weak, cfg.WeakTable.CompactInterval)

	return rt
}

// Start launches the background goroutines: the finalizer and the weak
// table compactor. The collector itself has no background goroutine —
// it only runs synchronously inside Heap.Alloc or an explicit Collect
// call, matching the "GC triggered by allocation" model.
func (rt *Runtime) Start() {
	rt.Finalizer.Start()
	rt.compactor.Start()
}

// AttachThread registers the calling goroutine as a mutator thread and
// returns its ThreadContext. The goroutine must call DetachThread when done.
func (rt *Runtime) AttachThread() *ThreadContext {
	ctx := rt.Threads.Attach()
	ctx.SetMaxDepth(rt.Config.Stack.MaxDepth)
	return ctx
}

// DetachThread removes ctx from the thread registry.
func (rt *Runtime) DetachThread(ctx *ThreadContext) {
	rt.Threads.Detach(ctx)
}

// Shutdown signals every mutator thread to exit, waits up to 10 seconds
// for them to do so, then stops the background goroutines in parallel
// within the same wall-clock ceiling.
//
// Signaling works in two steps: BeginShutdown raises the exiting flag
// and wakes any thread parked in a safepoint poll, and every thread
// currently blocked in Monitor.Enter/Wait is separately woken via
// NotifyAll on the monitor it is blocked on, since a blocked thread is
// not polling a safepoint at all. Both paths converge on the same
// outcome: the next time the thread reaches Poll, it raises the Exit
// sentinel and unwinds.
func (rt *Runtime) Shutdown() error {
	deadline := time.Now().Add(10 * time.Second)

	rt.Safepoint.BeginShutdown()
	rt.Threads.Each(func(tc *ThreadContext) {
		if m := tc.blockedBy; m != nil {
			m.NotifyAll()
		}
	})

	for rt.Threads.Count() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Until(deadline))
	defer cancel()

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.compactor.Stop()
		return nil
	})
	g.Go(func() error {
		return rt.Finalizer.Shutdown()
	})
	return g.Wait()
}
