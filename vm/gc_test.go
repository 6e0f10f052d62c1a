package vm

import (
	"testing"
	"time"
)

func newTestCollector() (*Collector, *Heap, *ThreadRegistry, *WeakTable, *FinalizerQueue) {
	threads := NewThreadRegistry()
	weak := NewWeakTable()
	fin := NewFinalizerQueue(16)
	collector := NewCollector(threads, weak, fin)
	collector.SetSafepoint(NewSafepointCoordinator(threads))
	heap := NewHeap(collector, DefaultThresholds)
	return collector, heap, threads, weak, fin
}

func TestCollectSweepsUnreachableAndKeepsRooted(t *testing.T) {
	collector, heap, threads, _, fin := newTestCollector()
	fin.SetHeap(heap)
	fin.Start()
	defer fin.Shutdown()
	ctx := threads.Attach()
	defer threads.Detach(ctx)

	desc := NewClassDescriptor("Thing", nil)
	rooted, err := heap.Alloc(ctx, desc, MarkFree)
	if err != nil {
		t.Fatal(err)
	}
	ctx.PushFrame(Frame{Receiver: rooted})

	garbage, err := heap.Alloc(ctx, desc, MarkFree)
	if err != nil {
		t.Fatal(err)
	}

	stats := collector.Collect(ctx)
	if stats.Swept != 1 {
		t.Fatalf("expected exactly 1 swept object, got %d", stats.Swept)
	}
	if rooted.Mark() == MarkFree {
		t.Fatalf("rooted object should have been marked, not left at MarkFree")
	}
	// The swept object's accounting is reclaimed by the finalizer's
	// second pass on its own goroutine, not inside Collect.
	deadline := time.Now().Add(time.Second)
	for heap.LiveObjects() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if heap.LiveObjects() != 1 {
		t.Fatalf("expected 1 live object remaining, got %d", heap.LiveObjects())
	}
	_ = garbage
}

func TestCollectDefersDeepChainsToWorklist(t *testing.T) {
	collector, heap, threads, _, _ := newTestCollector()
	collector.maxMarkDepth = 4
	ctx := threads.Attach()
	defer threads.Detach(ctx)

	desc := NewClassDescriptorWithFields("Node", nil, 1)

	// Build a linked chain of length well beyond maxMarkDepth so the
	// recursive walk must defer part of it to the worklist.
	const chainLength = 20
	var head *Object
	var prev *Object
	for i := 0; i < chainLength; i++ {
		node, err := heap.Alloc(ctx, desc, MarkFree)
		if err != nil {
			t.Fatal(err)
		}
		if head == nil {
			head = node
		}
		if prev != nil {
			prev.SetField(0, node)
		}
		prev = node
	}
	ctx.PushFrame(Frame{Receiver: head})

	stats := collector.Collect(ctx)
	if stats.DeferredChains == 0 {
		t.Fatalf("expected the chain to overflow maxMarkDepth and defer at least one link")
	}
	if stats.Swept != 0 {
		t.Fatalf("every node in the chain is reachable from the root; expected 0 swept, got %d", stats.Swept)
	}
	if heap.LiveObjects() != chainLength {
		t.Fatalf("expected all %d chain nodes to survive, got %d live", chainLength, heap.LiveObjects())
	}
}

func TestCollectScansClassVarsAsRoots(t *testing.T) {
	collector, heap, threads, _, _ := newTestCollector()
	classes := NewClassRegistry()
	collector.SetClasses(classes)
	ctx := threads.Attach()
	defer threads.Detach(ctx)

	desc := NewClassDescriptor("Thing", nil)
	if err := classes.Register(desc); err != nil {
		t.Fatal(err)
	}

	held, err := heap.Alloc(ctx, desc, MarkFree)
	if err != nil {
		t.Fatal(err)
	}
	desc.SetClassVar(0, held)

	stats := collector.Collect(ctx)
	if stats.Swept != 0 {
		t.Fatalf("expected the class-var-held object to survive, got %d swept", stats.Swept)
	}
	if heap.LiveObjects() != 1 {
		t.Fatalf("expected 1 live object kept alive by a class variable, got %d", heap.LiveObjects())
	}
}

func TestCollectPipelineClearsWeakRefsAndFinalizes(t *testing.T) {
	collector, heap, threads, weak, fin := newTestCollector()
	fin.Start()
	defer fin.Shutdown()
	ctx := threads.Attach()
	defer threads.Detach(ctx)

	desc := NewClassDescriptor("Resource", nil)
	finalized := make(chan *Object, 1)
	fin.RegisterFinalizer(desc, func(obj *Object) { finalized <- obj })

	obj, err := heap.Alloc(ctx, desc, MarkFree)
	if err != nil {
		t.Fatal(err)
	}
	holder := weak.Register(obj)

	stats := collector.Collect(ctx) // obj is rooted by nothing; it must sweep
	if stats.Swept != 1 {
		t.Fatalf("expected the unreferenced object to sweep, got %d", stats.Swept)
	}
	if stats.WeakCleared != 1 {
		t.Fatalf("expected the weak holder to clear during the same cycle, got %d", stats.WeakCleared)
	}
	if holder.IsAlive() {
		t.Fatalf("expected the weak holder to be cleared once its referent was collected")
	}

	select {
	case got := <-finalized:
		if got != obj {
			t.Fatalf("expected the finalizer to receive the swept object")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected the finalizer goroutine to run for the swept object")
	}
}

func TestPinKeepsObjectAliveAcrossCollection(t *testing.T) {
	collector, heap, threads, _, _ := newTestCollector()
	ctx := threads.Attach()
	defer threads.Detach(ctx)

	desc := NewClassDescriptor("Thing", nil)
	obj, err := heap.Alloc(ctx, desc, MarkFree)
	if err != nil {
		t.Fatal(err)
	}
	collector.Pin(obj)

	stats := collector.Collect(ctx)
	if stats.Swept != 0 {
		t.Fatalf("expected the pinned object to survive collection, got %d swept", stats.Swept)
	}

	collector.Unpin(obj)
	stats = collector.Collect(ctx)
	if stats.Swept != 1 {
		t.Fatalf("expected the unpinned, unreferenced object to sweep on the next cycle, got %d", stats.Swept)
	}
}
