package vm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Finalize is the hook a class may register to run cleanup logic when
// an instance is about to be reclaimed: releasing a native handle,
// closing a file descriptor, logging a leak. It normally runs on the
// dedicated finalizer goroutine; when the queue is full (or has no
// buffer), Enqueue runs it synchronously on the calling thread instead,
// which inside Collect is the collector's caller while the world is
// still stopped.
type Finalize func(obj *Object)

// finalizerHooks maps a class to its registered Finalize callback.
// Most classes have none; this is a sparse side table rather than a
// ClassDescriptor field so the common case costs nothing.
type finalizerHooks struct {
	mu    deadlockMu
	hooks map[*ClassDescriptor]Finalize
}

func newFinalizerHooks() *finalizerHooks {
	return &finalizerHooks{hooks: make(map[*ClassDescriptor]Finalize)}
}

func (fh *finalizerHooks) register(desc *ClassDescriptor, fn Finalize) {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	fh.hooks[desc] = fn
}

func (fh *finalizerHooks) lookup(desc *ClassDescriptor) Finalize {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	for c := desc; c != nil; c = c.Superclass {
		if fn, ok := fh.hooks[c]; ok {
			return fn
		}
	}
	return nil
}

// finalizable is an object the collector's sweep found unreachable,
// carrying the accounted byte size the heap needs back once the second
// pass reclaims it.
type finalizable struct {
	obj  *Object
	size int64
}

// FinalizerQueue buffers objects swept by the collector and runs their
// registered Finalize hook, if any, on a single dedicated goroutine.
// Objects that do not fit in the buffer are finalized by Enqueue's
// caller instead, possibly concurrently with that goroutine.
// After a hook runs (or for objects with no hook at all), the queue
// performs the second pass itself: reclaim heap accounting, drop the
// monitor, and flip the mark to MarkDestroyed.
type FinalizerQueue struct {
	hooks *finalizerHooks
	heap  *Heap

	queue   chan finalizable
	group   *errgroup.Group
	cancel  func()
	started sync.Once
}

// NewFinalizerQueue creates a queue with the given buffer capacity.
func NewFinalizerQueue(capacity int) *FinalizerQueue {
	return &FinalizerQueue{
		hooks: newFinalizerHooks(),
		queue: make(chan finalizable, capacity),
	}
}

// SetHeap binds the heap whose accounting the second pass reclaims
// into. Call before the first Enqueue; NewHeap does not do this (it
// binds only the collector), NewRuntime does. Without a bound heap the
// second pass skips the accounting reclaim.
func (fq *FinalizerQueue) SetHeap(h *Heap) { fq.heap = h }

// RegisterFinalizer binds fn to run whenever an instance of desc (or a
// subclass that doesn't override it) is swept.
func (fq *FinalizerQueue) RegisterFinalizer(desc *ClassDescriptor, fn Finalize) {
	fq.hooks.register(desc, fn)
}

// Start launches the finalizer goroutine. Safe to call multiple times;
// only the first call has an effect.
func (fq *FinalizerQueue) Start() {
	fq.started.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		fq.cancel = cancel
		g, gctx := errgroup.WithContext(ctx)
		fq.group = g
		g.Go(func() error { return fq.run(gctx) })
	})
}

// Enqueue hands an unreachable object of the given accounted size to
// the finalizer goroutine. Never blocks the collector: if the queue is
// full the object is finalized synchronously by the caller as a last
// resort, matching the collector's requirement that sweep itself never
// stalls waiting on finalization. obj must already be marked
// MarkCollected and removed from the collector's tracked set.
func (fq *FinalizerQueue) Enqueue(obj *Object, size int64) {
	item := finalizable{obj: obj, size: size}
	select {
	case fq.queue <- item:
	default:
		fq.finalizeOne(item)
	}
}

func (fq *FinalizerQueue) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			fq.drain()
			return nil
		case item := <-fq.queue:
			fq.finalizeOne(item)
		}
	}
}

func (fq *FinalizerQueue) drain() {
	for {
		select {
		case item := <-fq.queue:
			fq.finalizeOne(item)
		default:
			return
		}
	}
}

// finalizeOne runs obj's registered Finalize hook, if any, then the
// second pass: the monitor is dropped, heap accounting is reclaimed,
// and the mark flips from MarkFinalized to MarkDestroyed. Reads of
// obj's fields after this point are poisoned — the accounting that
// referenced them no longer exists.
func (fq *FinalizerQueue) finalizeOne(item finalizable) {
	obj := item.obj
	if obj == nil {
		return
	}
	class := obj.Class()
	if class != nil {
		if fn := fq.hooks.lookup(class); fn != nil {
			fn(obj)
		}
	}
	obj.SetMark(MarkFinalized)

	obj.monitor.Store(nil)
	if fq.heap != nil {
		fq.heap.reclaim(item.size, class)
	}
	obj.SetMark(MarkDestroyed)
}

// Shutdown stops the finalizer goroutine, draining any queued objects
// first, and waits up to 10 seconds for it to finish.
func (fq *FinalizerQueue) Shutdown() error {
	if fq.cancel == nil {
		return nil
	}
	fq.cancel()
	done := make(chan error, 1)
	go func() { done <- fq.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		return context.DeadlineExceeded
	}
}

// Pending returns the number of objects currently queued but not yet
// finalized.
func (fq *FinalizerQueue) Pending() int { return len(fq.queue) }
