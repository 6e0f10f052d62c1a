package vm

import (
	"github.com/pkg/errors"
)

// Thresholds bounds the allocator's decision to trigger a collection or
// to give up with OutOfMemory. All fields are compile-time configuration
// per the runtime's default Tunables, optionally overridden by Config.
type Thresholds struct {
	ObjectThreshold int   // object count that triggers a cycle
	MemThreshold    int64 // bytes allocated since last cycle that triggers one
	HeapThreshold   int64 // total live bytes that triggers a cycle
	OOMThreshold    int64 // total live bytes above which allocation fails
}

// DefaultThresholds mirrors the compile-time defaults a generated
// runtime ships with absent an explicit Config.
var DefaultThresholds = Thresholds{
	ObjectThreshold: 50_000,
	MemThreshold:    8 << 20,
	HeapThreshold:   256 << 20,
	OOMThreshold:    512 << 20,
}

// objectOverhead is the accounted size of the fixed Header plus the four
// inline field slots, independent of a class's declared field count.
const objectOverhead = 64

// Heap is the bump allocator: every Alloc either returns a fresh Object
// or triggers a collection first and retries once. It never reuses
// freed storage directly — the collector's sweep phase hands storage
// back to the Go garbage collector by dropping every reference to dead
// Objects, and Go reclaims the memory in its own time.
type Heap struct {
	thresholds Thresholds
	collector  *Collector

	mu              deadlockMu
	objectsSinceGC  int64
	bytesSinceGC    int64
	liveBytes       atomic64
	liveObjects     atomic64
	allocGuard      map[*ThreadContext]bool // recursion guard for OOM-during-OOM
}

// NewHeap creates a heap bound to collector, using the given thresholds.
func NewHeap(collector *Collector, thresholds Thresholds) *Heap {
	h := &Heap{
		thresholds: thresholds,
		collector:  collector,
		allocGuard: make(map[*ThreadContext]bool),
	}
	collector.heap = h
	return h
}

// Alloc allocates a new object of the given class with mark initialized
// to mark (normally MarkFree; MarkEternal for permanent objects). If any
// threshold is exceeded it runs a synchronous collection first. Raises
// OutOfMemoryError through ctx.Throw if the heap is still over
// OOMThreshold after collecting; the plain error return remains for the
// ctx == nil case, which has no thread to unwind.
func (h *Heap) Alloc(ctx *ThreadContext, class *ClassDescriptor, mark MarkState) (*Object, error) {
	size := int64(objectOverhead)
	if class != nil && class.NumFields > NumInlineFields {
		size += int64(class.NumFields-NumInlineFields) * 8
	}

	h.mu.Lock()
	h.objectsSinceGC++
	h.bytesSinceGC += size
	needsGC := h.objectsSinceGC >= int64(h.thresholds.ObjectThreshold) ||
		h.bytesSinceGC >= h.thresholds.MemThreshold ||
		int64(h.liveBytes.load())+size >= h.thresholds.HeapThreshold
	h.mu.Unlock()

	if needsGC && h.collector != nil {
		h.collector.Collect(ctx)
	}

	if int64(h.liveBytes.load())+size >= h.thresholds.OOMThreshold {
		h.mu.Lock()
		guarding := h.allocGuard[ctx]
		h.allocGuard[ctx] = true
		h.mu.Unlock()
		if guarding {
			// The guard is held only across the recovery collection
			// below and is cleared before any OutOfMemoryError is
			// thrown (constructing one never allocates through this
			// path, see newManagedException). Seeing it already set
			// means Alloc was re-entered for this same ctx while that
			// collection was still running. That is a collector
			// invariant violation, not a recoverable condition.
			panic(errors.New("vm: fatal: out of memory while already unwinding an OutOfMemoryError"))
		}
		if h.collector != nil {
			h.collector.Collect(ctx)
		}
		h.mu.Lock()
		delete(h.allocGuard, ctx)
		stillOver := int64(h.liveBytes.load())+size >= h.thresholds.OOMThreshold
		h.mu.Unlock()
		if stillOver {
			if ctx == nil {
				return nil, errors.Errorf("vm: out of memory allocating %s (%d bytes live)", class.FullName(), h.liveBytes.load())
			}
			ctx.Throw(OutOfMemoryError())
		}
	}

	numFields := 0
	if class != nil {
		numFields = class.NumFields
	}
	obj := NewObject(class, numFields)
	obj.SetMark(mark)

	h.liveBytes.add(uint64(size))
	h.liveObjects.add(1)
	if class != nil {
		class.liveCount.add(1)
	}

	if needsGC {
		h.mu.Lock()
		h.objectsSinceGC = 0
		h.bytesSinceGC = 0
		h.mu.Unlock()
	}

	if h.collector != nil {
		h.collector.Track(obj, size)
	}

	return obj, nil
}

// LiveBytes returns the heap's current accounted live byte count.
func (h *Heap) LiveBytes() uint64 { return h.liveBytes.load() }

// LiveObjects returns the heap's current accounted live object count.
func (h *Heap) LiveObjects() uint64 { return h.liveObjects.load() }

// reclaim is called by the finalizer's second pass for each object it
// destroys (or, absent a finalizer queue, by the collector directly),
// so the heap's accounting matches what is actually still live.
func (h *Heap) reclaim(size int64, class *ClassDescriptor) {
	h.liveBytes.v.Add(^uint64(size - 1))
	h.liveObjects.v.Add(^uint64(0))
	if class != nil {
		class.liveCount.v.Add(^uint64(0))
		class.finalizedCount.add(1)
	}
}
