package vm

import (
	"time"

	"github.com/pkg/errors"
)

// MaxMarkCycle bounds the rotating mark-cycle counter. Wrapping back to
// 1 instead of growing unboundedly keeps the mark value comparison a
// plain integer equality check forever, at the cost of needing every
// object's mark reset to MarkFree once every MaxMarkCycle cycles rather
// than relying on "never seen this value before".
const MaxMarkCycle = 1 << 30

// DefaultMaxMarkDepth bounds direct recursion during the mark phase.
// Chains longer than this are pushed onto an explicit worklist instead
// of growing the Go call stack further, so a pathologically long linked
// list or deeply nested structure can't blow the collector's own stack.
const DefaultMaxMarkDepth = 256

// DefaultStopTheWorldTimeout is how long StopTheWorld waits for every
// mutator thread to reach a safepoint before a cycle gives up and
// treats lagging threads as a Fatal collector invariant violation.
const DefaultStopTheWorldTimeout = 10 * time.Second

// CycleStats summarizes one completed collection cycle.
type CycleStats struct {
	Cycle          int32
	Scanned        int
	Marked         int
	Swept          int
	WeakCleared    int
	Duration       time.Duration
	DeferredChains int
}

// Collector runs tracing mark-and-sweep over the heap's tracked object
// set. The root set, per spec, is every object in MarkRoot or
// MarkEternal state plus everything reachable from a live thread's
// frames; sweep only ever touches objects in MarkFree-or-stale state.
type Collector struct {
	heap      *Heap
	threads   *ThreadRegistry
	classes   *ClassRegistry
	safepoint *SafepointCoordinator
	weak      *WeakTable
	finalizer *FinalizerQueue

	maxMarkDepth    int
	stopTheWorldFor time.Duration

	mu      deadlockMu
	tracked map[*Object]int64 // live object -> accounted byte size

	cycle      int32
	lastStats  CycleStats
	cycleCount atomic64
}

// NewCollector wires a collector to the threads it scans and the weak
// table / finalizer queue it drives during sweep. Construct the heap via
// NewHeap, which binds itself to the collector, before the first Collect.
func NewCollector(threads *ThreadRegistry, weak *WeakTable, finalizer *FinalizerQueue) *Collector {
	return &Collector{
		threads:         threads,
		weak:            weak,
		finalizer:       finalizer,
		tracked:         make(map[*Object]int64),
		maxMarkDepth:    DefaultMaxMarkDepth,
		stopTheWorldFor: DefaultStopTheWorldTimeout,
	}
}

// SetSafepoint binds the coordinator used to stop mutator threads.
func (c *Collector) SetSafepoint(sc *SafepointCoordinator) { c.safepoint = sc }

// SetClasses binds the class registry whose class-variable storage the
// collector scans as additional roots every cycle.
func (c *Collector) SetClasses(classes *ClassRegistry) { c.classes = classes }

// Track registers obj as part of the live object set the collector is
// responsible for, with its accounted size for sweep-time reclamation.
func (c *Collector) Track(obj *Object, size int64) {
	c.mu.Lock()
	c.tracked[obj] = size
	c.mu.Unlock()
}

// Pin promotes obj to MarkRoot, excluding it from sweep regardless of
// reachability until Unpin is called.
func (c *Collector) Pin(obj *Object) {
	obj.SetMark(MarkRoot)
}

// Unpin demotes a previously pinned object back to ordinary tracking.
// The object is not immediately swept; it becomes eligible at the next
// cycle in which it is found unreachable.
func (c *Collector) Unpin(obj *Object) {
	obj.SetMark(MarkFree)
}

// Collect runs one full stop-the-world mark-and-sweep cycle. ctx is the
// thread that triggered collection (normally via Heap.Alloc); it is
// included in the root scan like every other live thread.
func (c *Collector) Collect(ctx *ThreadContext) CycleStats {
	start := time.Now()

	// The calling thread is running the collector itself, not mutator
	// code that might still be mutating the graph concurrently; mark it
	// suspended for the duration so StopTheWorld doesn't wait on it.
	if ctx != nil {
		ctx.suspended.Store(true)
		defer ctx.suspended.Store(false)
	}

	if c.safepoint != nil {
		if !c.safepoint.StopTheWorld(c.stopTheWorldFor) {
			panic(errors.New("vm: collector Fatal: stop-the-world timed out, a mutator thread never reached a safepoint"))
		}
		defer c.safepoint.ResumeTheWorld()
	}

	c.cycle++
	if c.cycle >= MaxMarkCycle {
		c.cycle = 1
		c.resetAllMarks()
	}
	cycle := c.cycle

	worklist := make([]*Object, 0, 256)
	rootSeen := make(map[*Object]bool)
	scanned := 0
	deferred := 0

	var markDeep func(obj *Object, depth int)
	markDeep = func(obj *Object, depth int) {
		if obj == nil {
			return
		}
		m := obj.Mark()
		if m == MarkEternal {
			return
		}
		if m == int32ToMark(cycle) {
			return
		}
		if m == MarkRoot {
			// Pinned objects keep MarkRoot so they stay pinned across
			// cycles; rootSeen stops them being scanned twice per cycle.
			if rootSeen[obj] {
				return
			}
			rootSeen[obj] = true
		} else {
			obj.SetMark(int32ToMark(cycle))
		}
		scanned++

		if depth >= c.maxMarkDepth {
			worklist = append(worklist, obj)
			deferred++
			return
		}

		if hook := classMarkHook(obj); hook != nil {
			hook(obj, func(ref *Object) { markDeep(ref, depth+1) })
			return
		}
		obj.ForEachField(func(_ int, ref *Object) { markDeep(ref, depth+1) })
	}

	if c.threads != nil {
		c.threads.Each(func(tc *ThreadContext) {
			tc.Roots(func(obj *Object) { markDeep(obj, 0) })
		})
	}

	if c.classes != nil {
		for _, desc := range c.classes.All() {
			desc.rootRefs(func(obj *Object) { markDeep(obj, 0) })
		}
	}

	c.mu.Lock()
	for obj := range c.tracked {
		if obj.Mark() == MarkRoot || obj.Mark() == MarkEternal {
			markDeep(obj, 0)
		}
	}
	c.mu.Unlock()

	for len(worklist) > 0 {
		obj := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if hook := classMarkHook(obj); hook != nil {
			hook(obj, func(ref *Object) { markDeep(ref, 0) })
			continue
		}
		obj.ForEachField(func(_ int, ref *Object) { markDeep(ref, 0) })
	}

	marked := scanned

	weakCleared := 0
	if c.weak != nil {
		weakCleared = c.weak.ProcessGC(func(obj *Object) bool {
			return obj.IsMarkedAt(cycle)
		})
	}

	var toFinalize []finalizable
	c.mu.Lock()
	swept := 0
	for obj, size := range c.tracked {
		if obj.IsMarkedAt(cycle) {
			continue
		}
		obj.SetMark(MarkCollected)
		toFinalize = append(toFinalize, finalizable{obj: obj, size: size})
		delete(c.tracked, obj)
		swept++
	}
	c.mu.Unlock()

	for _, f := range toFinalize {
		if c.finalizer != nil {
			c.finalizer.Enqueue(f.obj, f.size)
			continue
		}
		// No finalizer queue configured: nothing will ever run the
		// second pass, so reclaim synchronously rather than leaking
		// the heap accounting for this object forever.
		f.obj.SetMark(MarkFinalized)
		if c.heap != nil {
			c.heap.reclaim(f.size, f.obj.Class())
		}
		f.obj.SetMark(MarkDestroyed)
	}

	stats := CycleStats{
		Cycle:          cycle,
		Scanned:        scanned,
		Marked:         marked,
		Swept:          swept,
		WeakCleared:    weakCleared,
		Duration:       time.Since(start),
		DeferredChains: deferred,
	}
	c.lastStats = stats
	c.cycleCount.add(1)
	return stats
}

// LastStats returns the statistics from the most recently completed cycle.
func (c *Collector) LastStats() CycleStats { return c.lastStats }

// CycleCount returns the total number of completed collection cycles.
func (c *Collector) CycleCount() uint64 { return c.cycleCount.load() }

// resetAllMarks clears every tracked non-eternal, non-root object back
// to MarkFree when the cycle counter wraps, so stale high mark values
// from before the wrap can't be mistaken for "marked this cycle".
func (c *Collector) resetAllMarks() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for obj := range c.tracked {
		if m := obj.Mark(); m != MarkRoot && m != MarkEternal {
			obj.SetMark(MarkFree)
		}
	}
}

func int32ToMark(v int32) MarkState { return MarkState(v) }

func classMarkHook(obj *Object) MarkHook {
	if obj == nil || obj.class == nil {
		return nil
	}
	return obj.class.Mark
}
