package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// WeakHolder is one weak reference to a referent. Multiple holders may
// point at the same referent (a WeakHashMap entry and a standalone
// WeakReference both holding the same key, for instance); Get returns
// nil for every holder once any collection cycle finds the referent
// unreachable.
type WeakHolder struct {
	id       uint64
	referent atomic.Pointer[Object]
	onClear  func(*Object)
	cleared  atomic.Bool
}

// ID returns the holder's unique identifier.
func (wh *WeakHolder) ID() uint64 { return wh.id }

// Get returns the referent, or nil if it has been cleared.
func (wh *WeakHolder) Get() *Object { return wh.referent.Load() }

// IsAlive reports whether the referent has not yet been cleared.
func (wh *WeakHolder) IsAlive() bool { return !wh.cleared.Load() }

// SetFinalizer installs a callback run when this holder is cleared.
// The callback receives the referent for informational purposes only —
// it is already unreachable by the time the callback runs.
func (wh *WeakHolder) SetFinalizer(fn func(*Object)) { wh.onClear = fn }

// ---------------------------------------------------------------------------
// WeakTable
// ---------------------------------------------------------------------------

// WeakTable is the referent -> holders multimap the collector consults
// during every cycle. Holders are cleared, and their finalizer
// callbacks invoked, before the referent's own class-registered
// Finalize hook runs in the finalizer goroutine — so a weak observer
// never sees a referent that is about to be finalized as still alive.
type WeakTable struct {
	mu        deadlockMu
	byRef     map[*Object][]*WeakHolder
	nextID    atomic.Uint64
	liveCount atomic.Int64
}

// NewWeakTable creates an empty weak table.
func NewWeakTable() *WeakTable {
	return &WeakTable{byRef: make(map[*Object][]*WeakHolder)}
}

// Register creates and installs a new holder for referent.
func (t *WeakTable) Register(referent *Object) *WeakHolder {
	wh := &WeakHolder{id: t.nextID.Add(1)}
	wh.referent.Store(referent)

	t.mu.Lock()
	t.byRef[referent] = append(t.byRef[referent], wh)
	t.mu.Unlock()

	t.liveCount.Add(1)
	return wh
}

// Unregister removes a holder before it would naturally clear, e.g.
// when the language-level WeakReference wrapping it is itself collected.
func (t *WeakTable) Unregister(wh *WeakHolder) {
	referent := wh.referent.Load()
	if referent == nil {
		return
	}
	t.mu.Lock()
	holders := t.byRef[referent]
	for i, h := range holders {
		if h == wh {
			holders = append(holders[:i], holders[i+1:]...)
			break
		}
	}
	if len(holders) == 0 {
		delete(t.byRef, referent)
	} else {
		t.byRef[referent] = holders
	}
	t.mu.Unlock()
	t.liveCount.Add(-1)
}

// Count returns the number of currently registered holders.
func (t *WeakTable) Count() int64 { return t.liveCount.Load() }

// ProcessGC is called by the collector once marking for a cycle is
// complete. isMarked reports whether a given referent survived the
// cycle. Every holder of an unmarked referent is cleared and its
// finalizer, if any, run synchronously once the table's lock has been
// released. Returns the number of holders cleared.
func (t *WeakTable) ProcessGC(isMarked func(*Object) bool) int {
	t.mu.Lock()
	var toClear []*WeakHolder
	for referent, holders := range t.byRef {
		if isMarked(referent) {
			continue
		}
		toClear = append(toClear, holders...)
		delete(t.byRef, referent)
	}
	t.mu.Unlock()

	for _, wh := range toClear {
		referent := wh.referent.Load()
		wh.referent.Store(nil)
		wh.cleared.Store(true)
		t.liveCount.Add(-1)
		if wh.onClear != nil {
			wh.onClear(referent)
		}
	}
	return len(toClear)
}

// ---------------------------------------------------------------------------
// WeakTableCompactor: idle-time cleanup of already-cleared holders
// ---------------------------------------------------------------------------

// WeakTableCompactor periodically drops holder slots whose referent has
// already been cleared (and whose slice entry survived only because
// Unregister was never called) so a long-running process doesn't carry
// around empty holder slices forever.
type WeakTableCompactor struct {
	table    *WeakTable
	interval time.Duration
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex
}

// DefaultCompactInterval is how often the compactor sweeps by default.
const DefaultCompactInterval = 30 * time.Second

// NewWeakTableCompactor creates a compactor for table, sweeping every interval.
func NewWeakTableCompactor(table *WeakTable, interval time.Duration) *WeakTableCompactor {
	if interval <= 0 {
		interval = DefaultCompactInterval
	}
	return &WeakTableCompactor{table: table, interval: interval}
}

// Start begins the periodic sweep goroutine.
func (c *WeakTableCompactor) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})
	stopCh, stoppedCh := c.stop, c.stopped
	go c.loop(stopCh, stoppedCh)
}

// Stop halts the sweep goroutine and waits for it to exit.
func (c *WeakTableCompactor) Stop() {
	c.mu.Lock()
	stopCh, stoppedCh := c.stop, c.stopped
	c.stop, c.stopped = nil, nil
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

func (c *WeakTableCompactor) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes any referent entry whose holder slice is entirely
// cleared (normally none, since ProcessGC already deletes the map key
// — this guards against holders cleared by means other than ProcessGC,
// e.g. a future eager-clear path, leaving an empty slice behind).
func (c *WeakTableCompactor) sweep() int {
	t := c.table
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for referent, holders := range t.byRef {
		kept := holders[:0]
		for _, h := range holders {
			if h.IsAlive() {
				kept = append(kept, h)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(t.byRef, referent)
		} else {
			t.byRef[referent] = kept
		}
	}
	return removed
}
