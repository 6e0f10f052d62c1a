package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fxamacker/cbor/v2"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Snapshot is a point-in-time introspection dump of runtime state. It
// is never read back by the runtime itself — persisted state is out of
// scope — it exists purely for a human or a monitoring tool to inspect.
type Snapshot struct {
	Cycle         int32         `cbor:"cycle" json:"cycle"`
	LiveObjects   uint64        `cbor:"live_objects" json:"live_objects"`
	LiveBytes     uint64        `cbor:"live_bytes" json:"live_bytes"`
	Threads       int           `cbor:"threads" json:"threads"`
	WeakHolders   int64         `cbor:"weak_holders" json:"weak_holders"`
	InternedCount int           `cbor:"interned_count" json:"interned_count"`
	LastCycle     CycleStats    `cbor:"last_cycle" json:"last_cycle"`
	CyclesRun     uint64        `cbor:"cycles_run" json:"cycles_run"`
	Classes       int           `cbor:"classes" json:"classes"`
}

// TakeSnapshot gathers a Snapshot from a live Runtime.
func (rt *Runtime) TakeSnapshot() Snapshot {
	return Snapshot{
		Cycle:         rt.Collector.lastStats.Cycle,
		LiveObjects:   rt.Heap.LiveObjects(),
		LiveBytes:     rt.Heap.LiveBytes(),
		Threads:       rt.Threads.Count(),
		WeakHolders:   rt.Weak.Count(),
		InternedCount: rt.Strings.Count(),
		LastCycle:     rt.Collector.LastStats(),
		CyclesRun:     rt.Collector.CycleCount(),
		Classes:       rt.Classes.Len(),
	}
}

// EncodeCBOR serializes the snapshot as CBOR, for tools that want a
// compact machine-readable dump rather than the human-readable report.
func (s Snapshot) EncodeCBOR() ([]byte, error) {
	return cbor.Marshal(s)
}

// WriteHumanReport renders a colorized, byte-humanized summary of the
// snapshot to w. Color is only applied when w is a terminal.
func (s Snapshot) WriteHumanReport(w io.Writer) {
	var p termenv.Profile
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		p = termenv.ColorProfile()
	} else {
		p = termenv.Ascii
	}

	label := func(text string) string {
		return termenv.String(text).Foreground(p.Color("12")).Styled(text)
	}

	fmt.Fprintf(w, "%s cycle=%d\n", label("gc"), s.Cycle)
	fmt.Fprintf(w, "  objects   %s\n", humanize.Comma(int64(s.LiveObjects)))
	fmt.Fprintf(w, "  live      %s\n", humanize.Bytes(s.LiveBytes))
	fmt.Fprintf(w, "  threads   %d\n", s.Threads)
	fmt.Fprintf(w, "  classes   %d\n", s.Classes)
	fmt.Fprintf(w, "  weak      %d holders\n", s.WeakHolders)
	fmt.Fprintf(w, "  interned  %d literals\n", s.InternedCount)
	fmt.Fprintf(w, "  cycles    %s (last swept %d, deferred %d, took %s)\n",
		humanize.Comma(int64(s.CyclesRun)), s.LastCycle.Swept, s.LastCycle.DeferredChains, s.LastCycle.Duration)
}
