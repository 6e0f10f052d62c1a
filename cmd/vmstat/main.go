// vmstat exercises the clearwing-vm CORE runtime end to end: it boots a
// Runtime, registers a handful of classes, allocates and drops objects
// across one or more collection cycles (-cycles, default 1), and prints
// the resulting stats.
//
// It is a diagnostic driver, not the transpiled-program entry point —
// that lives outside this module, in the code generator's own output.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/birdingman0626/clearwing-vm/vm"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML tunables override file")
	format := flag.String("format", "human", "output format: human or cbor")
	cycles := flag.Int("cycles", 1, "number of allocate/collect cycles to run")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: vmstat [options]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the CORE runtime through a small allocate/collect workload and reports heap statistics.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := vm.DefaultConfig()
	if *configPath != "" {
		loaded, err := vm.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vmstat: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	object, metaclass := vm.BootstrapMetaclass()
	stringClass := vm.NewClassDescriptor("String", object)

	rt := vm.NewRuntime(cfg, stringClass)
	if err := rt.Classes.Register(object); err != nil {
		fmt.Fprintf(os.Stderr, "vmstat: %v\n", err)
		os.Exit(1)
	}
	if err := rt.Classes.Register(metaclass); err != nil {
		fmt.Fprintf(os.Stderr, "vmstat: %v\n", err)
		os.Exit(1)
	}
	if err := rt.Classes.Register(stringClass); err != nil {
		fmt.Fprintf(os.Stderr, "vmstat: %v\n", err)
		os.Exit(1)
	}

	sample := vm.NewClassDescriptorWithFields("Sample", object, 2)
	if err := rt.Classes.Register(sample); err != nil {
		fmt.Fprintf(os.Stderr, "vmstat: %v\n", err)
		os.Exit(1)
	}

	rt.Start()
	defer rt.Shutdown()

	ctx := rt.AttachThread()
	defer rt.DetachThread(ctx)

	for i := 0; i < *cycles; i++ {
		for j := 0; j < cfg.Heap.ObjectThreshold/10+1; j++ {
			if _, err := rt.Heap.Alloc(ctx, sample, vm.MarkFree); err != nil {
				fmt.Fprintf(os.Stderr, "vmstat: %v\n", err)
				os.Exit(1)
			}
		}
		rt.Collector.Collect(ctx)
	}

	if _, err := rt.Strings.Intern(ctx, "hello"); err != nil {
		fmt.Fprintf(os.Stderr, "vmstat: %v\n", err)
		os.Exit(1)
	}

	snap := rt.TakeSnapshot()

	switch *format {
	case "cbor":
		data, err := snap.EncodeCBOR()
		if err != nil {
			fmt.Fprintf(os.Stderr, "vmstat: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
	default:
		snap.WriteHumanReport(os.Stdout)
	}
}
