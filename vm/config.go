package vm

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds every compile-time tunable the runtime exposes. The
// zero value is not meaningful on its own — call DefaultConfig for the
// values a generated runtime ships with absent an override file.
//
// These are genuinely compile-time configuration per the object model:
// LoadConfig is a convenience for tests and the diagnostic CLI to
// exercise different tunings without rebuilding, not a mechanism the
// runtime itself uses to read persisted state.
type Config struct {
	Heap struct {
		ObjectThreshold int   `toml:"object_threshold"`
		MemThreshold    int64 `toml:"mem_threshold_bytes"`
		HeapThreshold   int64 `toml:"heap_threshold_bytes"`
		OOMThreshold    int64 `toml:"oom_threshold_bytes"`
	} `toml:"heap"`

	Stack struct {
		MaxDepth int `toml:"max_depth"`
	} `toml:"stack"`

	GC struct {
		MaxMarkDepth       int           `toml:"max_mark_depth"`
		StopTheWorldTimeout time.Duration `toml:"stop_the_world_timeout"`
	} `toml:"gc"`

	Finalizer struct {
		QueueCapacity  int           `toml:"queue_capacity"`
		ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	} `toml:"finalizer"`

	WeakTable struct {
		CompactInterval time.Duration `toml:"compact_interval"`
	} `toml:"weak_table"`
}

// DefaultConfig returns the compile-time defaults: the thresholds every
// component in this package otherwise falls back to when constructed
// directly without a Config.
func DefaultConfig() Config {
	var c Config
	c.Heap.ObjectThreshold = DefaultThresholds.ObjectThreshold
	c.Heap.MemThreshold = DefaultThresholds.MemThreshold
	c.Heap.HeapThreshold = DefaultThresholds.HeapThreshold
	c.Heap.OOMThreshold = DefaultThresholds.OOMThreshold
	c.Stack.MaxDepth = DefaultMaxStackDepth
	c.GC.MaxMarkDepth = DefaultMaxMarkDepth
	c.GC.StopTheWorldTimeout = DefaultStopTheWorldTimeout
	c.Finalizer.QueueCapacity = 4096
	c.Finalizer.ShutdownTimeout = 10 * time.Second
	c.WeakTable.CompactInterval = DefaultCompactInterval
	return c
}

// LoadConfig reads tunables from a TOML file, starting from
// DefaultConfig so an override file only needs to name the fields it
// changes.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "vm: loading config %s", path)
	}
	return cfg, nil
}

// Thresholds extracts the Heap section as a Thresholds value.
func (c Config) Thresholds() Thresholds {
	return Thresholds{
		ObjectThreshold: c.Heap.ObjectThreshold,
		MemThreshold:    c.Heap.MemThreshold,
		HeapThreshold:   c.Heap.HeapThreshold,
		OOMThreshold:    c.Heap.OOMThreshold,
	}
}
