package app

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"ising/internal/core"
	"ising/internal/group"
	"ising/internal/sims/ising"
)

// GroupConfig selects how the process group is formed.
type GroupConfig struct {
	// Mode is "local" (ranks are goroutines of this process) or "grpc"
	// (one rank per process).
	Mode string `yaml:"mode"`
	// LocalRanks is the group size in local mode.
	LocalRanks int `yaml:"local_ranks"`
	// Rank and Size identify this process in grpc mode.
	Rank int `yaml:"rank"`
	Size int `yaml:"size"`
	// Addr is the root's listen and dial address in grpc mode.
	Addr string `yaml:"addr"`
	// Timeout bounds the seed broadcast in grpc mode.
	Timeout time.Duration `yaml:"timeout"`
}

// SnapshotConfig selects the snapshot sinks used by the root.
type SnapshotConfig struct {
	// Text prints snapshots to stdout.
	Text bool `yaml:"text"`
	// Limit caps printed rows and columns. Zero prints everything.
	Limit int `yaml:"limit"`
	// Archive is a badger directory that keeps every snapshot.
	Archive string `yaml:"archive"`
	// RunID names this run inside the archive. Empty generates one.
	RunID string `yaml:"run_id"`
}

// Config represents the command-line parameters for the application.
type Config struct {
	Sim         ising.Config   `yaml:"sim"`
	Device      string         `yaml:"device"`
	Workers     int            `yaml:"workers"`
	MemoryLimit int64          `yaml:"memory_limit"`
	Group       GroupConfig    `yaml:"group"`
	Snapshot    SnapshotConfig `yaml:"snapshot"`
	MetricsAddr string         `yaml:"metrics_addr"`
	Trace       bool           `yaml:"trace"`
	LogLevel    string         `yaml:"log_level"`
	LogFormat   string         `yaml:"log_format"`
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Sim:       ising.DefaultConfig(),
		Device:    "cpu",
		Group:     GroupConfig{Mode: "local", LocalRanks: 1, Size: 1, Addr: "127.0.0.1:7400", Timeout: group.DefaultTimeout},
		Snapshot:  SnapshotConfig{Text: true},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadFile overlays the YAML file at path onto c. Fields missing from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Bind attaches the configuration to the provided FlagSet.
func (c *Config) Bind(fs *pflag.FlagSet) {
	fs.IntVar(&c.Sim.Side, "side", c.Sim.Side, "lattice side length")
	fs.IntVar(&c.Sim.Steps, "steps", c.Sim.Steps, "number of Monte Carlo steps")
	fs.IntVar(&c.Sim.Interval, "interval", c.Sim.Interval, "emit a snapshot every N steps (0 disables)")
	fs.Float64Var(&c.Sim.Beta, "beta", c.Sim.Beta, "inverse temperature")
	fs.Int64Var(&c.Sim.Seed, "seed", c.Sim.Seed, "seed for the initial lattice and random streams (0 uses the clock)")
	fs.BoolVar(&c.Sim.EvolveReplicas, "evolve-replicas", c.Sim.EvolveReplicas, "advance the lattice on every rank, not just the root")

	fs.StringVar(&c.Device, "device", c.Device, "accelerator device")
	fs.IntVar(&c.Workers, "workers", c.Workers, "concurrent blocks per launch (0 uses every CPU)")
	fs.Int64Var(&c.MemoryLimit, "memory-limit", c.MemoryLimit, "device memory cap in bytes (0 is unlimited)")

	fs.StringVar(&c.Group.Mode, "group", c.Group.Mode, "process group: local or grpc")
	fs.IntVar(&c.Group.LocalRanks, "local-ranks", c.Group.LocalRanks, "number of in-process ranks in local mode")
	fs.IntVar(&c.Group.Rank, "rank", c.Group.Rank, "rank of this process in grpc mode")
	fs.IntVar(&c.Group.Size, "size", c.Group.Size, "number of processes in grpc mode")
	fs.StringVar(&c.Group.Addr, "root-addr", c.Group.Addr, "root rank address in grpc mode")
	fs.DurationVar(&c.Group.Timeout, "group-timeout", c.Group.Timeout, "give up on the seed broadcast after this long in grpc mode")

	fs.BoolVar(&c.Snapshot.Text, "print", c.Snapshot.Text, "print snapshots to stdout")
	fs.IntVar(&c.Snapshot.Limit, "print-limit", c.Snapshot.Limit, "print at most N rows and columns (0 prints all)")
	fs.StringVar(&c.Snapshot.Archive, "archive", c.Snapshot.Archive, "badger directory that keeps every snapshot")
	fs.StringVar(&c.Snapshot.RunID, "run-id", c.Snapshot.RunID, "archive key prefix for this run (default: random)")

	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve Prometheus metrics on this address")
	fs.BoolVar(&c.Trace, "trace", c.Trace, "write OpenTelemetry spans to stderr")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "text or json")
}

// Parameters lists the simulation parameters followed by the runtime ones.
func (c *Config) Parameters() core.ParameterSnapshot {
	snap := c.Sim.Parameters()
	snap.Groups = append(snap.Groups, core.ParameterGroup{
		Name: "Runtime",
		Params: []core.Parameter{
			core.StringParam("device", "Device", c.Device),
			core.IntParam("workers", "Workers", c.Workers),
			core.Int64Param("memory_limit", "Memory limit", c.MemoryLimit),
			core.StringParam("group", "Process group", c.Group.Mode),
		},
	})
	return snap
}
