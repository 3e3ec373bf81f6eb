package ising

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfig reports an unusable run configuration.
var ErrConfig = errors.New("ising: invalid config")

// Config holds the fixed settings of a run. Nothing here changes once the
// simulation has started.
type Config struct {
	// Side is the lattice side length L.
	Side int `yaml:"side"`
	// Steps is the step budget S.
	Steps int `yaml:"steps"`
	// Interval is the snapshot period K. Zero disables snapshots.
	Interval int `yaml:"interval"`
	// Beta is the inverse temperature.
	Beta float64 `yaml:"beta"`
	// Seed drives the initial lattice and the per-block random streams.
	// Zero picks a seed from the clock.
	Seed int64 `yaml:"seed"`
	// EvolveReplicas lets every rank advance its own copy of the lattice
	// instead of only the root.
	EvolveReplicas bool `yaml:"evolve_replicas"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		Side:     1024,
		Steps:    1000,
		Interval: 100,
		Beta:     0.5,
	}
}

// Validate reports the first unusable field.
func (c Config) Validate() error {
	switch {
	case c.Side <= 0:
		return fmt.Errorf("%w: side %d", ErrConfig, c.Side)
	case c.Steps < 0:
		return fmt.Errorf("%w: steps %d", ErrConfig, c.Steps)
	case c.Interval < 0:
		return fmt.Errorf("%w: interval %d", ErrConfig, c.Interval)
	case c.Beta < 0 || math.IsNaN(c.Beta) || math.IsInf(c.Beta, 0):
		return fmt.Errorf("%w: beta %g", ErrConfig, c.Beta)
	}
	return nil
}
