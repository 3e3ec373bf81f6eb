package ising

import (
	"context"
	"fmt"
	"log/slog"

	"ising/internal/core"
	"ising/internal/observability"
)

// Stepper advances a lattice by one committed step.
type Stepper interface {
	Advance(ctx context.Context, lat *core.Lattice, beta float64) error
}

// Sink receives read-only snapshots of committed lattice states.
type Sink interface {
	Emit(step int, lat *core.Lattice) error
}

// Loop runs a fixed step budget and emits periodic snapshots.
type Loop struct {
	Steps    int
	Interval int
	Beta     float64
	Sink     Sink
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Run advances lat exactly l.Steps times. After step n commits, the sink
// sees the lattice when n is a multiple of l.Interval. Cancellation is only
// observed between steps. A sink failure is logged and the run continues.
func (l Loop) Run(ctx context.Context, s Stepper, lat *core.Lattice) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for step := 0; step < l.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ising: stopped before step %d: %w", step, err)
		}
		if err := s.Advance(ctx, lat, l.Beta); err != nil {
			return err
		}
		if l.Sink == nil || l.Interval <= 0 || step%l.Interval != 0 {
			continue
		}
		err := l.Sink.Emit(step, lat)
		l.Metrics.ObserveSnapshot(err)
		if err != nil {
			logger.Warn("snapshot failed", slog.Int("step", step), slog.String("error", err.Error()))
		}
	}
	logger.Info("run complete", slog.Int("steps", l.Steps))
	return nil
}
