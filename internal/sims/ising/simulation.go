package ising

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ising/internal/accel"
	"ising/internal/core"
	"ising/internal/group"
	"ising/internal/observability"
	rng "ising/pkg/core"
)

// Simulation ties one rank's collaborators together for a full run.
type Simulation struct {
	Config  Config
	Group   group.Group
	Device  accel.Device
	Sink    Sink
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Run allocates the lattice, takes part in the seed broadcast and then, on
// the ranks that evolve, allocates device buffers and runs the step loop.
// It returns the final lattice of this rank.
func (s Simulation) Run(ctx context.Context) (*core.Lattice, error) {
	cfg := s.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rank := s.Group.Rank()
	logger = logger.With(slog.Int("rank", rank))

	ctx, span := observability.Tracer().Start(ctx, "ising.run",
		trace.WithAttributes(
			attribute.Int("ising.side", cfg.Side),
			attribute.Int("ising.steps", cfg.Steps),
			attribute.Float64("ising.beta", cfg.Beta),
		),
	)
	defer span.End()

	lat, err := core.NewLattice(cfg.Side)
	if err != nil {
		return nil, err
	}

	coord := Coordinator{Group: s.Group, Seed: cfg.Seed, Metrics: s.Metrics, Logger: logger}
	if err := coord.Distribute(ctx, lat); err != nil {
		return nil, err
	}
	if rank != Root && !cfg.EvolveReplicas {
		logger.Info("replica held without evolving")
		return lat, nil
	}

	driver, err := NewDriver(s.Device, cfg.Side,
		WithStreams(rng.NewStreams(streamSeed(cfg.Seed, rank))),
		WithMetrics(s.Metrics),
		WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := driver.Close(); cerr != nil {
			logger.Warn("free device buffers", slog.String("error", cerr.Error()))
		}
	}()

	loop := Loop{
		Steps:    cfg.Steps,
		Interval: cfg.Interval,
		Beta:     cfg.Beta,
		Metrics:  s.Metrics,
		Logger:   logger,
	}
	if rank == Root {
		loop.Sink = s.Sink
	}
	logger.Info("run started",
		slog.String("device", s.Device.Name()),
		slog.Int("side", cfg.Side),
		slog.Int("steps", cfg.Steps),
		slog.Float64("beta", cfg.Beta),
	)
	if err := loop.Run(ctx, driver, lat); err != nil {
		if errors.Is(err, accel.ErrExecution) {
			return nil, fmt.Errorf("ising: run aborted after %d steps: %w", driver.Steps(), err)
		}
		return nil, err
	}
	return lat, nil
}

// streamSeed gives each rank its own random streams. Zero stays zero so the
// streams fall back to the clock.
func streamSeed(seed int64, rank int) int64 {
	if seed == 0 {
		return 0
	}
	return seed + int64(rank)*0x5851f42d4c957f2d
}
