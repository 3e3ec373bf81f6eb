package ising

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ising/internal/core"
	"ising/internal/group"
	"ising/internal/observability"
	rng "ising/pkg/core"
)

// Root is the rank that seeds the lattice, emits snapshots and, by default,
// is the only rank that evolves.
const Root = 0

// ErrDistribution reports that the initial lattice could not be replicated.
var ErrDistribution = errors.New("ising: distribution failed")

// Coordinator seeds the initial lattice on the root and replicates it to
// every rank of the group.
type Coordinator struct {
	Group   group.Group
	Seed    int64
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Distribute fills lat on the root with uniform random spins and broadcasts
// it. When it returns nil, lat holds the same cells on every rank. It must be
// called exactly once by every rank before the first step.
func (c Coordinator) Distribute(ctx context.Context, lat *core.Lattice) (err error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rank := c.Group.Rank()
	ctx, span := observability.Tracer().Start(ctx, "ising.distribute",
		trace.WithAttributes(
			attribute.Int("ising.rank", rank),
			attribute.Int("ising.group_size", c.Group.Size()),
			attribute.Int("ising.cells", lat.Len()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "distribution failed")
		}
		span.End()
	}()

	buf := make([]byte, lat.Len())
	if rank == Root {
		seed := c.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng.FillSpins(rng.NewSeedRNG(seed).Source(), lat.Current())
		core.EncodeSpins(buf, lat.Current())
		logger.Info("seeded lattice", slog.Int("side", lat.Side()), slog.Int64("seed", seed))
	}

	start := time.Now()
	if err := c.Group.Broadcast(ctx, buf, Root); err != nil {
		return fmt.Errorf("%w: rank %d: %w", ErrDistribution, rank, err)
	}
	c.Metrics.ObserveBroadcast(time.Since(start))

	if rank != Root {
		if err := core.DecodeSpins(lat.Current(), buf); err != nil {
			return fmt.Errorf("%w: rank %d: %w", ErrDistribution, rank, err)
		}
	}
	logger.Debug("lattice replicated", slog.Int("rank", rank), slog.Duration("took", time.Since(start)))
	return nil
}
