// Package app wires configuration, devices, process groups and snapshot
// sinks into a runnable Ising simulation.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"ising/internal/accel"
	"ising/internal/core"
	"ising/internal/group"
	"ising/internal/observability"
	"ising/internal/sims/ising"
	"ising/internal/snapshot"
)

// App runs one configured simulation.
type App struct {
	cfg      *Config
	stdout   io.Writer
	stderr   io.Writer
	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
}

// New validates cfg and prepares the logger and metrics registry. Snapshots
// go to stdout, logs and traces to stderr.
func New(cfg *Config, stdout, stderr io.Writer) (*App, error) {
	if err := cfg.Sim.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Group.Mode {
	case "local":
		if cfg.Group.LocalRanks <= 0 {
			return nil, fmt.Errorf("%w: local ranks must be positive, got %d", ising.ErrConfig, cfg.Group.LocalRanks)
		}
	case "grpc":
		if cfg.Group.Addr == "" {
			return nil, fmt.Errorf("%w: grpc group needs a root address", ising.ErrConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unknown group mode %q", ising.ErrConfig, cfg.Group.Mode)
	}
	logger, err := NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ising.ErrConfig, err)
	}
	reg := prometheus.NewRegistry()
	return &App{
		cfg:      cfg,
		stdout:   stdout,
		stderr:   stderr,
		log:      logger,
		registry: reg,
		metrics:  observability.NewMetrics(reg),
	}, nil
}

// Registry exposes the metrics gathered during Run.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Run executes the simulation and returns the lattice held by the lowest
// rank in this process.
func (a *App) Run(ctx context.Context) (*core.Lattice, error) {
	if a.cfg.Trace {
		shutdown, err := observability.SetupTracing(a.stderr)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				a.log.Warn("flush traces", slog.String("error", err.Error()))
			}
		}()
	}
	if a.cfg.MetricsAddr != "" {
		stop := a.serveMetrics()
		defer stop()
	}

	sink, closeSink, err := a.openSinks()
	if err != nil {
		return nil, err
	}
	defer closeSink()

	if a.cfg.Group.Mode == "grpc" {
		return a.runGRPC(ctx, sink)
	}
	return a.runLocal(ctx, sink)
}

func (a *App) runLocal(ctx context.Context, sink ising.Sink) (*core.Lattice, error) {
	members, err := group.NewLocal(a.cfg.Group.LocalRanks)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, m := range members {
			_ = m.Close()
		}
	}()
	lattices := make([]*core.Lattice, len(members))
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range members {
		g.Go(func() error {
			lat, err := a.runRank(gctx, m, sink)
			lattices[m.Rank()] = lat
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lattices[ising.Root], nil
}

func (a *App) runGRPC(ctx context.Context, sink ising.Sink) (*core.Lattice, error) {
	m, err := group.NewGRPC(group.GRPCConfig{
		Rank:   a.cfg.Group.Rank,
		Size:   a.cfg.Group.Size,
		Addr:   a.cfg.Group.Addr,
		Logger: a.log,
		// One byte per cell.
		MaxPayload: a.cfg.Sim.Side * a.cfg.Sim.Side,
		Timeout:    a.cfg.Group.Timeout,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := m.Close(); err != nil {
			a.log.Warn("leave group", slog.String("error", err.Error()))
		}
	}()
	return a.runRank(ctx, m, sink)
}

// runRank opens a device for one rank and runs its part of the simulation.
func (a *App) runRank(ctx context.Context, m group.Group, sink ising.Sink) (*core.Lattice, error) {
	dev, err := accel.Open(a.cfg.Device, accel.Options{
		Workers:     a.cfg.Workers,
		MemoryLimit: a.cfg.MemoryLimit,
	})
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	sim := ising.Simulation{
		Config:  a.cfg.Sim,
		Group:   m,
		Device:  dev,
		Sink:    sink,
		Metrics: a.metrics,
		Logger:  a.log,
	}
	return sim.Run(ctx)
}

// openSinks builds the snapshot sinks. The returned sink is nil when no
// output is configured.
func (a *App) openSinks() (ising.Sink, func(), error) {
	var sinks snapshot.Multi
	closers := []func(){}
	if a.cfg.Snapshot.Text {
		sinks = append(sinks, snapshot.NewText(a.stdout, a.cfg.Snapshot.Limit))
	}
	if a.cfg.Snapshot.Archive != "" {
		arch, err := snapshot.OpenArchive(snapshot.ArchiveConfig{
			Path:   a.cfg.Snapshot.Archive,
			RunID:  a.cfg.Snapshot.RunID,
			Logger: a.log,
		})
		if err != nil {
			return nil, nil, err
		}
		a.log.Info("archiving snapshots",
			slog.String("path", a.cfg.Snapshot.Archive),
			slog.String("run_id", arch.RunID()),
		)
		sinks = append(sinks, arch)
		closers = append(closers, func() {
			if err := arch.Close(); err != nil {
				a.log.Warn("close archive", slog.String("error", err.Error()))
			}
		})
	}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	switch len(sinks) {
	case 0:
		return nil, closeAll, nil
	case 1:
		return sinks[0], closeAll, nil
	default:
		return sinks, closeAll, nil
	}
}

func (a *App) serveMetrics() func() {
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           observability.Handler(a.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	a.log.Info("serving metrics", slog.String("addr", a.cfg.MetricsAddr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
