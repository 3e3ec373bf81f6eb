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

	"ising/internal/accel"
	"ising/internal/core"
	"ising/internal/observability"
	rng "ising/pkg/core"
)

// ErrLatticeMismatch reports a lattice whose side differs from the driver's.
var ErrLatticeMismatch = errors.New("ising: lattice does not match driver")

// Driver advances a lattice one step at a time on a device. It owns a pair
// of device buffers sized for one lattice.
type Driver struct {
	dev     accel.Device
	side    int
	in, out accel.Buffer
	step    uint64

	streams rng.StreamFactory
	metrics *observability.Metrics
	log     *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Driver.
type Option func(*Driver)

// WithStreams sets the random streams handed to the kernel.
func WithStreams(f rng.StreamFactory) Option {
	return func(d *Driver) { d.streams = f }
}

// WithMetrics records step timings and failures.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithLogger sets the driver logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// NewDriver allocates the device buffers for a lattice of the given side.
// Allocation failures are returned as accel.ErrResourceExhausted.
func NewDriver(dev accel.Device, side int, opts ...Option) (*Driver, error) {
	if side <= 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrLatticeSize, side)
	}
	d := &Driver{
		dev:    dev,
		side:   side,
		log:    slog.Default(),
		tracer: observability.Tracer(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.streams == nil {
		d.streams = rng.NewStreams(0)
	}

	cells := side * side
	in, err := dev.Alloc(cells)
	if err != nil {
		return nil, fmt.Errorf("ising: allocate current buffer: %w", err)
	}
	out, err := dev.Alloc(cells)
	if err != nil {
		_ = dev.Free(in)
		return nil, fmt.Errorf("ising: allocate scratch buffer: %w", err)
	}
	d.in, d.out = in, out
	d.log.Debug("driver ready", slog.String("device", dev.Name()), slog.Int("side", side))
	return d, nil
}

// Steps returns the number of committed steps.
func (d *Driver) Steps() uint64 { return d.step }

// Advance runs one Metropolis sweep over every cell of lat and swaps its
// buffers. On error the lattice is left exactly as it was.
func (d *Driver) Advance(ctx context.Context, lat *core.Lattice, beta float64) (err error) {
	if lat.Side() != d.side {
		return fmt.Errorf("%w: lattice side %d, driver side %d", ErrLatticeMismatch, lat.Side(), d.side)
	}
	ctx, span := d.tracer.Start(ctx, "ising.advance",
		trace.WithAttributes(
			attribute.Int64("ising.step", int64(d.step)),
			attribute.Float64("ising.beta", beta),
		),
	)
	start := time.Now()
	defer func() {
		d.metrics.ObserveStep(time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "step aborted")
		}
		span.End()
	}()

	if err := d.dev.CopyToDevice(d.in, lat.Current()); err != nil {
		return fmt.Errorf("ising: step %d upload: %w", d.step, err)
	}
	args := accel.Args{
		In:      d.in,
		Out:     d.out,
		Params:  accel.Params{Side: d.side, Beta: beta},
		Step:    d.step,
		Streams: d.streams,
	}
	if err := d.dev.Launch(ctx, KernelMetropolis, lat.Len(), args); err != nil {
		return fmt.Errorf("ising: step %d launch: %w", d.step, err)
	}
	if err := d.dev.CopyToHost(lat.Scratch(), d.out); err != nil {
		return fmt.Errorf("ising: step %d download: %w", d.step, err)
	}
	lat.Swap()
	d.step++
	return nil
}

// Close frees the device buffers.
func (d *Driver) Close() error {
	return errors.Join(d.dev.Free(d.in), d.dev.Free(d.out))
}
