package accel

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"ising/internal/core"
)

// Host is a Device that runs kernels on the host CPU. Its memory is a
// bounded arena of spin slices addressed through Buffer handles, and launches
// fan blocks out over a bounded worker pool.
type Host struct {
	name    string
	workers int
	limit   int64

	mu     sync.Mutex
	nextID uint64
	mem    map[uint64][]core.Spin
	used   int64
	closed bool
}

// NewHost constructs a host device. Workers below one are treated as one.
func NewHost(name string, opts Options) *Host {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Host{
		name:    name,
		workers: opts.Workers,
		limit:   opts.MemoryLimit,
		mem:     make(map[uint64][]core.Spin),
	}
}

// Name returns the registry name of the device.
func (h *Host) Name() string { return h.name }

// Workers returns the launch concurrency.
func (h *Host) Workers() int { return h.workers }

// Used returns the number of allocated bytes.
func (h *Host) Used() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// Alloc reserves device memory for the given number of cells.
func (h *Host) Alloc(cells int) (Buffer, error) {
	if cells <= 0 {
		return Buffer{}, fmt.Errorf("%w: cannot allocate %d cells", ErrInvalidBuffer, cells)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return Buffer{}, ErrClosed
	}
	size := int64(cells)
	if h.limit > 0 && h.used+size > h.limit {
		return Buffer{}, fmt.Errorf("%w: requested %d bytes, %d of %d in use", ErrResourceExhausted, size, h.used, h.limit)
	}
	h.nextID++
	h.mem[h.nextID] = make([]core.Spin, cells)
	h.used += size
	return Buffer{id: h.nextID, cells: cells}, nil
}

// Free releases a buffer. Freeing twice reports ErrInvalidBuffer.
func (h *Host) Free(b Buffer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.mem[b.id]
	if !ok {
		return fmt.Errorf("%w: free of unknown handle %d", ErrInvalidBuffer, b.id)
	}
	delete(h.mem, b.id)
	h.used -= int64(len(data))
	return nil
}

// CopyToDevice copies src into the start of dst.
func (h *Host) CopyToDevice(dst Buffer, src []core.Spin) error {
	data, err := h.resolve(dst, len(src))
	if err != nil {
		return err
	}
	copy(data, src)
	return nil
}

// CopyToHost copies the first len(dst) cells of src into dst.
func (h *Host) CopyToHost(dst []core.Spin, src Buffer) error {
	data, err := h.resolve(src, len(dst))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// Launch runs kernel id once per cell in [0, cells). It returns after every
// block has finished. A panicking kernel or a cancelled context fails the
// whole launch with ErrExecution; args.Out may then hold partial results.
func (h *Host) Launch(ctx context.Context, id KernelID, cells int, args Args) error {
	k, err := lookupKernel(id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecution, err)
	}
	if args.Streams == nil {
		return fmt.Errorf("%w: launch without random streams", ErrExecution)
	}
	in, err := h.resolve(args.In, cells)
	if err != nil {
		return fmt.Errorf("%w: input: %w", ErrExecution, err)
	}
	out, err := h.resolve(args.Out, cells)
	if err != nil {
		return fmt.Errorf("%w: output: %w", ErrExecution, err)
	}
	if args.In.id == args.Out.id {
		return fmt.Errorf("%w: input and output alias buffer %d", ErrExecution, args.In.id)
	}

	blocks := (cells + BlockSize - 1) / BlockSize
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for b := 0; b < blocks; b++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: block %d: %v", ErrExecution, b, r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			u := args.Streams(args.Step, b)
			start := b * BlockSize
			end := min(start+BlockSize, cells)
			for cell := start; cell < end; cell++ {
				k(cell, in, out, args.Params, u)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %w", ErrExecution, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrExecution, err)
	}
	return nil
}

// Close releases all device memory. Further allocations fail with ErrClosed.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.mem = make(map[uint64][]core.Spin)
	h.used = 0
	return nil
}

func (h *Host) resolve(b Buffer, cells int) ([]core.Spin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	data, ok := h.mem[b.id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle %d", ErrInvalidBuffer, b.id)
	}
	if cells > len(data) {
		return nil, fmt.Errorf("%w: %d cells exceed buffer of %d", ErrInvalidBuffer, cells, len(data))
	}
	return data, nil
}
