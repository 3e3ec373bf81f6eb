// Package accel models the accelerator that executes per-cell kernels.
//
// A Device owns its own memory: lattices are copied in before a launch and
// copied back out afterwards, so the host buffer stays the source of truth
// between steps. Launch blocks until every cell of the launch has been
// processed or the launch failed; there is no partial completion.
package accel

import (
	"context"
	"errors"

	"ising/internal/core"
	rng "ising/pkg/core"
)

var (
	// ErrResourceExhausted reports that device memory could not satisfy an allocation.
	ErrResourceExhausted = errors.New("accel: device memory exhausted")
	// ErrExecution reports that a kernel launch did not complete.
	ErrExecution = errors.New("accel: kernel execution failed")
	// ErrInvalidBuffer reports a freed, foreign or mis-sized buffer handle.
	ErrInvalidBuffer = errors.New("accel: invalid buffer")
	// ErrUnknownKernel reports a launch of a kernel id missing from the catalog.
	ErrUnknownKernel = errors.New("accel: unknown kernel")
	// ErrUnknownDevice reports a lookup of an unregistered device name.
	ErrUnknownDevice = errors.New("accel: unknown device")
	// ErrClosed reports use of a closed device.
	ErrClosed = errors.New("accel: device closed")
)

// BlockSize is the number of cells handed to one unit of work.
const BlockSize = 256

// Buffer is an opaque handle to device memory holding one spin per cell.
type Buffer struct {
	id    uint64
	cells int
}

// Cells returns the capacity of the buffer in cells.
func (b Buffer) Cells() int { return b.cells }

// Params carries scalar kernel arguments.
type Params struct {
	Side int
	Beta float64
}

// Args describes one kernel launch.
type Args struct {
	In      Buffer
	Out     Buffer
	Params  Params
	Step    uint64
	Streams rng.StreamFactory
}

// Device is the accelerator collaborator.
type Device interface {
	Name() string
	Alloc(cells int) (Buffer, error)
	CopyToDevice(dst Buffer, src []core.Spin) error
	CopyToHost(dst []core.Spin, src Buffer) error
	Launch(ctx context.Context, id KernelID, cells int, args Args) error
	Free(b Buffer) error
	Close() error
}
