// Package group provides the process group used to replicate the initial
// lattice. Broadcast is collective: every rank must call it with the same
// root and buffer length, and no rank returns before the root's bytes are
// in every buffer.
package group

import (
	"context"
	"errors"
)

var (
	// ErrLength reports ranks broadcasting buffers of different sizes.
	ErrLength = errors.New("group: buffer length mismatch")
	// ErrRoot reports an out-of-range or unsupported root rank.
	ErrRoot = errors.New("group: invalid root")
	// ErrClosed reports use of a closed group.
	ErrClosed = errors.New("group: closed")
	// ErrSize reports an invalid group size or rank.
	ErrSize = errors.New("group: invalid size or rank")
)

// Group is one member of a process group.
type Group interface {
	Rank() int
	Size() int
	Broadcast(ctx context.Context, buf []byte, root int) error
	Close() error
}
