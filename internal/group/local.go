package group

import (
	"context"
	"fmt"
	"sync"
)

// hub is the rendezvous shared by the ranks of a local group.
type hub struct {
	size int

	mu     sync.Mutex
	round  *round
	closed bool
}

type round struct {
	root    int
	length  int
	arrived int
	data    []byte
	err     error
	done    chan struct{}
}

// Local is a rank of an in-process group. Ranks typically run on separate
// goroutines.
type Local struct {
	rank int
	hub  *hub
}

// NewLocal creates an in-process group of n ranks.
func NewLocal(n int) ([]*Local, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrSize, n)
	}
	h := &hub{size: n}
	ranks := make([]*Local, n)
	for i := range ranks {
		ranks[i] = &Local{rank: i, hub: h}
	}
	return ranks, nil
}

// Rank returns this member's rank.
func (l *Local) Rank() int { return l.rank }

// Size returns the number of ranks in the group.
func (l *Local) Size() int { return l.hub.size }

// Broadcast copies root's buf into every other rank's buf once all ranks
// have arrived.
func (l *Local) Broadcast(ctx context.Context, buf []byte, root int) error {
	if root < 0 || root >= l.hub.size {
		return fmt.Errorf("%w: %d", ErrRoot, root)
	}
	h := l.hub
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	r := h.round
	if r == nil {
		r = &round{root: root, length: len(buf), done: make(chan struct{})}
		h.round = r
	}
	switch {
	case r.root != root:
		r.err = fmt.Errorf("%w: rank %d used root %d, others %d", ErrRoot, l.rank, root, r.root)
	case r.length != len(buf):
		r.err = fmt.Errorf("%w: rank %d has %d bytes, others %d", ErrLength, l.rank, len(buf), r.length)
	}
	if l.rank == root {
		r.data = append([]byte(nil), buf...)
	}
	r.arrived++
	if r.arrived == h.size {
		h.round = nil
		close(r.done)
	}
	h.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		return fmt.Errorf("group: rank %d waiting for broadcast: %w", l.rank, ctx.Err())
	}
	if r.err != nil {
		return r.err
	}
	if l.rank != root {
		copy(buf, r.data)
	}
	return nil
}

// Close marks the group closed for every rank.
func (l *Local) Close() error {
	l.hub.mu.Lock()
	defer l.hub.mu.Unlock()
	l.hub.closed = true
	return nil
}
