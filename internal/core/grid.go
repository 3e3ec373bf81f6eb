package core

import (
	"errors"
	"fmt"
)

// Spin is the state of a single lattice cell.
type Spin int8

const (
	// Down is the -1 spin state.
	Down Spin = -1
	// Up is the +1 spin state.
	Up Spin = 1
)

// ErrLatticeSize reports a non-positive side length.
var ErrLatticeSize = errors.New("core: lattice side must be positive")

// Valid reports whether s is one of the two spin states.
func (s Spin) Valid() bool { return s == Up || s == Down }

// Lattice stores an L×L spin grid in row-major order together with its
// scratch buffer. Cell (i, j) lives at index i*L+j in both buffers.
//
// The current buffer holds the last committed state. The scratch buffer is
// only written by the step driver and only becomes visible through Swap.
type Lattice struct {
	side int
	cur  []Spin
	nxt  []Spin
}

// NewLattice allocates both buffers for a lattice of the given side length.
// Every cell starts as Up.
func NewLattice(side int) (*Lattice, error) {
	if side <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrLatticeSize, side)
	}
	cells := make([]Spin, side*side)
	l := &Lattice{side: side, cur: cells, nxt: make([]Spin, len(cells))}
	l.Fill(Up)
	return l, nil
}

// Side returns L.
func (l *Lattice) Side() int { return l.side }

// Len returns the number of cells, L*L.
func (l *Lattice) Len() int { return len(l.cur) }

// Size returns the grid dimensions.
func (l *Lattice) Size() Size { return Size{W: l.side, H: l.side} }

// Index returns the linear slice index for row i, column j.
func (l *Lattice) Index(i, j int) int { return i*l.side + j }

// Wrap applies toroidal wrapping to the provided coordinates.
func (l *Lattice) Wrap(i, j int) (int, int) {
	i = (i%l.side + l.side) % l.side
	j = (j%l.side + l.side) % l.side
	return i, j
}

// Get returns the committed spin at (i, j).
func (l *Lattice) Get(i, j int) Spin { return l.cur[i*l.side+j] }

// Set overwrites the committed spin at (i, j). It is meant for seeding and
// tests; the step driver never writes into the current buffer.
func (l *Lattice) Set(i, j int, v Spin) {
	checkSpin(v)
	l.cur[i*l.side+j] = v
}

// Fill sets every committed cell to v.
func (l *Lattice) Fill(v Spin) {
	checkSpin(v)
	for i := range l.cur {
		l.cur[i] = v
	}
}

// Current exposes the committed buffer. Callers must treat it as read-only
// while a step is in flight.
func (l *Lattice) Current() []Spin { return l.cur }

// Scratch exposes the write target of the step in progress.
func (l *Lattice) Scratch() []Spin { return l.nxt }

// Swap promotes the scratch buffer to current. Only the slice headers move.
func (l *Lattice) Swap() { l.cur, l.nxt = l.nxt, l.cur }

// Clone returns a deep copy of the committed state with a fresh scratch buffer.
func (l *Lattice) Clone() *Lattice {
	c := &Lattice{side: l.side, cur: make([]Spin, len(l.cur)), nxt: make([]Spin, len(l.nxt))}
	copy(c.cur, l.cur)
	return c
}

// ValidSpins reports whether every value in cells is -1 or +1.
func ValidSpins(cells []Spin) bool {
	for _, s := range cells {
		if !s.Valid() {
			return false
		}
	}
	return true
}
