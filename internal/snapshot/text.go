// Package snapshot holds the observers that receive committed lattice
// states from the simulation loop.
package snapshot

import (
	"bufio"
	"errors"
	"io"
	"strconv"

	"ising/internal/core"
)

// Text writes snapshots in the plain console format:
//
//	Step 100:
//	-1 1 1 -1 ...
//
// one line per lattice row.
type Text struct {
	w *bufio.Writer
	// Limit caps the number of rows and columns printed. Zero prints the
	// full lattice.
	Limit int
}

// NewText wraps w in a buffered text sink.
func NewText(w io.Writer, limit int) *Text {
	return &Text{w: bufio.NewWriterSize(w, 64<<10), Limit: limit}
}

// Emit writes the committed state of lat and flushes.
func (t *Text) Emit(step int, lat *core.Lattice) error {
	size := lat.Size()
	rows, cols := size.H, size.W
	if t.Limit > 0 {
		rows, cols = min(rows, t.Limit), min(cols, t.Limit)
	}
	var scratch [20]byte
	t.w.WriteString("Step ")
	t.w.Write(strconv.AppendInt(scratch[:0], int64(step), 10))
	t.w.WriteString(":\n")
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			t.w.Write(strconv.AppendInt(scratch[:0], int64(lat.Get(i, j)), 10))
			t.w.WriteByte(' ')
		}
		t.w.WriteByte('\n')
	}
	return t.w.Flush()
}

// Sink receives committed lattice states.
type Sink interface {
	Emit(step int, lat *core.Lattice) error
}

// Multi fans a snapshot out to several sinks and joins their errors.
type Multi []Sink

// Emit forwards the snapshot to every sink, even after a failure.
func (m Multi) Emit(step int, lat *core.Lattice) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(step, lat); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
