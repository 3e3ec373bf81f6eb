package snapshot

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ising/internal/core"
)

func checkerboard(t *testing.T, side int) *core.Lattice {
	t.Helper()
	lat, err := core.NewLattice(side)
	require.NoError(t, err)
	for i := 0; i < side; i++ {
		for j := 0; j < side; j++ {
			if (i+j)%2 == 1 {
				lat.Set(i, j, core.Down)
			}
		}
	}
	return lat
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewText(&buf, 0)
	require.NoError(t, sink.Emit(100, checkerboard(t, 3)))
	want := "Step 100:\n1 -1 1 \n-1 1 -1 \n1 -1 1 \n"
	assert.Equal(t, want, buf.String())
}

func TestTextLimit(t *testing.T) {
	var buf bytes.Buffer
	sink := NewText(&buf, 2)
	require.NoError(t, sink.Emit(0, checkerboard(t, 5)))
	assert.Equal(t, "Step 0:\n1 -1 \n-1 1 \n", buf.String())
}

type failingSink struct{ calls int }

func (f *failingSink) Emit(int, *core.Lattice) error {
	f.calls++
	return errors.New("sink offline")
}

func TestMultiForwardsToAll(t *testing.T) {
	var buf bytes.Buffer
	bad := &failingSink{}
	m := Multi{bad, NewText(&buf, 1)}
	err := m.Emit(7, checkerboard(t, 2))
	require.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, "Step 7:\n1 \n", buf.String())
}

func TestArchiveRoundTrip(t *testing.T) {
	a, err := OpenArchive(ArchiveConfig{InMemory: true, RunID: "test-run"})
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "test-run", a.RunID())

	lat := checkerboard(t, 4)
	require.NoError(t, a.Emit(0, lat))
	lat.Fill(core.Down)
	require.NoError(t, a.Emit(100, lat))
	require.NoError(t, a.Emit(20, lat))

	steps, err := a.Steps()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 20, 100}, steps)

	got, err := a.Load(0)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Side())
	assert.Equal(t, checkerboard(t, 4).Current(), got.Current())

	_, err = a.Load(5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveLoadRejectsNonSquareEntry(t *testing.T) {
	a, err := OpenArchive(ArchiveConfig{InMemory: true, RunID: "bad"})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(a.key(3), []byte{1, 1, 1, 1, 1})
	}))
	_, err = a.Load(3)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestArchiveGeneratesRunID(t *testing.T) {
	a, err := OpenArchive(ArchiveConfig{InMemory: true})
	require.NoError(t, err)
	defer a.Close()
	assert.Len(t, a.RunID(), 36)

	_, err = OpenArchive(ArchiveConfig{})
	require.Error(t, err)
}
