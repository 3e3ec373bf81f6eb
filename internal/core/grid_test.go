package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLattice(t *testing.T) {
	l, err := NewLattice(3)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Side())
	assert.Equal(t, 9, l.Len())
	assert.Equal(t, Size{W: 3, H: 3}, l.Size())
	for _, s := range l.Current() {
		assert.Equal(t, Up, s)
	}

	_, err = NewLattice(0)
	require.ErrorIs(t, err, ErrLatticeSize)
}

func TestWrap(t *testing.T) {
	l, err := NewLattice(4)
	require.NoError(t, err)
	cases := []struct{ i, j, wi, wj int }{
		{0, 0, 0, 0},
		{-1, 0, 3, 0},
		{0, -1, 0, 3},
		{4, 5, 0, 1},
		{-5, 9, 3, 1},
	}
	for _, c := range cases {
		i, j := l.Wrap(c.i, c.j)
		assert.Equal(t, [2]int{c.wi, c.wj}, [2]int{i, j}, "wrap(%d,%d)", c.i, c.j)
	}
}

func TestSwapOnlyMovesHeaders(t *testing.T) {
	l, err := NewLattice(2)
	require.NoError(t, err)
	cur, nxt := l.Current(), l.Scratch()
	copy(nxt, []Spin{Down, Up, Down, Up})

	l.Swap()
	assert.Same(t, &nxt[0], &l.Current()[0])
	assert.Same(t, &cur[0], &l.Scratch()[0])
	assert.Equal(t, Down, l.Get(1, 0))
	assert.Equal(t, 2, l.Index(1, 0))
}

func TestCloneIsIndependent(t *testing.T) {
	l, err := NewLattice(2)
	require.NoError(t, err)
	c := l.Clone()
	c.Set(0, 0, Down)
	assert.Equal(t, Up, l.Get(0, 0))
	assert.Equal(t, Down, c.Get(0, 0))
}

func TestValidSpins(t *testing.T) {
	assert.True(t, ValidSpins([]Spin{Up, Down}))
	assert.False(t, ValidSpins([]Spin{Up, 0}))
	assert.False(t, Spin(2).Valid())
}

func TestSpinCodec(t *testing.T) {
	src := []Spin{Up, Down, Down, Up}
	buf := make([]byte, len(src))
	EncodeSpins(buf, src)
	assert.Equal(t, []byte{1, 0xff, 0xff, 1}, buf)

	dst := make([]Spin, len(src))
	require.NoError(t, DecodeSpins(dst, buf))
	assert.Equal(t, src, dst)

	require.Error(t, DecodeSpins(dst, buf[:3]))
	require.ErrorIs(t, DecodeSpins(dst, []byte{1, 1, 0, 1}), ErrInvalidSpin)
}

func TestParameterSnapshot(t *testing.T) {
	snap := ParameterSnapshot{Groups: []ParameterGroup{{
		Name:   "Lattice",
		Params: []Parameter{IntParam("side", "Side", 8), BoolParam("hot", "Hot", true)},
	}}}
	p, ok := snap.Lookup("hot")
	require.True(t, ok)
	assert.Equal(t, ParamTypeBool, p.Type)
	assert.Equal(t, "true", p.Value)

	var sb strings.Builder
	_, err := snap.WriteTo(&sb)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "[Lattice]\n")
	assert.Contains(t, sb.String(), "side")
}
