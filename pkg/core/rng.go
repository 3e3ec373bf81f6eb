package core

import (
	"math"
	"math/rand/v2"
	"time"
)

// Uniform produces draws in [0, 1).
type Uniform interface {
	Float64() float64
}

// StreamFactory hands out an independent random stream for one block of
// cells within one step.
type StreamFactory func(step uint64, block int) Uniform

// RNG is a thin convenience wrapper around math/rand/v2 for deterministic seeding.
type RNG struct {
	r *rand.Rand
}

// NewRNG creates a deterministic RNG using the provided seed.
func NewRNG(seed int64) *RNG {
	return &RNG{r: rand.New(rand.NewPCG(uint64(seed), 0))}
}

// SeedStream is the PCG stream reserved for drawing initial lattices. Kernel
// blocks are numbered from zero and never reach it.
const SeedStream = math.MaxUint64

// NewSeedRNG returns the generator used to draw an initial lattice. It never
// shares a sequence with the kernel streams of NewStreams(seed).
func NewSeedRNG(seed int64) *RNG {
	return NewStreamRNG(seed, SeedStream)
}

// NewStreamRNG creates a deterministic RNG on a specific PCG stream.
func NewStreamRNG(seed int64, stream uint64) *RNG {
	return &RNG{r: rand.New(rand.NewPCG(uint64(seed), stream))}
}

// Float64 returns a uniform draw in [0, 1).
func (r *RNG) Float64() float64 { return r.r.Float64() }

// Source exposes the underlying rand.Rand for advanced use.
func (r *RNG) Source() *rand.Rand { return r.r }

// FillSpins fills buf with -1/+1 values chosen uniformly.
func FillSpins[S ~int8](r *rand.Rand, buf []S) {
	for i := range buf {
		buf[i] = S(r.IntN(2)*2 - 1)
	}
}

// NewStreams returns a factory whose streams depend only on seed, step and
// block, so results do not depend on how blocks are scheduled. A zero seed
// is replaced by the wall clock.
func NewStreams(seed int64) StreamFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return func(step uint64, block int) Uniform {
		return NewStreamRNG(seed^int64(step*0x9e3779b97f4a7c15), uint64(block))
	}
}

// Constant is a Uniform that always returns the same value. It is useful for
// forcing acceptance or rejection in tests.
type Constant float64

// Float64 returns the constant.
func (c Constant) Float64() float64 { return float64(c) }

// ConstantStreams returns a factory that hands out the same constant draw to
// every block.
func ConstantStreams(v float64) StreamFactory {
	return func(uint64, int) Uniform { return Constant(v) }
}
