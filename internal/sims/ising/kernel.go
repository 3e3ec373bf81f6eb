package ising

import (
	"math"

	"ising/internal/accel"
	"ising/internal/core"
	rng "ising/pkg/core"
)

// KernelMetropolis is the catalog id of the single-cell Metropolis update.
const KernelMetropolis accel.KernelID = 1

// Neighbors returns the up, down, left and right neighbors of (i, j) on a
// torus of the given side.
func Neighbors(i, j, side int) [4][2]int {
	return [4][2]int{
		{(i - 1 + side) % side, j},
		{(i + 1) % side, j},
		{i, (j - 1 + side) % side},
		{i, (j + 1) % side},
	}
}

// NeighborSum adds the four toroidal neighbors of (i, j).
func NeighborSum(cells []core.Spin, side, i, j int) int {
	up := (i - 1 + side) % side
	down := (i + 1) % side
	left := (j - 1 + side) % side
	right := (j + 1) % side
	return int(cells[up*side+j]) + int(cells[down*side+j]) + int(cells[i*side+left]) + int(cells[i*side+right])
}

// DeltaEnergy is the energy cost of flipping (i, j).
func DeltaEnergy(cells []core.Spin, side, i, j int) int {
	return 2 * int(cells[i*side+j]) * NeighborSum(cells, side, i, j)
}

// Accept applies the Metropolis criterion for a draw u in [0, 1).
func Accept(deltaE int, beta, u float64) bool {
	return deltaE < 0 || u < math.Exp(-beta*float64(deltaE))
}

// metropolis updates one cell. Energy-lowering flips consume no draw.
func metropolis(cell int, in, out []core.Spin, p accel.Params, u rng.Uniform) {
	side := p.Side
	i, j := cell/side, cell%side
	s := in[cell]
	dE := 2 * int(s) * NeighborSum(in, side, i, j)
	if dE < 0 || u.Float64() < math.Exp(-p.Beta*float64(dE)) {
		out[cell] = -s
		return
	}
	out[cell] = s
}

func init() {
	accel.RegisterKernel(KernelMetropolis, metropolis)
}
