package ising

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"ising/internal/accel"
	"ising/internal/core"
	"ising/internal/group"
)

func runGroup(t *testing.T, cfg Config, size int, sink Sink) []*core.Lattice {
	t.Helper()
	ranks, err := group.NewLocal(size)
	require.NoError(t, err)

	out := make([]*core.Lattice, size)
	var g errgroup.Group
	for i, r := range ranks {
		g.Go(func() error {
			sim := Simulation{
				Config: cfg,
				Group:  r,
				Device: accel.NewHost("cpu", accel.Options{Workers: 2}),
				Sink:   sink,
			}
			lat, err := sim.Run(context.Background())
			out[i] = lat
			return err
		})
	}
	require.NoError(t, g.Wait())
	return out
}

func TestSimulationOnlyRootEvolvesByDefault(t *testing.T) {
	cfg := Config{Side: 8, Steps: 5, Interval: 2, Beta: 0.2, Seed: 77}
	sink := &recordingSink{}
	lats := runGroup(t, cfg, 4, sink)

	assert.Equal(t, []int{0, 2, 4}, sink.steps)
	for i := 1; i < len(lats); i++ {
		assert.Equal(t, lats[1].Current(), lats[i].Current(), "idle replicas must stay identical")
	}
	assert.NotEqual(t, lats[0].Current(), lats[1].Current(), "root should have evolved away from the seed")
	for _, lat := range lats {
		assert.True(t, core.ValidSpins(lat.Current()))
	}
}

func TestSimulationEvolveReplicas(t *testing.T) {
	cfg := Config{Side: 8, Steps: 3, Interval: 1, Beta: 0.2, Seed: 78, EvolveReplicas: true}
	sink := &recordingSink{}
	lats := runGroup(t, cfg, 3, sink)

	assert.Equal(t, []int{0, 1, 2}, sink.steps, "only the root emits")
	for _, lat := range lats {
		require.NotNil(t, lat)
		assert.True(t, core.ValidSpins(lat.Current()))
	}
}

func TestSimulationRejectsInvalidConfig(t *testing.T) {
	ranks, err := group.NewLocal(1)
	require.NoError(t, err)
	_, err = Simulation{Config: Config{Side: 0}, Group: ranks[0], Device: accel.NewHost("cpu", accel.DefaultOptions())}.Run(context.Background())
	require.ErrorIs(t, err, ErrConfig)
}

func TestSimulationSurfacesResourceExhaustion(t *testing.T) {
	ranks, err := group.NewLocal(1)
	require.NoError(t, err)
	sim := Simulation{
		Config: Config{Side: 16, Steps: 1, Beta: 0.5, Seed: 1},
		Group:  ranks[0],
		Device: accel.NewHost("cpu", accel.Options{Workers: 1, MemoryLimit: 256}),
	}
	_, err = sim.Run(context.Background())
	require.ErrorIs(t, err, accel.ErrResourceExhausted)
}
