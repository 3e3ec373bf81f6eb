package ising

import "ising/internal/core"

// Parameters describes the run settings for display and logging.
func (c Config) Parameters() core.ParameterSnapshot {
	return core.ParameterSnapshot{Groups: []core.ParameterGroup{
		{
			Name: "Lattice",
			Params: []core.Parameter{
				core.IntParam("side", "Side length", c.Side),
				core.Int64Param("seed", "Seed", c.Seed),
			},
		},
		{
			Name: "Dynamics",
			Params: []core.Parameter{
				core.FloatParam("beta", "Inverse temperature", c.Beta),
				core.IntParam("steps", "Step budget", c.Steps),
				core.IntParam("interval", "Snapshot interval", c.Interval),
				core.BoolParam("evolve_replicas", "Evolve replicas", c.EvolveReplicas),
			},
		},
	}}
}
