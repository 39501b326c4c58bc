package swarm

import "github.com/hupe1980/reviewswarm/core"

// Guard enforces the iteration and handoff ceilings of a run. A violating
// increment is reported but not recorded, so the counters never exceed the
// ceilings.
type Guard struct {
	maxIterations int
	maxHandoffs   int
	iterations    int
	handoffs      int
}

// NewGuard creates a guard.
func NewGuard(maxIterations, maxHandoffs int) *Guard {
	return &Guard{maxIterations: maxIterations, maxHandoffs: maxHandoffs}
}

// BeforeStep accounts for the step about to run.
func (g *Guard) BeforeStep() error {
	if g.iterations+1 > g.maxIterations {
		return &core.BoundsExceededError{Ceiling: "iterations", Limit: g.maxIterations, Used: g.iterations + 1}
	}
	g.iterations++
	return nil
}

// AfterHandoff accounts for a resolved handoff.
func (g *Guard) AfterHandoff() error {
	if g.handoffs+1 > g.maxHandoffs {
		return &core.BoundsExceededError{Ceiling: "handoffs", Limit: g.maxHandoffs, Used: g.handoffs + 1}
	}
	g.handoffs++
	return nil
}

// Iterations returns the recorded step count.
func (g *Guard) Iterations() int { return g.iterations }

// Handoffs returns the recorded handoff count.
func (g *Guard) Handoffs() int { return g.handoffs }
