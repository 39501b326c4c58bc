package agent

import (
	"context"

	"github.com/hupe1980/reviewswarm/core"
)

// StepFunc computes one step.
type StepFunc func(ctx context.Context, input string, history core.ExecutionHistory) (core.StepResult, error)

// FuncAgent adapts a StepFunc to core.Agent.
type FuncAgent struct {
	BaseAgent
	fn StepFunc
}

// NewFuncAgent creates a function-backed agent.
func NewFuncAgent(name, description string, fn StepFunc) *FuncAgent {
	a := &FuncAgent{BaseAgent: NewBaseAgent(name, "func"), fn: fn}
	a.SetDescription(description)
	return a
}

// Run implements core.Agent.
func (a *FuncAgent) Run(ctx context.Context, input string, history core.ExecutionHistory) (core.StepResult, error) {
	return a.fn(ctx, input, history)
}
