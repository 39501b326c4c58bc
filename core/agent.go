package core

import "context"

// Agent is a named participant of a swarm roster.
//
// Run performs exactly one step: it receives the step input plus a read-only
// copy of everything that happened so far and returns the step output, the
// tools it invoked and an optional handoff request. Tool failures are part of
// the returned StepResult; only inference failures surface as an error.
type Agent interface {
	// Name is the unique roster identifier.
	Name() string

	// Description is a short statement of the agent's specialty. It is shown
	// to peers so they can decide whom to hand off to.
	Description() string

	Run(ctx context.Context, input string, history ExecutionHistory) (StepResult, error)
}

// AgentInfo is the lightweight identity handed to tools.
type AgentInfo struct {
	Name string
	Type string
}
