package agent

import (
	"fmt"

	"github.com/hupe1980/reviewswarm/core"
)

// BaseAgent bundles identity shared by concrete agents. Embed it and supply
// a Run method to satisfy core.Agent.
type BaseAgent struct {
	name        string
	description string
	kind        string
}

// NewBaseAgent constructs a BaseAgent with a generated description.
func NewBaseAgent(name, kind string) BaseAgent {
	return BaseAgent{name: name, description: fmt.Sprintf("Agent %s", name), kind: kind}
}

// Name returns the roster name of the agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns what the agent is for.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription replaces the description.
func (b *BaseAgent) SetDescription(desc string) {
	if desc != "" {
		b.description = desc
	}
}

// Info returns the identity handed to tools.
func (b *BaseAgent) Info() core.AgentInfo { return core.AgentInfo{Name: b.name, Type: b.kind} }
