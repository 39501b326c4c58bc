package testutil

import (
	"github.com/hupe1980/reviewswarm/core"
)

// HistoryBuilder provides a fluent helper for constructing execution
// histories in tests. Example:
//
//	h := NewHistoryBuilder().
//		Step("coordinator").Output("delegating").HandoffTo("cost_reviewer", "").
//		Step("cost_reviewer").Output("done").Tool("extract_section", "x").End().
//		Build()
//
// Indexes are assigned in order; Next defaults to the handoff target.
type HistoryBuilder struct {
	steps core.ExecutionHistory
}

// NewHistoryBuilder creates an empty builder.
func NewHistoryBuilder() *HistoryBuilder { return &HistoryBuilder{} }

// Step starts a new step for agent (chainable).
func (b *HistoryBuilder) Step(agent string) *HistoryBuilder {
	b.steps = append(b.steps, core.ExecutionStep{Index: len(b.steps), Agent: agent})
	return b
}

func (b *HistoryBuilder) last() *core.ExecutionStep {
	if len(b.steps) == 0 {
		b.Step("agent")
	}
	return &b.steps[len(b.steps)-1]
}

// Input sets the current step's input (chainable).
func (b *HistoryBuilder) Input(in string) *HistoryBuilder { b.last().Input = in; return b }

// Output sets the current step's output (chainable).
func (b *HistoryBuilder) Output(out string) *HistoryBuilder { b.last().Output = out; return b }

// Tool records a successful tool call on the current step (chainable).
func (b *HistoryBuilder) Tool(name, output string) *HistoryBuilder {
	s := b.last()
	s.ToolCalls = append(s.ToolCalls, core.ToolInvocation{Index: len(s.ToolCalls), Tool: name, Output: output})
	return b
}

// ToolFailure records a failed tool call on the current step (chainable).
func (b *HistoryBuilder) ToolFailure(name, failure, code string) *HistoryBuilder {
	s := b.last()
	s.ToolCalls = append(s.ToolCalls, core.ToolInvocation{Index: len(s.ToolCalls), Tool: name, Failure: failure, FailureCode: code})
	return b
}

// HandoffTo records a resolved handoff from the current step (chainable).
func (b *HistoryBuilder) HandoffTo(target, payload string) *HistoryBuilder {
	s := b.last()
	s.Handoff = &core.HandoffRequest{Source: s.Agent, Target: target, Payload: payload}
	s.Next = target
	return b
}

// End marks the current step as terminal (chainable).
func (b *HistoryBuilder) End() *HistoryBuilder { b.last().Next = core.TerminalMarker; return b }

// Build returns a copy of the accumulated history.
func (b *HistoryBuilder) Build() core.ExecutionHistory { return b.steps.Clone() }
