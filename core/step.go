package core

import (
	"encoding/json"
	"strings"
	"time"
)

// TerminalMarker is recorded as ExecutionStep.Next when a step ended the run
// without a resolved successor.
const TerminalMarker = "<end>"

// ToolInvocation records a single capability call made during a step.
// Exactly one of Output or Failure is meaningful: Failure is non-empty when
// the call did not succeed. Duration is wall-clock and not serialized, so
// identical runs encode to identical histories.
type ToolInvocation struct {
	CallID      string          `json:"call_id,omitempty"`
	Index       int             `json:"index"`
	Tool        string          `json:"tool"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      string          `json:"output,omitempty"`
	Failure     string          `json:"failure,omitempty"`
	FailureCode string          `json:"failure_code,omitempty"`
	Duration    time.Duration   `json:"-"`
}

// Failed reports whether the invocation ended in a failure.
func (ti ToolInvocation) Failed() bool { return ti.Failure != "" }

// HandoffRequest is the structural directive an agent emits to pass control.
// Target is the raw, unresolved name as produced by the agent.
type HandoffRequest struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Payload string `json:"payload,omitempty"`
}

// StepResult is what an Agent returns from one step.
type StepResult struct {
	Output    string
	ToolCalls []ToolInvocation
	Handoff   *HandoffRequest
}

// ExecutionStep is one entry of the execution history.
type ExecutionStep struct {
	Index     int              `json:"index"`
	Agent     string           `json:"agent"`
	Input     string           `json:"input"`
	Output    string           `json:"output"`
	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`
	Handoff   *HandoffRequest  `json:"handoff,omitempty"`
	Next      string           `json:"next"`
}

// Terminal reports whether the step ended the run.
func (s ExecutionStep) Terminal() bool { return s.Next == TerminalMarker }

// ExecutionHistory is the ordered, append-only record of a run. Only the
// orchestrator appends; everything else receives a Clone.
type ExecutionHistory []ExecutionStep

// Len returns the number of recorded steps.
func (h ExecutionHistory) Len() int { return len(h) }

// Last returns the most recent step, if any.
func (h ExecutionHistory) Last() (ExecutionStep, bool) {
	if len(h) == 0 {
		return ExecutionStep{}, false
	}
	return h[len(h)-1], true
}

// Agents returns the agent names in step order.
func (h ExecutionHistory) Agents() []string {
	names := make([]string, len(h))
	for i, s := range h {
		names[i] = s.Agent
	}
	return names
}

// Clone returns a deep copy so callers cannot mutate the orchestrator's log.
func (h ExecutionHistory) Clone() ExecutionHistory {
	if h == nil {
		return nil
	}
	out := make(ExecutionHistory, len(h))
	for i, s := range h {
		cp := s
		if s.ToolCalls != nil {
			cp.ToolCalls = make([]ToolInvocation, len(s.ToolCalls))
			copy(cp.ToolCalls, s.ToolCalls)
		}
		if s.Handoff != nil {
			hr := *s.Handoff
			cp.Handoff = &hr
		}
		out[i] = cp
	}
	return out
}

// Transcript renders the history as plain text so a model can read what the
// previous participants produced.
func (h ExecutionHistory) Transcript() string {
	var b strings.Builder
	for _, s := range h {
		b.WriteString("## ")
		b.WriteString(s.Agent)
		b.WriteString("\n")
		b.WriteString(s.Output)
		b.WriteString("\n")
		for _, tc := range s.ToolCalls {
			if tc.Failed() {
				b.WriteString("- tool ")
				b.WriteString(tc.Tool)
				b.WriteString(" failed: ")
				b.WriteString(tc.Failure)
				b.WriteString("\n")
			}
		}
		if !s.Terminal() && s.Next != "" {
			b.WriteString("-> handed off to ")
			b.WriteString(s.Next)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
