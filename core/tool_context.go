package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/reviewswarm/logging"
)

type runIDKey struct{}

// WithRunID returns a context carrying the swarm run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext extracts the run identifier set by WithRunID.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// ToolContext provides a constrained, auditable surface for tool
// implementations invoked by an agent. It records orchestration directives
// (currently only the handoff request) without acting on them; the agent
// reads them back once the tool call returned.
type ToolContext struct {
	ctx            context.Context
	functionCallID string
	agentInfo      AgentInfo

	logger         logging.Logger

	mu      sync.Mutex
	handoff *HandoffRequest
}

// NewToolContext constructs a tool context for one function call.
func NewToolContext(ctx context.Context, agent AgentInfo, functionCallID string, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:            ctx,
		functionCallID: functionCallID,
		agentInfo:      agent,
		logger:         logger,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return RunIDFromContext(tc.ctx) }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the agent name associated with the tool invocation.
func (tc *ToolContext) AgentName() string { return tc.agentInfo.Name }

// Handoff records a request to pass control to another agent once the
// current step ends. A later call replaces an earlier one.
func (tc *ToolContext) Handoff(target, payload string) {
	tc.mu.Lock()
	tc.handoff = &HandoffRequest{Source: tc.agentInfo.Name, Target: target, Payload: payload}
	tc.mu.Unlock()

	tc.logger.Info("tool.handoff.request", "from_agent", tc.AgentName(), "to_agent", target, "function_call_id", tc.functionCallID)
}

// HandoffRequest returns the recorded handoff directive, if any.
func (tc *ToolContext) HandoffRequest() *HandoffRequest {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.handoff == nil {
		return nil
	}
	hr := *tc.handoff
	return &hr
}

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.functionCallID == "" || tc.agentInfo.Name == "" {
		return fmt.Errorf("invalid ToolContext")
	}
	return nil
}
