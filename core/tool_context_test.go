package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolContext_BasicFunctionality(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	tc := NewToolContext(ctx, AgentInfo{Name: "cost_reviewer", Type: "model"}, "call-1", nil)

	require.NoError(t, tc.Validate())
	assert.Equal(t, "run-1", tc.RunID())
	assert.Equal(t, "call-1", tc.FunctionCallID())
	assert.Equal(t, "cost_reviewer", tc.AgentName())
	assert.NotNil(t, tc.Logger())
	assert.Equal(t, ctx, tc.Context())
}

func TestToolContext_Handoff(t *testing.T) {
	logger := &testLogger{}
	tc := NewToolContext(context.Background(), AgentInfo{Name: "coordinator"}, "call-1", logger)
	assert.Nil(t, tc.HandoffRequest())

	tc.Handoff("architecture_reviewer", "check the diagram")
	tc.Handoff("cost_reviewer", "check pricing")

	hr := tc.HandoffRequest()
	require.NotNil(t, hr)
	assert.Equal(t, HandoffRequest{Source: "coordinator", Target: "cost_reviewer", Payload: "check pricing"}, *hr)
	assert.Equal(t, []string{"tool.handoff.request", "tool.handoff.request"}, logger.infos)

	hr.Target = "mutated"
	assert.Equal(t, "cost_reviewer", tc.HandoffRequest().Target)
}

func TestToolContext_Validation(t *testing.T) {
	assert.Error(t, (&ToolContext{}).Validate())
	assert.Error(t, NewToolContext(nil, AgentInfo{Name: "a"}, "", nil).Validate())
}
