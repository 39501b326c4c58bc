package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/model"
	"github.com/hupe1980/reviewswarm/tool"
)

func TestAsTool(t *testing.T) {
	var got string
	skill := NewFuncAgent("aws_solution_architect_skill", "AWS expert", func(_ context.Context, input string, history core.ExecutionHistory) (core.StepResult, error) {
		got = input
		assert.Nil(t, history)
		return core.StepResult{Output: "Well-Architected"}, nil
	})

	at := AsTool(skill)
	assert.Equal(t, "aws_solution_architect_skill", at.Name())
	assert.Contains(t, at.Description(), "AWS expert")
	assert.Equal(t, []string{"input"}, at.Parameters()["required"])

	tc := core.NewToolContext(context.Background(), core.AgentInfo{Name: "architecture_reviewer"}, "call_0", nil)
	out, err := at.Call(tc, map[string]any{"input": "Lambda + DynamoDB", "context": map[string]any{"users": 10000}})
	require.NoError(t, err)
	assert.Equal(t, "Well-Architected", out)
	assert.Equal(t, "Lambda + DynamoDB\n\nContext: {\"users\":10000}", got)
}

func TestAsTool_Failures(t *testing.T) {
	failing := NewFuncAgent("skill", "", func(context.Context, string, core.ExecutionHistory) (core.StepResult, error) {
		return core.StepResult{}, errors.New("model down")
	})
	at := AsTool(failing, func(o *AgentToolOptions) { o.Name = "ask_skill"; o.Timeout = time.Second })
	tc := core.NewToolContext(context.Background(), core.AgentInfo{Name: "a"}, "call_0", nil)

	_, err := at.Call(tc, map[string]any{})
	var te *tool.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tool.CodeValidationError, te.Code)

	_, err = at.Call(tc, map[string]any{"input": "x"})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, tool.CodeExecutionError, te.Code)
	assert.Contains(t, err.Error(), "model down")
}

func TestAsTool_NestedModelAgent(t *testing.T) {
	skill := NewModelAgent("aws_solution_architect_skill", model.NewScriptedModel("skill", model.Text("Use multi-AZ.")))
	llm := model.NewScriptedModel("reviewer",
		model.Calls("", core.FunctionCall{Name: "aws_solution_architect_skill", Arguments: `{"input":"single AZ RDS"}`}),
		model.Text("Architecture needs multi-AZ."),
	)
	reviewer := NewModelAgent("architecture_reviewer", llm, func(o *ModelAgentOptions) {
		o.Tools = []tool.Tool{AsTool(skill)}
	})

	res, err := reviewer.Run(context.Background(), "Review", nil)
	require.NoError(t, err)
	assert.Equal(t, "Architecture needs multi-AZ.", res.Output)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "Use multi-AZ.", res.ToolCalls[0].Output)
}
