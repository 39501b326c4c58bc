package tool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reviewswarm/core"
)

func testToolContext(callID string) *core.ToolContext {
	return core.NewToolContext(context.Background(), core.AgentInfo{Name: "coordinator", Type: "test"}, callID, nil)
}

func sumTool() *FunctionTool {
	return NewFunctionTool("sum", "Add numbers", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	result, err := sumTool().Call(testToolContext("fc1"), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	_, err := sumTool().Call(testToolContext("fc2"), map[string]any{"a": 1.0})
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidationError, toolErr.Code)
}

func TestFunctionTool_ErrorNormalization(t *testing.T) {
	plain := NewFunctionTool("plain", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	_, err := plain.Call(testToolContext("fc3"), nil)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecutionError, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)

	custom := NewFunctionTool("custom", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, NewToolError("custom", "rate limited", "RATE_LIMIT")
	})
	_, err = custom.Call(testToolContext("fc4"), nil)
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "RATE_LIMIT", toolErr.Code)
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type args struct {
		URL string `json:"url" description:"Calculator link"`
	}
	ft := NewFunctionToolFromStruct("fetch", "Fetch", args{}, func(_ *core.ToolContext, a map[string]any) (any, error) {
		return StringArg(a, "url"), nil
	})

	props := ft.Parameters()["properties"].(map[string]any)
	assert.Contains(t, props, "url")

	_, err := ft.Call(testToolContext("fc5"), map[string]any{})
	assert.Error(t, err)
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
	assert.Equal(t, "tool error in demo: x", (&ToolError{Tool: "demo", Message: "x"}).Error())
}

// -------------------- Registry Tests --------------------

func TestRegistry_ResolveAndUnknown(t *testing.T) {
	r, err := NewRegistry(sumTool())
	require.NoError(t, err)

	got, err := r.Resolve("sum")
	require.NoError(t, err)
	assert.Equal(t, "sum", got.Name())

	_, err = r.Resolve("pricing_lookup")
	assert.ErrorIs(t, err, core.ErrUnknownTool)
	assert.Contains(t, err.Error(), "pricing_lookup")

	_, err = r.Resolve("SUM")
	assert.ErrorIs(t, err, core.ErrUnknownTool, "lookup is exact")
}

func TestRegistry_DuplicateAndFrozen(t *testing.T) {
	r, err := NewRegistry(sumTool())
	require.NoError(t, err)

	assert.Error(t, r.Register(sumTool()))
	assert.Error(t, r.Register(NewFunctionTool("", "", nil, nil)))

	r.Freeze()
	assert.ErrorIs(t, r.Register(NewHandoffTool()), ErrRegistryFrozen)
}

func TestRegistry_Subset(t *testing.T) {
	r, err := NewRegistry(sumTool(), NewHandoffTool())
	require.NoError(t, err)

	sub := r.Subset("sum", "pricing_lookup", "sum")
	assert.Equal(t, []string{"sum"}, sub.Names())
	assert.False(t, sub.Has(HandoffToolName))
	assert.Equal(t, []string{"pricing_lookup"}, r.Missing("sum", "pricing_lookup"))
	assert.ErrorIs(t, sub.Register(NewHandoffTool()), ErrRegistryFrozen)
	assert.Len(t, r.Tools(), 2)
}

// -------------------- Handoff Tool Tests --------------------

func TestHandoffTool(t *testing.T) {
	ht := NewHandoffTool("cost_reviewer", "scope_reviewer")
	assert.Equal(t, HandoffToolName, ht.Name())
	assert.Contains(t, ht.Description(), "cost_reviewer, scope_reviewer")

	tc := testToolContext("fc-h")
	res, err := ht.Call(tc, map[string]any{"agent_name": " cost_reviewer ", "message": "check estimates"})
	require.NoError(t, err)
	assert.Equal(t, "Handing off to cost_reviewer.", res)

	hr := tc.HandoffRequest()
	require.NotNil(t, hr)
	assert.Equal(t, "coordinator", hr.Source)
	assert.Equal(t, "cost_reviewer", hr.Target)
	assert.Equal(t, "check estimates", hr.Payload)

	_, err = ht.Call(testToolContext("fc-h2"), map[string]any{"agent_name": ""})
	assert.Error(t, err)
}

// -------------------- Executor Tests --------------------

func TestExecutor_CapturesEveryFailureMode(t *testing.T) {
	panicky := NewFunctionTool("panicky", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
		panic("kaboom")
	})
	failing := NewFunctionTool("failing", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, errors.New("service unavailable")
	})
	r, err := NewRegistry(sumTool(), panicky, failing)
	require.NoError(t, err)

	calls := []core.FunctionCall{
		{ID: "c0", Name: "sum", Arguments: `{"a":1,"b":2}`},
		{ID: "c1", Name: "pricing_lookup", Arguments: `{}`},
		{ID: "c2", Name: "panicky"},
		{ID: "c3", Name: "failing"},
		{ID: "c4", Name: "sum", Arguments: `not json`},
		{ID: "c5", Name: "sum", Arguments: `{"a":1}`},
	}

	out := NewExecutor().Execute(context.Background(), core.AgentInfo{Name: "cost_reviewer"}, r, calls, 10)
	require.Len(t, out, len(calls))

	for i, o := range out {
		assert.Equal(t, 10+i, o.Invocation.Index)
		assert.Equal(t, calls[i].ID, o.Invocation.CallID)
		assert.Equal(t, calls[i].Name, o.Invocation.Tool)
	}

	assert.False(t, out[0].Invocation.Failed())
	assert.Equal(t, "3", out[0].Invocation.Output)
	assert.Equal(t, CodeUnknownTool, out[1].Invocation.FailureCode)
	assert.Contains(t, out[1].Invocation.Failure, "unknown tool")
	assert.Equal(t, CodePanic, out[2].Invocation.FailureCode)
	assert.Contains(t, out[2].Invocation.Failure, "kaboom")
	assert.Equal(t, CodeExecutionError, out[3].Invocation.FailureCode)
	assert.Equal(t, "service unavailable", out[3].Invocation.Failure)
	assert.Equal(t, CodeInvalidArgs, out[4].Invocation.FailureCode)
	assert.JSONEq(t, `"not json"`, string(out[4].Invocation.Input))
	assert.Equal(t, CodeValidationError, out[5].Invocation.FailureCode)
}

func TestExecutor_RespectsParallelismAndOrder(t *testing.T) {
	var active, peak int32
	slow := NewFunctionTool("slow", "", nil, func(_ *core.ToolContext, args map[string]any) (any, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return args["id"], nil
	})
	r, err := NewRegistry(slow)
	require.NoError(t, err)

	calls := make([]core.FunctionCall, 6)
	for i := range calls {
		calls[i] = core.FunctionCall{Name: "slow", Arguments: `{"id":"` + string(rune('a'+i)) + `"}`}
	}

	out := NewExecutor(func(o *ExecutorOptions) { o.MaxParallel = 2 }).
		Execute(context.Background(), core.AgentInfo{Name: "a"}, r, calls, 0)

	require.Len(t, out, 6)
	for i, o := range out {
		assert.Equal(t, string(rune('a'+i)), o.Invocation.Output)
		assert.Equal(t, "call_"+string(rune('0'+i)), o.Invocation.CallID)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestExecutor_Timeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	stuck := NewFunctionTool("stuck", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
		<-block
		return "late", nil
	})
	r, err := NewRegistry(stuck)
	require.NoError(t, err)

	out := NewExecutor(func(o *ExecutorOptions) { o.Timeout = 10 * time.Millisecond }).
		Execute(context.Background(), core.AgentInfo{Name: "a"}, r, []core.FunctionCall{{Name: "stuck"}}, 0)

	require.Len(t, out, 1)
	assert.Equal(t, CodeTimeout, out[0].Invocation.FailureCode)
}

func TestExecutor_CancelledContext(t *testing.T) {
	r, err := NewRegistry(sumTool())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewExecutor().Execute(ctx, core.AgentInfo{Name: "a"}, r, []core.FunctionCall{{Name: "sum", Arguments: `{"a":1,"b":1}`}}, 0)
	assert.Equal(t, CodeCancelled, out[0].Invocation.FailureCode)
}

func TestExecutor_SurfacesHandoff(t *testing.T) {
	r, err := NewRegistry(NewHandoffTool())
	require.NoError(t, err)

	out := NewExecutor().Execute(context.Background(), core.AgentInfo{Name: "coordinator"}, r,
		[]core.FunctionCall{{ID: "h1", Name: HandoffToolName, Arguments: `{"agent_name":"cost_reviewer"}`}}, 0)

	require.NotNil(t, out[0].Handoff)
	assert.Equal(t, "cost_reviewer", out[0].Handoff.Target)
	assert.Equal(t, "coordinator", out[0].Handoff.Source)
}

func TestExecutor_EmptyBatch(t *testing.T) {
	assert.Nil(t, NewExecutor().Execute(context.Background(), core.AgentInfo{}, &Registry{}, nil, 0))
}
