package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/reviewswarm/agent"
	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/internal/testutil"
	"github.com/hupe1980/reviewswarm/model"
	"github.com/hupe1980/reviewswarm/tool"
)

func reviewRoster() []core.Agent {
	return []core.Agent{
		testutil.ScriptedAgent("coordinator", testutil.Handoff("Delegating architecture review.", "architecture_reviewer")),
		testutil.ScriptedAgent("architecture_reviewer", testutil.Handoff("Architecture: 2 gaps.", "cost_reviewer")),
		testutil.ScriptedAgent("cost_reviewer", testutil.Done("Cost: estimate plausible.")),
	}
}

func fixedID(o *Options) { o.RunIDFunc = func() string { return "run-1" } }

type countingCloser struct{ n atomic.Int32 }

func (c *countingCloser) Close() error { c.n.Add(1); return nil }

func TestSwarm_CompletesChain(t *testing.T) {
	s, err := New(RunConfig{Entry: "coordinator", Terminal: []string{"cost_reviewer"}, MaxIterations: 20, MaxHandoffs: 2}, reviewRoster(), fixedID)
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW text")

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 2, res.Handoffs)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, "Cost: estimate plausible.", res.Report)
	assert.Empty(t, res.Reason)
	assert.NoError(t, res.Err)

	require.Len(t, res.History, 3)
	assert.Equal(t, []string{"coordinator", "architecture_reviewer", "cost_reviewer"}, res.History.Agents())
	assert.Equal(t, "SOW text", res.History[0].Input)
	assert.Equal(t, "Delegating architecture review.", res.History[1].Input)
	assert.Equal(t, "architecture_reviewer", res.History[0].Next)
	assert.Equal(t, "cost_reviewer", res.History[1].Next)
	assert.True(t, res.History[2].Terminal())

	st := s.State()
	assert.Equal(t, core.StatusCompleted, st.Status)
	assert.Equal(t, "cost_reviewer", st.Active)
	assert.Equal(t, 2, st.Handoffs)
}

func TestSwarm_HandoffCeiling(t *testing.T) {
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 20, MaxHandoffs: 1}, reviewRoster())
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW text")

	assert.Equal(t, core.StatusAbortedBoundsExceeded, res.Status)
	assert.Equal(t, "Architecture: 2 gaps.", res.Report)
	assert.Equal(t, 1, res.Handoffs)
	assert.Equal(t, 2, res.Iterations)
	assert.Len(t, res.History, 2)
	assert.Contains(t, res.Reason, "max handoffs exceeded")
	assert.NoError(t, res.Err)

	assert.Equal(t, "architecture_reviewer", res.History[0].Next)
	assert.Equal(t, core.TerminalMarker, res.History[1].Next)
	assert.Equal(t, "cost_reviewer", res.History[1].Handoff.Target)
	assert.NotContains(t, res.History.Transcript(), "handed off to cost_reviewer")
}

func TestSwarm_ZeroHandoffsRunsEntryAlone(t *testing.T) {
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 20, MaxHandoffs: 0}, reviewRoster())
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW text")

	assert.Equal(t, core.StatusAbortedBoundsExceeded, res.Status)
	assert.Equal(t, 0, res.Handoffs)
	assert.Equal(t, 1, res.Iterations)
	require.Len(t, res.History, 1)
	assert.Equal(t, core.TerminalMarker, res.History[0].Next)
	assert.Equal(t, "Delegating architecture review.", res.Report)
	assert.Contains(t, res.Reason, "max handoffs exceeded")
}

func TestSwarm_IterationCeiling(t *testing.T) {
	roster := []core.Agent{testutil.ScriptedAgent("looper", testutil.Handoff("again", "looper"))}
	s, err := New(RunConfig{Entry: "looper", MaxIterations: 3, MaxHandoffs: 10}, roster)
	require.NoError(t, err)

	res := s.Run(context.Background(), "go")

	assert.Equal(t, core.StatusAbortedBoundsExceeded, res.Status)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, res.Handoffs)
	assert.Len(t, res.History, 3)
	assert.Contains(t, res.Reason, "max iterations exceeded: 4 > 3")
}

func TestSwarm_UnresolvedHandoff(t *testing.T) {
	roster := []core.Agent{
		testutil.ScriptedAgent("coordinator", testutil.Handoff("Sending to reviewer.", "reviewer_x")),
		testutil.ScriptedAgent("cost_reviewer", testutil.Done("never")),
	}
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 5}, roster)
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW")

	assert.Equal(t, core.StatusAbortedUnresolvedHandoff, res.Status)
	assert.Contains(t, res.Reason, `"reviewer_x"`)
	assert.Equal(t, "Sending to reviewer.", res.Report)
	require.Len(t, res.History, 1)
	assert.Equal(t, core.TerminalMarker, res.History[0].Next)
	assert.Equal(t, "reviewer_x", res.History[0].Handoff.Target)
	assert.Equal(t, 0, res.Handoffs)
}

func TestSwarm_RevisitsAreCounted(t *testing.T) {
	roster := []core.Agent{
		testutil.ScriptedAgent("coordinator", testutil.Handoff("to scope", "scope_reviewer"), testutil.Done("final summary")),
		testutil.ScriptedAgent("scope_reviewer", testutil.Handoff("scope ok", "COORDINATOR")),
	}
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 10, MaxHandoffs: 5}, roster)
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW")

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, []string{"coordinator", "scope_reviewer", "coordinator"}, res.History.Agents())
	assert.Equal(t, 2, res.Handoffs)
	assert.Equal(t, "final summary", res.Report)
}

func TestSwarm_InferenceFailureOnFirstStep(t *testing.T) {
	coord := agent.NewModelAgent("coordinator", model.NewScriptedModel("stub", model.Fail(core.ErrMalformedResponse)))
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 5}, []core.Agent{coord})
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW")

	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Empty(t, res.History)
	assert.Empty(t, res.Report)
	assert.Contains(t, res.Reason, "coordinator")
	assert.ErrorIs(t, res.Err, core.ErrMalformedResponse)
	assert.Equal(t, 1, res.Iterations)
}

func TestSwarm_FailureAfterStepsKeepsLastOutput(t *testing.T) {
	boom := errors.New("backend unreachable")
	roster := []core.Agent{
		testutil.ScriptedAgent("coordinator", testutil.Handoff("delegated", "cost_reviewer")),
		agent.NewFuncAgent("cost_reviewer", "", func(context.Context, string, core.ExecutionHistory) (core.StepResult, error) {
			return core.StepResult{}, boom
		}),
	}
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 5}, roster)
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW")

	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, "delegated", res.Report)
	assert.Len(t, res.History, 1)
	assert.ErrorIs(t, res.Err, boom)
}

func TestSwarm_UnknownToolDoesNotStopStep(t *testing.T) {
	reg, err := tool.NewRegistry(tool.NewFunctionTool("extract_section", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return "Pricing: $1,200/month", nil
	}))
	require.NoError(t, err)

	llm := model.NewScriptedModel("stub",
		model.Calls("", core.FunctionCall{ID: "c1", Name: "pricing_lookup", Arguments: `{"service":"ec2"}`},
			core.FunctionCall{ID: "c2", Name: "extract_section", Arguments: `{"section_name":"Pricing"}`}),
		model.Text("Cost review complete despite missing pricing tool."),
	)
	cost := agent.NewModelAgent("cost_reviewer", llm, func(o *agent.ModelAgentOptions) {
		o.Registry = reg
		o.ToolNames = []string{"extract_section", "pricing_lookup"}
	})

	s, err := New(RunConfig{Entry: "cost_reviewer", MaxIterations: 5, MaxHandoffs: 5}, []core.Agent{cost})
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW")

	assert.Equal(t, core.StatusCompleted, res.Status)
	require.Len(t, res.History, 1)
	calls := res.History[0].ToolCalls
	require.Len(t, calls, 2)
	assert.Equal(t, tool.CodeUnknownTool, calls[0].FailureCode)
	assert.Contains(t, calls[0].Failure, "pricing_lookup")
	assert.Equal(t, "Pricing: $1,200/month", calls[1].Output)
	assert.Equal(t, "Cost review complete despite missing pricing tool.", res.Report)
}

func TestSwarm_Idempotent(t *testing.T) {
	toolRoster := func() []core.Agent {
		reg, err := tool.NewRegistry(tool.NewFunctionTool("extract_section", "", nil, func(_ *core.ToolContext, args map[string]any) (any, error) {
			return "section " + tool.StringArg(args, "section_name"), nil
		}))
		require.NoError(t, err)

		llm := model.NewScriptedModel("stub",
			model.Calls("", core.FunctionCall{ID: "c1", Name: "extract_section", Arguments: `{"section_name":"Pricing"}`},
				core.FunctionCall{ID: "c2", Name: "pricing_lookup", Arguments: `{}`}),
			model.Text("Cost reviewed."),
		)
		cost := agent.NewModelAgent("cost_reviewer", llm, func(o *agent.ModelAgentOptions) {
			o.Registry = reg
			o.ToolNames = []string{"extract_section"}
		})
		return []core.Agent{testutil.ScriptedAgent("coordinator", testutil.Handoff("delegated", "cost_reviewer")), cost}
	}

	tests := []struct {
		name   string
		cfg    RunConfig
		roster func() []core.Agent
		want   core.RunStatus
	}{
		{"completed", RunConfig{Entry: "coordinator", MaxIterations: 20, MaxHandoffs: 2}, reviewRoster, core.StatusCompleted},
		{"bounds exceeded", RunConfig{Entry: "coordinator", MaxIterations: 20, MaxHandoffs: 1}, reviewRoster, core.StatusAbortedBoundsExceeded},
		{"tool calls", RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 2}, toolRoster, core.StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := func() string {
				s, err := New(tt.cfg, tt.roster(), fixedID)
				require.NoError(t, err)
				res := s.Run(context.Background(), "SOW text")
				require.Equal(t, tt.want, res.Status)
				raw, err := json.Marshal(res)
				require.NoError(t, err)
				return string(raw)
			}

			first := run()
			assert.Equal(t, first, run())
			assert.Contains(t, first, `"run_id":"run-1"`)
		})
	}

	t.Run("tool calls recorded", func(t *testing.T) {
		s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 2}, toolRoster(), fixedID)
		require.NoError(t, err)
		res := s.Run(context.Background(), "SOW text")
		require.Len(t, res.History, 2)
		require.Len(t, res.History[1].ToolCalls, 2)
		assert.Equal(t, "section Pricing", res.History[1].ToolCalls[0].Output)
		assert.True(t, res.History[1].ToolCalls[1].Failed())
	})
}

func TestSwarm_CancellationBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hooks := &recordingHooks{onStepComplete: func() { cancel() }}
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 20, MaxHandoffs: 5}, reviewRoster(), func(o *Options) { o.Hooks = hooks })
	require.NoError(t, err)

	res := s.Run(ctx, "SOW text")

	assert.Equal(t, core.StatusAbortedCancelled, res.Status)
	assert.True(t, res.Status.IsAborted())
	assert.Len(t, res.History, 1)
	assert.Equal(t, "Delegating architecture review.", res.Report)
	assert.Contains(t, res.Reason, core.ErrCancelled.Error())
	assert.NoError(t, res.Err)
}

func TestSwarm_CancellationDuringStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := agent.NewFuncAgent("coordinator", "", func(ctx context.Context, _ string, _ core.ExecutionHistory) (core.StepResult, error) {
		cancel()
		<-ctx.Done()
		return core.StepResult{}, ctx.Err()
	})
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 5}, []core.Agent{slow})
	require.NoError(t, err)

	res := s.Run(ctx, "SOW")
	assert.Equal(t, core.StatusAbortedCancelled, res.Status)
	assert.Empty(t, res.History)
}

func TestSwarm_Timeout(t *testing.T) {
	slow := agent.NewFuncAgent("coordinator", "", func(ctx context.Context, _ string, _ core.ExecutionHistory) (core.StepResult, error) {
		<-ctx.Done()
		return core.StepResult{}, ctx.Err()
	})
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 5, Timeout: 20 * time.Millisecond}, []core.Agent{slow})
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW")
	assert.Equal(t, core.StatusAbortedCancelled, res.Status)
	assert.Contains(t, res.Reason, context.DeadlineExceeded.Error())
}

func TestSwarm_ReleasesClosersOnEveryPath(t *testing.T) {
	tests := []struct {
		name   string
		roster []core.Agent
		input  string
		status core.RunStatus
	}{
		{"completed", []core.Agent{testutil.ScriptedAgent("coordinator", testutil.Done("ok"))}, "SOW", core.StatusCompleted},
		{"bounds", []core.Agent{testutil.ScriptedAgent("coordinator", testutil.Handoff("x", "coordinator"))}, "SOW", core.StatusAbortedBoundsExceeded},
		{"unresolved", []core.Agent{testutil.ScriptedAgent("coordinator", testutil.Handoff("x", "nobody"))}, "SOW", core.StatusAbortedUnresolvedHandoff},
		{"failed", []core.Agent{testutil.ScriptedAgent("coordinator", testutil.Done("ok"))}, "", core.StatusFailed},
		{"panic", []core.Agent{agent.NewFuncAgent("coordinator", "", func(context.Context, string, core.ExecutionHistory) (core.StepResult, error) {
			panic("agent exploded")
		})}, "SOW", core.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c1, c2 := &countingCloser{}, &countingCloser{}
			s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 2, MaxHandoffs: 2}, tt.roster, func(o *Options) {
				o.Closers = []io.Closer{c1, c2}
			})
			require.NoError(t, err)

			res := s.Run(context.Background(), tt.input)
			assert.Equal(t, tt.status, res.Status)
			assert.NoError(t, s.Close())

			assert.Equal(t, int32(1), c1.n.Load())
			assert.Equal(t, int32(1), c2.n.Load())
		})
	}
}

func TestSwarm_PanicIsRecovered(t *testing.T) {
	roster := []core.Agent{
		testutil.ScriptedAgent("coordinator", testutil.Handoff("delegated", "cost_reviewer")),
		agent.NewFuncAgent("cost_reviewer", "", func(context.Context, string, core.ExecutionHistory) (core.StepResult, error) {
			panic("boom")
		}),
	}
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 5}, roster)
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW")
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "boom")
	assert.Equal(t, "delegated", res.Report)
	assert.Error(t, res.Err)
}

func TestSwarm_RunsOnce(t *testing.T) {
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 5}, reviewRoster())
	require.NoError(t, err)

	first := s.Run(context.Background(), "SOW")
	assert.Equal(t, core.StatusCompleted, first.Status)

	second := s.Run(context.Background(), "SOW")
	assert.Equal(t, core.StatusFailed, second.Status)
	assert.ErrorIs(t, second.Err, ErrAlreadyRan)
}

func TestSwarm_EmptyInput(t *testing.T) {
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 5}, reviewRoster())
	require.NoError(t, err)

	res := s.Run(context.Background(), "   ")
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Empty(t, res.History)
	assert.ErrorIs(t, res.Err, core.ErrEmptyInput)
	assert.Equal(t, 0, res.Iterations)
}

func TestSwarm_EmptyOutputForwardsHandoffMessage(t *testing.T) {
	var got string
	roster := []core.Agent{
		testutil.ScriptedAgent("coordinator", core.StepResult{Handoff: &core.HandoffRequest{Target: "cost_reviewer", Payload: "check the calculator link"}}),
		agent.NewFuncAgent("cost_reviewer", "", func(_ context.Context, input string, _ core.ExecutionHistory) (core.StepResult, error) {
			got = input
			return testutil.Done("ok"), nil
		}),
	}
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 5}, roster)
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW")
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, "check the calculator link", got)
}

func TestSwarm_AgentsCannotMutateHistory(t *testing.T) {
	roster := []core.Agent{
		testutil.ScriptedAgent("coordinator", testutil.Handoff("original", "cost_reviewer")),
		agent.NewFuncAgent("cost_reviewer", "", func(_ context.Context, _ string, h core.ExecutionHistory) (core.StepResult, error) {
			h[0].Output = "tampered"
			return testutil.Done("ok"), nil
		}),
	}
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 5}, roster)
	require.NoError(t, err)

	res := s.Run(context.Background(), "SOW")
	assert.Equal(t, "original", res.History[0].Output)
}

func TestNew_Validation(t *testing.T) {
	roster := reviewRoster()

	_, err := New(RunConfig{Entry: "nobody", MaxIterations: 1}, roster)
	assert.ErrorContains(t, err, "entry agent")

	_, err = New(RunConfig{Entry: "coordinator", Terminal: []string{"nobody"}, MaxIterations: 1}, roster)
	assert.ErrorContains(t, err, "terminal agent")

	_, err = New(RunConfig{Entry: "coordinator"}, roster)
	assert.ErrorContains(t, err, "max_iterations")

	_, err = New(RunConfig{Entry: "coordinator", MaxIterations: 1}, append(roster, stub("COORDINATOR")))
	assert.ErrorContains(t, err, "duplicate")

	s, err := New(RunConfig{Entry: " Coordinator", Terminal: []string{"cost_reviewer"}, MaxIterations: 1}, roster)
	require.NoError(t, err)
	cfg := s.Config()
	cfg.Terminal[0] = "changed"
	assert.Equal(t, []string{"cost_reviewer"}, s.Config().Terminal)
	assert.Equal(t, []string{"coordinator", "architecture_reviewer", "cost_reviewer"}, s.Roster())
}

type recordingHooks struct {
	NopHooks
	events         []string
	onStepComplete func()
}

func (h *recordingHooks) OnRunStart(_ context.Context, runID, entry string) {
	h.events = append(h.events, "run_start:"+runID+":"+entry)
}

func (h *recordingHooks) OnStepStart(_ context.Context, _ int, agent string) {
	h.events = append(h.events, "step_start:"+agent)
}

func (h *recordingHooks) OnStepComplete(_ context.Context, step core.ExecutionStep, _ time.Duration) {
	h.events = append(h.events, "step_complete:"+step.Agent+"->"+step.Next)
	if h.onStepComplete != nil {
		h.onStepComplete()
	}
}

func (h *recordingHooks) OnHandoff(_ context.Context, from, to string) {
	h.events = append(h.events, "handoff:"+from+"->"+to)
}

func (h *recordingHooks) OnRunComplete(_ context.Context, res core.RunResult, _ time.Duration) {
	h.events = append(h.events, "run_complete:"+res.Status.String())
}

func TestSwarm_Hooks(t *testing.T) {
	h := &recordingHooks{}
	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 5}, reviewRoster(), fixedID, func(o *Options) {
		o.Hooks = MultiHooks{h, NopHooks{}}
	})
	require.NoError(t, err)

	s.Run(context.Background(), "SOW")

	assert.Equal(t, []string{
		"run_start:run-1:coordinator",
		"step_start:coordinator",
		"step_complete:coordinator->architecture_reviewer",
		"handoff:coordinator->architecture_reviewer",
		"step_start:architecture_reviewer",
		"step_complete:architecture_reviewer->cost_reviewer",
		"handoff:architecture_reviewer->cost_reviewer",
		"step_start:cost_reviewer",
		"step_complete:cost_reviewer-><end>",
		"run_complete:completed",
	}, h.events)
}

func TestSwarm_Tracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	s, err := New(RunConfig{Entry: "coordinator", MaxIterations: 5, MaxHandoffs: 1}, reviewRoster(), func(o *Options) {
		o.Tracer = tp.Tracer("test")
	})
	require.NoError(t, err)

	s.Run(context.Background(), "SOW")

	spans := sr.Ended()
	require.Len(t, spans, 3)

	var run sdktrace.ReadOnlySpan
	steps := 0
	for _, sp := range spans {
		switch sp.Name() {
		case "swarm.run":
			run = sp
		case "swarm.step":
			steps++
		}
	}
	require.NotNil(t, run)
	assert.Equal(t, 2, steps)
	for _, sp := range spans {
		if sp.Name() == "swarm.step" {
			assert.Equal(t, run.SpanContext().SpanID(), sp.Parent().SpanID())
		}
	}
	assert.Equal(t, "Error", run.Status().Code.String())
}
