package testutil

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/reviewswarm/agent"
	"github.com/hupe1980/reviewswarm/core"
)

// ScriptedAgent returns an agent answering its Nth call with steps[N] and
// the last step afterwards.
func ScriptedAgent(name string, steps ...core.StepResult) core.Agent {
	var calls atomic.Int32
	return agent.NewFuncAgent(name, "", func(context.Context, string, core.ExecutionHistory) (core.StepResult, error) {
		i := int(calls.Add(1)) - 1
		if i >= len(steps) {
			i = len(steps) - 1
		}
		return steps[i], nil
	})
}

// FailingAgent returns an agent that always fails with err.
func FailingAgent(name string, err error) core.Agent {
	return agent.NewFuncAgent(name, "", func(context.Context, string, core.ExecutionHistory) (core.StepResult, error) {
		return core.StepResult{}, err
	})
}

// Handoff is a step result passing control to target.
func Handoff(output, target string) core.StepResult {
	return core.StepResult{Output: output, Handoff: &core.HandoffRequest{Target: target}}
}

// Done is a step result finishing the run.
func Done(output string) core.StepResult { return core.StepResult{Output: output} }
