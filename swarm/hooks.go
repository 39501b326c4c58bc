package swarm

import (
	"context"
	"time"

	"github.com/hupe1980/reviewswarm/core"
)

// Hooks observe a run at its lifecycle points. Hooks run synchronously on
// the orchestrator goroutine and cannot change the run.
type Hooks interface {
	OnRunStart(ctx context.Context, runID, entry string)
	OnStepStart(ctx context.Context, index int, agent string)
	OnStepComplete(ctx context.Context, step core.ExecutionStep, elapsed time.Duration)
	OnHandoff(ctx context.Context, from, to string)
	OnRunComplete(ctx context.Context, res core.RunResult, elapsed time.Duration)
}

// NopHooks implements Hooks with no-ops. Embed it to override a subset.
type NopHooks struct{}

// OnRunStart implements Hooks.
func (NopHooks) OnRunStart(context.Context, string, string) {}

// OnStepStart implements Hooks.
func (NopHooks) OnStepStart(context.Context, int, string) {}

// OnStepComplete implements Hooks.
func (NopHooks) OnStepComplete(context.Context, core.ExecutionStep, time.Duration) {}

// OnHandoff implements Hooks.
func (NopHooks) OnHandoff(context.Context, string, string) {}

// OnRunComplete implements Hooks.
func (NopHooks) OnRunComplete(context.Context, core.RunResult, time.Duration) {}

// MultiHooks fans out to several hooks in order.
type MultiHooks []Hooks

// OnRunStart implements Hooks.
func (m MultiHooks) OnRunStart(ctx context.Context, runID, entry string) {
	for _, h := range m {
		h.OnRunStart(ctx, runID, entry)
	}
}

// OnStepStart implements Hooks.
func (m MultiHooks) OnStepStart(ctx context.Context, index int, agent string) {
	for _, h := range m {
		h.OnStepStart(ctx, index, agent)
	}
}

// OnStepComplete implements Hooks.
func (m MultiHooks) OnStepComplete(ctx context.Context, step core.ExecutionStep, elapsed time.Duration) {
	for _, h := range m {
		h.OnStepComplete(ctx, step, elapsed)
	}
}

// OnHandoff implements Hooks.
func (m MultiHooks) OnHandoff(ctx context.Context, from, to string) {
	for _, h := range m {
		h.OnHandoff(ctx, from, to)
	}
}

// OnRunComplete implements Hooks.
func (m MultiHooks) OnRunComplete(ctx context.Context, res core.RunResult, elapsed time.Duration) {
	for _, h := range m {
		h.OnRunComplete(ctx, res, elapsed)
	}
}
