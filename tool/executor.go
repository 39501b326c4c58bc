package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/logging"
)

// ExecutorOptions configures the batch executor.
type ExecutorOptions struct {
	MaxParallel int           // <1 => one goroutine per call
	Timeout     time.Duration // per call, 0 => none
	Logger      logging.Logger
}

// Outcome is the result of one executed call.
type Outcome struct {
	Invocation core.ToolInvocation
	Result     any
	Handoff    *core.HandoffRequest
}

// Executor runs the tool calls of one agent step. It never returns an error
// and never panics: every failure mode is folded into the corresponding
// ToolInvocation. Outcomes are returned in call order regardless of the order
// in which calls finish.
type Executor struct {
	opts ExecutorOptions
}

// NewExecutor constructs a new executor.
func NewExecutor(optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		MaxParallel: 4,
		Timeout:     2 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Executor{opts: opts}
}

// Execute runs calls against resolver. startIndex is the call index assigned
// to calls[0]; indexes keep increasing across model turns of the same step.
func (e *Executor) Execute(ctx context.Context, agent core.AgentInfo, resolver Resolver, calls []core.FunctionCall, startIndex int) []Outcome {
	n := len(calls)
	if n == 0 {
		return nil
	}

	outcomes := make([]Outcome, n)

	if n == 1 {
		outcomes[0] = e.executeOne(ctx, agent, resolver, calls[0], startIndex)
		return outcomes
	}

	limit := e.opts.MaxParallel
	if limit < 1 || limit > n {
		limit = n
	}

	var g errgroup.Group
	g.SetLimit(limit)

	batchStart := time.Now()
	for i := range calls {
		g.Go(func() error {
			outcomes[i] = e.executeOne(ctx, agent, resolver, calls[i], startIndex+i)
			return nil
		})
	}
	_ = g.Wait()

	e.opts.Logger.Debug(
		"tool.batch.complete",
		"agent", agent.Name,
		"count", n,
		"parallelism", limit,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return outcomes
}

func (e *Executor) executeOne(ctx context.Context, agent core.AgentInfo, resolver Resolver, fc core.FunctionCall, index int) Outcome {
	callID := fc.ID
	if callID == "" {
		callID = fmt.Sprintf("call_%d", index)
	}

	inv := core.ToolInvocation{
		CallID: callID,
		Index:  index,
		Tool:   fc.Name,
		Input:  rawInput(fc.Arguments),
	}

	start := time.Now()

	if err := ctx.Err(); err != nil {
		inv.Failure, inv.FailureCode = err.Error(), CodeCancelled
		inv.Duration = time.Since(start)
		return Outcome{Invocation: inv}
	}

	impl, err := resolver.Resolve(fc.Name)
	if err != nil {
		e.opts.Logger.Warn("tool.call.unknown", "agent", agent.Name, "tool", fc.Name)
		inv.Failure, inv.FailureCode = err.Error(), CodeUnknownTool
		inv.Duration = time.Since(start)
		return Outcome{Invocation: inv}
	}

	args, err := decodeArgs(fc.Arguments)
	if err != nil {
		inv.Failure, inv.FailureCode = err.Error(), CodeInvalidArgs
		inv.Duration = time.Since(start)
		return Outcome{Invocation: inv}
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.opts.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
	}
	defer cancel()

	toolCtx := core.NewToolContext(callCtx, agent, callID, e.opts.Logger)
	result, err := e.call(callCtx, impl, toolCtx, args)
	inv.Duration = time.Since(start)

	if err != nil {
		inv.Failure, inv.FailureCode = describeFailure(err)
	}
	logging.ToolCall(logging.With(e.opts.Logger, "agent", agent.Name), fc.Name, callID, inv.Duration, inv.Failure)
	if err != nil {
		return Outcome{Invocation: inv}
	}

	inv.Output = stringify(result)

	return Outcome{Invocation: inv, Result: result, Handoff: toolCtx.HandoffRequest()}
}

type callResult struct {
	val any
	err error
}

// call runs impl in its own goroutine so a tool that ignores its context
// cannot hold the step past the timeout.
func (e *Executor) call(ctx context.Context, impl Tool, toolCtx *core.ToolContext, args map[string]any) (any, error) {
	done := make(chan callResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.opts.Logger.Error("tool.call.panic", "tool", impl.Name(), "recover", r)
				done <- callResult{err: &panicError{val: r, stack: debug.Stack()}}
			}
		}()
		v, err := impl.Call(toolCtx, args)
		done <- callResult{val: v, err: err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewToolError(impl.Name(), "tool call timed out", CodeTimeout)
		}
		return nil, NewToolError(impl.Name(), ctx.Err().Error(), CodeCancelled)
	}
}

type panicError struct {
	val   any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

func describeFailure(err error) (string, string) {
	var pe *panicError
	if errors.As(err, &pe) {
		return pe.Error(), CodePanic
	}

	var te *ToolError
	if errors.As(err, &te) {
		return te.Message, te.Code
	}

	return err.Error(), CodeExecutionError
}

func decodeArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	return args, nil
}

func rawInput(raw string) json.RawMessage {
	if raw == "" {
		return nil
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	b, _ := json.Marshal(raw)
	return b
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
