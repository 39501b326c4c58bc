package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/logging"
	"github.com/hupe1980/reviewswarm/model"
	"github.com/hupe1980/reviewswarm/tool"
)

// ModelAgentOptions configures a ModelAgent.
type ModelAgentOptions struct {
	Instruction Instruction
	Description string
	// Vars are extra template variables for the instruction.
	Vars map[string]any

	// Registry is the shared capability registry.
	Registry *tool.Registry
	// ToolNames declares which registry capabilities the agent may use. Nil
	// means all of them. Declared names missing from the registry are not
	// advertised; calls to them fail with UNKNOWN_TOOL.
	ToolNames []string
	// Tools are private to this agent and take precedence over the registry.
	Tools []tool.Tool
	// Peers enables the handoff tool when non-empty.
	Peers []string

	// MaxTurns caps model calls per step. When reached, the step completes
	// with the text gathered so far.
	MaxTurns        int
	MaxHistorySteps int
	Streaming       bool

	Processors []RequestProcessor
	Executor   *tool.Executor
	Logger     logging.Logger
}

// ModelAgent runs one swarm step against a language model, executing the
// tools the model asks for until it answers without tool calls, requests a
// handoff, or MaxTurns is reached.
type ModelAgent struct {
	BaseAgent

	llm        model.Model
	opts       ModelAgentOptions
	toolbox    *toolbox
	processors []RequestProcessor
	executor   *tool.Executor
	logger     logging.Logger
}

// NewModelAgent creates a model-backed agent.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a meticulous reviewer.", name)),
		MaxTurns:    8,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Executor == nil {
		opts.Executor = tool.NewExecutor(func(o *tool.ExecutorOptions) { o.Logger = opts.Logger })
	}
	if opts.Processors == nil {
		opts.Processors = DefaultProcessors(opts.MaxHistorySteps)
	}

	a := &ModelAgent{
		BaseAgent:  NewBaseAgent(name, "model"),
		llm:        llm,
		opts:       opts,
		processors: opts.Processors,
		executor:   opts.Executor,
		logger:     opts.Logger,
	}
	a.SetDescription(opts.Description)
	a.toolbox = newToolbox(opts)

	if missing := a.toolbox.missing(); len(missing) > 0 {
		a.logger.Warn("agent.tools.unregistered", "agent", name, "tools", missing)
	}

	return a
}

// Model returns the bound model.
func (a *ModelAgent) Model() model.Model { return a.llm }

// ToolNames returns the advertised tool names in request order.
func (a *ModelAgent) ToolNames() []string {
	defs := a.toolbox.definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Function.Name
	}
	return names
}

// Run implements core.Agent.
func (a *ModelAgent) Run(ctx context.Context, input string, history core.ExecutionHistory) (core.StepResult, error) {
	if strings.TrimSpace(input) == "" {
		return core.StepResult{}, core.ErrEmptyInput
	}

	a.logger.Debug("agent.run.start", "agent", a.Name(), "run_id", core.RunIDFromContext(ctx), "history", history.Len())

	req := model.Request{Stream: a.opts.Streaming, Tools: a.toolbox.definitions()}
	in := StepInput{Agent: a, Input: input, History: history}
	for _, p := range a.processors {
		if err := p.ProcessRequest(ctx, in, &req); err != nil {
			return core.StepResult{}, fmt.Errorf("agent %s: %s processor: %w", a.Name(), p.Name(), err)
		}
	}

	var (
		result  core.StepResult
		text    string
		limiter = core.NewCallLimiter(a.opts.MaxTurns)
	)

	for {
		if err := limiter.Increment(); err != nil {
			a.logger.Warn("agent.turns.exhausted", "agent", a.Name(), "max_turns", a.opts.MaxTurns)
			break
		}

		callStart := time.Now()
		resp, err := model.Complete(ctx, a.llm, req)
		logging.ModelCall(logging.With(a.logger, "agent", a.Name()), a.llm.Info().Name, time.Since(callStart), err)
		if err != nil {
			return core.StepResult{}, a.inferenceError(err)
		}

		if t := strings.TrimSpace(resp.Content.Text()); t != "" {
			text = t
		}

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			break
		}

		start := len(result.ToolCalls)
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = fmt.Sprintf("call_%d", start+i)
			}
		}
		req.Contents = append(req.Contents, assistantContent(resp.Content.Text(), calls))

		outcomes := a.executor.Execute(ctx, a.Info(), a.toolbox, calls, start)
		parts := make([]core.Part, 0, len(outcomes))
		for _, o := range outcomes {
			result.ToolCalls = append(result.ToolCalls, o.Invocation)
			if o.Handoff != nil {
				h := *o.Handoff
				h.Source = a.Name()
				result.Handoff = &h
			}
			parts = append(parts, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID:       o.Invocation.CallID,
				Name:     o.Invocation.Tool,
				Response: o.Invocation.Output,
				Error:    o.Invocation.Failure,
			}})
		}
		req.Contents = append(req.Contents, core.Content{Role: "tool", Parts: parts})

		if result.Handoff != nil {
			break
		}
	}

	result.Output = text

	a.logger.Debug("agent.run.complete",
		"agent", a.Name(),
		"tool_calls", len(result.ToolCalls),
		"model_turns", limiter.Count(),
		"handoff", result.Handoff != nil,
	)

	return result, nil
}

func (a *ModelAgent) inferenceError(err error) error {
	kind := core.ErrInferenceUnavailable
	if errors.Is(err, core.ErrMalformedResponse) {
		kind = core.ErrMalformedResponse
	}
	return &core.InferenceError{Agent: a.Name(), Kind: kind, Err: err}
}

func assistantContent(text string, calls []core.FunctionCall) core.Content {
	parts := make([]core.Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	for _, c := range calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}
	return core.Content{Role: "assistant", Parts: parts}
}

// toolbox is the agent-scoped view on capabilities.
type toolbox struct {
	registry *tool.Registry
	declared []string
	allowed  map[string]struct{}
	local    map[string]tool.Tool
	order    []tool.Tool
}

func newToolbox(opts ModelAgentOptions) *toolbox {
	b := &toolbox{registry: opts.Registry, local: map[string]tool.Tool{}}

	if opts.ToolNames != nil {
		b.declared = opts.ToolNames
		b.allowed = make(map[string]struct{}, len(opts.ToolNames))
		for _, n := range opts.ToolNames {
			b.allowed[n] = struct{}{}
		}
	} else if opts.Registry != nil {
		b.declared = opts.Registry.Names()
	}

	local := opts.Tools
	if len(opts.Peers) > 0 {
		local = append(append([]tool.Tool(nil), local...), tool.NewHandoffTool(opts.Peers...))
	}
	for _, t := range local {
		if t == nil {
			continue
		}
		if _, dup := b.local[t.Name()]; dup {
			continue
		}
		b.local[t.Name()] = t
		b.order = append(b.order, t)
	}

	return b
}

// Resolve implements tool.Resolver.
func (b *toolbox) Resolve(name string) (tool.Tool, error) {
	if t, ok := b.local[name]; ok {
		return t, nil
	}
	if b.allowed != nil {
		if _, ok := b.allowed[name]; !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrUnknownTool, name)
		}
	}
	if b.registry == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTool, name)
	}
	return b.registry.Resolve(name)
}

func (b *toolbox) definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(b.declared)+len(b.order))
	seen := map[string]struct{}{}

	add := func(t tool.Tool) {
		if _, ok := seen[t.Name()]; ok {
			return
		}
		seen[t.Name()] = struct{}{}
		defs = append(defs, model.NewFunctionDefinition(t.Name(), t.Description(), t.Parameters()))
	}

	for _, n := range b.declared {
		if _, shadowed := b.local[n]; shadowed {
			continue
		}
		if t, err := b.Resolve(n); err == nil {
			add(t)
		}
	}
	for _, t := range b.order {
		add(t)
	}

	return defs
}

func (b *toolbox) missing() []string {
	var out []string
	for _, n := range b.declared {
		if _, ok := b.local[n]; ok {
			continue
		}
		if _, err := b.Resolve(n); err != nil {
			out = append(out, n)
		}
	}
	return out
}
