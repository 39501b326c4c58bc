package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/tool"
)

// AgentToolOptions configure how an agent is exposed as a tool.
type AgentToolOptions struct {
	// Name overrides the tool name (default: the agent name).
	Name        string
	Description string
	// Timeout bounds the delegated run. Zero means no extra timeout.
	Timeout time.Duration
}

// AgentTool wraps an agent as a callable tool. The wrapped agent runs with
// an empty history; its handoff requests are ignored.
type AgentTool struct {
	agent core.Agent
	opts  AgentToolOptions
}

// AsTool exposes agent as a tool.
func AsTool(agent core.Agent, optFns ...func(o *AgentToolOptions)) *AgentTool {
	opts := AgentToolOptions{Name: agent.Name()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Description == "" {
		opts.Description = fmt.Sprintf("Delegate a task to the %q agent. %s", agent.Name(), agent.Description())
	}
	return &AgentTool{agent: agent, opts: opts}
}

// Name implements tool.Tool.
func (t *AgentTool) Name() string { return t.opts.Name }

// Description implements tool.Tool.
func (t *AgentTool) Description() string { return t.opts.Description }

// Parameters implements tool.Tool.
func (t *AgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input":   map[string]any{"type": "string", "description": "The task or query to send to the agent"},
			"context": map[string]any{"type": "object", "description": "Optional context key-value pairs"},
		},
		"required": []string{"input"},
	}
}

// Agent returns the wrapped agent.
func (t *AgentTool) Agent() core.Agent { return t.agent }

// Call implements tool.Tool.
func (t *AgentTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	input := tool.StringArg(args, "input")
	if input == "" {
		return nil, tool.NewToolError(t.Name(), "missing required field: input", tool.CodeValidationError)
	}
	if extra, ok := args["context"].(map[string]any); ok && len(extra) > 0 {
		raw, err := json.Marshal(extra)
		if err != nil {
			return nil, tool.NewToolError(t.Name(), "invalid context: "+err.Error(), tool.CodeValidationError)
		}
		input += "\n\nContext: " + string(raw)
	}

	ctx := tc.Context()
	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	tc.Logger().Debug("agent.tool.delegate", "agent", tc.AgentName(), "delegate", t.agent.Name())

	res, err := t.agent.Run(ctx, input, nil)
	if err != nil {
		return nil, tool.NewToolError(t.Name(), err.Error(), tool.CodeExecutionError)
	}

	return res.Output, nil
}
