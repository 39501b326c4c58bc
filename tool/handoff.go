package tool

import (
	"fmt"
	"strings"

	"github.com/hupe1980/reviewswarm/core"
)

// HandoffToolName is the reserved name of the built-in handoff capability.
const HandoffToolName = "handoff_to_agent"

// handoffTool records a structural handoff directive on the ToolContext.
// It does not check the target against the roster; resolution belongs to the
// orchestrator.
type handoffTool struct {
	peers []string
}

// NewHandoffTool constructs the handoff tool. peers is only used to enrich the
// description shown to the model.
func NewHandoffTool(peers ...string) Tool { return &handoffTool{peers: peers} }

func (t *handoffTool) Name() string { return HandoffToolName }

func (t *handoffTool) Description() string {
	d := "Pass control to another agent by name when it is better suited to continue. " +
		"Include a message summarising what it should focus on."
	if len(t.peers) > 0 {
		d += " Available agents: " + strings.Join(t.peers, ", ") + "."
	}
	return d
}

func (t *handoffTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_name": map[string]any{"type": "string", "description": "Name of the agent to hand off to"},
			"message":    map[string]any{"type": "string", "description": "Instructions for the receiving agent"},
		},
		"required": []string{"agent_name"},
	}
}

func (t *handoffTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	target := strings.TrimSpace(StringArg(args, "agent_name"))
	if target == "" {
		return nil, NewToolError(HandoffToolName, "field 'agent_name' must be a non-empty string", CodeValidationError)
	}

	tc.Handoff(target, StringArg(args, "message"))

	return fmt.Sprintf("Handing off to %s.", target), nil
}
