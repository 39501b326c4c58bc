package mcp

import (
	"context"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/tool"
)

// remoteTool exposes one server-side tool through the local Tool contract.
type remoteTool struct {
	client *Client
	info   ToolInfo
	name   string
}

func (t *remoteTool) Name() string        { return t.name }
func (t *remoteTool) Description() string { return t.info.Description }

func (t *remoteTool) Parameters() map[string]any {
	if t.info.InputSchema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return t.info.InputSchema
}

// Call forwards the arguments unchanged; validation is left to the server.
func (t *remoteTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	res, err := t.client.CallTool(tc.Context(), t.info.Name, args)
	if err != nil {
		return nil, tool.NewToolError(t.name, err.Error(), tool.CodeExecutionError)
	}
	if res.IsError {
		return nil, tool.NewToolError(t.name, res.Text(), tool.CodeExecutionError)
	}
	return res.Text(), nil
}

// Tools lists the server's tools and wraps each as a tool.Tool named
// ToolPrefix + remote name.
func (c *Client) Tools(ctx context.Context) ([]tool.Tool, error) {
	infos, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]tool.Tool, len(infos))
	for i, info := range infos {
		out[i] = &remoteTool{client: c, info: info, name: c.opts.ToolPrefix + info.Name}
	}
	return out, nil
}
