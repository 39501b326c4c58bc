package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/model"
)

func TestToMessages(t *testing.T) {
	msgs := toMessages(model.SystemContents(model.Request{
		Instructions: "You review SOWs.",
		Contents: []core.Content{
			core.NewTextContent("user", "review"),
			{Role: "assistant", Parts: []core.Part{
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "call_0", Name: "validate_architecture"}},
			}},
			{Role: "tool", Parts: []core.Part{
				core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "call_0", Name: "validate_architecture", Error: "boom"}},
			}},
		},
	}))

	require.Len(t, msgs, 4)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "{}", msgs[2].OfAssistant.ToolCalls[0].Function.Arguments)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "call_0", msgs[3].OfTool.ToolCallID)
}

func TestNewOllamaModel(t *testing.T) {
	m := NewOllamaModel("llama3.1:8b")
	info := m.Info()
	assert.Equal(t, "llama3.1:8b", info.Name)
	assert.Equal(t, "ollama", info.Provider)
	assert.Equal(t, OllamaBaseURL, m.opts.BaseURL)
}

func TestBuildParams_Tools(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })
	p := m.buildParams(model.Request{Tools: []model.ToolDefinition{
		model.NewFunctionDefinition("read_document", "Read", map[string]any{"type": "object"}),
	}}, nil)
	require.Len(t, p.Tools, 1)
	assert.Equal(t, "read_document", p.Tools[0].Function.Name)
}
