package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/reviewswarm/core"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewFunctionDefinition builds a function ToolDefinition.
func NewFunctionDefinition(name, description string, params map[string]any) ToolDefinition {
	return ToolDefinition{Type: "function", Function: FunctionDefinition{Name: name, Description: description, Parameters: params}}
}

// Request captures the normalized model input produced by agents.
type Request struct {
	Instructions string           `json:"instructions"` // system prompt
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "ollama", "scripted"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents to drive generation.
//
// Implementations send zero or more partial responses followed by exactly one
// final response on the first channel, or a single error on the second, then
// close both.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete drains a Generate call and returns the final response.
//
// Every returned error matches exactly one of core.ErrInferenceUnavailable
// (transport, API or context failures) or core.ErrMalformedResponse (no final
// response, empty content, nameless tool calls).
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final    *Response
		firstErr error
	)

	for respCh != nil || errCh != nil {
		select {
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !r.Partial {
				rr := r
				final = &rr
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return Response{}, classify(firstErr)
	}
	if final == nil {
		return Response{}, fmt.Errorf("%w: no final response", core.ErrMalformedResponse)
	}
	if err := validate(*final); err != nil {
		return Response{}, err
	}

	return *final, nil
}

func classify(err error) error {
	if errors.Is(err, core.ErrMalformedResponse) || errors.Is(err, core.ErrInferenceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrInferenceUnavailable, err)
}

func validate(r Response) error {
	calls := r.Content.FunctionCalls()
	for _, fc := range calls {
		if fc.Name == "" {
			return fmt.Errorf("%w: tool call without name", core.ErrMalformedResponse)
		}
		if fc.Arguments != "" && !json.Valid([]byte(fc.Arguments)) {
			return fmt.Errorf("%w: tool call %s has invalid arguments", core.ErrMalformedResponse, fc.Name)
		}
	}
	if len(calls) == 0 && r.Content.Text() == "" {
		return fmt.Errorf("%w: empty response", core.ErrMalformedResponse)
	}
	return nil
}

// SystemContents prepends the instructions as a system content when set.
// Adapters use it so providers see instructions in their native slot.
func SystemContents(req Request) []core.Content {
	if req.Instructions == "" {
		return req.Contents
	}
	out := make([]core.Content, 0, len(req.Contents)+1)
	out = append(out, core.NewTextContent("system", req.Instructions))
	return append(out, req.Contents...)
}
