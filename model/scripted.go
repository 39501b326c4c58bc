package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/reviewswarm/core"
)

// Turn is one scripted model answer: either a response or an error.
type Turn struct {
	Response Response
	Err      error
}

// Text returns a turn answering with plain text.
func Text(text string) Turn {
	return Turn{Response: Response{
		Content:      core.NewTextContent("assistant", text),
		FinishReason: "stop",
	}}
}

// Calls returns a turn answering with tool calls and optional text.
func Calls(text string, calls ...core.FunctionCall) Turn {
	parts := make([]core.Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	for _, c := range calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}
	return Turn{Response: Response{
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: "tool_calls",
	}}
}

// Fail returns a turn answering with an error.
func Fail(err error) Turn { return Turn{Err: err} }

// ScriptedModel is a deterministic in-memory Model for tests and offline
// runs. It answers the Nth Generate call with the Nth turn and records every
// request it received.
type ScriptedModel struct {
	info Info

	mu       sync.Mutex
	turns    []Turn
	next     int
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel.
func NewScriptedModel(name string, turns ...Turn) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: name, Provider: "scripted", SupportsTools: true},
		turns: turns,
	}
}

// Append adds turns to the end of the script.
func (m *ScriptedModel) Append(turns ...Turn) {
	m.mu.Lock()
	m.turns = append(m.turns, turns...)
	m.mu.Unlock()
}

// Requests returns the requests seen so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 2)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var (
		turn Turn
		ok   bool
	)
	if m.next < len(m.turns) {
		turn, ok = m.turns[m.next], true
		m.next++
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}
		if !ok {
			errCh <- fmt.Errorf("%w: script of %s exhausted", core.ErrMalformedResponse, m.info.Name)
			return
		}
		if turn.Err != nil {
			errCh <- turn.Err
			return
		}
		if req.Stream && turn.Response.Content.Text() != "" {
			respCh <- Response{Partial: true, Content: core.NewTextContent("assistant", turn.Response.Content.Text())}
		}
		respCh <- turn.Response
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
