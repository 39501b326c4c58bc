package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTool is returned when a capability name is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrUnresolvedHandoff is returned when a handoff target is not in the roster.
	ErrUnresolvedHandoff = errors.New("unresolved handoff")
	// ErrBoundsExceeded is returned when an iteration or handoff ceiling is crossed.
	ErrBoundsExceeded = errors.New("bounds exceeded")
	// ErrInferenceUnavailable is returned when the model backend cannot be reached.
	ErrInferenceUnavailable = errors.New("inference unavailable")
	// ErrMalformedResponse is returned when the model backend answers with something unusable.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrCancelled is returned when the caller cancels a run between steps.
	ErrCancelled = errors.New("cancellation requested")
	// ErrEmptyInput is returned when an agent is asked to run without input.
	ErrEmptyInput = errors.New("empty input")
)

// UnresolvedHandoffError carries the raw target that failed to resolve.
type UnresolvedHandoffError struct {
	Source    string
	Requested string
}

func (e *UnresolvedHandoffError) Error() string {
	return fmt.Sprintf("agent %q requested handoff to unknown agent %q", e.Source, e.Requested)
}

// Unwrap allows errors.Is(err, ErrUnresolvedHandoff).
func (e *UnresolvedHandoffError) Unwrap() error { return ErrUnresolvedHandoff }

// BoundsExceededError names the ceiling that was crossed.
type BoundsExceededError struct {
	Ceiling string // "iterations" or "handoffs"
	Limit   int
	Used    int
}

func (e *BoundsExceededError) Error() string {
	return fmt.Sprintf("max %s exceeded: %d > %d", e.Ceiling, e.Used, e.Limit)
}

// Unwrap allows errors.Is(err, ErrBoundsExceeded).
func (e *BoundsExceededError) Unwrap() error { return ErrBoundsExceeded }

// InferenceError wraps a model failure raised while an agent ran a step.
// Kind is ErrInferenceUnavailable or ErrMalformedResponse.
type InferenceError struct {
	Agent string
	Kind  error
	Err   error
}

func (e *InferenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("agent %s: %v", e.Agent, e.Kind)
	}
	return fmt.Sprintf("agent %s: %v: %v", e.Agent, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *InferenceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
