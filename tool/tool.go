// Package tool implements the capability subsystem that lets agents invoke
// structured functions (document extraction, validation, remote MCP tools)
// with schema validated arguments and uniform failure reporting.
//
// A Registry maps capability names to Tool implementations. The Executor runs
// a batch of calls for one agent step, concurrently when allowed, and turns
// every outcome (result, error, panic, timeout, unknown name) into a
// core.ToolInvocation so nothing escapes into the orchestrator.
package tool

import (
	"fmt"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/internal/util"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Implementations should:
//   - Provide clear, descriptive snake_case names
//   - Define a JSON schema for parameters
//   - Return errors instead of panicking
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description is provided to the model to help it decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with already decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Failure codes carried by ToolError.
const (
	CodeUnknownTool     = "UNKNOWN_TOOL"
	CodeInvalidArgs     = "INVALID_ARGUMENTS"
	CodeValidationError = "VALIDATION_ERROR"
	CodeExecutionError  = "EXECUTION_ERROR"
	CodePanic           = "PANIC"
	CodeTimeout         = "TIMEOUT"
	CodeCancelled       = "CANCELLED"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
