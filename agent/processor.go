package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/model"
)

// StepInput is what request processors see while a step is prepared.
type StepInput struct {
	Agent   *ModelAgent
	Input   string
	History core.ExecutionHistory
}

// RequestProcessor contributes one aspect of a model request.
type RequestProcessor interface {
	Name() string
	ProcessRequest(ctx context.Context, in StepInput, req *model.Request) error
}

// DefaultProcessors returns instruction, history and input processors in
// that order.
func DefaultProcessors(maxHistorySteps int) []RequestProcessor {
	return []RequestProcessor{
		InstructionsProcessor{},
		HistoryProcessor{MaxSteps: maxHistorySteps},
		InputProcessor{},
	}
}

// InstructionsProcessor sets the system prompt. Templates may reference
// {{.agent}}, {{.peers}} and any key of ModelAgentOptions.Vars.
type InstructionsProcessor struct{}

// Name returns the processor's identifier.
func (InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest resolves the agent instruction into req.Instructions.
func (InstructionsProcessor) ProcessRequest(ctx context.Context, in StepInput, req *model.Request) error {
	peers := make([]any, len(in.Agent.opts.Peers))
	for i, p := range in.Agent.opts.Peers {
		peers[i] = p
	}

	vars := make(map[string]any, len(in.Agent.opts.Vars)+2)
	for k, v := range in.Agent.opts.Vars {
		vars[k] = v
	}
	vars["agent"] = in.Agent.Name()
	vars["peers"] = peers

	text, err := in.Agent.opts.Instruction.Resolve(ctx, vars)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}

	in.Agent.logger.Debug("agent.instruction.resolved", "agent", in.Agent.Name(), "length", len(text))
	req.Instructions = text

	return nil
}

// HistoryProcessor shares the work of earlier participants as a transcript.
// MaxSteps > 0 keeps only the most recent steps.
type HistoryProcessor struct {
	MaxSteps int
}

// Name returns the processor's identifier.
func (HistoryProcessor) Name() string { return "history" }

// ProcessRequest appends the transcript as a user content.
func (p HistoryProcessor) ProcessRequest(_ context.Context, in StepInput, req *model.Request) error {
	h := in.History
	if len(h) == 0 {
		return nil
	}
	if p.MaxSteps > 0 && len(h) > p.MaxSteps {
		h = h[len(h)-p.MaxSteps:]
	}

	req.Contents = append(req.Contents, core.NewTextContent("user",
		"Work completed so far by other agents:\n\n"+h.Transcript()))

	return nil
}

// InputProcessor appends the step input.
type InputProcessor struct{}

// Name returns the processor's identifier.
func (InputProcessor) Name() string { return "input" }

// ProcessRequest appends the input as a user content.
func (InputProcessor) ProcessRequest(_ context.Context, in StepInput, req *model.Request) error {
	req.Contents = append(req.Contents, core.NewTextContent("user", in.Input))
	return nil
}
