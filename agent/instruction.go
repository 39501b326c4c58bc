package agent

import (
	"context"

	"github.com/hupe1980/reviewswarm/internal/util"
)

// Provider supplies instruction text at runtime.
type Provider interface {
	Instruction(ctx context.Context) (string, error)
}

// Func adapts an ordinary function to Provider.
type Func func(ctx context.Context) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context) (string, error) { return f(ctx) }

// Instruction is either a static string or a dynamic provider. Both are
// rendered as text/template with the agent's variables.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic reports whether the instruction is a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the rendered instruction text.
func (i Instruction) Resolve(ctx context.Context, vars map[string]any) (string, error) {
	text := i.text
	if i.provider != nil {
		var err error
		if text, err = i.provider.Instruction(ctx); err != nil {
			return "", err
		}
	}
	return util.RenderTemplate(text, vars)
}
