package swarm

import (
	"errors"
	"fmt"
	"time"
)

// RunConfig is the immutable configuration of one run.
type RunConfig struct {
	// Entry is the roster name of the first agent.
	Entry string `yaml:"entry"`
	// Terminal names the agents expected to finish a run. A run may still
	// complete at any agent that requests no handoff.
	Terminal      []string `yaml:"terminal"`
	MaxIterations int      `yaml:"max_iterations"`
	// MaxHandoffs may be zero: the entry agent then runs alone and its
	// first handoff request aborts the run with BoundsExceeded.
	MaxHandoffs int `yaml:"max_handoffs"`
	// Timeout bounds the whole run; zero means no deadline.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultRunConfig returns the ceilings used by the SOW review roster.
func DefaultRunConfig(entry string) RunConfig {
	return RunConfig{
		Entry:         entry,
		MaxIterations: 20,
		MaxHandoffs:   12,
	}
}

// Validate checks the configuration on its own; roster membership is checked
// by New.
func (c RunConfig) Validate() error {
	var errs []error
	if c.Entry == "" {
		errs = append(errs, errors.New("entry agent is required"))
	}
	if c.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations))
	}
	if c.MaxHandoffs < 0 {
		errs = append(errs, fmt.Errorf("max_handoffs must not be negative, got %d", c.MaxHandoffs))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	return errors.Join(errs...)
}

func (c RunConfig) clone() RunConfig {
	cp := c
	cp.Terminal = append([]string(nil), c.Terminal...)
	return cp
}
