package core

import (
	"fmt"
)

// RunStatus is the state of a swarm run.
type RunStatus int

const (
	// StatusIdle is the state before Run has been called.
	StatusIdle RunStatus = iota
	// StatusRunning means steps are still being executed.
	StatusRunning
	// StatusCompleted means an agent finished without requesting a handoff.
	StatusCompleted
	// StatusAbortedBoundsExceeded means an iteration or handoff ceiling was hit.
	StatusAbortedBoundsExceeded
	// StatusAbortedUnresolvedHandoff means a handoff named no roster member.
	StatusAbortedUnresolvedHandoff
	// StatusAbortedCancelled means the caller cancelled between steps.
	StatusAbortedCancelled
	// StatusFailed means an agent could not produce a step.
	StatusFailed
)

var statusNames = map[RunStatus]string{
	StatusIdle:                     "idle",
	StatusRunning:                  "running",
	StatusCompleted:                "completed",
	StatusAbortedBoundsExceeded:    "aborted_bounds_exceeded",
	StatusAbortedUnresolvedHandoff: "aborted_unresolved_handoff",
	StatusAbortedCancelled:         "aborted_cancelled",
	StatusFailed:                   "failed",
}

func (s RunStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsTerminal reports whether no further steps will run.
func (s RunStatus) IsTerminal() bool {
	return s != StatusIdle && s != StatusRunning
}

// IsAborted reports whether the run stopped on a safety or routing condition.
func (s RunStatus) IsAborted() bool {
	switch s {
	case StatusAbortedBoundsExceeded, StatusAbortedUnresolvedHandoff, StatusAbortedCancelled:
		return true
	}
	return false
}

// MarshalText encodes the status by name.
func (s RunStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *RunStatus) UnmarshalText(b []byte) error {
	for k, v := range statusNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown run status %q", string(b))
}

// SwarmState is the mutable bookkeeping of a run in progress.
type SwarmState struct {
	Active     string
	Iterations int
	Handoffs   int
	Status     RunStatus
}

// RunResult is the immutable outcome of a run.
//
// Report is the output of the last recorded step regardless of status. Reason
// explains any non-completed status. Err carries the underlying error for
// Failed runs and is nil otherwise.
type RunResult struct {
	RunID      string           `json:"run_id"`
	Status     RunStatus        `json:"status"`
	History    ExecutionHistory `json:"history"`
	Report     string           `json:"report"`
	Reason     string           `json:"reason,omitempty"`
	Iterations int              `json:"iterations"`
	Handoffs   int              `json:"handoffs"`
	Err        error            `json:"-"`
}

// LastAgent returns the name of the agent that ran last, if any.
func (r RunResult) LastAgent() string {
	if s, ok := r.History.Last(); ok {
		return s.Agent
	}
	return ""
}
