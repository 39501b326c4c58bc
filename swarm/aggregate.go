package swarm

import "github.com/hupe1980/reviewswarm/core"

// Aggregate builds the result of a finished run. The report is the output of
// the last recorded step whatever the status; a run that failed before any
// step has an empty report and only a reason.
func Aggregate(runID string, history core.ExecutionHistory, status core.RunStatus, reason string, err error, guard *Guard) core.RunResult {
	res := core.RunResult{
		RunID:   runID,
		Status:  status,
		History: history.Clone(),
		Reason:  reason,
	}
	if status == core.StatusFailed {
		res.Err = err
	}
	if last, ok := history.Last(); ok {
		res.Report = last.Output
	}
	if guard != nil {
		res.Iterations = guard.Iterations()
		res.Handoffs = guard.Handoffs()
	}
	return res
}
