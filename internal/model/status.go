package model

import "fmt"

const (
	RunInit        = "init"
	RunExtracting  = "extracting"
	RunResolving   = "resolving_downloading"
	RunAggregating = "aggregating"
	RunDone        = "done"
	RunFailed      = "failed"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		RunInit: true,
	},
	RunInit: {
		RunExtracting: true,
		RunFailed:     true,
	},
	RunExtracting: {
		RunResolving: true,
		RunFailed:    true,
	},
	RunResolving: {
		RunAggregating: true,
		RunFailed:      true,
	},
	RunAggregating: {
		RunDone:   true,
		RunFailed: true,
	},
	RunDone:   {},
	RunFailed: {},
}

// RunStatus tracks where a run is in its lifecycle.
type RunStatus struct {
	RunID  string `json:"run_id"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func IsKnownState(state string) bool {
	_, ok := allowedTransitions[state]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionRun(run *RunStatus, toState string, reason string) error {
	from := run.State
	if !CanTransition(from, toState) {
		return fmt.Errorf("invalid run state transition: %q -> %q (run_id=%s)", from, toState, run.RunID)
	}
	run.State = toState
	run.Reason = reason
	return nil
}
