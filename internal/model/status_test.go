package model

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", RunInit},
		{RunInit, RunExtracting},
		{RunExtracting, RunResolving},
		{RunResolving, RunAggregating},
		{RunAggregating, RunDone},
		{RunExtracting, RunFailed},
		{RunResolving, RunFailed},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{RunInit, RunResolving},
		{RunExtracting, RunAggregating},
		{RunResolving, RunDone},
		{RunDone, RunInit},
		{RunFailed, RunResolving},
		{"not_a_state", RunInit},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionRun_BlocksIllegalTransition(t *testing.T) {
	run := RunStatus{RunID: "run-1", State: RunInit}

	if err := TransitionRun(&run, RunAggregating, ""); err == nil {
		t.Fatalf("expected illegal transition error")
	}
	if run.State != RunInit {
		t.Fatalf("state changed on rejected transition: %q", run.State)
	}
}
