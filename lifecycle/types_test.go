package lifecycle

import (
	"testing"
)

func TestStatusCanTransitionTo(t *testing.T) {
	// The full legality table. Everything not listed as legal must be
	// rejected, including self-transitions and edges out of sinks.
	legal := map[Status][]Status{
		StatusProposed:    {StatusUnderReview, StatusRejected},
		StatusUnderReview: {StatusApproved, StatusRejected, StatusProposed},
		StatusApproved:    {StatusImplemented, StatusRejected},
		StatusImplemented: {StatusValidated, StatusFailed},
		StatusValidated:   {StatusSynced},
		StatusSynced:      {},
		StatusRejected:    {},
		StatusFailed:      {},
	}

	all := []Status{
		StatusProposed, StatusUnderReview, StatusApproved, StatusImplemented,
		StatusValidated, StatusSynced, StatusRejected, StatusFailed,
	}

	for from, targets := range legal {
		allowed := make(map[Status]bool, len(targets))
		for _, to := range targets {
			allowed[to] = true
		}
		for _, to := range all {
			got := from.CanTransitionTo(to)
			if got != allowed[to] {
				t.Errorf("%s → %s: got %v, want %v", from, to, got, allowed[to])
			}
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusProposed, false},
		{StatusUnderReview, false},
		{StatusApproved, false},
		{StatusImplemented, false},
		{StatusValidated, false},
		{StatusSynced, true},
		{StatusRejected, true},
		{StatusFailed, true},
	}

	for _, tc := range tests {
		if got := tc.status.IsTerminal(); got != tc.terminal {
			t.Errorf("%s: IsTerminal() = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{
		StatusProposed, StatusUnderReview, StatusApproved, StatusImplemented,
		StatusValidated, StatusSynced, StatusRejected, StatusFailed,
	} {
		if !s.IsValid() {
			t.Errorf("%s should be valid", s)
		}
	}
	for _, s := range []Status{"", "unknown", "PROPOSED"} {
		if s.IsValid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func TestImplStatusCanTransitionTo(t *testing.T) {
	legal := map[ImplStatus][]ImplStatus{
		ImplStatusNotStarted: {ImplStatusInProgress},
		ImplStatusInProgress: {ImplStatusCompleted, ImplStatusFailed},
		ImplStatusCompleted:  {ImplStatusValidated, ImplStatusFailed},
		ImplStatusValidated:  {},
		ImplStatusFailed:     {},
	}

	all := []ImplStatus{
		ImplStatusNotStarted, ImplStatusInProgress, ImplStatusCompleted,
		ImplStatusValidated, ImplStatusFailed,
	}

	for from, targets := range legal {
		allowed := make(map[ImplStatus]bool, len(targets))
		for _, to := range targets {
			allowed[to] = true
		}
		for _, to := range all {
			got := from.CanTransitionTo(to)
			if got != allowed[to] {
				t.Errorf("%s → %s: got %v, want %v", from, to, got, allowed[to])
			}
		}
	}
}

func TestRecommendationIsApproval(t *testing.T) {
	tests := []struct {
		rec      Recommendation
		approval bool
	}{
		{RecommendApprove, true},
		{RecommendApproveWithConditions, true},
		{RecommendApproveWithReview, true},
		{RecommendReject, false},
	}

	for _, tc := range tests {
		if got := tc.rec.IsApproval(); got != tc.approval {
			t.Errorf("%s: IsApproval() = %v, want %v", tc.rec, got, tc.approval)
		}
	}
}

func TestNewValidation(t *testing.T) {
	t.Run("passes when no critical check fails", func(t *testing.T) {
		v := NewValidation("implementation:abc", []Check{
			{Name: "implementation_exists", Passed: true, Critical: true},
			{Name: "endpoints_tested", Passed: false, Critical: false},
		})
		if !v.Passed {
			t.Error("non-critical failure must not fail the validation")
		}
		if got := v.FailedChecks(); len(got) != 1 || got[0] != "endpoints_tested" {
			t.Errorf("unexpected failed checks: %v", got)
		}
	})

	t.Run("fails when any critical check fails", func(t *testing.T) {
		v := NewValidation("implementation:abc", []Check{
			{Name: "implementation_exists", Passed: true, Critical: true},
			{Name: "progress_complete", Passed: false, Critical: true},
		})
		if v.Passed {
			t.Error("critical failure must fail the validation")
		}
	})

	t.Run("empty check set passes vacuously", func(t *testing.T) {
		v := NewValidation("implementation:abc", nil)
		if !v.Passed {
			t.Error("no checks means nothing failed")
		}
	})
}
