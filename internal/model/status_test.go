package model_test

import (
	"testing"

	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

var allStatuses = []model.MatchStatus{
	model.StatusNew,
	model.StatusViewed,
	model.StatusShortlisted,
	model.StatusApplied,
	model.StatusInterviewing,
	model.StatusOffered,
	model.StatusRejected,
	model.StatusDeleted,
}

// ── ParseMatchStatus ───────────────────────────────────────────────────────

func TestParseMatchStatus_ValidValues(t *testing.T) {
	for _, s := range allStatuses {
		got, err := model.ParseMatchStatus(string(s))
		if err != nil {
			t.Errorf("ParseMatchStatus(%q) returned unexpected error: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseMatchStatus(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseMatchStatus_InvalidValues(t *testing.T) {
	for _, s := range []string{"", "NEW", "archived", " new"} {
		if _, err := model.ParseMatchStatus(s); err == nil {
			t.Errorf("ParseMatchStatus(%q) expected error, got nil", s)
		}
	}
}

// ── IsStatusTransitionAllowed ──────────────────────────────────────────────

func TestStatusTransition_ValidForward(t *testing.T) {
	cases := []struct {
		from model.MatchStatus
		to   model.MatchStatus
	}{
		{model.StatusNew, model.StatusViewed},
		{model.StatusViewed, model.StatusShortlisted},
		{model.StatusShortlisted, model.StatusApplied},
		{model.StatusApplied, model.StatusInterviewing},
		{model.StatusInterviewing, model.StatusOffered},
		{model.StatusInterviewing, model.StatusRejected},
	}
	for _, c := range cases {
		if !model.IsStatusTransitionAllowed(c.from, c.to) {
			t.Errorf("IsStatusTransitionAllowed(%s → %s) should be true", c.from, c.to)
		}
	}
}

func TestStatusTransition_DeletedReachableFromAnywhere(t *testing.T) {
	for _, from := range allStatuses {
		if from == model.StatusDeleted {
			continue
		}
		if !model.IsStatusTransitionAllowed(from, model.StatusDeleted) {
			t.Errorf("IsStatusTransitionAllowed(%s → deleted) should be true", from)
		}
	}
}

func TestStatusTransition_DeletedIsTerminal(t *testing.T) {
	for _, to := range allStatuses {
		if model.IsStatusTransitionAllowed(model.StatusDeleted, to) {
			t.Errorf("IsStatusTransitionAllowed(deleted → %s) should be false", to)
		}
	}
}

func TestStatusTransition_SkipLevel(t *testing.T) {
	cases := []struct {
		from model.MatchStatus
		to   model.MatchStatus
	}{
		{model.StatusNew, model.StatusShortlisted},
		{model.StatusNew, model.StatusApplied},
		{model.StatusViewed, model.StatusApplied},
		{model.StatusShortlisted, model.StatusInterviewing},
		{model.StatusApplied, model.StatusOffered},
	}
	for _, c := range cases {
		if model.IsStatusTransitionAllowed(c.from, c.to) {
			t.Errorf("IsStatusTransitionAllowed(%s → %s) should be false (skip-level)", c.from, c.to)
		}
	}
}

func TestStatusTransition_Backwards(t *testing.T) {
	cases := []struct {
		from model.MatchStatus
		to   model.MatchStatus
	}{
		{model.StatusViewed, model.StatusNew},
		{model.StatusShortlisted, model.StatusViewed},
		{model.StatusInterviewing, model.StatusApplied},
		{model.StatusOffered, model.StatusInterviewing},
	}
	for _, c := range cases {
		if model.IsStatusTransitionAllowed(c.from, c.to) {
			t.Errorf("IsStatusTransitionAllowed(%s → %s) should be false (backwards)", c.from, c.to)
		}
	}
}

func TestStatusTransition_Self(t *testing.T) {
	for _, s := range allStatuses {
		if model.IsStatusTransitionAllowed(s, s) {
			t.Errorf("IsStatusTransitionAllowed(%s → %s) should be false (self)", s, s)
		}
	}
}
