// Match record lifecycle state machine.
//
// Valid status graph:
//
//	new ──► viewed ──► shortlisted ──► applied ──► interviewing ──► offered
//	                                                     │
//	                                                     └──► rejected
//
// deleted is terminal and reachable from every other state.
package model

import "fmt"

// MatchStatus mirrors the match_status enum in PostgreSQL.
type MatchStatus string

const (
	StatusNew          MatchStatus = "new"
	StatusViewed       MatchStatus = "viewed"
	StatusShortlisted  MatchStatus = "shortlisted"
	StatusApplied      MatchStatus = "applied"
	StatusInterviewing MatchStatus = "interviewing"
	StatusOffered      MatchStatus = "offered"
	StatusRejected     MatchStatus = "rejected"
	StatusDeleted      MatchStatus = "deleted"
)

// validStatusTransitions lists every allowed (from → to) pair, except the
// always-allowed transition into deleted.
var validStatusTransitions = map[MatchStatus][]MatchStatus{
	StatusNew:          {StatusViewed},
	StatusViewed:       {StatusShortlisted},
	StatusShortlisted:  {StatusApplied},
	StatusApplied:      {StatusInterviewing},
	StatusInterviewing: {StatusOffered, StatusRejected},
	// offered, rejected and deleted have no forward transitions
}

// ParseMatchStatus converts a raw string to a MatchStatus, returning an
// error for unknown values.
func ParseMatchStatus(s string) (MatchStatus, error) {
	st := MatchStatus(s)
	switch st {
	case StatusNew, StatusViewed, StatusShortlisted, StatusApplied,
		StatusInterviewing, StatusOffered, StatusRejected, StatusDeleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown match status %q", s)
}

// IsStatusTransitionAllowed returns true when moving from → to is permitted
// by the state machine. deleted is reachable from any non-deleted state.
func IsStatusTransitionAllowed(from, to MatchStatus) bool {
	if from == to {
		return false
	}
	if to == StatusDeleted {
		return from != StatusDeleted
	}
	for _, s := range validStatusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
