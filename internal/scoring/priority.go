package scoring

import "github.com/Inclusist/job-monitor-sub000/internal/model"

// Score cutoffs for the derived priority buckets.
const (
	HighPriorityMin   = 85
	MediumPriorityMin = 70
)

// DerivePriority computes the priority bucket from an LLM match score.
// The priority returned by the model itself is never trusted: this function
// is the single source of truth.
func DerivePriority(score int) model.Priority {
	switch {
	case score >= HighPriorityMin:
		return model.PriorityHigh
	case score >= MediumPriorityMin:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}
