package scoring_test

import (
	"testing"

	"github.com/Inclusist/job-monitor-sub000/internal/model"
	"github.com/Inclusist/job-monitor-sub000/internal/scoring"
)

func TestDerivePriority_Cutoffs(t *testing.T) {
	cases := []struct {
		score int
		want  model.Priority
	}{
		{100, model.PriorityHigh},
		{85, model.PriorityHigh},
		{84, model.PriorityMedium},
		{70, model.PriorityMedium},
		{69, model.PriorityLow},
		{0, model.PriorityLow},
	}
	for _, c := range cases {
		if got := scoring.DerivePriority(c.score); got != c.want {
			t.Errorf("DerivePriority(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

// Every score in range maps to exactly the bucket its cutoff says, so the
// stored priority can always be recomputed from the stored score.
func TestDerivePriority_FullSweep(t *testing.T) {
	for score := 0; score <= 100; score++ {
		got := scoring.DerivePriority(score)
		var want model.Priority
		switch {
		case score >= scoring.HighPriorityMin:
			want = model.PriorityHigh
		case score >= scoring.MediumPriorityMin:
			want = model.PriorityMedium
		default:
			want = model.PriorityLow
		}
		if got != want {
			t.Fatalf("DerivePriority(%d) = %s, want %s", score, got, want)
		}
	}
}
