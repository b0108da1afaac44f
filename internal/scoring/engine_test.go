package scoring_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Inclusist/job-monitor-sub000/internal/model"
	"github.com/Inclusist/job-monitor-sub000/internal/scoring"
)

// stubGenerator replays canned responses in order. A nil entry means the
// call fails.
type stubGenerator struct {
	responses []*string
	calls     int
}

func resp(s string) *string { return &s }

func (g *stubGenerator) GenerateContent(_ context.Context, _ string) (string, error) {
	if g.calls >= len(g.responses) {
		return "", errors.New("unexpected extra call")
	}
	r := g.responses[g.calls]
	g.calls++
	if r == nil {
		return "", errors.New("model unavailable")
	}
	return *r, nil
}

func testProfile() *model.CandidateProfile {
	return &model.CandidateProfile{
		UserID:          "user-1",
		Seniority:       "senior",
		YearsExperience: 8,
		TechnicalSkills: []string{"Go", "PostgreSQL"},
	}
}

func testJobs(n int) []*model.JobPosting {
	jobs := make([]*model.JobPosting, n)
	for i := range jobs {
		jobs[i] = &model.JobPosting{
			ID:             uuid.New(),
			Title:          "Backend Engineer",
			Company:        "Acme",
			RequiredSkills: []string{"Go"},
		}
	}
	return jobs
}

// ── Batches ────────────────────────────────────────────────────────────────

func TestBatches_SplitsAtBatchSize(t *testing.T) {
	e := scoring.NewEngine(&stubGenerator{}, 15, zap.NewNop())

	batches := e.Batches(testJobs(37))
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[0]) != 15 || len(batches[1]) != 15 || len(batches[2]) != 7 {
		t.Errorf("batch sizes = %d/%d/%d, want 15/15/7",
			len(batches[0]), len(batches[1]), len(batches[2]))
	}
}

func TestBatches_Empty(t *testing.T) {
	e := scoring.NewEngine(&stubGenerator{}, 15, zap.NewNop())
	if batches := e.Batches(nil); len(batches) != 0 {
		t.Errorf("got %d batches for no jobs, want 0", len(batches))
	}
}

// ── ScoreBatch ─────────────────────────────────────────────────────────────

func TestScoreBatch_ParsesFencedResponse(t *testing.T) {
	gen := &stubGenerator{responses: []*string{resp("```json\n" + `{
		"job_1": {
			"match_score": 92,
			"priority": "high",
			"key_alignments": ["Go expertise"],
			"reasoning": "strong fit"
		}
	}` + "\n```")}}
	e := scoring.NewEngine(gen, 15, zap.NewNop())

	jobs := testJobs(1)
	scores := e.ScoreBatch(context.Background(), testProfile(), jobs)
	if len(scores) != 1 {
		t.Fatalf("got %d scores, want 1", len(scores))
	}
	s := scores[0]
	if s.JobID != jobs[0].ID || s.MatchScore != 92 || s.Priority != model.PriorityHigh {
		t.Errorf("score = %+v, want job %s with 92/high", s, jobs[0].ID)
	}
	if len(s.KeyAlignments) != 1 || s.Reasoning != "strong fit" {
		t.Errorf("alignments/reasoning not carried through: %+v", s)
	}
}

func TestScoreBatch_MalformedEntryGetsDefaultRecord(t *testing.T) {
	// job_2 is missing and job_3 is a bare string; both must come back as the
	// default record while job_1 parses normally.
	gen := &stubGenerator{responses: []*string{resp(`{
		"job_1": {"match_score": 88, "priority": "high"},
		"job_3": "not an object"
	}`)}}
	e := scoring.NewEngine(gen, 15, zap.NewNop())

	jobs := testJobs(3)
	scores := e.ScoreBatch(context.Background(), testProfile(), jobs)
	if len(scores) != 3 {
		t.Fatalf("got %d scores, want one per job", len(scores))
	}

	if scores[0].MatchScore != 88 {
		t.Errorf("job_1 score = %d, want 88", scores[0].MatchScore)
	}
	for _, i := range []int{1, 2} {
		if scores[i].MatchScore != 50 || scores[i].Priority != model.PriorityLow {
			t.Errorf("job_%d = %d/%s, want default 50/low", i+1,
				scores[i].MatchScore, scores[i].Priority)
		}
		if scores[i].Reasoning != "analysis incomplete" {
			t.Errorf("job_%d reasoning = %q, want default marker", i+1, scores[i].Reasoning)
		}
	}
}

func TestScoreBatch_PriorityAlwaysDerivedFromScore(t *testing.T) {
	// The model claims "low" for a 90 and "high" for a 40; both labels must be
	// discarded in favor of the score-derived bucket.
	gen := &stubGenerator{responses: []*string{resp(`{
		"job_1": {"match_score": 90, "priority": "low"},
		"job_2": {"match_score": 40, "priority": "high"}
	}`)}}
	e := scoring.NewEngine(gen, 15, zap.NewNop())

	scores := e.ScoreBatch(context.Background(), testProfile(), testJobs(2))
	if scores[0].Priority != model.PriorityHigh {
		t.Errorf("job_1 priority = %s, want high (derived from 90)", scores[0].Priority)
	}
	if scores[1].Priority != model.PriorityLow {
		t.Errorf("job_2 priority = %s, want low (derived from 40)", scores[1].Priority)
	}
}

func TestScoreBatch_StringScoreCoerced(t *testing.T) {
	gen := &stubGenerator{responses: []*string{resp(`{
		"job_1": {"match_score": "87", "priority": "high"}
	}`)}}
	e := scoring.NewEngine(gen, 15, zap.NewNop())

	scores := e.ScoreBatch(context.Background(), testProfile(), testJobs(1))
	if scores[0].MatchScore != 87 || scores[0].Priority != model.PriorityHigh {
		t.Errorf("score = %d/%s, want 87/high from string input",
			scores[0].MatchScore, scores[0].Priority)
	}
}

func TestScoreBatch_FallsBackToSequentialCalls(t *testing.T) {
	// Batch call dies, then three single-job calls: ok, fail, ok.
	gen := &stubGenerator{responses: []*string{
		nil,
		resp(`{"job_1": {"match_score": 75}}`),
		nil,
		resp(`{"job_1": {"match_score": 91}}`),
	}}
	e := scoring.NewEngine(gen, 15, zap.NewNop())

	jobs := testJobs(3)
	scores := e.ScoreBatch(context.Background(), testProfile(), jobs)
	if len(scores) != 3 {
		t.Fatalf("got %d scores, want one per job", len(scores))
	}
	if gen.calls != 4 {
		t.Errorf("generator called %d times, want 4 (1 batch + 3 sequential)", gen.calls)
	}

	if scores[0].MatchScore != 75 || scores[0].Priority != model.PriorityMedium {
		t.Errorf("first job = %d/%s, want 75/medium", scores[0].MatchScore, scores[0].Priority)
	}

	// The dead middle call yields the degraded record.
	d := scores[1]
	if d.MatchScore != 30 || d.Priority != model.PriorityLow {
		t.Errorf("degraded record = %d/%s, want 30/low", d.MatchScore, d.Priority)
	}
	if len(d.PotentialGaps) != 1 || d.PotentialGaps[0] != "Analysis failed" {
		t.Errorf("degraded gaps = %v, want [Analysis failed]", d.PotentialGaps)
	}

	if scores[2].MatchScore != 91 || scores[2].Priority != model.PriorityHigh {
		t.Errorf("third job = %d/%s, want 91/high", scores[2].MatchScore, scores[2].Priority)
	}
}

func TestScoreBatch_GarbageEnvelopeNeverAborts(t *testing.T) {
	// Both the batch call and every sequential call return non-JSON.
	gen := &stubGenerator{responses: []*string{
		resp("I cannot help with that."),
		resp("still not json"),
		resp("nope"),
	}}
	e := scoring.NewEngine(gen, 15, zap.NewNop())

	scores := e.ScoreBatch(context.Background(), testProfile(), testJobs(2))
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want one per job", len(scores))
	}
	for i, s := range scores {
		if s.MatchScore != 30 {
			t.Errorf("job %d score = %d, want degraded 30", i+1, s.MatchScore)
		}
	}
}

// ── ExtractRequirements ────────────────────────────────────────────────────

func TestExtractRequirements_FillsOnlyPendingJobs(t *testing.T) {
	gen := &stubGenerator{responses: []*string{resp(`{
		"job_1": {"competencies": ["API design"], "skills": ["Go", "gRPC"]}
	}`)}}
	e := scoring.NewEngine(gen, 15, zap.NewNop())

	pending := &model.JobPosting{ID: uuid.New(), Title: "Platform Engineer", Description: "..."}
	done := &model.JobPosting{ID: uuid.New(), RequiredSkills: []string{"Go"}}

	updated := e.ExtractRequirements(context.Background(), []*model.JobPosting{done, pending})
	if len(updated) != 1 || updated[0] != pending {
		t.Fatalf("updated = %v, want just the pending job", updated)
	}
	if len(pending.Competencies) != 1 || len(pending.RequiredSkills) != 2 {
		t.Errorf("pending job not filled: %+v", pending)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
}

func TestExtractRequirements_NothingPendingMakesNoCalls(t *testing.T) {
	gen := &stubGenerator{}
	e := scoring.NewEngine(gen, 15, zap.NewNop())

	jobs := []*model.JobPosting{{ID: uuid.New(), Competencies: []string{"Leadership"}}}
	if updated := e.ExtractRequirements(context.Background(), jobs); updated != nil {
		t.Errorf("updated = %v, want nil", updated)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times, want 0", gen.calls)
	}
}

func TestExtractRequirements_FailedCallLeavesJobsUntouched(t *testing.T) {
	gen := &stubGenerator{responses: []*string{nil}}
	e := scoring.NewEngine(gen, 15, zap.NewNop())

	job := &model.JobPosting{ID: uuid.New(), Title: "Any", Description: "..."}
	if updated := e.ExtractRequirements(context.Background(), []*model.JobPosting{job}); updated != nil {
		t.Errorf("updated = %v, want nil after failed call", updated)
	}
	if !job.NeedsExtraction() {
		t.Error("job should still need extraction after a failed call")
	}
}
