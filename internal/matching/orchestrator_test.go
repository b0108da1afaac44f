package matching_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Inclusist/job-monitor-sub000/internal/embedding"
	"github.com/Inclusist/job-monitor-sub000/internal/errs"
	"github.com/Inclusist/job-monitor-sub000/internal/matching"
	"github.com/Inclusist/job-monitor-sub000/internal/model"
	"github.com/Inclusist/job-monitor-sub000/internal/scoring"
)

// ── Stubs ──────────────────────────────────────────────────────────────────

// memStatus is an in-memory StatusStore with the same atomic Begin semantics
// as the redis implementation.
type memStatus struct {
	mu     sync.Mutex
	locked map[string]bool
	status map[string]model.RunStatus
}

func newMemStatus() *memStatus {
	return &memStatus{locked: make(map[string]bool), status: make(map[string]model.RunStatus)}
}

func (s *memStatus) Begin(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked[userID] {
		return errs.ErrAlreadyRunning
	}
	s.locked[userID] = true
	s.status[userID] = model.RunStatus{Status: model.RunRunning}
	return nil
}

func (s *memStatus) Set(_ context.Context, userID string, st model.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[userID] = st
	if st.Status == model.RunComplete || st.Status == model.RunError {
		delete(s.locked, userID)
	}
	return nil
}

func (s *memStatus) Get(_ context.Context, userID string) (model.RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[userID]
	if !ok {
		return model.RunStatus{Status: model.RunIdle}, nil
	}
	return st, nil
}

// waitTerminal polls until the run reaches a terminal state.
func (s *memStatus) waitTerminal(t *testing.T, userID string) model.RunStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, _ := s.Get(context.Background(), userID)
		if st.Status == model.RunComplete || st.Status == model.RunError {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run never reached a terminal state")
	return model.RunStatus{}
}

type stubProfiles struct {
	profile *model.CandidateProfile
}

func (s *stubProfiles) GetPrimaryProfile(_ context.Context, userID string) (*model.CandidateProfile, error) {
	if s.profile == nil {
		return nil, errs.ErrNotFound
	}
	return s.profile, nil
}

// memMatches is an in-memory MatchStore.
type memMatches struct {
	mu       sync.Mutex
	unseen   []*model.JobPosting
	scorable []*model.JobPosting
	semantic []matching.SemanticScore
	scores   []scoring.JobScore
}

func (m *memMatches) ListUnseenJobs(_ context.Context, _ string, _ int) ([]*model.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unseen, nil
}

func (m *memMatches) UpsertSemanticScores(_ context.Context, _ string, scores []matching.SemanticScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.semantic = append(m.semantic, scores...)
	return nil
}

func (m *memMatches) ListScorableJobs(_ context.Context, _ string, _ float64, _ int) ([]*model.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scorable, nil
}

func (m *memMatches) UpsertScores(_ context.Context, _ string, scores []scoring.JobScore) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, scores...)
	return len(scores), nil
}

func (m *memMatches) persisted() []scoring.JobScore {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]scoring.JobScore(nil), m.scores...)
}

type stubJobs struct{}

func (stubJobs) SaveExtracted(_ context.Context, _ []*model.JobPosting) error { return nil }

// stubFilter scores every job identically, or fails.
type stubFilter struct {
	score float64
	err   error
}

func (f *stubFilter) CandidateVector(_ context.Context, _ *model.CandidateProfile) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func (f *stubFilter) Score(_ context.Context, _ []float32, _ string, _ *model.JobPosting) (embedding.Result, error) {
	if f.err != nil {
		return embedding.Result{}, f.err
	}
	return embedding.Result{Score: f.score}, nil
}

// stubScorer gives every job a fixed score, in single-batch chunks. When
// block is set, ScoreBatch waits on it so tests can hold a run open.
type stubScorer struct {
	score int
	block chan struct{}
}

func (s *stubScorer) Batches(jobs []*model.JobPosting) [][]*model.JobPosting {
	if len(jobs) == 0 {
		return nil
	}
	return [][]*model.JobPosting{jobs}
}

func (s *stubScorer) ExtractRequirements(_ context.Context, _ []*model.JobPosting) []*model.JobPosting {
	return nil
}

func (s *stubScorer) ScoreBatch(_ context.Context, _ *model.CandidateProfile, batch []*model.JobPosting) []scoring.JobScore {
	if s.block != nil {
		<-s.block
	}
	out := make([]scoring.JobScore, len(batch))
	for i, j := range batch {
		out[i] = scoring.JobScore{
			JobID:      j.ID,
			MatchScore: s.score,
			Priority:   scoring.DerivePriority(s.score),
		}
	}
	return out
}

func jobList(n int) []*model.JobPosting {
	jobs := make([]*model.JobPosting, n)
	for i := range jobs {
		jobs[i] = &model.JobPosting{ID: uuid.New(), Title: "Engineer"}
	}
	return jobs
}

func newOrchestrator(status *memStatus, profiles *stubProfiles, matches *memMatches, filter *stubFilter, scorer *stubScorer) *matching.Orchestrator {
	return matching.NewOrchestrator(context.Background(),
		matching.Config{SemanticGate: 50},
		&matching.Deps{
			Profiles: profiles,
			Matches:  matches,
			Jobs:     stubJobs{},
			Filter:   filter,
			Engine:   scorer,
			Status:   status,
			Logger:   zap.NewNop(),
		})
}

// ── Start ──────────────────────────────────────────────────────────────────

func TestStart_MissingProfile(t *testing.T) {
	o := newOrchestrator(newMemStatus(), &stubProfiles{}, &memMatches{}, &stubFilter{}, &stubScorer{})

	err := o.Start(context.Background(), "user-1")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Start without profile = %v, want ErrNotFound", err)
	}
}

func TestStart_ConcurrentTriggersSingleFlight(t *testing.T) {
	status := newMemStatus()
	matches := &memMatches{scorable: jobList(3)}
	// Hold the run open until every trigger has returned, so the lock is
	// guaranteed to still be taken when the losers call Start.
	scorer := &stubScorer{score: 80, block: make(chan struct{})}
	o := newOrchestrator(status, &stubProfiles{profile: &model.CandidateProfile{UserID: "user-1"}},
		matches, &stubFilter{score: 0.9}, scorer)

	const n = 8
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Start(context.Background(), "user-1")
		}(i)
	}
	wg.Wait()
	close(scorer.block)

	started := 0
	for _, err := range results {
		switch {
		case err == nil:
			started++
		case errors.Is(err, errs.ErrAlreadyRunning):
		default:
			t.Errorf("unexpected Start error: %v", err)
		}
	}
	if started != 1 {
		t.Errorf("%d concurrent triggers succeeded, want exactly 1", started)
	}

	status.waitTerminal(t, "user-1")
}

// ── Full run ───────────────────────────────────────────────────────────────

func TestRun_CompletesWithPriorityCounts(t *testing.T) {
	status := newMemStatus()
	matches := &memMatches{
		unseen:   jobList(5),
		scorable: jobList(4),
	}
	o := newOrchestrator(status, &stubProfiles{profile: &model.CandidateProfile{UserID: "user-1"}},
		matches, &stubFilter{score: 0.8}, &stubScorer{score: 90})

	if err := o.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	st := status.waitTerminal(t, "user-1")
	if st.Status != model.RunComplete || st.Progress != 100 {
		t.Fatalf("terminal status = %+v, want complete/100", st)
	}
	if st.Message != "scored 4 jobs: 4 high, 0 medium, 0 low priority" {
		t.Errorf("completion message = %q", st.Message)
	}

	if len(matches.semantic) != 5 {
		t.Errorf("persisted %d semantic scores, want 5", len(matches.semantic))
	}
	// Filter score 0.8 maps to the 0-100 scale.
	if matches.semantic[0].Score != 80 {
		t.Errorf("semantic score = %v, want 80", matches.semantic[0].Score)
	}
	if got := matches.persisted(); len(got) != 4 {
		t.Errorf("persisted %d LLM scores, want 4", len(got))
	}
}

func TestRun_NoScorableJobsCompletesCleanly(t *testing.T) {
	status := newMemStatus()
	o := newOrchestrator(status, &stubProfiles{profile: &model.CandidateProfile{UserID: "user-1"}},
		&memMatches{}, &stubFilter{score: 0.2}, &stubScorer{})

	if err := o.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	st := status.waitTerminal(t, "user-1")
	if st.Status != model.RunComplete {
		t.Fatalf("terminal status = %+v, want complete", st)
	}
	if st.Message != "no new jobs to score" {
		t.Errorf("message = %q, want the zero-work completion message", st.Message)
	}
}

func TestRun_EmbeddingOutageFailsClosed(t *testing.T) {
	status := newMemStatus()
	matches := &memMatches{unseen: jobList(3), scorable: jobList(3)}
	filter := &stubFilter{err: errs.Transient("embed", errors.New("backend unreachable"))}
	o := newOrchestrator(status, &stubProfiles{profile: &model.CandidateProfile{UserID: "user-1"}},
		matches, filter, &stubScorer{score: 80})

	if err := o.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	st := status.waitTerminal(t, "user-1")
	if st.Status != model.RunError {
		t.Fatalf("terminal status = %+v, want error (fail closed, not silent zero matches)", st)
	}
	if st.Message != "an external service is temporarily unavailable, try again later" {
		t.Errorf("message = %q, want the transient-outage message", st.Message)
	}
	if len(matches.semantic) != 0 || len(matches.persisted()) != 0 {
		t.Error("no scores may be persisted when the filter pass aborts")
	}
}

func TestRun_NewRunAllowedAfterCompletion(t *testing.T) {
	status := newMemStatus()
	matches := &memMatches{}
	o := newOrchestrator(status, &stubProfiles{profile: &model.CandidateProfile{UserID: "user-1"}},
		matches, &stubFilter{score: 0.9}, &stubScorer{score: 75})

	if err := o.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	status.waitTerminal(t, "user-1")

	if err := o.Start(context.Background(), "user-1"); err != nil {
		t.Errorf("Start after completion = %v, want nil", err)
	}
	status.waitTerminal(t, "user-1")
}
