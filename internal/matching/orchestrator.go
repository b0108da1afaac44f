// Package matching contains the per-user orchestration of the pipeline:
// semantic pre-filter, batched LLM scoring, persistence and pollable
// progress. At most one run executes per user at a time.
package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Inclusist/job-monitor-sub000/internal/embedding"
	"github.com/Inclusist/job-monitor-sub000/internal/errs"
	"github.com/Inclusist/job-monitor-sub000/internal/model"
	"github.com/Inclusist/job-monitor-sub000/internal/scoring"
)

// Progress budget: setup and the semantic pass take the first 10%, scoring
// batches the next 85%, final persistence the rest.
const (
	setupProgress    = 10
	batchProgressMax = 95
)

// Defaults for how much work one run may pick up.
const (
	defaultSemanticLimit = 500
	defaultScoreLimit    = 200
)

const progressChannel = "EVENT_MATCHING_PROGRESS"

// SemanticScore is one filter outcome ready to persist.
type SemanticScore struct {
	JobID           uuid.UUID
	Score           float64 // 0–100
	MatchedKeywords []string
}

// ProfileStore loads candidate profiles.
type ProfileStore interface {
	// GetPrimaryProfile returns errs.ErrNotFound when the user has no
	// parsed profile.
	GetPrimaryProfile(ctx context.Context, userID string) (*model.CandidateProfile, error)
}

// MatchStore reads and writes match records. All writes are idempotent
// upserts keyed on (user, job).
type MatchStore interface {
	// ListUnseenJobs returns jobs that have no match record for the user.
	ListUnseenJobs(ctx context.Context, userID string, limit int) ([]*model.JobPosting, error)
	UpsertSemanticScores(ctx context.Context, userID string, scores []SemanticScore) error
	// ListScorableJobs returns jobs whose record clears the semantic gate
	// but has no LLM score yet.
	ListScorableJobs(ctx context.Context, userID string, minSemantic float64, limit int) ([]*model.JobPosting, error)
	UpsertScores(ctx context.Context, userID string, scores []scoring.JobScore) (int, error)
}

// JobStore persists lazily extracted job requirements.
type JobStore interface {
	SaveExtracted(ctx context.Context, jobs []*model.JobPosting) error
}

// SemanticScorer is the embedding pre-filter.
type SemanticScorer interface {
	CandidateVector(ctx context.Context, profile *model.CandidateProfile) ([]float32, error)
	Score(ctx context.Context, candVec []float32, candidateText string, job *model.JobPosting) (embedding.Result, error)
}

// Scorer is the batched LLM engine.
type Scorer interface {
	Batches(jobs []*model.JobPosting) [][]*model.JobPosting
	ExtractRequirements(ctx context.Context, jobs []*model.JobPosting) []*model.JobPosting
	ScoreBatch(ctx context.Context, profile *model.CandidateProfile, batch []*model.JobPosting) []scoring.JobScore
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Profiles ProfileStore
	Matches  MatchStore
	Jobs     JobStore
	Filter   SemanticScorer
	Engine   Scorer
	Status   StatusStore
	Events   *redis.Client // optional; progress events are best-effort
	Logger   *zap.Logger
}

// Config carries the orchestrator's tunables.
type Config struct {
	SemanticGate  float64 // minimum semantic score (0–100) for LLM scoring
	SemanticLimit int
	ScoreLimit    int
}

// Orchestrator drives one user's matching run as a supervised background
// task. Triggering returns immediately; progress is polled via Status.
type Orchestrator struct {
	base context.Context // parent of every run; cancelled on shutdown
	cfg  Config
	deps *Deps
}

func NewOrchestrator(base context.Context, cfg Config, deps *Deps) *Orchestrator {
	if cfg.SemanticLimit <= 0 {
		cfg.SemanticLimit = defaultSemanticLimit
	}
	if cfg.ScoreLimit <= 0 {
		cfg.ScoreLimit = defaultScoreLimit
	}
	return &Orchestrator{base: base, cfg: cfg, deps: deps}
}

// Start triggers a matching run for the user. It returns errs.ErrNotFound
// when the user has no profile and errs.ErrAlreadyRunning when a run is in
// flight; otherwise the run proceeds in the background and Start returns
// immediately.
func (o *Orchestrator) Start(ctx context.Context, userID string) error {
	// Reject profile-less users synchronously so the trigger call can
	// answer 400 instead of burying the failure in the status store.
	if _, err := o.deps.Profiles.GetPrimaryProfile(ctx, userID); err != nil {
		return err
	}

	if err := o.deps.Status.Begin(ctx, userID); err != nil {
		return err
	}

	go o.supervise(userID)
	return nil
}

// Status returns the pollable snapshot for the user.
func (o *Orchestrator) Status(ctx context.Context, userID string) (model.RunStatus, error) {
	return o.deps.Status.Get(ctx, userID)
}

// supervise runs the pipeline and guarantees the status ends in a terminal
// state even on panic, so a run can never silently vanish mid-flight.
func (o *Orchestrator) supervise(userID string) {
	log := o.deps.Logger.With(zap.String("user_id", userID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("matching run panicked", zap.Any("panic", r))
			o.setStatus(userID, model.RunStatus{
				Status:  model.RunError,
				Message: "internal error",
			})
		}
	}()

	if err := o.run(o.base, userID, log); err != nil {
		log.Warn("matching run failed", zap.Error(err))
		o.setStatus(userID, model.RunStatus{
			Status:  model.RunError,
			Message: userFacingMessage(err),
		})
	}
}

func (o *Orchestrator) run(ctx context.Context, userID string, log *zap.Logger) error {
	o.setStatus(userID, model.RunStatus{Status: model.RunRunning, Message: "loading profile"})

	profile, err := o.deps.Profiles.GetPrimaryProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("profile required: %w", err)
		}
		return fmt.Errorf("load profile: %w", err)
	}

	if err := o.semanticPass(ctx, userID, profile, log); err != nil {
		return err
	}
	o.setStatus(userID, model.RunStatus{
		Status:   model.RunRunning,
		Progress: setupProgress,
		Message:  "selecting jobs to score",
	})

	jobs, err := o.deps.Matches.ListScorableJobs(ctx, userID, o.cfg.SemanticGate, o.cfg.ScoreLimit)
	if err != nil {
		return fmt.Errorf("list scorable jobs: %w", err)
	}
	if len(jobs) == 0 {
		o.setStatus(userID, model.RunStatus{
			Status:   model.RunComplete,
			Progress: 100,
			Message:  "no new jobs to score",
		})
		return nil
	}

	// Lazy extraction for jobs still missing requirement fields. Losing the
	// persisted extraction is tolerable; the scores below still carry it.
	if updated := o.deps.Engine.ExtractRequirements(ctx, jobs); len(updated) > 0 {
		if err := o.deps.Jobs.SaveExtracted(ctx, updated); err != nil {
			log.Warn("persisting extracted requirements failed", zap.Error(err))
		}
	}

	counts := map[model.Priority]int{}
	batches := o.deps.Engine.Batches(jobs)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled: %w", err)
		}

		scores := o.deps.Engine.ScoreBatch(ctx, profile, batch)

		// Persist immediately after each batch so a later failure cannot
		// lose earlier work.
		if _, err := o.deps.Matches.UpsertScores(ctx, userID, scores); err != nil {
			return fmt.Errorf("persist batch %d/%d: %w", i+1, len(batches), err)
		}
		for _, s := range scores {
			counts[s.Priority]++
		}

		progress := setupProgress + (batchProgressMax-setupProgress)*(i+1)/len(batches)
		st := model.RunStatus{
			Status:   model.RunRunning,
			Progress: progress,
			Message:  fmt.Sprintf("scored batch %d of %d", i+1, len(batches)),
		}
		o.setStatus(userID, st)
		o.publishProgress(userID, st)
	}

	o.setStatus(userID, model.RunStatus{
		Status:   model.RunComplete,
		Progress: 100,
		Message: fmt.Sprintf("scored %d jobs: %d high, %d medium, %d low priority",
			len(jobs), counts[model.PriorityHigh], counts[model.PriorityMedium], counts[model.PriorityLow]),
	})
	log.Info("matching run complete",
		zap.Int("scored", len(jobs)),
		zap.Int("high", counts[model.PriorityHigh]),
		zap.Int("medium", counts[model.PriorityMedium]),
		zap.Int("low", counts[model.PriorityLow]),
	)
	return nil
}

// semanticPass scores jobs that have no match record yet. The filter fails
// closed: when the embedding backend is unavailable the whole pass aborts
// with a transient error instead of passing jobs through unscored, so the
// caller can tell "backend down" apart from "no good jobs".
func (o *Orchestrator) semanticPass(ctx context.Context, userID string, profile *model.CandidateProfile, log *zap.Logger) error {
	unseen, err := o.deps.Matches.ListUnseenJobs(ctx, userID, o.cfg.SemanticLimit)
	if err != nil {
		return fmt.Errorf("list unseen jobs: %w", err)
	}
	if len(unseen) == 0 {
		return nil
	}

	candVec, err := o.deps.Filter.CandidateVector(ctx, profile)
	if err != nil {
		return fmt.Errorf("candidate embedding: %w", err)
	}
	candText := profile.EmbeddingText()

	scores := make([]SemanticScore, 0, len(unseen))
	for _, job := range unseen {
		res, err := o.deps.Filter.Score(ctx, candVec, candText, job)
		if err != nil {
			return fmt.Errorf("semantic score job %s: %w", job.ID, err)
		}
		scores = append(scores, SemanticScore{
			JobID:           job.ID,
			Score:           res.Score * 100,
			MatchedKeywords: res.MatchedKeywords,
		})
	}

	if err := o.deps.Matches.UpsertSemanticScores(ctx, userID, scores); err != nil {
		return fmt.Errorf("persist semantic scores: %w", err)
	}

	log.Info("semantic pass complete", zap.Int("scored", len(scores)))
	return nil
}

// setStatus records a status tick. Status-store failures are logged, never
// fatal: MatchRecord persistence is authoritative, the status is advisory.
func (o *Orchestrator) setStatus(userID string, st model.RunStatus) {
	if err := o.deps.Status.Set(o.base, userID, st); err != nil {
		o.deps.Logger.Warn("updating run status failed",
			zap.String("user_id", userID), zap.Error(err))
	}
}

// publishProgress emits a progress event for interested consumers
// (non-fatal).
func (o *Orchestrator) publishProgress(userID string, st model.RunStatus) {
	if o.deps.Events == nil {
		return
	}
	event, _ := json.Marshal(map[string]any{
		"type":     progressChannel,
		"userId":   userID,
		"progress": st.Progress,
		"message":  st.Message,
	})
	if err := o.deps.Events.Publish(o.base, progressChannel, event).Err(); err != nil {
		o.deps.Logger.Warn("publish progress event failed", zap.Error(err))
	}
}

// userFacingMessage keeps raw error traces out of the polled status.
func userFacingMessage(err error) string {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return "profile required"
	case errs.IsTransient(err):
		return "an external service is temporarily unavailable, try again later"
	default:
		return "matching failed"
	}
}
