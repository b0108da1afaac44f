// Package scoring implements the batched LLM stage of the pipeline: lazy
// extraction of job requirements and scoring of jobs against a candidate.
package scoring

import (
	"context"
	"fmt"
	"strings"

	_ "embed"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

//go:embed score_prompt.md
var scorePromptTemplate string

//go:embed extract_prompt.md
var extractPromptTemplate string

// DefaultBatchSize keeps one batched call under the model's output-token
// ceiling: roughly tokens-per-job × batch + overhead < max output tokens.
const DefaultBatchSize = 15

const maxDescriptionChars = 1500

// Generator produces raw text for a prompt. Satisfied by gemini.Client.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// JobScore is the scored outcome for one job, ready to persist.
type JobScore struct {
	JobID              uuid.UUID
	MatchScore         int
	Priority           model.Priority
	KeyAlignments      []string
	PotentialGaps      []string
	Reasoning          string
	CompetencyMappings []model.Mapping
	SkillMappings      []model.Mapping
}

// Engine groups many jobs into few LLM calls. Batches are issued
// sequentially by the orchestrator to respect provider rate limits.
type Engine struct {
	gen       Generator
	batchSize int
	logger    *zap.Logger
}

// NewEngine builds an Engine. batchSize <= 0 selects DefaultBatchSize.
func NewEngine(gen Generator, batchSize int, logger *zap.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{gen: gen, batchSize: batchSize, logger: logger}
}

// BatchSize returns the configured jobs-per-call limit.
func (e *Engine) BatchSize() int { return e.batchSize }

// Batches splits jobs into scoring-sized chunks.
func (e *Engine) Batches(jobs []*model.JobPosting) [][]*model.JobPosting {
	var batches [][]*model.JobPosting
	for start := 0; start < len(jobs); start += e.batchSize {
		end := start + e.batchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		batches = append(batches, jobs[start:end])
	}
	return batches
}

// ── Extraction ─────────────────────────────────────────────────────────────

// ExtractRequirements lazily fills Competencies and RequiredSkills on jobs
// that lack them, one batched call per chunk. It returns the jobs it
// modified. Extraction never fails a run: a dead batch simply leaves its
// jobs with empty lists.
func (e *Engine) ExtractRequirements(ctx context.Context, jobs []*model.JobPosting) []*model.JobPosting {
	var pending []*model.JobPosting
	for _, j := range jobs {
		if j.NeedsExtraction() {
			pending = append(pending, j)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	var updated []*model.JobPosting
	for _, batch := range e.Batches(pending) {
		if ctx.Err() != nil {
			break
		}
		updated = append(updated, e.extractBatch(ctx, batch)...)
	}
	return updated
}

func (e *Engine) extractBatch(ctx context.Context, batch []*model.JobPosting) []*model.JobPosting {
	prompt := strings.ReplaceAll(extractPromptTemplate, "{{JOBS}}", extractionJobsBlock(batch))

	raw, err := e.gen.GenerateContent(ctx, prompt)
	if err != nil {
		e.logger.Warn("requirement extraction call failed",
			zap.Int("batch_size", len(batch)), zap.Error(err))
		return nil
	}

	extractions, err := parseExtractionBatch(raw, len(batch))
	if err != nil {
		e.logger.Warn("requirement extraction response unparseable",
			zap.Int("batch_size", len(batch)), zap.Error(err))
		return nil
	}

	var updated []*model.JobPosting
	for i, ex := range extractions {
		if len(ex.Competencies) == 0 && len(ex.Skills) == 0 {
			continue
		}
		batch[i].Competencies = ex.Competencies
		batch[i].RequiredSkills = ex.Skills
		updated = append(updated, batch[i])
	}

	e.logger.Info("extracted job requirements",
		zap.Int("batch_size", len(batch)), zap.Int("updated", len(updated)))
	return updated
}

// ── Scoring ────────────────────────────────────────────────────────────────

// ScoreBatch scores one batch of jobs against the candidate. The returned
// slice always has one entry per job: a failed batch call falls back to
// sequential single-job calls, and a failed single call yields a degraded
// record instead of aborting the run.
func (e *Engine) ScoreBatch(ctx context.Context, profile *model.CandidateProfile, batch []*model.JobPosting) []JobScore {
	scores, err := e.scoreOnce(ctx, profile, batch)
	if err == nil {
		return scores
	}

	e.logger.Warn("batch scoring failed, falling back to sequential calls",
		zap.Int("batch_size", len(batch)), zap.Error(err))

	out := make([]JobScore, 0, len(batch))
	for _, job := range batch {
		single, err := e.scoreOnce(ctx, profile, []*model.JobPosting{job})
		if err != nil {
			e.logger.Warn("sequential scoring failed, emitting degraded record",
				zap.String("job_id", job.ID.String()), zap.Error(err))
			out = append(out, degradedScore(job.ID))
			continue
		}
		out = append(out, single[0])
	}
	return out
}

// scoreOnce issues one scoring call and converts the response. An error here
// means the call or the JSON envelope failed; per-job problems inside a
// parseable envelope are repaired with default records instead.
func (e *Engine) scoreOnce(ctx context.Context, profile *model.CandidateProfile, batch []*model.JobPosting) ([]JobScore, error) {
	prompt := strings.ReplaceAll(scorePromptTemplate, "{{CANDIDATE}}", candidateSummary(profile))
	prompt = strings.ReplaceAll(prompt, "{{JOBS}}", scoringJobsBlock(batch))

	raw, err := e.gen.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := parseScoreBatch(raw, len(batch))
	if err != nil {
		return nil, err
	}

	scores := make([]JobScore, len(batch))
	for i, rs := range parsed {
		scores[i] = e.toJobScore(batch[i].ID, rs)
	}
	return scores, nil
}

// toJobScore converts a raw model record, recomputing the priority from the
// score. A contradictory model-supplied priority is routine and silently
// corrected, but logged for observability.
func (e *Engine) toJobScore(jobID uuid.UUID, rs rawJobScore) JobScore {
	score := coerceScore(rs.MatchScore)
	derived := DerivePriority(score)

	if p := strings.ToLower(strings.TrimSpace(rs.Priority)); p != "" && p != string(derived) {
		e.logger.Warn("correcting model-supplied priority",
			zap.String("job_id", jobID.String()),
			zap.Int("match_score", score),
			zap.String("model_priority", p),
			zap.String("derived_priority", string(derived)),
		)
	}

	return JobScore{
		JobID:              jobID,
		MatchScore:         score,
		Priority:           derived,
		KeyAlignments:      rs.KeyAlignments,
		PotentialGaps:      rs.PotentialGaps,
		Reasoning:          rs.Reasoning,
		CompetencyMappings: rs.CompetencyMappings,
		SkillMappings:      rs.SkillMappings,
	}
}

func degradedScore(jobID uuid.UUID) JobScore {
	return JobScore{
		JobID:         jobID,
		MatchScore:    degradedMatchScore,
		Priority:      DerivePriority(degradedMatchScore),
		PotentialGaps: []string{degradedGapsMessage},
	}
}

// ── Prompt blocks ──────────────────────────────────────────────────────────

// candidateSummary builds the compact profile block shared across a batch.
func candidateSummary(p *model.CandidateProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Seniority: %s (%d years of experience)\n", p.Seniority, p.YearsExperience)
	if len(p.Domains) > 0 {
		fmt.Fprintf(&b, "- Domains: %s\n", strings.Join(p.Domains, ", "))
	}
	if len(p.Competencies) > 0 {
		b.WriteString("- Competencies:\n")
		for _, c := range p.Competencies {
			if c.Evidence != "" {
				fmt.Fprintf(&b, "  - %s (%s)\n", c.Name, c.Evidence)
			} else {
				fmt.Fprintf(&b, "  - %s\n", c.Name)
			}
		}
	}
	if len(p.TechnicalSkills) > 0 {
		fmt.Fprintf(&b, "- Technical skills: %s\n", strings.Join(p.TechnicalSkills, ", "))
	}
	if len(p.SoftSkills) > 0 {
		fmt.Fprintf(&b, "- Soft skills: %s\n", strings.Join(p.SoftSkills, ", "))
	}
	if p.WorkArrangement != "" {
		fmt.Fprintf(&b, "- Preferred work arrangement: %s\n", p.WorkArrangement)
	}
	return strings.TrimRight(b.String(), "\n")
}

// scoringJobsBlock builds one compact block per job for the scoring prompt.
func scoringJobsBlock(batch []*model.JobPosting) string {
	var b strings.Builder
	for i, j := range batch {
		fmt.Fprintf(&b, "job_%d: %s at %s (%s)\n", i+1, j.Title, j.Company, j.Location)
		if len(j.RequiredSkills) > 0 {
			fmt.Fprintf(&b, "  Skills: %s\n", strings.Join(j.RequiredSkills, ", "))
		}
		if len(j.Competencies) > 0 {
			fmt.Fprintf(&b, "  Competencies: %s\n", strings.Join(j.Competencies, ", "))
		}
		if len(j.CoreResponsibilities) > 0 {
			fmt.Fprintf(&b, "  Responsibilities: %s\n", strings.Join(j.CoreResponsibilities, "; "))
		}
		if j.RequirementsSummary != "" {
			fmt.Fprintf(&b, "  Requirements: %s\n", j.RequirementsSummary)
		}
		if j.ExperienceLevel != "" {
			fmt.Fprintf(&b, "  Experience level: %s\n", j.ExperienceLevel)
		}
		if j.WorkArrangement != "" {
			fmt.Fprintf(&b, "  Work arrangement: %s\n", j.WorkArrangement)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// extractionJobsBlock builds title + truncated description blocks for the
// extraction prompt.
func extractionJobsBlock(batch []*model.JobPosting) string {
	var b strings.Builder
	for i, j := range batch {
		desc := j.Description
		if len(desc) > maxDescriptionChars {
			desc = desc[:maxDescriptionChars]
		}
		fmt.Fprintf(&b, "job_%d: %s at %s\n%s\n\n", i+1, j.Title, j.Company, desc)
	}
	return strings.TrimRight(b.String(), "\n")
}
