package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Inclusist/job-monitor-sub000/internal/errs"
	"github.com/Inclusist/job-monitor-sub000/internal/matching"
	"github.com/Inclusist/job-monitor-sub000/internal/model"
	"github.com/Inclusist/job-monitor-sub000/internal/scoring"
)

// MatchRecordStore persists per-(user, job) match outcomes. All writes are
// upserts on the (user_id, job_id) unique key.
type MatchRecordStore struct {
	pool *pgxpool.Pool
}

func NewMatchRecordStore(pool *pgxpool.Pool) *MatchRecordStore {
	return &MatchRecordStore{pool: pool}
}

// ListUnseenJobs returns postings with no match record for the user yet,
// newest first.
func (s *MatchRecordStore) ListUnseenJobs(ctx context.Context, userID string, limit int) ([]*model.JobPosting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns("j")+`
		 FROM job_postings j
		 WHERE NOT EXISTS (
		   SELECT 1 FROM match_records m
		   WHERE m.user_id = $1 AND m.job_id = j.id
		 )
		 ORDER BY j.created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listUnseenJobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListScorableJobs returns postings whose record clears the semantic gate
// but has no LLM score, best semantic score first.
func (s *MatchRecordStore) ListScorableJobs(ctx context.Context, userID string, minSemantic float64, limit int) ([]*model.JobPosting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns("j")+`
		 FROM match_records m
		 JOIN job_postings j ON j.id = m.job_id
		 WHERE m.user_id = $1
		   AND m.semantic_score >= $2
		   AND m.llm_score IS NULL
		   AND m.status <> 'deleted'
		 ORDER BY m.semantic_score DESC
		 LIMIT $3`,
		userID, minSemantic, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listScorableJobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*model.JobPosting, error) {
	jobs := make([]*model.JobPosting, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpsertSemanticScores writes filter outcomes, creating records at status
// 'new' and refreshing the score on re-runs.
func (s *MatchRecordStore) UpsertSemanticScores(ctx context.Context, userID string, scores []matching.SemanticScore) error {
	batch := &pgx.Batch{}
	for _, sc := range scores {
		batch.Queue(
			`INSERT INTO match_records (user_id, job_id, semantic_score, priority, status)
			 VALUES ($1, $2, $3, 'low', 'new')
			 ON CONFLICT (user_id, job_id) DO UPDATE
			 SET semantic_score = EXCLUDED.semantic_score,
			     updated_at     = NOW()`,
			userID, sc.JobID, sc.Score,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range scores {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsertSemanticScores: %w", err)
		}
	}
	return nil
}

// UpsertScores writes one scoring batch. Re-running the pipeline refreshes
// values deterministically, never duplicates rows.
func (s *MatchRecordStore) UpsertScores(ctx context.Context, userID string, scores []scoring.JobScore) (int, error) {
	batch := &pgx.Batch{}
	for _, sc := range scores {
		compMappings, err := json.Marshal(sc.CompetencyMappings)
		if err != nil {
			return 0, fmt.Errorf("upsertScores marshal: %w", err)
		}
		skillMappings, err := json.Marshal(sc.SkillMappings)
		if err != nil {
			return 0, fmt.Errorf("upsertScores marshal: %w", err)
		}

		batch.Queue(
			`INSERT INTO match_records
			   (user_id, job_id, semantic_score, llm_score, priority, reasoning,
			    key_alignments, potential_gaps, competency_mappings, skill_mappings, status)
			 VALUES ($1, $2, 0, $3, $4, $5, $6, $7, $8, $9, 'new')
			 ON CONFLICT (user_id, job_id) DO UPDATE
			 SET llm_score           = EXCLUDED.llm_score,
			     priority            = EXCLUDED.priority,
			     reasoning           = EXCLUDED.reasoning,
			     key_alignments      = EXCLUDED.key_alignments,
			     potential_gaps      = EXCLUDED.potential_gaps,
			     competency_mappings = EXCLUDED.competency_mappings,
			     skill_mappings      = EXCLUDED.skill_mappings,
			     updated_at          = NOW()`,
			userID, sc.JobID, sc.MatchScore, string(sc.Priority), sc.Reasoning,
			sc.KeyAlignments, sc.PotentialGaps, compMappings, skillMappings,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	count := 0
	for range scores {
		tag, err := results.Exec()
		if err != nil {
			return count, fmt.Errorf("upsertScores: %w", err)
		}
		count += int(tag.RowsAffected())
	}
	return count, nil
}

const matchColumns = `user_id, job_id, semantic_score, llm_score,
	COALESCE(priority, 'low'), COALESCE(reasoning, ''),
	COALESCE(key_alignments, '{}'), COALESCE(potential_gaps, '{}'),
	COALESCE(competency_mappings, '[]'), COALESCE(skill_mappings, '[]'),
	status, created_at, updated_at`

func scanMatch(row pgx.Row) (*model.MatchRecord, error) {
	m := &model.MatchRecord{}
	var compMappings, skillMappings []byte

	err := row.Scan(
		&m.UserID, &m.JobID, &m.SemanticScore, &m.LLMScore,
		&m.Priority, &m.Reasoning,
		&m.KeyAlignments, &m.PotentialGaps,
		&compMappings, &skillMappings,
		&m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(compMappings, &m.CompetencyMappings); err != nil {
		return nil, fmt.Errorf("competency mappings: %w", err)
	}
	if err := json.Unmarshal(skillMappings, &m.SkillMappings); err != nil {
		return nil, fmt.Errorf("skill mappings: %w", err)
	}
	return m, nil
}

// GetMatch returns one record or errs.ErrNotFound.
func (s *MatchRecordStore) GetMatch(ctx context.Context, userID string, jobID uuid.UUID) (*model.MatchRecord, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+`
		 FROM match_records
		 WHERE user_id = $1 AND job_id = $2`,
		userID, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("getMatch: %w", err)
	}
	return m, nil
}

// ListMatches returns the user's scored matches, best first. A non-empty
// statusFilter restricts to that lifecycle status; deleted records are
// always hidden unless asked for explicitly.
func (s *MatchRecordStore) ListMatches(ctx context.Context, userID string, statusFilter model.MatchStatus) ([]*model.MatchRecord, error) {
	var (
		rows pgx.Rows
		err  error
	)
	base := `SELECT ` + matchColumns + ` FROM match_records WHERE user_id = $1`
	order := ` ORDER BY llm_score DESC NULLS LAST, semantic_score DESC`

	if statusFilter != "" {
		rows, err = s.pool.Query(ctx, base+` AND status = $2`+order, userID, string(statusFilter))
	} else {
		rows, err = s.pool.Query(ctx, base+` AND status <> 'deleted'`+order, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("listMatches: %w", err)
	}
	defer rows.Close()

	matches := make([]*model.MatchRecord, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("listMatches scan: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// UpdateStatus moves a record through the lifecycle state machine. Returns
// errs.ErrNotFound for missing records and errs.ErrForbiddenTransition when
// the state machine rejects the move.
func (s *MatchRecordStore) UpdateStatus(ctx context.Context, userID string, jobID uuid.UUID, newStatus model.MatchStatus) (*model.MatchRecord, error) {
	var currentStr string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM match_records WHERE user_id = $1 AND job_id = $2`,
		userID, jobID,
	).Scan(&currentStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("updateStatus read: %w", err)
	}

	current, err := model.ParseMatchStatus(currentStr)
	if err != nil {
		return nil, fmt.Errorf("updateStatus: %w", err)
	}
	if !model.IsStatusTransitionAllowed(current, newStatus) {
		return nil, fmt.Errorf("%w: %s → %s", errs.ErrForbiddenTransition, current, newStatus)
	}

	m, err := scanMatch(s.pool.QueryRow(ctx,
		`UPDATE match_records
		 SET status = $3, updated_at = NOW()
		 WHERE user_id = $1 AND job_id = $2
		 RETURNING `+matchColumns,
		userID, jobID, string(newStatus)))
	if err != nil {
		return nil, fmt.Errorf("updateStatus write: %w", err)
	}
	return m, nil
}
