package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Inclusist/job-monitor-sub000/internal/backfill"
	"github.com/Inclusist/job-monitor-sub000/internal/errs"
	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

// JobStore persists job postings.
type JobStore struct {
	pool *pgxpool.Pool
}

func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

// jobColumns builds the posting select list with every column qualified by
// alias, so the list stays unambiguous in joins against tables that share
// column names (match_records also has created_at).
func jobColumns(alias string) string {
	return fmt.Sprintf(`%[1]s.id, COALESCE(%[1]s.external_id, ''), COALESCE(%[1]s.source_url, ''), COALESCE(%[1]s.source, ''),
	%[1]s.title, %[1]s.company, COALESCE(%[1]s.location, ''), COALESCE(%[1]s.description, ''),
	COALESCE(%[1]s.required_skills, '{}'), COALESCE(%[1]s.competencies, '{}'),
	COALESCE(%[1]s.core_responsibilities, '{}'), COALESCE(%[1]s.requirements_summary, ''),
	COALESCE(%[1]s.experience_level, ''), COALESCE(%[1]s.work_arrangement, ''),
	COALESCE(%[1]s.employment_type, ''), COALESCE(%[1]s.benefits, '{}'),
	%[1]s.title_embedding, %[1]s.created_at`, alias)
}

func scanJob(row pgx.Row) (*model.JobPosting, error) {
	j := &model.JobPosting{}
	var titleEmbedding []byte

	err := row.Scan(
		&j.ID, &j.ExternalID, &j.SourceURL, &j.Source,
		&j.Title, &j.Company, &j.Location, &j.Description,
		&j.RequiredSkills, &j.Competencies,
		&j.CoreResponsibilities, &j.RequirementsSummary,
		&j.ExperienceLevel, &j.WorkArrangement,
		&j.EmploymentType, &j.Benefits,
		&titleEmbedding, &j.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(titleEmbedding) > 0 {
		if err := json.Unmarshal(titleEmbedding, &j.TitleEmbedding); err != nil {
			return nil, fmt.Errorf("title embedding: %w", err)
		}
	}
	return j, nil
}

// GetJob returns one posting or errs.ErrNotFound.
func (s *JobStore) GetJob(ctx context.Context, id uuid.UUID) (*model.JobPosting, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns("j")+` FROM job_postings j WHERE j.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("getJob: %w", err)
	}
	return j, nil
}

// InsertJobs ingests postings, skipping rows whose external id, source URL
// or content signature already exists. Returns how many were new.
func (s *JobStore) InsertJobs(ctx context.Context, jobs []*model.JobPosting) (int, error) {
	inserted := 0
	for _, j := range jobs {
		sig := backfill.ContentSignature(j.Title, j.Company, j.Location)

		tag, err := s.pool.Exec(ctx,
			`INSERT INTO job_postings
			   (id, external_id, source_url, source, title, company, location,
			    description, employment_type, content_signature)
			 SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
			 WHERE NOT EXISTS (
			   SELECT 1 FROM job_postings
			   WHERE ($2 <> '' AND external_id = $2)
			      OR ($3 <> '' AND source_url = $3)
			      OR content_signature = $10
			 )`,
			j.ID, j.ExternalID, j.SourceURL, j.Source, j.Title, j.Company,
			j.Location, j.Description, j.EmploymentType, sig,
		)
		if err != nil {
			return inserted, fmt.Errorf("insertJobs: %w", err)
		}
		if tag.RowsAffected() > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// SaveExtracted persists lazily extracted requirement fields.
func (s *JobStore) SaveExtracted(ctx context.Context, jobs []*model.JobPosting) error {
	batch := &pgx.Batch{}
	for _, j := range jobs {
		batch.Queue(
			`UPDATE job_postings
			 SET required_skills = $2, competencies = $3
			 WHERE id = $1`,
			j.ID, j.RequiredSkills, j.Competencies,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range jobs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("saveExtracted: %w", err)
		}
	}
	return nil
}
