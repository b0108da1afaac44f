package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

// BackfillStore is the global ledger of (keyword, location, filters)
// combinations already fetched from external providers.
type BackfillStore struct {
	pool *pgxpool.Pool
}

func NewBackfillStore(pool *pgxpool.Pool) *BackfillStore {
	return &BackfillStore{pool: pool}
}

// FilterPending returns the combinations not yet backfilled by any user.
// Inputs are expected to be normalized already.
func (s *BackfillStore) FilterPending(ctx context.Context, combos []model.BackfillCombination) ([]model.BackfillCombination, error) {
	batch := &pgx.Batch{}
	for _, c := range combos {
		batch.Queue(
			`SELECT EXISTS (
			   SELECT 1 FROM backfill_combinations
			   WHERE title_keyword = $1 AND location = $2
			     AND work_arrangement = $3 AND employment_type = $4
			     AND seniority = $5 AND industry = $6
			 )`,
			c.TitleKeyword, c.Location, c.WorkArrangement,
			c.EmploymentType, c.Seniority, c.Industry,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	pending := make([]model.BackfillCombination, 0, len(combos))
	for _, c := range combos {
		var done bool
		if err := results.QueryRow().Scan(&done); err != nil {
			return nil, fmt.Errorf("filterPending: %w", err)
		}
		if !done {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// MarkBackfilled records a combination as fetched, updating the timestamp
// and result count on repeat sweeps.
func (s *BackfillStore) MarkBackfilled(ctx context.Context, combo model.BackfillCombination, jobsFound int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO backfill_combinations
		   (title_keyword, location, work_arrangement, employment_type,
		    seniority, industry, last_backfilled_at, jobs_found)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7)
		 ON CONFLICT (title_keyword, location, work_arrangement, employment_type, seniority, industry)
		 DO UPDATE SET last_backfilled_at = NOW(),
		               jobs_found         = EXCLUDED.jobs_found`,
		combo.TitleKeyword, combo.Location, combo.WorkArrangement,
		combo.EmploymentType, combo.Seniority, combo.Industry, jobsFound,
	)
	if err != nil {
		return fmt.Errorf("markBackfilled: %w", err)
	}
	return nil
}

// ListActiveSearchConfigs loads every active search preference set for the
// scheduled backfill sweep.
func (s *BackfillStore) ListActiveSearchConfigs(ctx context.Context) ([]*model.SearchConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, COALESCE(title_keywords, '{}'), COALESCE(locations, '{}'),
		        COALESCE(work_arrangement, ''), COALESCE(employment_type, ''),
		        COALESCE(seniority, ''), COALESCE(industry, '')
		 FROM search_configs
		 WHERE is_active = true`,
	)
	if err != nil {
		return nil, fmt.Errorf("listActiveSearchConfigs: %w", err)
	}
	defer rows.Close()

	var configs []*model.SearchConfig
	for rows.Next() {
		c := &model.SearchConfig{IsActive: true}
		if err := rows.Scan(
			&c.UserID, &c.TitleKeywords, &c.Locations,
			&c.WorkArrangement, &c.EmploymentType,
			&c.Seniority, &c.Industry,
		); err != nil {
			return nil, fmt.Errorf("listActiveSearchConfigs scan: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}
