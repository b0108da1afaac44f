// Package store implements the PostgreSQL repositories of the matching
// service.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Inclusist/job-monitor-sub000/internal/errs"
	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

// ProfileStore reads candidate profiles written by the CV-parsing service.
// This service never mutates them.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// GetPrimaryProfile returns the user's primary profile or errs.ErrNotFound.
func (s *ProfileStore) GetPrimaryProfile(ctx context.Context, userID string) (*model.CandidateProfile, error) {
	p := &model.CandidateProfile{UserID: userID}
	var competencies, embedding []byte

	err := s.pool.QueryRow(ctx,
		`SELECT seniority, years_experience,
		        COALESCE(domains, '{}'), COALESCE(competencies, '[]'),
		        COALESCE(technical_skills, '{}'), COALESCE(soft_skills, '{}'),
		        COALESCE(work_arrangement, ''), COALESCE(preferred_locations, '{}'),
		        embedding
		 FROM candidate_profiles
		 WHERE user_id = $1 AND is_primary = true`,
		userID,
	).Scan(
		&p.Seniority, &p.YearsExperience,
		&p.Domains, &competencies,
		&p.TechnicalSkills, &p.SoftSkills,
		&p.WorkArrangement, &p.PreferredLocations,
		&embedding,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("getPrimaryProfile: %w", err)
	}

	if err := json.Unmarshal(competencies, &p.Competencies); err != nil {
		return nil, fmt.Errorf("getPrimaryProfile competencies: %w", err)
	}
	if len(embedding) > 0 {
		if err := json.Unmarshal(embedding, &p.Embedding); err != nil {
			return nil, fmt.Errorf("getPrimaryProfile embedding: %w", err)
		}
	}

	return p, nil
}
