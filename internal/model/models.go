// Package model defines shared data structures for the matching service.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Competency is a capability with the evidence backing it, taken from the
// candidate's parsed CV.
type Competency struct {
	Name     string `json:"name"`
	Evidence string `json:"evidence,omitempty"`
}

// CandidateProfile is an immutable snapshot of a candidate used for one
// matching pass. It is produced by the CV-parsing service and only read here.
type CandidateProfile struct {
	UserID             string
	Seniority          string
	YearsExperience    int
	Domains            []string
	Competencies       []Competency
	TechnicalSkills    []string
	SoftSkills         []string
	WorkArrangement    string
	PreferredLocations []string
	Embedding          []float32 // precomputed profile embedding, may be nil
}

// CompetencyNames returns the names of all profile competencies.
func (p *CandidateProfile) CompetencyNames() []string {
	names := make([]string, 0, len(p.Competencies))
	for _, c := range p.Competencies {
		names = append(names, c.Name)
	}
	return names
}

// AllSkills returns technical and soft skills as one list.
func (p *CandidateProfile) AllSkills() []string {
	skills := make([]string, 0, len(p.TechnicalSkills)+len(p.SoftSkills))
	skills = append(skills, p.TechnicalSkills...)
	skills = append(skills, p.SoftSkills...)
	return skills
}

// EmbeddingText builds the free-text representation of the profile that is
// fed to the embedding backend when no precomputed vector exists.
func (p *CandidateProfile) EmbeddingText() string {
	parts := make([]string, 0, 4)
	if p.Seniority != "" {
		parts = append(parts, p.Seniority)
	}
	if len(p.Domains) > 0 {
		parts = append(parts, strings.Join(p.Domains, ", "))
	}
	if len(p.Competencies) > 0 {
		parts = append(parts, strings.Join(p.CompetencyNames(), ", "))
	}
	if len(p.TechnicalSkills) > 0 {
		parts = append(parts, strings.Join(p.TechnicalSkills, ", "))
	}
	return strings.Join(parts, ". ")
}

// JobPosting is a normalized job listing. The AI-extracted fields
// (RequiredSkills, Competencies, …) may be empty and are lazily populated
// by the scoring engine the first time the job is scored.
type JobPosting struct {
	ID                   uuid.UUID
	ExternalID           string
	SourceURL            string
	Source               string
	Title                string
	Company              string
	Location             string
	Description          string
	RequiredSkills       []string
	Competencies         []string
	CoreResponsibilities []string
	RequirementsSummary  string
	ExperienceLevel      string
	WorkArrangement      string
	EmploymentType       string
	Benefits             []string
	TitleEmbedding       []float32 // optional precomputed embedding
	CreatedAt            time.Time
}

// NeedsExtraction reports whether the AI-extracted requirement fields are
// still missing and must be filled before scoring.
func (j *JobPosting) NeedsExtraction() bool {
	return len(j.Competencies) == 0 && len(j.RequiredSkills) == 0
}

// Priority buckets a match by its LLM score. It is always derived from the
// score, never taken verbatim from the model output.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Mapping pairs one job requirement with the candidate evidence that
// satisfies it, as returned by the scoring model.
type Mapping struct {
	Requirement string `json:"requirement"`
	Evidence    string `json:"evidence,omitempty"`
}

// MatchRecord is the persisted per-(user, job) outcome of the pipeline.
// Unique on (UserID, JobID); written with upsert semantics only.
type MatchRecord struct {
	UserID             string          `json:"userId"`
	JobID              uuid.UUID       `json:"jobId"`
	SemanticScore      float64         `json:"semanticScore"`
	LLMScore           *int            `json:"llmScore,omitempty"`
	Priority           Priority        `json:"priority"`
	Reasoning          string          `json:"reasoning,omitempty"`
	KeyAlignments      []string        `json:"keyAlignments,omitempty"`
	PotentialGaps      []string        `json:"potentialGaps,omitempty"`
	CompetencyMappings []Mapping       `json:"competencyMappings,omitempty"`
	SkillMappings      []Mapping       `json:"skillMappings,omitempty"`
	Status             MatchStatus     `json:"status"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// RunState is the lifecycle of one matching run.
type RunState string

const (
	RunIdle     RunState = "idle"
	RunRunning  RunState = "running"
	RunComplete RunState = "complete"
	RunError    RunState = "error"
)

// RunStatus is the pollable progress snapshot of a matching run.
// It is ephemeral: overwritten on every tick, superseded by the next run.
type RunStatus struct {
	Status   RunState `json:"status"`
	Progress int      `json:"progress"` // 0–100
	Message  string   `json:"message,omitempty"`
}

// BackfillCombination is one (keyword, location, filter-dimensions) tuple
// queried against external job providers. Rows are global across users: once
// any user's run has fetched a combination, every other user reuses it.
type BackfillCombination struct {
	TitleKeyword     string
	Location         string
	WorkArrangement  string
	EmploymentType   string
	Seniority        string
	Industry         string
	LastBackfilledAt time.Time
	JobsFound        int
}

// SearchConfig is a user's saved search preference set, expanded into
// backfill combinations by the scheduler.
type SearchConfig struct {
	UserID          string
	TitleKeywords   []string
	Locations       []string
	WorkArrangement string
	EmploymentType  string
	Seniority       string
	Industry        string
	IsActive        bool
}

// Combinations expands the config into the cross product of title keywords
// and locations, carrying the filter dimensions along.
func (c *SearchConfig) Combinations() []BackfillCombination {
	combos := make([]BackfillCombination, 0, len(c.TitleKeywords)*len(c.Locations))
	for _, kw := range c.TitleKeywords {
		for _, loc := range c.Locations {
			combos = append(combos, BackfillCombination{
				TitleKeyword:    kw,
				Location:        loc,
				WorkArrangement: c.WorkArrangement,
				EmploymentType:  c.EmploymentType,
				Seniority:       c.Seniority,
				Industry:        c.Industry,
			})
		}
	}
	return combos
}
