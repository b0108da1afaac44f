// Package embedding implements the cheap similarity pre-filter that gates
// which jobs reach the expensive LLM scoring stage.
package embedding

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

// Mode selects which part of the job posting is embedded.
type Mode string

const (
	ModeTitle    Mode = "title"
	ModeFullText Mode = "full_text"
)

const (
	// keywordBoost is added once per boost keyword present in both the job
	// text and the candidate text.
	keywordBoost = 0.05
	// maxKeywordBoost caps the total additive boost.
	maxKeywordBoost = 0.15
)

// Encoder turns text into an embedding vector.
type Encoder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Result is the outcome of scoring one job/candidate pair.
type Result struct {
	Score           float64 // boosted cosine similarity in [0,1]
	MatchedKeywords []string
}

// Filter computes embedding similarity between a candidate and a job, with a
// bounded additive keyword boost. If the embedding backend is unavailable the
// filter fails closed: the caller must exclude the job, never pass it through.
type Filter struct {
	encoder  Encoder
	keywords []string
	mode     Mode
	logger   *zap.Logger
}

// NewFilter builds a Filter. keywords is the configured boost-keyword list;
// it may be empty.
func NewFilter(encoder Encoder, keywords []string, mode Mode, logger *zap.Logger) *Filter {
	if mode == "" {
		mode = ModeTitle
	}
	return &Filter{encoder: encoder, keywords: keywords, mode: mode, logger: logger}
}

// CandidateVector returns the embedding for the candidate, reusing the
// precomputed profile vector when present.
func (f *Filter) CandidateVector(ctx context.Context, profile *model.CandidateProfile) ([]float32, error) {
	if len(profile.Embedding) > 0 {
		return profile.Embedding, nil
	}
	return f.encoder.EmbedText(ctx, profile.EmbeddingText())
}

// Score computes the boosted similarity between the candidate and job.
// candidateText is the free-text form of the profile used for keyword
// matching; candVec is its embedding.
func (f *Filter) Score(ctx context.Context, candVec []float32, candidateText string, job *model.JobPosting) (Result, error) {
	jobVec := job.TitleEmbedding
	if len(jobVec) == 0 {
		text := job.Title
		if f.mode == ModeFullText {
			text = job.Title + "\n" + job.Description
		}
		var err error
		jobVec, err = f.encoder.EmbedText(ctx, text)
		if err != nil {
			return Result{}, err
		}
	}

	base := CosineSimilarity(candVec, jobVec)
	// Cosine similarity of text embeddings is occasionally slightly negative;
	// clamp before boosting.
	if base < 0 {
		base = 0
	}

	matched := f.matchedKeywords(candidateText, job)
	boost := math.Min(float64(len(matched))*keywordBoost, maxKeywordBoost)

	score := math.Min(base+boost, 1.0)

	f.logger.Debug("semantic score",
		zap.String("job_id", job.ID.String()),
		zap.Float64("cosine", base),
		zap.Float64("boost", boost),
		zap.Strings("matched_keywords", matched),
	)

	return Result{Score: score, MatchedKeywords: matched}, nil
}

// matchedKeywords returns every configured keyword present in both the job
// text and the candidate text, case-insensitively.
func (f *Filter) matchedKeywords(candidateText string, job *model.JobPosting) []string {
	if len(f.keywords) == 0 {
		return nil
	}

	jobText := strings.ToLower(job.Title + " " + job.Description)
	candText := strings.ToLower(candidateText)

	var matched []string
	for _, kw := range f.keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" {
			continue
		}
		if strings.Contains(jobText, k) && strings.Contains(candText, k) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 for
// mismatched or zero-magnitude vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
