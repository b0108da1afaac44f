// Package explain resolves, per job requirement, whether the candidate
// satisfies it. It runs at read time to explain a stored match and never
// writes back into the persisted record.
package explain

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Inclusist/job-monitor-sub000/internal/embedding"
	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

// Similarity thresholds for the embedding fallback tier. Skills require
// stricter confidence: exact token matches are more informative there.
const (
	CompetencySimilarityMin = 0.45
	SkillSimilarityMin      = 0.50
)

const (
	// minTermLen guards substring containment: terms of 3 characters or
	// fewer produce trivial false positives.
	minTermLen = 3
	// overlapRatioMin accepts a requirement whose word overlap with an
	// alignment string reaches this share of the requirement's tokens.
	overlapRatioMin = 0.5
)

// Encoder embeds texts for the tier-3 fallback.
type Encoder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Explanation maps each job requirement to whether the candidate satisfies
// it, per category.
type Explanation struct {
	CompetencyMatches map[string]bool `json:"competencyMatches"`
	SkillMatches      map[string]bool `json:"skillMatches"`
}

// Resolver decides requirement satisfaction through a three-tier fallback
// chain: structured mapping → lexical → embedding similarity. A requirement
// decided by an earlier tier is never revisited.
type Resolver struct {
	encoder Encoder
	logger  *zap.Logger
}

func NewResolver(encoder Encoder, logger *zap.Logger) *Resolver {
	return &Resolver{encoder: encoder, logger: logger}
}

// Explain resolves every competency and skill requirement of the job for
// this candidate and match record.
func (r *Resolver) Explain(ctx context.Context, profile *model.CandidateProfile, job *model.JobPosting, record *model.MatchRecord) *Explanation {
	return &Explanation{
		CompetencyMatches: r.resolveCategory(ctx,
			job.Competencies,
			record.CompetencyMappings,
			profile.CompetencyNames(),
			record.KeyAlignments,
			CompetencySimilarityMin,
		),
		SkillMatches: r.resolveCategory(ctx,
			job.RequiredSkills,
			record.SkillMappings,
			profile.AllSkills(),
			record.KeyAlignments,
			SkillSimilarityMin,
		),
	}
}

// resolveCategory runs the tier chain for one requirement category.
//
// Tier 1: when any structured mapping exists, requirements named in it are
// matched and every other requirement is unmatched — tiers 2 and 3 are
// skipped entirely for the job. This mirrors how mappings are produced: the
// scorer only lists requirements the candidate satisfies, so an unmapped
// requirement is a decided negative, not an undecided one.
func (r *Resolver) resolveCategory(ctx context.Context, requirements []string, mappings []model.Mapping, candidateTerms, alignments []string, similarityMin float64) map[string]bool {
	result := make(map[string]bool, len(requirements))
	if len(requirements) == 0 {
		return result
	}

	if len(mappings) > 0 {
		mapped := make(map[string]bool, len(mappings))
		for _, m := range mappings {
			mapped[strings.ToLower(strings.TrimSpace(m.Requirement))] = true
		}
		for _, req := range requirements {
			result[req] = mapped[strings.ToLower(strings.TrimSpace(req))]
		}
		return result
	}

	// Tier 2: lexical fallback.
	var unmatched []string
	for _, req := range requirements {
		if lexicalMatch(req, candidateTerms, alignments) {
			result[req] = true
		} else {
			result[req] = false
			unmatched = append(unmatched, req)
		}
	}

	// Tier 3: embedding fallback, only for requirements tier 2 left
	// unmatched.
	if len(unmatched) > 0 && len(candidateTerms) > 0 {
		for req, ok := range r.embeddingMatch(ctx, unmatched, candidateTerms, similarityMin) {
			if ok {
				result[req] = true
			}
		}
	}

	return result
}

// lexicalMatch implements tier 2: exact case-insensitive equality, guarded
// substring containment, alignment-text containment, then word overlap
// against the alignment strings.
func lexicalMatch(requirement string, candidateTerms, alignments []string) bool {
	req := strings.ToLower(strings.TrimSpace(requirement))
	if req == "" {
		return false
	}

	for _, term := range candidateTerms {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == req {
			return true
		}
		if len(t) > minTermLen && len(req) > minTermLen &&
			(strings.Contains(t, req) || strings.Contains(req, t)) {
			return true
		}
	}

	reqTokens := tokenize(req)
	for _, alignment := range alignments {
		a := strings.ToLower(alignment)
		if strings.Contains(a, req) {
			return true
		}
		if len(reqTokens) == 0 {
			continue
		}
		overlap := 0
		alignTokens := tokenize(a)
		for tok := range reqTokens {
			if tokenOverlaps(tok, alignTokens) {
				overlap++
			}
		}
		if float64(overlap)/float64(len(reqTokens)) >= overlapRatioMin {
			return true
		}
	}

	return false
}

// tokenOverlaps reports whether tok counts as present among the alignment
// tokens. Containment either direction absorbs simple inflection
// ("stakeholder" vs "stakeholders"); both sides already exceed minTermLen.
func tokenOverlaps(tok string, alignTokens map[string]bool) bool {
	if alignTokens[tok] {
		return true
	}
	for at := range alignTokens {
		if strings.Contains(at, tok) || strings.Contains(tok, at) {
			return true
		}
	}
	return false
}

// tokenize splits lowercased text into words longer than minTermLen.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(w) > minTermLen {
			tokens[w] = true
		}
	}
	return tokens
}

// embeddingMatch implements tier 3: a requirement matches when its maximum
// cosine similarity against any candidate term exceeds the threshold.
// Embedding failures leave requirements unmatched; the explanation is
// best-effort and must not fail the read.
func (r *Resolver) embeddingMatch(ctx context.Context, requirements, candidateTerms []string, similarityMin float64) map[string]bool {
	texts := make([]string, 0, len(requirements)+len(candidateTerms))
	texts = append(texts, requirements...)
	texts = append(texts, candidateTerms...)

	vecs, err := r.encoder.EmbedTexts(ctx, texts)
	if err != nil {
		r.logger.Warn("embedding fallback unavailable, leaving requirements unmatched",
			zap.Int("requirements", len(requirements)), zap.Error(err))
		return nil
	}

	reqVecs := vecs[:len(requirements)]
	termVecs := vecs[len(requirements):]

	result := make(map[string]bool, len(requirements))
	for i, req := range requirements {
		best := 0.0
		for _, tv := range termVecs {
			if sim := embedding.CosineSimilarity(reqVecs[i], tv); sim > best {
				best = sim
			}
		}
		result[req] = best > similarityMin
	}
	return result
}
