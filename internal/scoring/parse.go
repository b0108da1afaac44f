package scoring

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

// Default records substituted when the model response is unusable. These
// values are part of the scoring contract, not arbitrary fallbacks.
const (
	defaultMatchScore   = 50
	defaultReasoning    = "analysis incomplete"
	degradedMatchScore  = 30
	degradedGapsMessage = "Analysis failed"
)

// rawJobScore is the per-job object the scoring model is asked to return
// under each "job_N" key.
type rawJobScore struct {
	MatchScore         json.RawMessage `json:"match_score"`
	Priority           string          `json:"priority"`
	KeyAlignments      []string        `json:"key_alignments"`
	PotentialGaps      []string        `json:"potential_gaps"`
	Reasoning          string          `json:"reasoning"`
	CompetencyMappings []model.Mapping `json:"competency_mappings"`
	SkillMappings      []model.Mapping `json:"skill_mappings"`
}

// rawExtraction is the per-job object the extraction model returns.
type rawExtraction struct {
	Competencies []string `json:"competencies"`
	Skills       []string `json:"skills"`
}

// extractJSON strips a markdown code-fence wrapper from raw model output.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// parseScoreBatch parses a batched scoring response. The result always has
// exactly n entries: any "job_N" key that is missing or not an object yields
// the documented default record.
func parseScoreBatch(raw string, n int) ([]rawJobScore, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(raw)), &envelope); err != nil {
		return nil, fmt.Errorf("parse scoring response: %w", err)
	}

	scores := make([]rawJobScore, n)
	for i := 0; i < n; i++ {
		entry, ok := envelope[jobKey(i)]
		if !ok {
			scores[i] = defaultRawScore()
			continue
		}
		var rs rawJobScore
		if err := json.Unmarshal(entry, &rs); err != nil {
			scores[i] = defaultRawScore()
			continue
		}
		scores[i] = rs
	}
	return scores, nil
}

// parseExtractionBatch parses a batched extraction response. Missing or
// malformed entries default to empty lists; it never fails once the envelope
// itself parses.
func parseExtractionBatch(raw string, n int) ([]rawExtraction, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(raw)), &envelope); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	out := make([]rawExtraction, n)
	for i := 0; i < n; i++ {
		entry, ok := envelope[jobKey(i)]
		if !ok {
			continue
		}
		var ex rawExtraction
		if err := json.Unmarshal(entry, &ex); err != nil {
			continue
		}
		out[i] = ex
	}
	return out, nil
}

func jobKey(i int) string { return "job_" + strconv.Itoa(i+1) }

func defaultRawScore() rawJobScore {
	return rawJobScore{
		MatchScore: json.RawMessage(strconv.Itoa(defaultMatchScore)),
		Priority:   string(model.PriorityMedium),
		Reasoning:  defaultReasoning,
	}
}

// coerceScore reads a match score that may arrive as a number or a numeric
// string, clamped to [0,100]. Unusable values fall back to the default.
func coerceScore(raw json.RawMessage) int {
	if len(raw) == 0 {
		return defaultMatchScore
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return defaultMatchScore
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return defaultMatchScore
		}
		f = parsed
	}

	score := int(f + 0.5)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
