package store

import (
	"regexp"
	"strings"
	"testing"
)

// The posting select list is used inside joins against match_records, which
// shares column names with job_postings (created_at, status-adjacent
// timestamps). Every column reference must therefore carry the alias, or
// PostgreSQL rejects the join with "column reference is ambiguous".
func TestJobColumns_EveryColumnQualified(t *testing.T) {
	cols := jobColumns("j")

	// No identifier may appear without the alias. Strip the qualified
	// references and COALESCE fallbacks; nothing resembling a bare column
	// name may remain.
	stripped := regexp.MustCompile(`j\.[a-z_]+`).ReplaceAllString(cols, "")
	stripped = regexp.MustCompile(`'[^']*'`).ReplaceAllString(stripped, "")
	stripped = strings.ReplaceAll(stripped, "COALESCE", "")
	if bare := regexp.MustCompile(`[a-z_]{2,}`).FindString(stripped); bare != "" {
		t.Errorf("unqualified identifier %q in select list:\n%s", bare, cols)
	}

	// The column that originally collided in the match_records join.
	if !strings.Contains(cols, "j.created_at") {
		t.Errorf("created_at must be alias-qualified:\n%s", cols)
	}
}

func TestJobColumns_MatchesScanArity(t *testing.T) {
	// scanJob reads 18 values; each select-list entry references its column
	// exactly once, so the qualified-reference count must be 18 too.
	refs := regexp.MustCompile(`j\.[a-z_]+`).FindAllString(jobColumns("j"), -1)
	if len(refs) != 18 {
		t.Errorf("select list has %d column references, scanJob expects 18", len(refs))
	}
}
