// Package backfill tracks which search combinations have already been
// fetched from external job providers — across all users — and ingests new
// postings with two-level deduplication.
package backfill

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Inclusist/job-monitor-sub000/internal/model"
)

// interCallDelay spaces out provider calls to respect rate limits.
const interCallDelay = 1 * time.Second

// countrySuffixes are stripped from the end of a location before comparison.
var countrySuffixes = []string{
	", germany", ", deutschland", ", de",
	", united kingdom", ", uk", ", gb",
	", france", ", fr",
	", netherlands", ", nl",
	", austria", ", at",
	", switzerland", ", ch",
}

// Provider is an external job data source.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, combo model.BackfillCombination) ([]*model.JobPosting, error)
}

// Store is the combination ledger.
type Store interface {
	// FilterPending returns the subset of combos not yet backfilled by any
	// user.
	FilterPending(ctx context.Context, combos []model.BackfillCombination) ([]model.BackfillCombination, error)
	// MarkBackfilled records a combination as done, even when it yielded
	// zero jobs.
	MarkBackfilled(ctx context.Context, combo model.BackfillCombination, jobsFound int) error
}

// JobSink ingests fetched postings, skipping duplicates by external
// id / source URL.
type JobSink interface {
	InsertJobs(ctx context.Context, jobs []*model.JobPosting) (inserted int, err error)
}

// Stats summarises one ledger run.
type Stats struct {
	Requested int // combinations asked for
	Fetched   int // combinations actually queried upstream
	Jobs      int // postings handed to the sink after dedup
	Inserted  int // postings the sink accepted as new
}

// Ledger runs the set-difference-then-fetch cycle. Combinations proceed
// sequentially; a failing combination is skipped, not marked backfilled, so
// the next sweep retries it.
type Ledger struct {
	store     Store
	sink      JobSink
	providers []Provider
	delay     time.Duration
	logger    *zap.Logger
}

func NewLedger(store Store, sink JobSink, providers []Provider, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:     store,
		sink:      sink,
		providers: providers,
		delay:     interCallDelay,
		logger:    logger,
	}
}

// Run backfills every combination in combos that no user has fetched yet.
func (l *Ledger) Run(ctx context.Context, combos []model.BackfillCombination) (Stats, error) {
	normalized := dedupeCombos(combos)
	stats := Stats{Requested: len(normalized)}

	// Without providers nothing is actually queried, so nothing may be
	// marked backfilled either: a deployment that gains credentials later
	// must still fetch these combinations.
	if len(l.providers) == 0 {
		l.logger.Warn("backfill: no providers configured, skipping sweep",
			zap.Int("requested", stats.Requested))
		return stats, nil
	}

	pending, err := l.store.FilterPending(ctx, normalized)
	if err != nil {
		return stats, fmt.Errorf("filter pending combinations: %w", err)
	}
	if len(pending) == 0 {
		l.logger.Info("backfill: all combinations already fetched",
			zap.Int("requested", stats.Requested))
		return stats, nil
	}

	for _, combo := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		jobs, fetchErr := l.fetchCombo(ctx, combo)
		if fetchErr != nil {
			l.logger.Warn("backfill combination failed, will retry next sweep",
				zap.String("keyword", combo.TitleKeyword),
				zap.String("location", combo.Location),
				zap.Error(fetchErr))
			continue
		}
		stats.Fetched++

		jobs = DedupeJobs(jobs)
		inserted := 0
		if len(jobs) > 0 {
			inserted, err = l.sink.InsertJobs(ctx, jobs)
			if err != nil {
				l.logger.Warn("backfill insert failed",
					zap.String("keyword", combo.TitleKeyword), zap.Error(err))
				continue
			}
		}
		stats.Jobs += len(jobs)
		stats.Inserted += inserted

		// Written back even for zero results so overlapping users make no
		// redundant calls.
		if err := l.store.MarkBackfilled(ctx, combo, len(jobs)); err != nil {
			l.logger.Warn("marking combination backfilled failed",
				zap.String("keyword", combo.TitleKeyword), zap.Error(err))
		}
	}

	l.logger.Info("backfill sweep done",
		zap.Int("requested", stats.Requested),
		zap.Int("fetched", stats.Fetched),
		zap.Int("jobs", stats.Jobs),
		zap.Int("inserted", stats.Inserted),
	)
	return stats, nil
}

// fetchCombo queries every provider sequentially with a small delay between
// calls.
func (l *Ledger) fetchCombo(ctx context.Context, combo model.BackfillCombination) ([]*model.JobPosting, error) {
	var all []*model.JobPosting
	var lastErr error

	for i, p := range l.providers {
		if i > 0 {
			select {
			case <-ctx.Done():
				return all, ctx.Err()
			case <-time.After(l.delay):
			}
		}

		jobs, err := p.Fetch(ctx, combo)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", p.Name(), err)
			continue
		}
		all = append(all, jobs...)
	}

	if len(all) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return all, nil
}

// ── Normalization & dedup ──────────────────────────────────────────────────

// NormalizeLocation lowercases, trims and strips a fixed set of trailing
// country suffixes. It is idempotent.
func NormalizeLocation(loc string) string {
	loc = strings.ToLower(strings.TrimSpace(loc))
	for _, suffix := range countrySuffixes {
		if strings.HasSuffix(loc, suffix) {
			loc = strings.TrimSpace(strings.TrimSuffix(loc, suffix))
			break
		}
	}
	return loc
}

// NormalizeCombo canonicalizes a combination so equivalent user preferences
// map to the same ledger row.
func NormalizeCombo(c model.BackfillCombination) model.BackfillCombination {
	c.TitleKeyword = strings.ToLower(strings.TrimSpace(c.TitleKeyword))
	c.Location = NormalizeLocation(c.Location)
	c.WorkArrangement = strings.ToLower(strings.TrimSpace(c.WorkArrangement))
	c.EmploymentType = strings.ToLower(strings.TrimSpace(c.EmploymentType))
	c.Seniority = strings.ToLower(strings.TrimSpace(c.Seniority))
	c.Industry = strings.ToLower(strings.TrimSpace(c.Industry))
	return c
}

// ComboKey is the canonical string form of a combination.
func ComboKey(c model.BackfillCombination) string {
	c = NormalizeCombo(c)
	return strings.Join([]string{
		c.TitleKeyword, c.Location, c.WorkArrangement,
		c.EmploymentType, c.Seniority, c.Industry,
	}, "|")
}

func dedupeCombos(combos []model.BackfillCombination) []model.BackfillCombination {
	seen := make(map[string]bool, len(combos))
	out := make([]model.BackfillCombination, 0, len(combos))
	for _, c := range combos {
		n := NormalizeCombo(c)
		key := ComboKey(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

// ContentSignature identifies a posting by lowercased title, lowercased
// company and normalized location. Two distinct postings sharing all three
// (a company re-posting the same role) are merged; known limitation.
func ContentSignature(title, company, location string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" +
		strings.ToLower(strings.TrimSpace(company)) + "|" +
		NormalizeLocation(location)
}

// DedupeJobs removes duplicates within one fetch, first by external id or
// canonical URL, then by content signature.
func DedupeJobs(jobs []*model.JobPosting) []*model.JobPosting {
	seenID := make(map[string]bool, len(jobs))
	seenSig := make(map[string]bool, len(jobs))
	out := make([]*model.JobPosting, 0, len(jobs))

	for _, j := range jobs {
		id := j.ExternalID
		if id == "" {
			id = j.SourceURL
		}
		if id != "" {
			if seenID[id] {
				continue
			}
			seenID[id] = true
		}

		sig := ContentSignature(j.Title, j.Company, j.Location)
		if seenSig[sig] {
			continue
		}
		seenSig[sig] = true
		out = append(out, j)
	}
	return out
}
