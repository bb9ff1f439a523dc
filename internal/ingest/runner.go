// Package ingest drives paginated source fetches to completion. The runner
// consumes one task, iterates its sources strictly sequentially and, for
// each source, repeats fetch -> store -> checkpoint until the source is
// exhausted, the task's entry budget runs out, or the source fails. Because
// papers are stored before the pagination checkpoint advances, the offset
// never moves past records that are not durable, which is what makes an
// interrupted task resumable.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/enkerewpo/paperfinder/internal/metrics"
	"github.com/enkerewpo/paperfinder/internal/models"
	"github.com/enkerewpo/paperfinder/internal/store"
	"github.com/enkerewpo/paperfinder/internal/task"
)

// RawEntry is one entry from a fetched page before identity derivation.
// Everything but the title is optional.
type RawEntry struct {
	Title   string
	Authors []string
	Venue   string
	Year    int
	DOI     string
}

// Page is the result of a single fetch call against a source.
type Page struct {
	// Total is the source's count of entries available for this query.
	Total int
	// Entries is the ordered batch starting at the requested offset.
	Entries []RawEntry
}

// Fetcher retrieves one page from a source endpoint. Failures are classified
// with ErrTransient/ErrPermanent; anything unclassified is treated as
// transient.
type Fetcher interface {
	FetchPage(ctx context.Context, sourceURL string, offset, pageSize int) (Page, error)
}

// Config bounds the runner's pagination and retry behavior.
type Config struct {
	// PageSize is the fixed number of entries requested per fetch.
	PageSize int
	// MaxAttempts is the per-page fetch budget including the first try.
	MaxAttempts int
	// InitialBackoff seeds the exponential backoff between retries.
	InitialBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 200
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
}

// Runner executes one ingestion task at a time. It is the only writer of the
// paper store and progress tracker during a run, always through the stores'
// synchronized persist paths.
type Runner struct {
	manager   *task.Manager
	papers    *store.PaperStore
	progress  *store.ProgressStore
	fetcher   Fetcher
	collector *metrics.Collector
	cfg       Config
	now       func() time.Time
}

// NewRunner wires a runner over the given stores and fetch client.
// collector may be nil.
func NewRunner(m *task.Manager, papers *store.PaperStore, progress *store.ProgressStore, f Fetcher, cfg Config, collector *metrics.Collector) *Runner {
	cfg.applyDefaults()
	return &Runner{
		manager:   m,
		papers:    papers,
		progress:  progress,
		fetcher:   f,
		collector: collector,
		cfg:       cfg,
		now:       time.Now,
	}
}

// outcome of a single source within one run.
type sourceOutcome int

const (
	sourceExhausted sourceOutcome = iota
	sourceCapped
	sourceFailed
)

// Run drives the task to a terminal state, or leaves it running when the
// context is canceled between pages (the next resume continues from the
// recorded offsets). Terminal tasks are returned unchanged without work.
// The returned error is non-nil only for storage failures, interruption, or
// an unusable descriptor; per-source fetch failures are recorded in the
// result instead.
func (r *Runner) Run(ctx context.Context, t models.Task) (models.Task, error) {
	if t.Status.Terminal() {
		slog.Info("task already terminal, skipping", "task_id", t.ID, "status", t.Status)
		return t, nil
	}
	if t.Type != models.TaskTypeIngest || t.Ingest == nil {
		err := fmt.Errorf("task %s carries no ingestion payload", t.ID)
		_ = r.manager.Fail(&t, models.TaskResult{}, err)
		return t, err
	}
	if err := r.manager.SetRunning(&t); err != nil {
		return t, err
	}

	result := models.TaskResult{NewPapers: t.Progress}
	if t.Result != nil {
		// Keep source errors from earlier interrupted runs out of the result:
		// every source is re-judged this run.
		result.Capped = t.Result.Capped
	}

	for _, src := range t.Ingest.Sources {
		if result.Capped {
			break // budget exhausted, abandon remaining sources
		}
		outcome, err := r.runSource(ctx, &t, src, &result)
		if err != nil {
			// Storage failure or interruption. Interruption leaves the task
			// running for a later resume; storage errors are fatal.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Warn("ingestion interrupted", "task_id", t.ID, "source", src)
				return t, err
			}
			_ = r.manager.Fail(&t, result, err)
			return t, err
		}
		if outcome == sourceCapped {
			result.Capped = true
		}
	}

	if len(result.SourceErrors) > 0 && len(result.SourceErrors) == len(t.Ingest.Sources) {
		err := fmt.Errorf("all %d sources failed", len(t.Ingest.Sources))
		if ferr := r.manager.Fail(&t, result, err); ferr != nil {
			return t, ferr
		}
		return t, nil
	}
	if err := r.manager.Complete(&t, result); err != nil {
		return t, err
	}
	return t, nil
}

// runSource pages through a single source from its recorded offset.
func (r *Runner) runSource(ctx context.Context, t *models.Task, src string, result *models.TaskResult) (sourceOutcome, error) {
	st := r.progress.GetOrCreate(src)
	slog.Info("ingesting source", "task_id", t.ID, "source", src, "offset", st.Offset)

	for {
		if st.Exhausted() {
			slog.Info("source exhausted", "source", src, "offset", st.Offset, "collected", st.TotalCollected)
			return sourceExhausted, nil
		}
		if rem := r.remaining(*t); rem == 0 {
			return sourceCapped, nil
		}

		page, err := r.fetchPage(ctx, src, st.Offset)
		if err != nil {
			if ctx.Err() != nil {
				return sourceFailed, ctx.Err()
			}
			slog.Warn("source failed", "source", src, "offset", st.Offset, "error", err)
			result.SourceErrors = append(result.SourceErrors, models.SourceError{Source: src, Reason: err.Error()})
			return sourceFailed, nil
		}

		if len(page.Entries) == 0 {
			// The source reported more entries than it returns. Record the
			// (possibly revised) total so the exhaustion check terminates.
			st, err = r.progress.RecordPage(src, 0, page.Total, 0)
			if err != nil {
				return sourceFailed, err
			}
			if st.Offset >= page.Total {
				return sourceExhausted, nil
			}
			slog.Warn("source returned empty page before reported total", "source", src, "offset", st.Offset, "total", page.Total)
			return sourceExhausted, nil
		}

		consumed, batch := r.takeBatch(*t, src, page.Entries)

		added, err := r.papers.AddAll(batch)
		if err != nil {
			return sourceFailed, fmt.Errorf("store papers: %w", err)
		}
		// Checkpoint strictly after the batch is durable: the offset must
		// never advance past records that are not stored.
		st, err = r.progress.RecordPage(src, consumed, page.Total, added)
		if err != nil {
			return sourceFailed, fmt.Errorf("checkpoint source progress: %w", err)
		}

		totals := r.knownTotal(*t)
		if err := r.manager.SetProgress(t, t.Progress+added, totals); err != nil {
			return sourceFailed, err
		}
		result.NewPapers = t.Progress

		slog.Debug("page stored", "source", src, "offset", st.Offset,
			"fetched", consumed, "new", added, "total", page.Total)
	}
}

// takeBatch transforms entries into papers, consuming entries until the
// task's remaining new-paper budget is exhausted. It returns how many raw
// entries were consumed (which advances the offset) and the deduplicated
// batch to store, so a capped task stores exactly its budget.
func (r *Runner) takeBatch(t models.Task, src string, entries []RawEntry) (int, []models.Paper) {
	rem := r.remaining(t)
	seen := make(map[string]struct{}, len(entries))
	var batch []models.Paper

	consumed := 0
	for _, e := range entries {
		consumed++
		p := models.Paper{
			Title:      e.Title,
			Authors:    e.Authors,
			Venue:      e.Venue,
			Year:       e.Year,
			DOI:        e.DOI,
			Source:     src,
			IngestedAt: r.now().UTC(),
		}
		id := p.Identity()
		if _, dup := seen[id]; dup || r.papers.Has(id) {
			continue
		}
		seen[id] = struct{}{}
		batch = append(batch, p)
		if rem >= 0 && len(batch) >= rem {
			break
		}
	}
	return consumed, batch
}

// remaining returns the new-paper budget left for the task, or -1 when
// unbounded.
func (r *Runner) remaining(t models.Task) int {
	if t.Ingest.MaxEntries == nil {
		return -1
	}
	rem := *t.Ingest.MaxEntries - t.Progress
	if rem < 0 {
		rem = 0
	}
	return rem
}

// knownTotal sums the reported totals of the task's sources, once every
// source has reported one; before that the task total stays unknown.
func (r *Runner) knownTotal(t models.Task) *int {
	sum := 0
	for _, src := range t.Ingest.Sources {
		st := r.progress.GetOrCreate(src)
		if st.TotalAvailable == nil {
			return nil
		}
		sum += *st.TotalAvailable
	}
	if t.Ingest.MaxEntries != nil && sum > *t.Ingest.MaxEntries {
		sum = *t.Ingest.MaxEntries
	}
	return &sum
}

// fetchPage retries transient failures with exponential backoff within the
// configured attempt budget. Permanent failures abort immediately.
func (r *Runner) fetchPage(ctx context.Context, src string, offset int) (Page, error) {
	var page Page
	operation := func() error {
		start := r.now()
		p, err := r.fetcher.FetchPage(ctx, src, offset, r.cfg.PageSize)
		r.collector.RecordTiming(metrics.OpPageFetch, time.Since(start))
		if err != nil {
			if errors.Is(err, ErrPermanent) {
				return backoff.Permanent(err)
			}
			slog.Debug("page fetch failed, will retry", "source", src, "offset", offset, "error", err)
			return err
		}
		page = p
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.cfg.MaxAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return Page{}, err
	}
	return page, nil
}
