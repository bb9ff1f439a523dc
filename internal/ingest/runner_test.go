package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/enkerewpo/paperfinder/internal/models"
	"github.com/enkerewpo/paperfinder/internal/store"
	"github.com/enkerewpo/paperfinder/internal/task"
)

// fakeSource simulates one paginated endpoint.
type fakeSource struct {
	entries   []RawEntry
	failWith  error // returned on every fetch when set
	failTimes int   // transient failures before fetches start succeeding
}

// fakeFetcher serves deterministic pages and logs every call.
type fakeFetcher struct {
	sources map[string]*fakeSource
	calls   []string
}

func (f *fakeFetcher) FetchPage(_ context.Context, src string, offset, pageSize int) (Page, error) {
	f.calls = append(f.calls, fmt.Sprintf("%s@%d", src, offset))
	s, ok := f.sources[src]
	if !ok {
		return Page{}, Permanent(fmt.Errorf("unknown source %s", src))
	}
	if s.failTimes > 0 {
		s.failTimes--
		return Page{}, Transient(errors.New("connection reset"))
	}
	if s.failWith != nil {
		return Page{}, s.failWith
	}
	end := offset + pageSize
	if end > len(s.entries) {
		end = len(s.entries)
	}
	if offset > end {
		offset = end
	}
	return Page{Total: len(s.entries), Entries: s.entries[offset:end]}, nil
}

func (f *fakeFetcher) callsFor(src string) int {
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(src) && c[:len(src)] == src {
			n++
		}
	}
	return n
}

func corpus(tag string, n int) []RawEntry {
	entries := make([]RawEntry, n)
	for i := range entries {
		entries[i] = RawEntry{
			Title: fmt.Sprintf("%s Paper %04d", tag, i),
			Venue: "TEST",
			Year:  2023,
		}
	}
	return entries
}

type harness struct {
	manager  *task.Manager
	papers   *store.PaperStore
	progress *store.ProgressStore
	fetcher  *fakeFetcher
	runner   *Runner
}

func newHarness(t *testing.T, sources map[string]*fakeSource) *harness {
	t.Helper()
	dir := t.TempDir()

	papers, err := store.OpenPaperStore(filepath.Join(dir, "papers.json"))
	if err != nil {
		t.Fatal(err)
	}
	progress, err := store.OpenProgressStore(filepath.Join(dir, "ingestion_state.json"))
	if err != nil {
		t.Fatal(err)
	}
	tasks, err := store.OpenTaskStore(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatal(err)
	}

	manager := task.NewManager(tasks)
	fetcher := &fakeFetcher{sources: sources}
	cfg := Config{PageSize: 200, MaxAttempts: 3, InitialBackoff: time.Millisecond}
	return &harness{
		manager:  manager,
		papers:   papers,
		progress: progress,
		fetcher:  fetcher,
		runner:   NewRunner(manager, papers, progress, fetcher, cfg, nil),
	}
}

func (h *harness) enqueue(t *testing.T, maxEntries *int, sources ...string) models.Task {
	t.Helper()
	created, err := h.manager.Enqueue(models.TaskTypeIngest, models.IngestPayload{Sources: sources, MaxEntries: maxEntries})
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func TestRunPaginatesToExhaustion(t *testing.T) {
	src := "https://dblp.org/search/publ/api?q=stream:conf/nips:2023"
	h := newHarness(t, map[string]*fakeSource{src: {entries: corpus("nips", 450)}})

	created := h.enqueue(t, nil, src)
	final, err := h.runner.Run(context.Background(), created)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// 450 entries at page size 200: fetches at offsets 0, 200, 400.
	want := []string{src + "@0", src + "@200", src + "@400"}
	if len(h.fetcher.calls) != len(want) {
		t.Fatalf("fetch calls = %v, want %v", h.fetcher.calls, want)
	}
	for i := range want {
		if h.fetcher.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, h.fetcher.calls[i], want[i])
		}
	}

	st := h.progress.GetOrCreate(src)
	if st.Offset != 450 || !st.Exhausted() {
		t.Errorf("final state = offset %d, exhausted %v; want 450, true", st.Offset, st.Exhausted())
	}
	if h.papers.Len() != 450 {
		t.Errorf("papers stored = %d, want 450", h.papers.Len())
	}
	if final.Status != models.TaskCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.Progress != 450 || final.Total == nil || *final.Total != 450 {
		t.Errorf("progress/total = %d/%v, want 450/450", final.Progress, final.Total)
	}
}

func TestResumeWithExhaustedSourcesDoesNothing(t *testing.T) {
	src := "src-a"
	h := newHarness(t, map[string]*fakeSource{src: {entries: corpus("a", 30)}})

	first := h.enqueue(t, nil, src)
	if _, err := h.runner.Run(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	storedBefore := h.papers.Len()
	h.fetcher.calls = nil

	// A later task over the same, already-exhausted source: zero fetches,
	// stores untouched.
	second := h.enqueue(t, nil, src)
	final, err := h.runner.Run(context.Background(), second)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.fetcher.calls) != 0 {
		t.Errorf("expected zero fetches, got %v", h.fetcher.calls)
	}
	if h.papers.Len() != storedBefore {
		t.Errorf("paper count changed: %d -> %d", storedBefore, h.papers.Len())
	}
	if final.Status != models.TaskCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
}

func TestRunSkipsTerminalTask(t *testing.T) {
	src := "src-a"
	h := newHarness(t, map[string]*fakeSource{src: {entries: corpus("a", 5)}})

	created := h.enqueue(t, nil, src)
	if err := h.manager.Complete(&created, models.TaskResult{NewPapers: 5}); err != nil {
		t.Fatal(err)
	}

	final, err := h.runner.Run(context.Background(), created)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.fetcher.calls) != 0 {
		t.Errorf("terminal task must not fetch, got %v", h.fetcher.calls)
	}
	if final.Status != models.TaskCompleted {
		t.Errorf("status = %s, want completed unchanged", final.Status)
	}
}

func TestMaxEntriesCapIsExact(t *testing.T) {
	srcA, srcB := "src-a", "src-b"
	h := newHarness(t, map[string]*fakeSource{
		srcA: {entries: corpus("a", 300)},
		srcB: {entries: corpus("b", 300)},
	})

	budget := 250
	created := h.enqueue(t, &budget, srcA, srcB)
	final, err := h.runner.Run(context.Background(), created)
	if err != nil {
		t.Fatal(err)
	}

	// Exactly K papers: the second page is trimmed to the remaining budget.
	if h.papers.Len() != 250 {
		t.Errorf("papers stored = %d, want exactly 250", h.papers.Len())
	}
	if st := h.progress.GetOrCreate(srcA); st.Offset != 250 {
		t.Errorf("offset advanced to %d, want 250 (only consumed entries count)", st.Offset)
	}
	if h.fetcher.callsFor(srcB) != 0 {
		t.Error("remaining sources must be abandoned once the cap is hit")
	}
	if final.Status != models.TaskCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.Result == nil || !final.Result.Capped {
		t.Errorf("capped indicator missing: %+v", final.Result)
	}
}

func TestOneFailedSourceDoesNotAbortTask(t *testing.T) {
	srcBad, srcGood := "src-bad", "src-good"
	h := newHarness(t, map[string]*fakeSource{
		srcBad:  {failWith: Permanent(errors.New("authentication failure"))},
		srcGood: {entries: corpus("good", 10)},
	})

	created := h.enqueue(t, nil, srcBad, srcGood)
	final, err := h.runner.Run(context.Background(), created)
	if err != nil {
		t.Fatal(err)
	}

	if h.fetcher.callsFor(srcBad) != 1 {
		t.Errorf("permanent failure fetched %d times, want 1 (no retries)", h.fetcher.callsFor(srcBad))
	}
	if final.Status != models.TaskCompleted {
		t.Errorf("status = %s, want completed (partial success)", final.Status)
	}
	if final.Result == nil || len(final.Result.SourceErrors) != 1 || final.Result.SourceErrors[0].Source != srcBad {
		t.Errorf("source error list = %+v, want one entry for %s", final.Result, srcBad)
	}
	if h.papers.Len() != 10 {
		t.Errorf("papers stored = %d, want 10", h.papers.Len())
	}
}

func TestAllSourcesFailedFailsTask(t *testing.T) {
	h := newHarness(t, map[string]*fakeSource{
		"src-1": {failWith: Permanent(errors.New("bad url"))},
		"src-2": {failWith: Permanent(errors.New("forbidden"))},
	})

	created := h.enqueue(t, nil, "src-1", "src-2")
	final, err := h.runner.Run(context.Background(), created)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.TaskFailed {
		t.Errorf("status = %s, want failed when every source failed", final.Status)
	}
	if final.Result == nil || len(final.Result.SourceErrors) != 2 {
		t.Errorf("want 2 source errors, got %+v", final.Result)
	}
}

func TestTransientFailuresAreRetried(t *testing.T) {
	src := "src-flaky"
	h := newHarness(t, map[string]*fakeSource{src: {entries: corpus("f", 10), failTimes: 2}})

	created := h.enqueue(t, nil, src)
	final, err := h.runner.Run(context.Background(), created)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.TaskCompleted {
		t.Errorf("status = %s, want completed after retries", final.Status)
	}
	// Two transient failures, then the successful attempt.
	if got := h.fetcher.callsFor(src); got != 3 {
		t.Errorf("fetch attempts = %d, want 3", got)
	}
	if h.papers.Len() != 10 {
		t.Errorf("papers stored = %d, want 10", h.papers.Len())
	}
}

func TestRetryBudgetExhaustion(t *testing.T) {
	src := "src-down"
	h := newHarness(t, map[string]*fakeSource{src: {entries: corpus("d", 10), failTimes: 10}})

	created := h.enqueue(t, nil, src)
	final, err := h.runner.Run(context.Background(), created)
	if err != nil {
		t.Fatal(err)
	}
	// MaxAttempts is 3; the budget runs out and the only source fails.
	if got := h.fetcher.callsFor(src); got != 3 {
		t.Errorf("fetch attempts = %d, want 3", got)
	}
	if final.Status != models.TaskFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
}

func TestRefetchAfterLostCheckpointCreatesNoDuplicates(t *testing.T) {
	src := "src-a"
	entries := corpus("a", 450)
	h := newHarness(t, map[string]*fakeSource{src: {entries: entries}})

	// Simulate a crash after the first page's papers were stored but before
	// the checkpoint was acknowledged: papers exist, offset is still 0.
	firstPage := make([]models.Paper, 200)
	for i, e := range entries[:200] {
		firstPage[i] = models.Paper{Title: e.Title, Venue: e.Venue, Year: e.Year, Source: src, IngestedAt: time.Now()}
	}
	if _, err := h.papers.AddAll(firstPage); err != nil {
		t.Fatal(err)
	}

	created := h.enqueue(t, nil, src)
	final, err := h.runner.Run(context.Background(), created)
	if err != nil {
		t.Fatal(err)
	}

	// The first page is re-fetched, but identity dedup keeps the store clean.
	if h.papers.Len() != 450 {
		t.Errorf("papers stored = %d, want 450 (no duplicates)", h.papers.Len())
	}
	if st := h.progress.GetOrCreate(src); st.Offset != 450 {
		t.Errorf("offset = %d, want 450", st.Offset)
	}
	// Only 250 of the task's stores were new.
	if final.Progress != 250 {
		t.Errorf("task progress = %d, want 250 newly stored", final.Progress)
	}
}

func TestDedupAcrossSources(t *testing.T) {
	shared := corpus("shared", 20)
	h := newHarness(t, map[string]*fakeSource{
		"src-1": {entries: shared},
		"src-2": {entries: append(append([]RawEntry{}, shared...), corpus("extra", 5)...)},
	})

	created := h.enqueue(t, nil, "src-1", "src-2")
	if _, err := h.runner.Run(context.Background(), created); err != nil {
		t.Fatal(err)
	}
	if h.papers.Len() != 25 {
		t.Errorf("papers stored = %d, want 25 (global dedup)", h.papers.Len())
	}
}

func TestEmptyPageBeforeReportedTotalTerminates(t *testing.T) {
	src := "src-short"
	h := newHarness(t, map[string]*fakeSource{src: {entries: nil}})
	// A source that claims entries but returns none must not loop forever.
	h.fetcher.sources[src] = &fakeSource{entries: nil}

	created := h.enqueue(t, nil, src)
	final, err := h.runner.Run(context.Background(), created)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.TaskCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if got := h.fetcher.callsFor(src); got != 1 {
		t.Errorf("fetch calls = %d, want 1", got)
	}
}

func TestInterruptionLeavesTaskRunning(t *testing.T) {
	src := "src-a"
	h := newHarness(t, map[string]*fakeSource{src: {entries: corpus("a", 450)}})

	ctx, cancel := context.WithCancel(context.Background())
	interrupting := &cancelAfterFetcher{inner: h.fetcher, cancel: cancel, after: 1}
	h.runner = NewRunner(h.manager, h.papers, h.progress, interrupting,
		Config{PageSize: 200, MaxAttempts: 3, InitialBackoff: time.Millisecond}, nil)

	created := h.enqueue(t, nil, src)
	_, err := h.runner.Run(ctx, created)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("run error = %v, want context.Canceled", err)
	}

	stored, err := h.manager.Get(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.TaskRunning {
		t.Errorf("status = %s, want running (resumable after interruption)", stored.Status)
	}
	// The completed page was checkpointed before the interruption.
	if st := h.progress.GetOrCreate(src); st.Offset != 200 {
		t.Errorf("offset = %d, want 200", st.Offset)
	}
}

// cancelAfterFetcher cancels the run's context after a number of successful
// fetches, simulating a process terminated between pages.
type cancelAfterFetcher struct {
	inner  *fakeFetcher
	cancel context.CancelFunc
	after  int
	served int
}

func (f *cancelAfterFetcher) FetchPage(ctx context.Context, src string, offset, pageSize int) (Page, error) {
	if f.served >= f.after {
		f.cancel()
		return Page{}, Transient(ctx.Err())
	}
	f.served++
	return f.inner.FetchPage(ctx, src, offset, pageSize)
}
