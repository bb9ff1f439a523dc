package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/enkerewpo/paperfinder/internal/dblp"
	"github.com/enkerewpo/paperfinder/internal/ingest"
	"github.com/enkerewpo/paperfinder/internal/models"
)

var (
	fetchSources     []string
	fetchSourcesFile string
	fetchPageSize    int
	fetchMaxEntries  int
	fetchResumeTask  string
	fetchDrain       bool
	fetchNoProgress  bool
	fetchForce       bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Ingest papers from DBLP source URLs",
	Long: `Ingest papers from one or more DBLP search query URLs into the local library.

Each invocation runs as a task. Interrupt it with Ctrl+C and the task stays
resumable: a later --resume-task picks up from the recorded page offsets
without refetching or duplicating stored papers.

Examples:
  paperfinder fetch --source-url "https://dblp.org/search/publ/api?q=raft+consensus"
  paperfinder fetch --sources-file queries.txt --max-entries 500
  paperfinder fetch --resume-task ab12cd34
  paperfinder fetch --drain`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringSliceVarP(&fetchSources, "source-url", "s", nil, "DBLP query URL to ingest (repeatable)")
	fetchCmd.Flags().StringVarP(&fetchSourcesFile, "sources-file", "F", "", "file with one source URL per line")
	fetchCmd.Flags().IntVar(&fetchPageSize, "page-size", 200, "entries requested per API page")
	fetchCmd.Flags().IntVarP(&fetchMaxEntries, "max-entries", "n", 0, "stop after storing this many new papers (0 = unlimited)")
	fetchCmd.Flags().StringVarP(&fetchResumeTask, "resume-task", "r", "", "resume an existing task instead of creating one")
	fetchCmd.Flags().BoolVar(&fetchDrain, "drain", false, "run all pending and running tasks in creation order")
	fetchCmd.Flags().BoolVar(&fetchNoProgress, "no-progress", false, "disable the interactive progress display")
	fetchCmd.Flags().BoolVarP(&fetchForce, "force", "f", false, "resume a task that still looks running")
}

func runFetch(cmd *cobra.Command, args []string) error {
	if fetchDrain {
		return runDrain()
	}

	t, err := fetchTask()
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		fmt.Printf("Task %s is already %s, nothing to do.\n", t.ID, t.Status)
		printTaskResult(t)
		return nil
	}

	runner := newIngestRunner()
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan runOutcome, 1)
	go func() {
		final, err := runner.Run(runCtx, t)
		done <- runOutcome{task: final, err: err}
	}()

	if useProgressUI() {
		return runIngestProgress(manager, t.ID, cancel, done)
	}
	return waitPlain(t.ID, cancel, done)
}

func newIngestRunner() *ingest.Runner {
	return ingest.NewRunner(manager, papers, sources,
		dblp.NewClient(cfg.HTTPTimeout),
		ingest.Config{PageSize: fetchPageSize},
		collector)
}

// runDrain runs every pending and running task in creation order. SIGINT
// stops after the current page and leaves the interrupted task resumable.
func runDrain() error {
	if len(fetchSources) > 0 || fetchSourcesFile != "" || fetchResumeTask != "" {
		return fmt.Errorf("--drain cannot be combined with source or resume flags")
	}
	queue := manager.Drain()
	if len(queue) == 0 {
		fmt.Println("No pending or running tasks.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := newIngestRunner()
	var failed int
	for _, t := range queue {
		if err := manager.CheckResumable(t, cfg.StaleAfter, fetchForce); err != nil {
			fmt.Printf("Skipping task %s: %v\n", t.ID, err)
			continue
		}
		fmt.Printf("Running task %s\n", t.ID)
		final, err := runner.Run(ctx, t)
		if rerr := reportOutcome(t.ID, runOutcome{task: final, err: err}); rerr != nil {
			failed++
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d task(s) failed", failed)
	}
	return nil
}

// fetchTask resolves the task to run: the one named by --resume-task, or a
// freshly enqueued one from the source flags.
func fetchTask() (models.Task, error) {
	if fetchResumeTask != "" {
		if len(fetchSources) > 0 || fetchSourcesFile != "" {
			return models.Task{}, fmt.Errorf("--resume-task cannot be combined with source flags")
		}
		t, err := manager.Resume(fetchResumeTask)
		if err != nil {
			return models.Task{}, err
		}
		if err := manager.CheckResumable(t, cfg.StaleAfter, fetchForce); err != nil {
			return models.Task{}, fmt.Errorf("%w (rerun with --force to take it over)", err)
		}
		return t, nil
	}

	srcs, err := resolveSources()
	if err != nil {
		return models.Task{}, err
	}
	payload := models.IngestPayload{Sources: srcs}
	if fetchMaxEntries > 0 {
		payload.MaxEntries = &fetchMaxEntries
	}
	t, err := manager.Enqueue(models.TaskTypeIngest, payload)
	if err != nil {
		return models.Task{}, err
	}
	fmt.Printf("Created task %s (%d sources)\n", t.ID, len(srcs))
	return t, nil
}

func resolveSources() ([]string, error) {
	if len(fetchSources) > 0 && fetchSourcesFile != "" {
		return nil, fmt.Errorf("--source-url and --sources-file are mutually exclusive")
	}
	if len(fetchSources) > 0 {
		return dedupeSources(fetchSources), nil
	}
	if fetchSourcesFile == "" {
		return nil, fmt.Errorf("provide --source-url, --sources-file, or --resume-task")
	}
	return loadSourcesFile(fetchSourcesFile)
}

// loadSourcesFile reads one source URL per line, skipping blanks and
// # comments.
func loadSourcesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var srcs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		srcs = append(srcs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	if len(srcs) == 0 {
		return nil, fmt.Errorf("no source URLs in %s", path)
	}
	return dedupeSources(srcs), nil
}

func dedupeSources(srcs []string) []string {
	seen := make(map[string]struct{}, len(srcs))
	out := srcs[:0]
	for _, s := range srcs {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func useProgressUI() bool {
	return !fetchNoProgress && term.IsTerminal(int(os.Stdout.Fd()))
}

// waitPlain blocks until the run finishes, translating SIGINT/SIGTERM into a
// context cancel so the task is left resumable.
func waitPlain(taskID string, cancel context.CancelFunc, done <-chan runOutcome) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	for {
		select {
		case <-sig:
			fmt.Fprintln(os.Stderr, "Interrupting, task stays resumable...")
			cancel()
		case o := <-done:
			return reportOutcome(taskID, o)
		}
	}
}

// runOutcome carries the runner's final task state back to the CLI.
type runOutcome struct {
	task models.Task
	err  error
}

func reportOutcome(taskID string, o runOutcome) error {
	if o.err != nil {
		if o.task.Status == models.TaskRunning {
			fmt.Printf("Task %s interrupted.\nResume with: paperfinder fetch --resume-task %s\n", taskID, taskID)
			return nil
		}
		return o.err
	}
	switch o.task.Status {
	case models.TaskCompleted:
		fmt.Printf("Task %s completed.\n", taskID)
	case models.TaskFailed:
		fmt.Printf("Task %s failed: %s\n", taskID, o.task.Error)
	}
	printTaskResult(o.task)
	if o.task.Status == models.TaskFailed {
		return fmt.Errorf("task %s failed", taskID)
	}
	return nil
}

func printTaskResult(t models.Task) {
	if t.Result == nil {
		return
	}
	r := t.Result
	fmt.Printf("  New papers: %d\n", r.NewPapers)
	if r.Capped {
		fmt.Println("  Stopped at the --max-entries budget.")
	}
	if len(r.SourceErrors) > 0 {
		fmt.Printf("  Source errors (%d):\n", len(r.SourceErrors))
		for _, se := range r.SourceErrors {
			fmt.Printf("    - %s: %s\n", se.Source, se.Reason)
		}
	}
}
