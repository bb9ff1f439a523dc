package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/enkerewpo/paperfinder/internal/metrics"
	"github.com/enkerewpo/paperfinder/internal/models"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library statistics",
	Long: `Show counts for the local library: stored papers, ingested sources, and
tasks by status.

Examples:
  paperfinder stats`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	fmt.Printf("Library Statistics\n")
	fmt.Printf("═══════════════════════════════════════\n")
	fmt.Printf("Papers:  %d\n", papers.Len())

	authors := make(map[string]struct{})
	for _, p := range papers.List() {
		for _, a := range p.Authors {
			authors[a] = struct{}{}
		}
	}
	fmt.Printf("Authors: %d\n", len(authors))

	srcs := sources.List()
	exhausted := 0
	for _, s := range srcs {
		if s.Exhausted() {
			exhausted++
		}
	}
	fmt.Printf("Sources: %d (%d exhausted)\n", len(srcs), exhausted)

	byStatus := make(map[models.TaskStatus]int)
	all := manager.List()
	for _, t := range all {
		byStatus[t.Status]++
	}
	fmt.Printf("Tasks:   %d\n", len(all))
	for _, st := range []models.TaskStatus{models.TaskPending, models.TaskRunning, models.TaskCompleted, models.TaskFailed} {
		if n := byStatus[st]; n > 0 {
			fmt.Printf("  %-10s %d\n", st, n)
		}
	}

	if snap := collector.Snapshot(); len(snap) > 0 {
		fmt.Printf("\nOperations (this invocation):\n")
		names := make([]string, 0, len(snap))
		for op := range snap {
			names = append(names, op)
		}
		sort.Strings(names)
		for _, op := range names {
			fmt.Printf("\n%s:\n", op)
			printOpStats(snap[op])
		}
	}
	return nil
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}
