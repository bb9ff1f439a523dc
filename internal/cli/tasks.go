package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/enkerewpo/paperfinder/internal/models"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [task-id]",
	Short: "List or inspect ingestion tasks",
	Long: `List all ingestion tasks or inspect a specific task by ID.

Examples:
  paperfinder tasks            # List all tasks
  paperfinder tasks ab12cd34   # Show details for task ab12cd34`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTasks,
}

func runTasks(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return showTask(args[0])
	}
	return listTasks()
}

func listTasks() error {
	all := manager.List()
	if len(all) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	fmt.Printf("%-10s %-12s %-12s %-12s %s\n", "ID", "TYPE", "STATUS", "PROGRESS", "CREATED")
	fmt.Println("------------------------------------------------------------------------")

	for _, t := range all {
		progress := fmt.Sprintf("%d", t.Progress)
		if t.Total != nil {
			progress = fmt.Sprintf("%d/%d", t.Progress, *t.Total)
		}
		created := t.CreatedAt.Local().Format("Jan 02 15:04")
		fmt.Printf("%-10s %-12s %-12s %-12s %s\n", t.ID, t.Type, t.Status, progress, created)
	}
	return nil
}

func showTask(id string) error {
	t, err := manager.Get(id)
	if err != nil {
		return err
	}

	fmt.Printf("Task: %s\n", t.ID)
	fmt.Printf("  Type: %s\n", t.Type)
	fmt.Printf("  Status: %s\n", t.Status)
	if t.Total != nil {
		fmt.Printf("  Progress: %d/%d\n", t.Progress, *t.Total)
	} else {
		fmt.Printf("  Progress: %d\n", t.Progress)
	}
	fmt.Printf("  Created: %s\n", t.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Updated: %s\n", t.UpdatedAt.Format(time.RFC3339))
	if t.Status.Terminal() {
		fmt.Printf("  Duration: %s\n", t.UpdatedAt.Sub(t.CreatedAt).Round(time.Second))
	}
	if t.Status == models.TaskRunning {
		fmt.Printf("\nResume with: paperfinder fetch --resume-task %s\n", t.ID)
	}

	if t.Ingest != nil {
		fmt.Printf("\nSources (%d):\n", len(t.Ingest.Sources))
		for _, src := range t.Ingest.Sources {
			st := sources.GetOrCreate(src)
			fmt.Printf("  - %s\n    offset %d", src, st.Offset)
			if st.TotalAvailable != nil {
				fmt.Printf(" of %d", *st.TotalAvailable)
			}
			fmt.Printf(", %d collected\n", st.TotalCollected)
		}
		if t.Ingest.MaxEntries != nil {
			fmt.Printf("\nEntry budget: %d\n", *t.Ingest.MaxEntries)
		}
	}

	if t.Error != "" {
		fmt.Printf("\nError: %s\n", t.Error)
	}
	if t.Result != nil {
		fmt.Println("\nResult:")
		fmt.Printf("  New papers: %d\n", t.Result.NewPapers)
		if t.Result.Capped {
			fmt.Println("  Stopped at the entry budget.")
		}
		if len(t.Result.SourceErrors) > 0 {
			fmt.Printf("\n  Source errors (%d):\n", len(t.Result.SourceErrors))
			for _, se := range t.Result.SourceErrors {
				fmt.Printf("    - %s: %s\n", se.Source, se.Reason)
			}
		}
	}
	return nil
}
