// Package cli provides the command-line interface for paperfinder.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/enkerewpo/paperfinder/internal/config"
	"github.com/enkerewpo/paperfinder/internal/metrics"
	"github.com/enkerewpo/paperfinder/internal/store"
	"github.com/enkerewpo/paperfinder/internal/task"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and stores, opened once per invocation
	cfg        config.Config
	papers     *store.PaperStore
	sources    *store.ProgressStore
	tasks      *store.TaskStore
	manager    *task.Manager
	collector  = metrics.NewCollector()
	logCleanup = func() error { return nil }
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "paperfinder",
	Short: "Collect and rank academic papers from DBLP",
	Long: `Paperfinder ingests bibliographic records from DBLP search queries into a
local library, deduplicates them across sources, and ranks the collection
against natural-language prompts with an LLM.

Ingestion runs as resumable tasks: interrupt a fetch at any point and resume
it later without refetching or duplicating what is already stored.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Stores are not needed for version and help output
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, cleanup := config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		logCleanup = cleanup

		if papers, err = store.OpenPaperStore(cfg.PapersPath()); err != nil {
			return fmt.Errorf("open paper store: %w", err)
		}
		if sources, err = store.OpenProgressStore(cfg.StatePath()); err != nil {
			return fmt.Errorf("open ingestion state: %w", err)
		}
		if tasks, err = store.OpenTaskStore(cfg.TasksPath()); err != nil {
			return fmt.Errorf("open task store: %w", err)
		}
		manager = task.NewManager(tasks)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := logCleanup(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(statsCmd)
}
