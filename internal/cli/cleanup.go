package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	cleanupPattern string
	cleanupSource  string
	cleanupDryRun  bool
	cleanupForce   bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove sources and their papers from the library",
	Long: `Remove ingested sources, their pagination state, and the papers that came
from them.

Select sources either by --pattern (case-insensitive substring of the source
URL) or by an exact --source-url. Requires confirmation unless --force is
used; --dry-run shows what would be removed.

Examples:
  paperfinder cleanup --pattern "q=quantum"
  paperfinder cleanup --source-url "https://dblp.org/search/publ/api?q=raft" --force
  paperfinder cleanup --pattern dblp.org --dry-run`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVarP(&cleanupPattern, "pattern", "p", "", "remove sources whose URL contains this substring")
	cleanupCmd.Flags().StringVarP(&cleanupSource, "source-url", "s", "", "remove this exact source URL")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "show what would be removed without removing it")
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "skip confirmation")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if (cleanupPattern == "") == (cleanupSource == "") {
		return fmt.Errorf("provide exactly one of --pattern or --source-url")
	}

	victims := matchSources()
	if len(victims) == 0 {
		fmt.Println("No matching sources.")
		return nil
	}

	paperCount := papers.CountBySources(victims)
	fmt.Printf("Matched %d source(s), %d paper(s):\n", len(victims), paperCount)
	for _, src := range victims {
		fmt.Printf("  - %s\n", src)
	}

	if cleanupDryRun {
		fmt.Println("\nDry run, nothing removed.")
		return nil
	}

	if !cleanupForce {
		fmt.Print("\nContinue? [y/N]: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// Papers first so an interrupted cleanup leaves the state referring to
	// sources that merely look refetchable.
	removed, err := papers.DeleteBySources(victims)
	if err != nil {
		return fmt.Errorf("delete papers: %w", err)
	}
	for _, src := range victims {
		if _, err := sources.DeleteBySource(src); err != nil {
			return fmt.Errorf("delete source state: %w", err)
		}
	}

	fmt.Printf("Removed %d source(s) and %d paper(s).\n", len(victims), removed)
	return nil
}

func matchSources() []string {
	if cleanupSource != "" {
		for _, s := range sources.List() {
			if s.SourceURL == cleanupSource {
				return []string{cleanupSource}
			}
		}
		return nil
	}
	var victims []string
	needle := strings.ToLower(cleanupPattern)
	for _, s := range sources.List() {
		if strings.Contains(strings.ToLower(s.SourceURL), needle) {
			victims = append(victims, s.SourceURL)
		}
	}
	return victims
}
