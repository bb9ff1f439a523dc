package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/enkerewpo/paperfinder/internal/models"
)

var (
	listLimit   int
	listPattern string
	listJSON    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List papers, sources, or authors",
	Long: `List the contents of the local library.

Subcommands:
  papers    List stored papers (default)
  sources   List ingested sources with pagination state
  authors   List authors with paper counts

Examples:
  paperfinder list
  paperfinder list papers --pattern raft
  paperfinder list sources
  paperfinder list authors --limit 10`,
	RunE: runList,
}

var listPapersCmd = &cobra.Command{
	Use:   "papers",
	Short: "List stored papers",
	RunE:  runListPapers,
}

var listSourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested sources with pagination state",
	RunE:  runListSources,
}

var listAuthorsCmd = &cobra.Command{
	Use:   "authors",
	Short: "List authors with paper counts",
	RunE:  runListAuthors,
}

func init() {
	for _, c := range []*cobra.Command{listCmd, listPapersCmd, listSourcesCmd, listAuthorsCmd} {
		c.Flags().IntVarP(&listLimit, "limit", "n", 20, "max results (0 = all)")
		c.Flags().StringVarP(&listPattern, "pattern", "p", "", "case-insensitive substring filter")
		c.Flags().BoolVar(&listJSON, "json", false, "print results as JSON")
	}

	listCmd.AddCommand(listPapersCmd)
	listCmd.AddCommand(listSourcesCmd)
	listCmd.AddCommand(listAuthorsCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	// If no subcommand, list papers
	return runListPapers(cmd, args)
}

func runListPapers(cmd *cobra.Command, args []string) error {
	all := papers.List()
	if listPattern != "" {
		all = papers.FilterByTitle(listPattern)
	}
	total := len(all)
	if listLimit > 0 && len(all) > listLimit {
		all = all[:listLimit]
	}

	if listJSON {
		return printJSON(all)
	}
	if total == 0 {
		fmt.Println("No papers found.")
		return nil
	}

	fmt.Printf("Papers (%d of %d):\n\n", len(all), total)
	for _, p := range all {
		fmt.Printf("- %s", p.Title)
		if p.Year != 0 {
			fmt.Printf(" (%d)", p.Year)
		}
		fmt.Println()
		if verbose {
			if len(p.Authors) > 0 {
				fmt.Printf("  %s\n", strings.Join(p.Authors, ", "))
			}
			if p.Venue != "" {
				fmt.Printf("  Venue: %s\n", p.Venue)
			}
			if p.DOI != "" {
				fmt.Printf("  DOI: %s\n", p.DOI)
			}
		}
	}
	return nil
}

func runListSources(cmd *cobra.Command, args []string) error {
	all := sources.List()
	if listPattern != "" {
		filtered := all[:0]
		for _, s := range all {
			if strings.Contains(strings.ToLower(s.SourceURL), strings.ToLower(listPattern)) {
				filtered = append(filtered, s)
			}
		}
		all = filtered
	}

	if listJSON {
		return printJSON(all)
	}
	if len(all) == 0 {
		fmt.Println("No sources found.")
		return nil
	}

	fmt.Printf("Sources (%d):\n\n", len(all))
	for _, s := range all {
		state := "in progress"
		if s.Exhausted() {
			state = "exhausted"
		}
		fmt.Printf("- %s\n  offset %d", s.SourceURL, s.Offset)
		if s.TotalAvailable != nil {
			fmt.Printf(" of %d", *s.TotalAvailable)
		}
		fmt.Printf(", %d collected [%s]\n", s.TotalCollected, state)
	}
	return nil
}

type authorCount struct {
	Author string `json:"author"`
	Count  int    `json:"count"`
}

func runListAuthors(cmd *cobra.Command, args []string) error {
	counts := make(map[string]int)
	for _, p := range papers.List() {
		for _, a := range p.Authors {
			if listPattern != "" && !strings.Contains(strings.ToLower(a), strings.ToLower(listPattern)) {
				continue
			}
			counts[a]++
		}
	}

	ranked := make([]authorCount, 0, len(counts))
	for a, n := range counts {
		ranked = append(ranked, authorCount{Author: a, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Author < ranked[j].Author
	})
	if listLimit > 0 && len(ranked) > listLimit {
		ranked = ranked[:listLimit]
	}

	if listJSON {
		return printJSON(ranked)
	}
	if len(ranked) == 0 {
		fmt.Println("No authors found.")
		return nil
	}

	fmt.Printf("Authors (%d):\n\n", len(ranked))
	for _, ac := range ranked {
		fmt.Printf("- %s (%d)\n", ac.Author, ac.Count)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if v == nil {
		v = []models.Paper{}
	}
	return enc.Encode(v)
}
