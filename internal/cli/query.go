package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/enkerewpo/paperfinder/internal/llm"
)

var (
	queryTopK        int
	queryJSON        bool
	queryFilterTitle string
)

var queryCmd = &cobra.Command{
	Use:   "query <prompt>",
	Short: "Rank the stored papers against a prompt with an LLM",
	Long: `Rank the local paper library against a natural-language prompt using the
configured DeepSeek model and print the best matches with scores and reasons.

Requires DEEPSEEK_API_KEY.

Examples:
  paperfinder query "consensus protocols tolerant of byzantine faults"
  paperfinder query "serverless cold starts" --top-k 5
  paperfinder query "raft" --filter-title raft --json`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 10, "number of results to return")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print results as JSON")
	queryCmd.Flags().StringVar(&queryFilterTitle, "filter-title", "", "only rank papers whose title contains this substring")
}

func runQuery(cmd *cobra.Command, args []string) error {
	prompt := args[0]

	candidates := papers.List()
	if queryFilterTitle != "" {
		candidates = papers.FilterByTitle(queryFilterTitle)
	}
	if len(candidates) == 0 {
		fmt.Println("No papers in the library. Run 'paperfinder fetch' first.")
		return nil
	}

	ranker, err := llm.NewRanker(cfg, collector)
	if err != nil {
		return err
	}

	ctx := context.Background()
	ranked, err := ranker.Rank(ctx, prompt, candidates, queryTopK)
	if err != nil {
		return err
	}
	if len(ranked) == 0 {
		fmt.Println("The model found no relevant papers for this prompt.")
		return nil
	}

	if queryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ranked)
	}

	fmt.Printf("Top %d of %d candidates:\n\n", len(ranked), len(candidates))
	for i, r := range ranked {
		fmt.Printf("%2d. [%.2f] %s\n", i+1, r.Score, r.Title)
		if r.Venue != "" || r.Year != 0 {
			fmt.Printf("      %s %d", r.Venue, r.Year)
			if r.DOI != "" {
				fmt.Printf("  doi:%s", r.DOI)
			}
			fmt.Println()
		}
		if r.Reason != "" {
			fmt.Printf("      %s\n", r.Reason)
		}
	}
	return nil
}
