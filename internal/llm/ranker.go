// Package llm ranks stored papers against a natural-language query using the
// DeepSeek chat-completions API (OpenAI-compatible wire format).
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/enkerewpo/paperfinder/internal/config"
	"github.com/enkerewpo/paperfinder/internal/metrics"
	"github.com/enkerewpo/paperfinder/internal/models"
)

// Ranker wraps a langchaingo model for paper ranking.
type Ranker struct {
	llm       llms.Model
	modelName string
	collector *metrics.Collector
}

// NewRanker creates a ranking client for the configured DeepSeek endpoint.
// collector may be nil.
func NewRanker(cfg config.Config, collector *metrics.Collector) (*Ranker, error) {
	if cfg.DeepSeekAPIKey == "" {
		return nil, fmt.Errorf("DeepSeek API key required (set DEEPSEEK_API_KEY)")
	}
	model, err := openai.New(
		openai.WithToken(cfg.DeepSeekAPIKey),
		openai.WithModel(cfg.DeepSeekModel),
		openai.WithBaseURL(cfg.DeepSeekAPIBase),
	)
	if err != nil {
		return nil, fmt.Errorf("create deepseek client: %w", err)
	}
	return &Ranker{llm: model, modelName: cfg.DeepSeekModel, collector: collector}, nil
}

const rankSystemPrompt = `You rank academic papers by relevance to a search intent.
You are given a numbered candidate list. Respond with a JSON array only, no prose:
[{"index": <candidate number>, "score": <relevance 0.0-1.0>, "reason": "<one short sentence>"}]
Include only candidates that are at least loosely relevant, ordered by descending score.`

// Rank scores the stored papers against prompt and returns at most topK
// results, best first.
func (r *Ranker) Rank(ctx context.Context, prompt string, papers []models.Paper, topK int) ([]models.RankedPaper, error) {
	if len(papers) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}

	userPrompt := fmt.Sprintf("Search intent: %s\n\nCandidates:\n%s\nReturn the %d most relevant candidates.",
		prompt, candidateList(papers), topK)

	start := time.Now()
	content, err := r.generate(ctx, rankSystemPrompt, userPrompt)
	r.collector.RecordTiming(metrics.OpRank, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("rank papers: %w", err)
	}

	ranked, err := parseRanking(content, papers, topK)
	if err != nil {
		return nil, fmt.Errorf("parse ranking response: %w", err)
	}
	slog.Debug("ranking complete", "model", r.modelName, "candidates", len(papers), "returned", len(ranked))
	return ranked, nil
}

func (r *Ranker) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}
	response, err := r.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return response.Choices[0].Content, nil
}

// candidateList renders papers as a numbered list, 1-based to match the
// indices the model is asked to return.
func candidateList(papers []models.Paper) string {
	var b strings.Builder
	for i, p := range papers {
		fmt.Fprintf(&b, "[%d] %s", i+1, p.Title)
		if len(p.Authors) > 0 {
			limit := len(p.Authors)
			if limit > 5 {
				limit = 5
			}
			fmt.Fprintf(&b, " by %s", strings.Join(p.Authors[:limit], ", "))
		}
		if p.Venue != "" {
			fmt.Fprintf(&b, " (%s", p.Venue)
			if p.Year != 0 {
				fmt.Fprintf(&b, " %d", p.Year)
			}
			b.WriteString(")")
		} else if p.Year != 0 {
			fmt.Fprintf(&b, " (%d)", p.Year)
		}
		b.WriteString("\n")
	}
	return b.String()
}

type rankItem struct {
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// parseRanking decodes the model's JSON array, tolerating surrounding code
// fences, and maps indices back onto the candidate papers. Out-of-range and
// duplicate indices are dropped.
func parseRanking(content string, papers []models.Paper, topK int) ([]models.RankedPaper, error) {
	var items []rankItem
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &items); err != nil {
		return nil, fmt.Errorf("expected a JSON array: %w", err)
	}

	seen := make(map[int]struct{}, len(items))
	ranked := make([]models.RankedPaper, 0, len(items))
	for _, item := range items {
		if item.Index < 1 || item.Index > len(papers) {
			continue
		}
		if _, dup := seen[item.Index]; dup {
			continue
		}
		seen[item.Index] = struct{}{}
		ranked = append(ranked, models.RankedPaper{
			Paper:  papers[item.Index-1],
			Score:  item.Score,
			Reason: item.Reason,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// stripCodeFence removes a surrounding markdown code fence, which models
// emit despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
