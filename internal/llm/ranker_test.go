package llm

import (
	"strings"
	"testing"

	"github.com/enkerewpo/paperfinder/internal/models"
)

func samplePapers() []models.Paper {
	return []models.Paper{
		{Title: "Raft Refloated", Venue: "OSR", Year: 2015},
		{Title: "Paxos Made Simple", Year: 2001},
		{Title: "Viewstamped Replication Revisited", Year: 2012},
	}
}

func TestParseRankingPlainJSON(t *testing.T) {
	content := `[{"index": 2, "score": 0.9, "reason": "classic"}, {"index": 1, "score": 0.4, "reason": "survey"}]`
	ranked, err := parseRanking(content, samplePapers(), 10)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d results, want 2", len(ranked))
	}
	if ranked[0].Title != "Paxos Made Simple" || ranked[0].Score != 0.9 {
		t.Errorf("best = %q (%.1f), want Paxos Made Simple (0.9)", ranked[0].Title, ranked[0].Score)
	}
	if ranked[1].Title != "Raft Refloated" {
		t.Errorf("second = %q, want Raft Refloated", ranked[1].Title)
	}
}

func TestParseRankingFencedJSON(t *testing.T) {
	content := "```json\n[{\"index\": 3, \"score\": 1.0, \"reason\": \"exact match\"}]\n```"
	ranked, err := parseRanking(content, samplePapers(), 10)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ranked) != 1 || ranked[0].Title != "Viewstamped Replication Revisited" {
		t.Errorf("ranked = %+v", ranked)
	}
}

func TestParseRankingDropsInvalidIndices(t *testing.T) {
	content := `[
		{"index": 0, "score": 0.9},
		{"index": 4, "score": 0.9},
		{"index": 2, "score": 0.8},
		{"index": 2, "score": 0.1}
	]`
	ranked, err := parseRanking(content, samplePapers(), 10)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ranked) != 1 || ranked[0].Title != "Paxos Made Simple" || ranked[0].Score != 0.8 {
		t.Errorf("ranked = %+v, want only index 2 with its first score", ranked)
	}
}

func TestParseRankingClampsTopK(t *testing.T) {
	content := `[{"index":1,"score":0.3},{"index":2,"score":0.9},{"index":3,"score":0.6}]`
	ranked, err := parseRanking(content, samplePapers(), 2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d results, want 2", len(ranked))
	}
	if ranked[0].Score != 0.9 || ranked[1].Score != 0.6 {
		t.Errorf("scores = %.1f, %.1f; want descending 0.9, 0.6", ranked[0].Score, ranked[1].Score)
	}
}

func TestParseRankingRejectsProse(t *testing.T) {
	if _, err := parseRanking("Here are the papers you asked for.", samplePapers(), 5); err == nil {
		t.Fatal("expected error for non-JSON content")
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`[1]`, `[1]`},
		{"```json\n[1]\n```", `[1]`},
		{"```\n[1]\n```", `[1]`},
		{"  \n```json\n[1, 2]\n```\n", `[1, 2]`},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCandidateListNumbersFromOne(t *testing.T) {
	list := candidateList(samplePapers())
	for _, want := range []string{"[1] Raft Refloated", "[2] Paxos Made Simple", "[3] Viewstamped"} {
		if !strings.Contains(list, want) {
			t.Errorf("candidate list missing %q:\n%s", want, list)
		}
	}
}
