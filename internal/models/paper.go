// Package models defines the persisted data types for paperfinder.
package models

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Paper is one bibliographic record ingested from a source endpoint.
// Papers are immutable once stored; later ingestions of the same identity
// are no-ops (first write wins).
type Paper struct {
	Title      string    `json:"title"`
	Authors    []string  `json:"authors,omitempty"`
	Venue      string    `json:"venue,omitempty"`
	Year       int       `json:"year,omitempty"`
	DOI        string    `json:"doi,omitempty"`
	Source     string    `json:"source"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Identity returns the stable deduplication key for the paper: the SHA-1 of
// the DOI when present, otherwise of the normalized title, venue and year.
// The key is deterministic across sources and never regenerated once a paper
// has been stored under it.
func (p Paper) Identity() string {
	var seed string
	if p.DOI != "" {
		seed = "doi:" + strings.ToLower(strings.TrimSpace(p.DOI))
	} else {
		seed = normalize(p.Title) + "|" + normalize(p.Venue) + "|" + strconv.Itoa(p.Year)
	}
	sum := sha1.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// normalize lowercases and collapses runs of whitespace so that formatting
// differences between sources do not split identities.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// RankedPaper is a stored paper scored against a natural-language query.
// The paper is embedded so callers read its fields directly off the result.
type RankedPaper struct {
	Paper  `json:"paper"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}
