package models

import "time"

// SourceProgress is the durable pagination cursor for one source endpoint.
// The source URL is used verbatim as the key. Offset counts entries already
// consumed from the source and is monotonically non-decreasing; it is the
// starting position of the next fetch.
type SourceProgress struct {
	SourceURL string `json:"source_url"`
	Offset    int    `json:"offset"`
	// TotalAvailable is the entry count the source reported for this query,
	// nil until the first page has been fetched. Sources may revise it
	// between pages; the last reported value wins.
	TotalAvailable *int `json:"total_available,omitempty"`
	// TotalCollected counts entries from this source that were stored as new
	// papers. Always <= Offset.
	TotalCollected int       `json:"total_collected"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Exhausted reports whether the source has no entries left past the current
// offset, as far as its last reported total is concerned.
func (s SourceProgress) Exhausted() bool {
	return s.TotalAvailable != nil && s.Offset >= *s.TotalAvailable
}
