// Package dblp fetches publication pages from the DBLP search API
// (https://dblp.org/search/publ/api). A source is the full query URL; the
// client appends format/pagination parameters and normalizes the API's
// irregular JSON shapes into ingest entries.
package dblp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/enkerewpo/paperfinder/internal/ingest"
)

// Client is an HTTP page fetch client for DBLP search endpoints.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client with the given request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "paperfinder/0.1 (+https://github.com/enkerewpo/paperfinder)",
	}
}

// FetchPage requests pageSize entries starting at offset. Server-side and
// rate-limit failures come back as transient errors; malformed URLs,
// authentication failures and unusable payloads as permanent ones.
func (c *Client) FetchPage(ctx context.Context, sourceURL string, offset, pageSize int) (ingest.Page, error) {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ingest.Page{}, ingest.Permanent(fmt.Errorf("malformed source URL %q", sourceURL))
	}
	q := u.Query()
	q.Set("format", "json")
	q.Set("h", strconv.Itoa(pageSize))
	q.Set("f", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return ingest.Page{}, ingest.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ingest.Page{}, ingest.Transient(fmt.Errorf("request %s: %w", u.Host, err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parsing
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return ingest.Page{}, ingest.Transient(fmt.Errorf("%s responded %s", u.Host, resp.Status))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ingest.Page{}, ingest.Permanent(fmt.Errorf("%s denied access: %s", u.Host, resp.Status))
	default:
		return ingest.Page{}, ingest.Permanent(fmt.Errorf("%s responded %s", u.Host, resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ingest.Page{}, ingest.Transient(fmt.Errorf("read response: %w", err))
	}
	return parsePage(body)
}

// apiResponse mirrors the subset of the DBLP JSON envelope the core needs.
// Numeric fields arrive as strings; authors arrive as one object or a list.
type apiResponse struct {
	Result struct {
		Hits struct {
			Total flexInt `json:"@total"`
			Hit   []struct {
				Info struct {
					Title   string     `json:"title"`
					Authors authorList `json:"authors"`
					Venue   venueField `json:"venue"`
					Year    flexInt    `json:"year"`
					DOI     string     `json:"doi"`
				} `json:"info"`
			} `json:"hit"`
		} `json:"hits"`
	} `json:"result"`
}

func parsePage(body []byte) (ingest.Page, error) {
	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ingest.Page{}, ingest.Permanent(fmt.Errorf("unexpected response payload: %w", err))
	}

	hits := decoded.Result.Hits
	page := ingest.Page{Total: int(hits.Total)}
	for _, h := range hits.Hit {
		if h.Info.Title == "" {
			continue
		}
		page.Entries = append(page.Entries, ingest.RawEntry{
			Title:   h.Info.Title,
			Authors: h.Info.Authors.Names,
			Venue:   string(h.Info.Venue),
			Year:    int(h.Info.Year),
			DOI:     h.Info.DOI,
		})
	}
	return page, nil
}

// flexInt decodes a JSON number or numeric string ("450", 450) to an int.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		// DBLP occasionally omits or nulls these fields.
		*n = 0
		return nil
	}
	v, err := num.Int64()
	if err != nil {
		*n = 0
		return nil
	}
	*n = flexInt(v)
	return nil
}

// authorList decodes DBLP's {"author": X} wrapper, where X is a single
// author or a list, and each author is {"text": ...} or a bare string.
type authorList struct {
	Names []string
}

func (a *authorList) UnmarshalJSON(data []byte) error {
	var wrapper struct {
		Author json.RawMessage `json:"author"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	if len(wrapper.Author) == 0 {
		return nil
	}

	var many []json.RawMessage
	if err := json.Unmarshal(wrapper.Author, &many); err != nil {
		many = []json.RawMessage{wrapper.Author}
	}
	for _, raw := range many {
		if name := decodeAuthor(raw); name != "" {
			a.Names = append(a.Names, name)
		}
	}
	return nil
}

func decodeAuthor(raw json.RawMessage) string {
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Text != "" {
		return obj.Text
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// venueField decodes a venue that is either a string or a list of strings;
// the first entry wins.
type venueField string

func (v *venueField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = venueField(s)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil && len(many) > 0 {
		*v = venueField(many[0])
		return nil
	}
	*v = ""
	return nil
}
