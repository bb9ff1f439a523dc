package store

import (
	"strings"
	"sync"

	"github.com/enkerewpo/paperfinder/internal/models"
)

// PaperStore is the deduplicated collection of ingested papers. Writes are
// first-write-wins per identity; a paper is never mutated after creation.
type PaperStore struct {
	path string

	mu     sync.RWMutex
	papers map[string]models.Paper
	order  []string // identities in insertion order, for stable listing
}

// OpenPaperStore loads the paper collection from path, creating an empty
// store when the file does not exist yet.
func OpenPaperStore(path string) (*PaperStore, error) {
	var persisted []models.Paper
	if err := readJSON(path, &persisted); err != nil {
		return nil, err
	}

	s := &PaperStore{
		path:   path,
		papers: make(map[string]models.Paper, len(persisted)),
	}
	for _, p := range persisted {
		id := p.Identity()
		if _, ok := s.papers[id]; ok {
			continue
		}
		s.papers[id] = p
		s.order = append(s.order, id)
	}
	return s, nil
}

// Has reports whether a paper with the given identity is already stored.
func (s *PaperStore) Has(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.papers[identity]
	return ok
}

// AddAll stores every paper whose identity is not yet present and persists
// the collection in a single durable write. It returns the number of papers
// actually added; already-known identities are skipped silently.
func (s *PaperStore) AddAll(papers []models.Paper) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, p := range papers {
		id := p.Identity()
		if _, ok := s.papers[id]; ok {
			continue
		}
		s.papers[id] = p
		s.order = append(s.order, id)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.save(); err != nil {
		return 0, err
	}
	return added, nil
}

// List returns all stored papers in insertion order.
func (s *PaperStore) List() []models.Paper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Paper, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.papers[id])
	}
	return out
}

// Len returns the number of stored papers.
func (s *PaperStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.papers)
}

// CountBySources counts stored papers whose originating source is one of the
// given endpoints.
func (s *PaperStore) CountBySources(sources []string) int {
	set := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		set[src] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, id := range s.order {
		if _, ok := set[s.papers[id].Source]; ok {
			n++
		}
	}
	return n
}

// DeleteBySources removes every paper ingested from the given endpoints and
// returns the number removed.
func (s *PaperStore) DeleteBySources(sources []string) (int, error) {
	set := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		set[src] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if _, ok := set[s.papers[id].Source]; ok {
			delete(s.papers, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept

	if removed == 0 {
		return 0, nil
	}
	if err := s.save(); err != nil {
		return 0, err
	}
	return removed, nil
}

// FilterByTitle returns papers whose title contains pattern,
// case-insensitively. An empty pattern matches everything.
func (s *PaperStore) FilterByTitle(pattern string) []models.Paper {
	pattern = strings.ToLower(pattern)
	var out []models.Paper
	for _, p := range s.List() {
		if pattern == "" || strings.Contains(strings.ToLower(p.Title), pattern) {
			out = append(out, p)
		}
	}
	return out
}

// save persists the full collection. Caller must hold the write lock.
func (s *PaperStore) save() error {
	persisted := make([]models.Paper, 0, len(s.order))
	for _, id := range s.order {
		persisted = append(persisted, s.papers[id])
	}
	return writeJSON(s.path, persisted)
}
