package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/enkerewpo/paperfinder/internal/models"
)

// ProgressStore tracks the durable pagination cursor of every source
// endpoint. RecordPage is the single durability checkpoint of the ingestion
// loop: a crash between two checkpoints loses at most one in-flight page.
type ProgressStore struct {
	path string
	now  func() time.Time

	mu     sync.RWMutex
	states map[string]models.SourceProgress
	order  []string // source URLs in insertion order
}

// OpenProgressStore loads the source progress collection from path.
func OpenProgressStore(path string) (*ProgressStore, error) {
	var persisted []models.SourceProgress
	if err := readJSON(path, &persisted); err != nil {
		return nil, err
	}

	s := &ProgressStore{
		path:   path,
		now:    time.Now,
		states: make(map[string]models.SourceProgress, len(persisted)),
	}
	for _, st := range persisted {
		if _, ok := s.states[st.SourceURL]; ok {
			continue
		}
		s.states[st.SourceURL] = st
		s.order = append(s.order, st.SourceURL)
	}
	return s, nil
}

// GetOrCreate returns the tracked state for sourceURL, or a freshly
// initialized zero state. The fresh state is not persisted and not tracked
// until the first successful page is recorded.
func (s *ProgressStore) GetOrCreate(sourceURL string) models.SourceProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[sourceURL]; ok {
		return st
	}
	return models.SourceProgress{SourceURL: sourceURL}
}

// RecordPage advances the cursor for sourceURL after a page's papers have
// been durably stored: offset grows by fetched, the source-reported total is
// replaced (last value wins), and collected grows by newlyStored. The updated
// state is persisted synchronously before returning.
func (s *ProgressStore) RecordPage(sourceURL string, fetched, reportedTotal, newlyStored int) (models.SourceProgress, error) {
	if fetched < 0 || newlyStored < 0 || newlyStored > fetched {
		return models.SourceProgress{}, fmt.Errorf("inconsistent page counts: fetched=%d stored=%d", fetched, newlyStored)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[sourceURL]
	if !ok {
		st = models.SourceProgress{SourceURL: sourceURL}
		s.order = append(s.order, sourceURL)
	}
	st.Offset += fetched
	st.TotalAvailable = &reportedTotal
	st.TotalCollected += newlyStored
	st.UpdatedAt = s.now()
	s.states[sourceURL] = st

	if err := s.save(); err != nil {
		return models.SourceProgress{}, err
	}
	return st, nil
}

// List returns all tracked sources in insertion order.
func (s *ProgressStore) List() []models.SourceProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SourceProgress, 0, len(s.order))
	for _, src := range s.order {
		out = append(out, s.states[src])
	}
	return out
}

// DeleteByPattern removes every source whose URL contains pattern,
// case-insensitively, and returns the removed URLs.
func (s *ProgressStore) DeleteByPattern(pattern string) ([]string, error) {
	needle := strings.ToLower(pattern)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	kept := s.order[:0]
	for _, src := range s.order {
		if strings.Contains(strings.ToLower(src), needle) {
			delete(s.states, src)
			removed = append(removed, src)
			continue
		}
		kept = append(kept, src)
	}
	s.order = kept

	if len(removed) == 0 {
		return nil, nil
	}
	if err := s.save(); err != nil {
		return nil, err
	}
	return removed, nil
}

// DeleteBySource removes the exact source URL, reporting whether it existed.
func (s *ProgressStore) DeleteBySource(sourceURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[sourceURL]; !ok {
		return false, nil
	}
	delete(s.states, sourceURL)
	kept := s.order[:0]
	for _, src := range s.order {
		if src != sourceURL {
			kept = append(kept, src)
		}
	}
	s.order = kept

	if err := s.save(); err != nil {
		return false, err
	}
	return true, nil
}

// save persists the full collection. Caller must hold the write lock.
func (s *ProgressStore) save() error {
	persisted := make([]models.SourceProgress, 0, len(s.order))
	for _, src := range s.order {
		persisted = append(persisted, s.states[src])
	}
	return writeJSON(s.path, persisted)
}
