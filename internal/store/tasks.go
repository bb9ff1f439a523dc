package store

import (
	"sync"

	"github.com/enkerewpo/paperfinder/internal/models"
)

// TaskStore is the durable log of task descriptors. The task manager is its
// only writer; listing commands and the progress display read concurrently.
type TaskStore struct {
	path string

	mu    sync.RWMutex
	tasks map[string]models.Task
	order []string // task IDs in creation order
}

// OpenTaskStore loads the task log from path.
func OpenTaskStore(path string) (*TaskStore, error) {
	var persisted []models.Task
	if err := readJSON(path, &persisted); err != nil {
		return nil, err
	}

	s := &TaskStore{
		path:  path,
		tasks: make(map[string]models.Task, len(persisted)),
	}
	for _, t := range persisted {
		if _, ok := s.tasks[t.ID]; ok {
			continue
		}
		s.tasks[t.ID] = t
		s.order = append(s.order, t.ID)
	}
	return s, nil
}

// Get returns the descriptor with the given ID.
func (s *TaskStore) Get(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Put upserts the full descriptor and persists the log synchronously.
func (s *TaskStore) Put(t models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.tasks[t.ID] = t
	return s.save()
}

// List returns all descriptors in creation order.
func (s *TaskStore) List() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id])
	}
	return out
}

// save persists the full log. Caller must hold the write lock.
func (s *TaskStore) save() error {
	persisted := make([]models.Task, 0, len(s.order))
	for _, id := range s.order {
		persisted = append(persisted, s.tasks[id])
	}
	return writeJSON(s.path, persisted)
}
