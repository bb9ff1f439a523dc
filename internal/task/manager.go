// Package task coordinates task descriptors: creation, resumption and
// sequential hand-off to a runner. The Manager is the only writer of the
// task store; every status/progress mutation funnels through one persistence
// choke point so partial in-memory progress is never lost on crash.
package task

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/enkerewpo/paperfinder/internal/models"
	"github.com/enkerewpo/paperfinder/internal/store"
)

// Sentinel errors for task operations. Use errors.Is to check.
var (
	// ErrValidation indicates a structurally invalid payload or task type.
	// Never retried; surfaced straight to the caller.
	ErrValidation = errors.New("invalid task")

	// ErrNotFound indicates the requested task does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrStillRunning indicates a running descriptor that is too fresh to be
	// re-driven; another process may still own it.
	ErrStillRunning = errors.New("task appears to be running")
)

// Manager owns task descriptor mutation.
type Manager struct {
	store *store.TaskStore
	now   func() time.Time
}

// NewManager creates a manager over the given task store.
func NewManager(ts *store.TaskStore) *Manager {
	return &Manager{store: ts, now: time.Now}
}

// Enqueue validates the payload, allocates a fresh identifier and persists a
// pending descriptor with zero progress and unknown total.
func (m *Manager) Enqueue(taskType string, payload models.IngestPayload) (models.Task, error) {
	if taskType != models.TaskTypeIngest {
		return models.Task{}, fmt.Errorf("%w: unknown task type %q", ErrValidation, taskType)
	}
	if len(payload.Sources) == 0 {
		return models.Task{}, fmt.Errorf("%w: ingestion task needs at least one source", ErrValidation)
	}
	for _, src := range payload.Sources {
		if strings.TrimSpace(src) == "" {
			return models.Task{}, fmt.Errorf("%w: blank source URL", ErrValidation)
		}
	}
	if payload.MaxEntries != nil && *payload.MaxEntries <= 0 {
		return models.Task{}, fmt.Errorf("%w: max entries must be positive", ErrValidation)
	}

	now := m.now()
	t := models.Task{
		ID:        uuid.New().String()[:8], // short ID for convenience
		Type:      taskType,
		Status:    models.TaskPending,
		Ingest:    &payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Put(t); err != nil {
		return models.Task{}, err
	}

	slog.Info("task enqueued", "task_id", t.ID, "type", taskType, "sources", len(payload.Sources))
	return t, nil
}

// Get looks up a descriptor by ID.
func (m *Manager) Get(id string) (models.Task, error) {
	t, ok := m.store.Get(id)
	if !ok {
		return models.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// Resume returns the descriptor unchanged. Pending and running tasks are
// expected to be re-driven by the caller; terminal tasks are an idempotent
// read, never a restart.
func (m *Manager) Resume(id string) (models.Task, error) {
	t, err := m.Get(id)
	if err != nil {
		return models.Task{}, err
	}
	if t.Status.Terminal() {
		slog.Info("task already finished, nothing to resume", "task_id", t.ID, "status", t.Status)
	}
	return t, nil
}

// CheckResumable guards re-driving a running descriptor that another process
// may still own. A running task may be picked up again only once it has been
// idle for staleAfter, unless force is set. Running status is never
// auto-demoted to pending; the caller decides.
func (m *Manager) CheckResumable(t models.Task, staleAfter time.Duration, force bool) error {
	if t.Status != models.TaskRunning || force {
		return nil
	}
	if idle := m.now().Sub(t.UpdatedAt); idle < staleAfter {
		return fmt.Errorf("%w: %s updated %s ago (stale after %s, use --force to override)",
			ErrStillRunning, t.ID, idle.Round(time.Second), staleAfter)
	}
	return nil
}

// Drain returns every pending or running task in creation order. Each call
// re-reads current store state; tasks are not removed from the store.
func (m *Manager) Drain() []models.Task {
	var out []models.Task
	for _, t := range m.store.List() {
		if t.Status == models.TaskPending || t.Status == models.TaskRunning {
			out = append(out, t)
		}
	}
	return out
}

// List returns all known tasks in creation order.
func (m *Manager) List() []models.Task {
	return m.store.List()
}

// SetRunning transitions the descriptor to running and persists it.
func (m *Manager) SetRunning(t *models.Task) error {
	t.Status = models.TaskRunning
	return m.save(t)
}

// SetProgress persists updated progress/total counters.
func (m *Manager) SetProgress(t *models.Task, progress int, total *int) error {
	t.Progress = progress
	t.Total = total
	return m.save(t)
}

// Complete transitions the descriptor to completed with its result.
func (m *Manager) Complete(t *models.Task, result models.TaskResult) error {
	t.Status = models.TaskCompleted
	t.Result = &result
	t.Error = ""
	if err := m.save(t); err != nil {
		return err
	}
	slog.Info("task completed", "task_id", t.ID, "new_papers", result.NewPapers,
		"capped", result.Capped, "failed_sources", len(result.SourceErrors))
	return nil
}

// Fail transitions the descriptor to failed, persisting the error detail and
// whatever partial result the run produced.
func (m *Manager) Fail(t *models.Task, result models.TaskResult, cause error) error {
	t.Status = models.TaskFailed
	t.Result = &result
	if cause != nil {
		t.Error = cause.Error()
	}
	if err := m.save(t); err != nil {
		return err
	}
	slog.Error("task failed", "task_id", t.ID, "error", t.Error)
	return nil
}

// save is the single choke point for descriptor mutation: it stamps the
// update time and persists the full descriptor.
func (m *Manager) save(t *models.Task) error {
	t.UpdatedAt = m.now()
	if err := m.store.Put(*t); err != nil {
		return fmt.Errorf("persist task %s: %w", t.ID, err)
	}
	return nil
}
