package models

import "time"

// TaskStatus is the lifecycle state of a task descriptor. Transitions are
// monotone along pending -> running -> (completed | failed).
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskTypeIngest tags tasks that ingest papers from paginated DBLP sources.
const TaskTypeIngest = "dblp_ingest"

// IngestPayload is the typed payload carried by TaskTypeIngest descriptors.
type IngestPayload struct {
	// Sources is the ordered list of DBLP search API endpoints to drain.
	Sources []string `json:"sources"`
	// MaxEntries caps the number of new papers stored across all sources
	// combined. Nil means unbounded.
	MaxEntries *int `json:"max_entries,omitempty"`
}

// SourceError records the failure of a single source within a task run.
type SourceError struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// TaskResult summarizes the outcome of an ingestion task.
type TaskResult struct {
	// NewPapers is the number of papers stored by the task over its lifetime,
	// including pages ingested before an interruption.
	NewPapers int `json:"new_papers"`
	// Capped is set when the run stopped because the max-entries budget was
	// exhausted before all sources were drained.
	Capped bool `json:"capped,omitempty"`
	// SourceErrors lists sources that failed; a task with surviving sources
	// still completes.
	SourceErrors []SourceError `json:"source_errors,omitempty"`
}

// Task is one persisted task descriptor. The payload is a tagged variant
// keyed by Type; only the field matching the tag is populated.
type Task struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    TaskStatus     `json:"status"`
	Ingest    *IngestPayload `json:"ingest,omitempty"`
	Progress  int            `json:"progress"`
	Total     *int           `json:"total,omitempty"`
	Result    *TaskResult    `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
