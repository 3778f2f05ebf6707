package domain

import (
	"errors"
	"time"
)

type TaskStatus string

const (
	StatusQueued   TaskStatus = "QUEUED"
	StatusStarted  TaskStatus = "STARTED"
	StatusProgress TaskStatus = "PROGRESS"
	StatusSuccess  TaskStatus = "SUCCESS"
	StatusFailure  TaskStatus = "FAILURE"

	// StatusNotFound is returned by lookups on missing or expired
	// records. It is never written to the store.
	StatusNotFound TaskStatus = "NOT FOUND"
)

// Terminal reports whether no further stage transition is possible.
func (s TaskStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// rank orders the happy path; FAILURE is reachable from any non-terminal
// state, so it ranks above everything except SUCCESS semantics-wise.
func (s TaskStatus) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusStarted:
		return 1
	case StatusProgress:
		return 2
	case StatusSuccess, StatusFailure:
		return 3
	default:
		return -1
	}
}

// CanAdvance reports whether a transition from s to next keeps the status
// monotonic along QUEUED -> STARTED -> PROGRESS -> {SUCCESS|FAILURE}.
// PROGRESS is re-entered by three consecutive stages, so equal ranks are
// allowed for non-terminal states.
func (s TaskStatus) CanAdvance(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() >= s.rank()
}

// Result is the classifier verdict for one file.
type Result struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type Task struct {
	ID         string     `json:"task_id"`
	Status     TaskStatus `json:"status"`
	Meta       string     `json:"meta"`
	FilePath   string     `json:"file_path"`
	SHA256     string     `json:"sha256,omitempty"`
	ReportPath string     `json:"report_path,omitempty"`
	Result     *Result    `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CreateTaskParams carries the initial fields for a new task record.
type CreateTaskParams struct {
	ID       string
	FilePath string
	TTL      time.Duration
}

// TaskUpdate is a partial, field-level update. Nil fields are untouched
// by the store; a single update call is applied atomically.
type TaskUpdate struct {
	Status     *TaskStatus
	Meta       *string
	SHA256     *string
	ReportPath *string
	Result     *Result
}

// Stage messages, one type per pipeline edge. Every envelope carries the
// task ID plus whatever the previous stage populated.

type AvailableTask struct {
	TaskID   string `json:"task_id"`
	FilePath string `json:"file_path"`
}

type HashTask struct {
	TaskID   string `json:"task_id"`
	FilePath string `json:"file_path"`
}

type ReportTask struct {
	TaskID   string `json:"task_id"`
	FilePath string `json:"file_path"`
	SHA256   string `json:"sha256"`
}

type ClassifyTask struct {
	TaskID     string `json:"task_id"`
	FilePath   string `json:"file_path"`
	SHA256     string `json:"sha256"`
	ReportPath string `json:"report_path"`
}

type CompletedTask struct {
	TaskID string  `json:"task_id"`
	SHA256 string  `json:"sha256"`
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
}

// ReportCacheEntry maps a content hash to the retrieved report and, once
// classification has run for that hash, to its result.
type ReportCacheEntry struct {
	SHA256     string
	ReportPath string
	Result     *Result
}

type CreateResponse struct {
	TaskID string     `json:"task_id"`
	Status TaskStatus `json:"status"`
}

type StatusResponse struct {
	TaskID string     `json:"task_id"`
	Status TaskStatus `json:"status"`
	Meta   string     `json:"meta,omitempty"`
	Result *Result    `json:"result,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already exists")
	ErrEmptyUpload  = errors.New("empty upload")
	ErrUnknownLabel = errors.New("unknown label id")
)
