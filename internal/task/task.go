package task

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Lower values are served first.
const (
	PriorityHigh   = 1
	PriorityNormal = 5
	PriorityLow    = 10
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var arrivals atomic.Uint64

// Task is one submitted unit of work. Only the scheduler mutates it after
// construction.
type Task struct {
	ID          string
	Category    string
	Input       any
	Priority    int
	Seq         uint64 // arrival order, unique per process
	RetryCount  int
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

func New(category string, input any, priority int) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Category:  category,
		Input:     input,
		Priority:  priority,
		Seq:       arrivals.Add(1),
		CreatedAt: time.Now(),
	}
}

// Record is the persisted view of a task at one point of its lifecycle.
type Record struct {
	ID          string     `json:"id"`
	Category    string     `json:"category"`
	Priority    int        `json:"priority"`
	Status      Status     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	WorkerID    string     `json:"worker_id,omitempty"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Snapshot captures the task's current bookkeeping as a Record.
func (t *Task) Snapshot(status Status) *Record {
	r := &Record{
		ID:         t.ID,
		Category:   t.Category,
		Priority:   t.Priority,
		Status:     status,
		RetryCount: t.RetryCount,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  time.Now(),
	}
	if !t.StartedAt.IsZero() {
		started := t.StartedAt
		r.StartedAt = &started
	}
	if !t.CompletedAt.IsZero() {
		completed := t.CompletedAt
		r.CompletedAt = &completed
	}
	return r
}
