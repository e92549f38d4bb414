package scheduler

import (
	"time"
)

type WorkerStatus string

const (
	WorkerIdle    WorkerStatus = "idle"
	WorkerBusy    WorkerStatus = "busy"
	WorkerErrored WorkerStatus = "errored"
	WorkerStopped WorkerStatus = "stopped"
)

type WorkerSnapshot struct {
	ID           string       `json:"id"`
	Category     string       `json:"category"`
	Status       WorkerStatus `json:"status"`
	ErrorCount   int          `json:"error_count"`
	CurrentTask  string       `json:"current_task,omitempty"`
	LastActivity time.Time    `json:"last_activity"`
}

// Snapshot is a read-only view of the scheduler for observability.
type Snapshot struct {
	QueueDepth        int              `json:"queue_depth"`
	ActiveWorkerCount int              `json:"active_worker_count"`
	ConcurrencyLimit  int              `json:"concurrency_limit"`
	Workers           []WorkerSnapshot `json:"workers"`
}

// Status returns a consistent snapshot without touching scheduling state.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		QueueDepth:        m.queue.Len(),
		ActiveWorkerCount: m.busy,
		ConcurrencyLimit:  m.ceiling,
		Workers:           make([]WorkerSnapshot, 0, len(m.slots)),
	}
	for _, s := range m.slots {
		ws := WorkerSnapshot{
			ID:           s.cfg.ID,
			Category:     s.cfg.Category,
			Status:       s.status,
			ErrorCount:   s.errorCount,
			LastActivity: s.lastActivity,
		}
		if s.current != nil {
			ws.CurrentTask = s.current.ID
		}
		snap.Workers = append(snap.Workers, ws)
	}
	return snap
}
