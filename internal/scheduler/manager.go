package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/metrics"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/queue"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/task"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/tracing"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/worker"
)

var (
	ErrExecutionTimeout = errors.New("execution timeout")
	ErrRetriesExhausted = errors.New("exhausted retries")
	ErrManagerShutdown  = errors.New("manager shutdown")
	ErrUnknownCategory  = errors.New("unknown task category")
	ErrUnknownWorker    = errors.New("unknown worker")
	ErrDrainTimeout     = errors.New("in-flight tasks still running after shutdown wait")
)

const (
	recordBacklog = 1024
	recordTimeout = 2 * time.Second
)

// Recorder persists task lifecycle records. Calls are made from a single
// goroutine, in the order the scheduler produced the records.
type Recorder interface {
	Save(ctx context.Context, r *task.Record) error
}

var instances atomic.Uint64

type Option func(*Manager)

// WithName labels the manager's gauges. Managers sharing a process need
// distinct names; the default is "scheduler-<n>".
func WithName(name string) Option {
	return func(m *Manager) { m.name = name }
}

// WithConcurrency sets the ceiling of simultaneously busy workers. Values
// below one fall back to the number of workers.
func WithConcurrency(n int) Option {
	return func(m *Manager) { m.ceiling = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

type slot struct {
	worker       *worker.Worker
	cfg          worker.Config
	status       WorkerStatus
	current      *task.Task
	errorCount   int
	lastActivity time.Time

	// held is set while a timed-out execution is still running. The slot
	// stays busy and takes settle once the execution returns.
	held   bool
	settle WorkerStatus
}

type pending struct {
	task   *task.Task
	future *Future
}

// Manager routes submitted tasks to typed workers. Every scheduling pass and
// every mutation of the queue or worker state happens under mu.
type Manager struct {
	name       string
	gauges     metrics.SchedulerGauges
	mu         sync.Mutex
	queue      *queue.Queue
	slots      []*slot
	byID       map[string]*slot
	categories map[string]bool
	pending    map[string]*pending
	ceiling    int
	busy       int
	closed     bool
	stopped    bool

	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	logger   *slog.Logger
	recorder Recorder
	records  chan *task.Record
	recDone  chan struct{}
}

// New builds one worker per config from registry and returns a running Manager.
func New(registry *worker.Registry, cfgs []worker.Config, opts ...Option) (*Manager, error) {
	workers, err := registry.Build(cfgs)
	if err != nil {
		return nil, err
	}
	if len(workers) == 0 {
		return nil, errors.New("at least one worker is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		queue:      queue.New(),
		byID:       make(map[string]*slot, len(workers)),
		categories: make(map[string]bool),
		pending:    make(map[string]*pending),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ceiling < 1 {
		m.ceiling = len(workers)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.name == "" {
		m.name = fmt.Sprintf("scheduler-%d", instances.Add(1))
	}
	m.gauges = metrics.ForScheduler(m.name)
	m.logger = m.logger.With("component", "scheduler", "scheduler", m.name)

	now := time.Now()
	for _, w := range workers {
		s := &slot{worker: w, cfg: w.Config(), status: WorkerIdle, lastActivity: now}
		m.slots = append(m.slots, s)
		m.byID[s.cfg.ID] = s
		m.categories[s.cfg.Category] = true
	}

	if m.recorder != nil {
		m.records = make(chan *task.Record, recordBacklog)
		m.recDone = make(chan struct{})
		go m.recordLoop(m.records)
	}

	m.gauges.ConcurrencyLimit.Set(float64(m.ceiling))
	m.logger.Info("scheduler started", "workers", len(m.slots), "concurrency", m.ceiling)
	return m, nil
}

// Submit enqueues a task and returns its completion handle. It never blocks
// on execution.
func (m *Manager) Submit(category string, input any, priority int) *Future {
	t := task.New(category, input, priority)
	f := newFuture(t.ID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.finishLocked(t, f, worker.Result{}, ErrManagerShutdown, task.StatusCancelled, "shutdown")
		return f
	}
	if !m.categories[category] {
		err := fmt.Errorf("%w: %s", ErrUnknownCategory, category)
		m.finishLocked(t, f, worker.Result{}, err, task.StatusFailed, "rejected")
		return f
	}

	m.pending[t.ID] = &pending{task: t, future: f}
	m.queue.Enqueue(t)
	metrics.TasksSubmittedTotal.WithLabelValues(category).Inc()
	m.emitLocked(t.Snapshot(task.StatusQueued))
	m.logger.Debug("task submitted", "task_id", t.ID, "category", category, "priority", priority)

	m.dispatchLocked()
	return f
}

// Reset returns an errored worker to idle and clears its failure streak.
func (m *Manager) Reset(workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[workerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}
	if m.stopped {
		return ErrManagerShutdown
	}
	if s.status == WorkerErrored {
		s.status = WorkerIdle
		s.errorCount = 0
		s.lastActivity = time.Now()
		m.logger.Info("worker reset", "worker_id", workerID)
	}

	m.dispatchLocked()
	return nil
}

// Shutdown stops dispatching, waits up to maxWait for busy workers, then fails
// every unresolved task with ErrManagerShutdown and marks all workers stopped.
// It returns ErrDrainTimeout when workers were still busy at the deadline.
func (m *Manager) Shutdown(maxWait time.Duration) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	queued := m.queue.Len()
	busy := m.busy
	m.mu.Unlock()

	m.logger.Info("shutting down", "queued", queued, "busy", busy, "max_wait", maxWait)
	drainErr := m.drain(maxWait)

	m.mu.Lock()
	m.stopped = true
	m.cancel()
	cancelled := 0
	for _, t := range m.queue.Drain() {
		if p, ok := m.pending[t.ID]; ok {
			m.finishLocked(t, p.future, worker.Result{}, ErrManagerShutdown, task.StatusCancelled, "shutdown")
			cancelled++
		}
	}
	for _, p := range m.pending {
		m.finishLocked(p.task, p.future, worker.Result{}, ErrManagerShutdown, task.StatusCancelled, "shutdown")
		cancelled++
	}
	now := time.Now()
	for _, s := range m.slots {
		s.status = WorkerStopped
		s.current = nil
		s.held = false
		s.lastActivity = now
	}
	m.busy = 0
	m.updateGaugesLocked()

	records := m.records
	if records != nil {
		close(records)
		m.records = nil
	}
	m.mu.Unlock()

	if records != nil {
		select {
		case <-m.recDone:
		case <-time.After(5 * time.Second):
			m.logger.Warn("journal still flushing after shutdown")
		}
	}

	if drainErr != nil {
		m.logger.Warn("shutdown gave up on in-flight tasks", "cancelled", cancelled)
		return drainErr
	}
	m.logger.Info("scheduler stopped", "cancelled", cancelled)
	return nil
}

func (m *Manager) drain(maxWait time.Duration) error {
	drained := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(drained)
	}()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case <-drained:
		return nil
	case <-timer.C:
		select {
		case <-drained:
			return nil
		default:
			return ErrDrainTimeout
		}
	}
}

// dispatchLocked is one scheduling pass: it binds queued tasks to idle
// workers of their category until the queue or the ceiling is exhausted.
// Tasks whose category has no idle worker keep their queue position; the
// next pass runs when a worker settles, a task arrives or a worker is reset.
func (m *Manager) dispatchLocked() {
	defer m.updateGaugesLocked()
	if m.closed {
		return
	}

	for m.queue.Len() > 0 && m.busy < m.ceiling {
		var s *slot
		t := m.queue.DequeueNext(func(t *task.Task) bool {
			s = m.idleSlotLocked(t.Category)
			return s != nil
		})
		if t == nil {
			return
		}
		m.startLocked(s, t)
	}
}

// idleSlotLocked picks the idle worker of category with the highest priority
// weight, preferring configuration order on ties.
func (m *Manager) idleSlotLocked(category string) *slot {
	var best *slot
	for _, s := range m.slots {
		if s.cfg.Category != category || s.status != WorkerIdle {
			continue
		}
		if best == nil || s.cfg.PriorityWeight > best.cfg.PriorityWeight {
			best = s
		}
	}
	return best
}

func (m *Manager) startLocked(s *slot, t *task.Task) {
	now := time.Now()
	s.status = WorkerBusy
	s.current = t
	s.lastActivity = now
	t.StartedAt = now
	m.busy++
	m.inflight.Add(1)

	rec := t.Snapshot(task.StatusRunning)
	rec.WorkerID = s.cfg.ID
	m.emitLocked(rec)
	m.logger.Debug("task dispatched",
		"task_id", t.ID,
		"category", t.Category,
		"worker_id", s.cfg.ID,
		"attempt", t.RetryCount+1,
	)

	go m.execute(s, t, t.RetryCount+1)
}

func (m *Manager) execute(s *slot, t *task.Task, attempt int) {
	defer m.inflight.Done()

	ctx, cancel := context.WithTimeout(m.ctx, s.cfg.Timeout)
	ctx, span := tracing.ExecutionSpan(ctx, t.ID, t.Category, s.cfg.ID, attempt)
	res, late := m.run(ctx, s.worker, t.Input)
	cancel()
	tracing.End(span, res.Err)

	m.complete(s, t, res, late != nil)
	if late != nil {
		<-late
		m.release(s)
	}
}

// run races the worker against ctx. When the deadline wins, run returns at
// once with a timeout result and the channel the abandoned execution will
// still report on; its late result is discarded.
func (m *Manager) run(ctx context.Context, w *worker.Worker, input any) (worker.Result, <-chan worker.Result) {
	start := time.Now()
	meta := worker.Metadata{Category: w.Category(), WorkerID: w.ID()}
	done := make(chan worker.Result, 1)

	go func() {
		if !w.Ready() {
			if err := w.Init(ctx); err != nil {
				done <- worker.Result{Err: err, Elapsed: time.Since(start), Metadata: meta}
				return
			}
		}
		done <- w.Execute(ctx, input)
	}()

	select {
	case res := <-done:
		if !res.Success && errors.Is(ctx.Err(), context.DeadlineExceeded) && errors.Is(res.Err, context.DeadlineExceeded) {
			res.Err = fmt.Errorf("%w: %w", ErrExecutionTimeout, res.Err)
		}
		return res, nil
	case <-ctx.Done():
		return worker.Result{
			Err:      fmt.Errorf("%w after %s", ErrExecutionTimeout, time.Since(start).Round(time.Millisecond)),
			Elapsed:  time.Since(start),
			Metadata: meta,
		}, done
	}
}

// complete settles one attempt. When held is set the execution is still
// running, so the slot keeps counting against the ceiling until release.
func (m *Manager) complete(s *slot, t *task.Task, res worker.Result, held bool) {
	outcome := "success"
	switch {
	case errors.Is(res.Err, ErrExecutionTimeout):
		outcome = "timeout"
	case !res.Success:
		outcome = "failure"
	}
	metrics.TaskAttemptsTotal.WithLabelValues(t.Category, outcome).Inc()
	metrics.ExecutionDurationSeconds.WithLabelValues(t.Category).Observe(res.Elapsed.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		// Shutdown already released the worker and failed the handle.
		return
	}

	now := time.Now()
	s.current = nil
	s.lastActivity = now
	if !held {
		m.busy--
	}
	logger := m.logger.With("task_id", t.ID, "category", t.Category, "worker_id", s.cfg.ID, "attempt", t.RetryCount+1)

	if res.Success {
		s.errorCount = 0
		s.status = WorkerIdle
		t.CompletedAt = now
		m.finishLocked(t, m.futureLocked(t), res, nil, task.StatusCompleted, "completed")
		logger.Info("task completed", "elapsed", res.Elapsed)
		m.dispatchLocked()
		return
	}

	s.errorCount++
	next := WorkerIdle
	if s.errorCount > s.cfg.MaxRetries {
		next = WorkerErrored
		logger.Warn("worker entered errored state", "error_count", s.errorCount)
	}
	if held {
		s.held = true
		s.settle = next
		logger.Warn("worker held by timed-out execution")
	} else {
		s.status = next
	}

	switch {
	case m.closed:
		t.CompletedAt = now
		err := fmt.Errorf("%w: %v", ErrManagerShutdown, res.Err)
		m.finishLocked(t, m.futureLocked(t), res, err, task.StatusCancelled, "shutdown")
	case t.RetryCount < s.cfg.MaxRetries:
		t.RetryCount++
		t.StartedAt = time.Time{}
		m.queue.Enqueue(t)
		rec := t.Snapshot(task.StatusRetrying)
		rec.Error = res.Err.Error()
		m.emitLocked(rec)
		logger.Warn("task attempt failed, requeued", "err", res.Err, "retry_count", t.RetryCount)
	default:
		t.CompletedAt = now
		err := fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, t.RetryCount+1, res.Err)
		m.finishLocked(t, m.futureLocked(t), res, err, task.StatusFailed, "exhausted")
		logger.Error("task failed", "err", err)
	}

	m.dispatchLocked()
}

// release frees a slot whose timed-out execution has finally returned.
func (m *Manager) release(s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || !s.held {
		return
	}
	s.held = false
	s.status = s.settle
	s.lastActivity = time.Now()
	m.busy--
	m.logger.Info("timed-out execution returned, worker released", "worker_id", s.cfg.ID, "status", s.status)

	m.dispatchLocked()
}

func (m *Manager) futureLocked(t *task.Task) *Future {
	if p, ok := m.pending[t.ID]; ok {
		return p.future
	}
	return nil
}

// finishLocked resolves f and discards the task.
func (m *Manager) finishLocked(t *task.Task, f *Future, res worker.Result, err error, status task.Status, outcome string) {
	delete(m.pending, t.ID)
	if f == nil || !f.resolve(res, err) {
		return
	}
	metrics.TasksFinishedTotal.WithLabelValues(t.Category, outcome).Inc()

	rec := t.Snapshot(status)
	rec.WorkerID = res.Metadata.WorkerID
	if err != nil {
		rec.Error = err.Error()
	} else {
		rec.Result = res.Data
	}
	m.emitLocked(rec)
}

func (m *Manager) emitLocked(r *task.Record) {
	if m.records == nil {
		return
	}
	select {
	case m.records <- r:
	default:
		m.logger.Warn("journal backlog full, dropping record", "task_id", r.ID, "status", r.Status)
	}
}

func (m *Manager) recordLoop(records <-chan *task.Record) {
	defer close(m.recDone)
	for r := range records {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := m.recorder.Save(ctx, r); err != nil {
			m.logger.Warn("failed to journal task", "task_id", r.ID, "status", r.Status, "err", err)
		}
		cancel()
	}
}

func (m *Manager) updateGaugesLocked() {
	errored := 0
	for _, s := range m.slots {
		if s.status == WorkerErrored {
			errored++
		}
	}
	m.gauges.QueueDepth.Set(float64(m.queue.Len()))
	m.gauges.BusyWorkers.Set(float64(m.busy))
	m.gauges.ErroredWorkers.Set(float64(errored))
}
