package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrInitialization = errors.New("worker initialization failed")
	ErrExecution      = errors.New("worker execution failed")
	ErrPanic          = errors.New("worker panicked")
)

// Executor performs the work of one category.
type Executor interface {
	Execute(ctx context.Context, input any) (any, error)
}

// Initializer is implemented by executors that need one-time setup before
// their first execution.
type Initializer interface {
	Init(ctx context.Context) error
}

type ExecutorFunc func(ctx context.Context, input any) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, input any) (any, error) {
	return f(ctx, input)
}

// Typed adapts fn to an Executor, rejecting inputs that are not of type I.
func Typed[I, O any](fn func(ctx context.Context, in I) (O, error)) Executor {
	return ExecutorFunc(func(ctx context.Context, input any) (any, error) {
		in, ok := input.(I)
		if !ok {
			return nil, fmt.Errorf("unexpected input type %T", input)
		}
		return fn(ctx, in)
	})
}

// Config is the static, immutable configuration of a single worker.
type Config struct {
	ID             string        `yaml:"id" json:"id"`
	Category       string        `yaml:"category" json:"category"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	PriorityWeight int           `yaml:"priority_weight" json:"priority_weight"`
}

func (c Config) Validate() error {
	switch {
	case c.ID == "":
		return errors.New("worker id is required")
	case c.Category == "":
		return fmt.Errorf("worker %s: category is required", c.ID)
	case c.MaxRetries < 0:
		return fmt.Errorf("worker %s: max_retries must be >= 0", c.ID)
	case c.Timeout <= 0:
		return fmt.Errorf("worker %s: timeout must be positive", c.ID)
	}
	return nil
}

type Metadata struct {
	Category string `json:"category"`
	WorkerID string `json:"worker_id"`
}

// Result is the uniform outcome of one execution. Err is nil on success.
type Result struct {
	Success  bool
	Data     any
	Err      error
	Elapsed  time.Duration
	Metadata Metadata
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Success   bool     `json:"success"`
		Data      any      `json:"data,omitempty"`
		Error     string   `json:"error,omitempty"`
		ElapsedMs int64    `json:"elapsed_time_ms"`
		Metadata  Metadata `json:"metadata"`
	}{
		Success:   r.Success,
		Data:      r.Data,
		ElapsedMs: r.Elapsed.Milliseconds(),
		Metadata:  r.Metadata,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Worker wraps an Executor with lazy initialization, timing and uniform
// failure reporting. Execute never panics and never returns a bare error.
type Worker struct {
	cfg  Config
	exec Executor

	mu          sync.Mutex
	ready       bool
	initialized bool
	initErr     error
}

func New(cfg Config, exec Executor) *Worker {
	return &Worker{cfg: cfg, exec: exec}
}

func (w *Worker) ID() string       { return w.cfg.ID }
func (w *Worker) Category() string { return w.cfg.Category }
func (w *Worker) Config() Config   { return w.cfg }

func (w *Worker) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ready
}

// Init runs the executor's initialization if it has not yet succeeded.
// Calls after a successful Init are no-ops.
func (w *Worker) Init(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ready {
		return nil
	}
	w.initialized = true

	if in, ok := w.exec.(Initializer); ok {
		if err := safeInit(ctx, in); err != nil {
			w.initErr = err
			return fmt.Errorf("%w: %v", ErrInitialization, err)
		}
	}

	w.ready = true
	w.initErr = nil
	return nil
}

// Execute runs input through the executor. The first call initializes the
// worker; once initialization has failed, Execute keeps failing until a
// caller runs Init successfully.
func (w *Worker) Execute(ctx context.Context, input any) Result {
	start := time.Now()
	res := Result{Metadata: Metadata{Category: w.cfg.Category, WorkerID: w.cfg.ID}}

	if err := w.ensureInit(ctx); err != nil {
		res.Err = err
		res.Elapsed = time.Since(start)
		return res
	}

	data, err := w.run(ctx, input)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrExecution, err)
		return res
	}

	res.Success = true
	res.Data = data
	return res
}

func (w *Worker) ensureInit(ctx context.Context) error {
	w.mu.Lock()
	if w.ready {
		w.mu.Unlock()
		return nil
	}
	if w.initialized {
		err := w.initErr
		w.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInitialization, err)
	}
	w.mu.Unlock()

	return w.Init(ctx)
}

func (w *Worker) run(ctx context.Context, input any) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return w.exec.Execute(ctx, input)
}

func safeInit(ctx context.Context, in Initializer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return in.Init(ctx)
}
