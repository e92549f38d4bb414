package scheduler

import (
	"context"
	"sync"

	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/worker"
)

// Future is the completion handle returned by Submit. It is resolved exactly
// once, with the final result or a terminal error.
type Future struct {
	id   string
	done chan struct{}
	once sync.Once

	result worker.Result
	err    error
}

func newFuture(id string) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID is the id of the submitted task.
func (f *Future) ID() string { return f.id }

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx ends. On terminal failure the
// returned Result still carries the last attempt's outcome.
func (f *Future) Wait(ctx context.Context) (worker.Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return worker.Result{}, ctx.Err()
	}
}

func (f *Future) resolve(res worker.Result, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.result = res
		f.err = err
		close(f.done)
		resolved = true
	})
	return resolved
}
