package worker

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds the executor backing one configured worker.
type Factory func(cfg Config) (Executor, error)

// Registry maps task categories to executor factories. It is populated once
// at startup and read when the worker pool is built.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

func (r *Registry) Register(category string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[category] = factory
}

// RegisterExecutor shares exec between every worker of category.
func (r *Registry) RegisterExecutor(category string, exec Executor) {
	r.Register(category, func(Config) (Executor, error) {
		return exec, nil
	})
}

func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for c := range r.factories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Build creates one Worker per config. Every config must be valid, carry a
// unique id and name a registered category.
func (r *Registry) Build(cfgs []Config) ([]*Worker, error) {
	if err := CheckConfigs(cfgs); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	workers := make([]*Worker, 0, len(cfgs))
	for _, cfg := range cfgs {
		factory, ok := r.factories[cfg.Category]
		if !ok {
			return nil, fmt.Errorf("worker %s: unknown category: %s", cfg.ID, cfg.Category)
		}

		exec, err := factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("build worker %s: %w", cfg.ID, err)
		}
		workers = append(workers, New(cfg, exec))
	}

	return workers, nil
}

// CheckConfigs validates every config and rejects duplicate ids. Workers of
// one category must share max_retries: a task's retry budget is per category.
func CheckConfigs(cfgs []Config) error {
	seen := make(map[string]bool, len(cfgs))
	retries := make(map[string]Config)
	for _, cfg := range cfgs {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if seen[cfg.ID] {
			return fmt.Errorf("duplicate worker id: %s", cfg.ID)
		}
		seen[cfg.ID] = true

		if first, ok := retries[cfg.Category]; ok && first.MaxRetries != cfg.MaxRetries {
			return fmt.Errorf("category %s: worker %s has max_retries %d, worker %s has %d",
				cfg.Category, cfg.ID, cfg.MaxRetries, first.ID, first.MaxRetries)
		} else if !ok {
			retries[cfg.Category] = cfg
		}
	}
	return nil
}
