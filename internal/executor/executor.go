// Package executor contains the pluggable per-type execution strategies
// that workers invoke once a job is leased.
package executor

import (
	"context"
	"sync"

	"longjob/internal/job"
)

// ProgressFunc forwards one unit of produced output to the progress sink.
// Implementations must check for cancellation before emitting so a cancel
// request is never swallowed by a slow sink.
type ProgressFunc func(ctx context.Context, unit string) error

// Executor performs the actual work for one job type. It must resume from
// the payload's stored cursor and advance that cursor as it emits progress,
// so that re-execution after abandonment continues instead of restarting.
type Executor interface {
	Type() job.Type
	Execute(ctx context.Context, j *job.Job, progress ProgressFunc) error
}

// Registry maps job types to their executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[job.Type]Executor
}

// NewRegistry creates a registry with the given executors.
func NewRegistry(executors ...Executor) *Registry {
	r := &Registry{executors: make(map[job.Type]Executor)}
	for _, e := range executors {
		r.Register(e)
	}
	return r
}

// Register adds or replaces the executor for its type.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Type()] = e
}

// Resolve returns the executor for the given type. A missing executor is a
// configuration error fatal to that job.
func (r *Registry) Resolve(t job.Type) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[t]
	if !ok {
		return nil, &job.UnknownTypeError{Type: t}
	}
	return e, nil
}
