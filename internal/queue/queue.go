// Package queue provides the in-process dispatch channel between job
// submission and worker pickup.
package queue

import (
	"context"

	"github.com/google/uuid"
)

// DefaultCapacity bounds the queue when no explicit capacity is given.
const DefaultCapacity = 1000

// Queue is a bounded FIFO channel of job ids. It is shared by the submission
// path, the workers and the reconciler within a single process; a full queue
// blocks producers, applying backpressure to submission. Redelivery of an id
// is harmless: the lease protocol gates actual execution.
type Queue struct {
	ch chan uuid.UUID
}

// New creates a queue with the given capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan uuid.UUID, capacity)}
}

// Enqueue admits a job id for pickup. It blocks while the queue is full and
// returns the context error if ctx is cancelled first.
func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until an id is available and delivers it to exactly one
// caller, or returns the context error on cancellation.
func (q *Queue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	select {
	case jobID := <-q.ch:
		return jobID, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Len reports the number of ids currently waiting. Used by the queue-depth
// gauge; the value is immediately stale.
func (q *Queue) Len() int {
	return len(q.ch)
}
