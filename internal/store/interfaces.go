// Package store defines the persistence contract for job records.
package store

import (
	"context"
	"errors"

	"longjob/internal/job"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no job exists for the given id.
var ErrNotFound = errors.New("job not found")

// JobRepository persists job records. Every read returns an independent
// snapshot; writers follow read-modify-write against the latest persisted
// record, and the state machine's ownership guard is the correctness backstop
// when concurrent heartbeat, cancel and reconciler writes overlap.
type JobRepository interface {
	// Add inserts a newly created job.
	Add(ctx context.Context, j *job.Job) error

	// Get returns the job with the given id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// GetByStatus returns all jobs currently in the given status.
	// Used by the reconciler's sweeps.
	GetByStatus(ctx context.Context, status job.Status) ([]*job.Job, error)

	// Update persists the full record. Safe to call repeatedly from
	// concurrent lease/heartbeat paths; the last writer wins.
	Update(ctx context.Context, j *job.Job) error
}
