// Package memory implements the job repository in process memory.
// It backs tests and single-node runs without a DATABASE_URL.
package memory

import (
	"context"
	"sync"

	"longjob/internal/job"
	"longjob/internal/store"

	"github.com/google/uuid"
)

// Store is a mutex-guarded map of job records. Reads hand out deep copies so
// callers never share mutable state; Update replaces the stored record with a
// copy of the caller's, giving last-writer-wins semantics like the SQL store.
type Store struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*job.Job
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{jobs: make(map[uuid.UUID]*job.Job)}
}

// Add inserts a newly created job.
func (s *Store) Add(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j.Clone()
	return nil
}

// Get returns a snapshot of the job with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return j.Clone(), nil
}

// GetByStatus returns snapshots of all jobs currently in the given status.
func (s *Store) GetByStatus(ctx context.Context, status job.Status) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*job.Job
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

// Update replaces the stored record.
func (s *Store) Update(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID]; !ok {
		return store.ErrNotFound
	}
	s.jobs[j.ID] = j.Clone()
	return nil
}
