package job

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrStillOwned is returned by CancelStuck when a Cancelling job still has an
// actively heartbeating owner and must be left alone.
var ErrStillOwned = errors.New("job is still owned by an active worker")

// InvalidTransitionError is returned when an event is not legal for the
// job's current status.
type InvalidTransitionError struct {
	Status Status
	Event  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q is not allowed in status %q", e.Event, e.Status)
}

// OwnerMismatchError is returned when a worker attempts an owner-guarded
// transition on a job it does not hold the lease for.
type OwnerMismatchError struct {
	Owner    string
	WorkerID string
}

func (e *OwnerMismatchError) Error() string {
	return fmt.Sprintf("owner mismatch: worker %q does not own the job (owner %q)", e.WorkerID, e.Owner)
}

// UnknownTypeError is returned when no payload variant or executor exists
// for a job type.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown job type %q", e.Type)
}

// UnauthorizedError is returned when the requesting user does not own the job.
type UnauthorizedError struct {
	UserID string
	JobID  uuid.UUID
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("user %q does not own job %s", e.UserID, e.JobID)
}
