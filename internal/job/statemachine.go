package job

import "time"

// The transition methods below are the only way a job's Status, Owner,
// LeaseExpiry and RetryCount may change. Every method validates the current
// status and, where a worker identity is involved, the stored owner; anything
// not allowed returns an error and leaves the record untouched.

// Enqueue moves a freshly created job into the queue-eligible state.
func (j *Job) Enqueue() error {
	if err := j.ensure("enqueue", StatusCreated); err != nil {
		return err
	}
	j.Status = StatusQueued
	return nil
}

// TryAcquire attempts to take the lease for workerID. It succeeds only when
// the job is Queued or Retrying; a false return has no side effect, which is
// what makes concurrent acquire attempts safe.
func (j *Job) TryAcquire(workerID string, now time.Time, lease time.Duration) bool {
	if j.Status != StatusQueued && j.Status != StatusRetrying {
		return false
	}

	expiry := now.Add(lease)
	j.Owner = workerID
	j.LeaseExpiry = &expiry
	j.Status = StatusTaken
	return true
}

// Start moves a leased job into Running. StartedAt is set on the first start
// only, so a resumed attempt keeps the original start time.
func (j *Job) Start(workerID string) error {
	if err := j.ensure("start", StatusTaken); err != nil {
		return err
	}
	if err := j.ensureOwner(workerID); err != nil {
		return err
	}

	j.Status = StatusRunning
	if j.StartedAt == nil {
		now := time.Now().UTC()
		j.StartedAt = &now
	}
	return nil
}

// Heartbeat refreshes the lease expiry for the owning worker.
func (j *Job) Heartbeat(workerID string, now time.Time, lease time.Duration) error {
	if err := j.ensure("heartbeat", StatusTaken, StatusRunning, StatusCancelling); err != nil {
		return err
	}
	if err := j.ensureOwner(workerID); err != nil {
		return err
	}

	expiry := now.Add(lease)
	j.LeaseExpiry = &expiry
	return nil
}

// RequestCancel records a cancellation request. A queued job is cancelled
// outright; a taken or running job moves to Cancelling and loses its lease
// immediately, even though the worker may still be executing. The worker (or
// the reconciler's stuck sweep) confirms the final Cancelled state.
func (j *Job) RequestCancel() error {
	switch j.Status {
	case StatusQueued:
		j.Status = StatusCancelled
		j.setCompleted()
	case StatusTaken, StatusRunning:
		j.Status = StatusCancelling
	default:
		return &InvalidTransitionError{Status: j.Status, Event: "requestCancel"}
	}

	j.clearOwnership()
	return nil
}

// Retry moves an abandoned job back into the lease-eligible Retrying state.
func (j *Job) Retry() error {
	if err := j.ensure("retry", StatusAbandoned); err != nil {
		return err
	}
	j.Status = StatusRetrying
	return nil
}

// Complete marks the job as successfully finished by its owning worker.
func (j *Job) Complete(workerID string) error {
	if err := j.ensure("complete", StatusRunning, StatusCancelling); err != nil {
		return err
	}
	if err := j.ensureOwner(workerID); err != nil {
		return err
	}

	j.Status = StatusCompleted
	j.setCompleted()
	j.clearOwnership()
	return nil
}

// CancelByWorker is the executing worker's confirmation of a cancellation
// request. The cancel request already freed the lease, so an ownerless record
// accepts any confirmer; a still-owned record only accepts its owner.
func (j *Job) CancelByWorker(workerID string) error {
	if err := j.ensure("cancelByWorker", StatusCancelling); err != nil {
		return err
	}
	if j.Owner != "" {
		if err := j.ensureOwner(workerID); err != nil {
			return err
		}
	}

	j.Status = StatusCancelled
	j.setCompleted()
	j.clearOwnership()
	return nil
}

// Fail marks the job as failed by its owning worker.
func (j *Job) Fail(workerID string) error {
	if err := j.ensure("fail", StatusTaken, StatusRunning, StatusCancelling); err != nil {
		return err
	}
	if err := j.ensureOwner(workerID); err != nil {
		return err
	}

	j.Status = StatusFailed
	j.setCompleted()
	j.clearOwnership()
	return nil
}

// CheckLeaseExpired detects a dead or stalled owner. If the lease is expired
// while the job is Taken, Running or Cancelling, the job is abandoned, the
// retry counter is consumed and the state advances to Retrying while the
// budget lasts, Failed once it is spent. An unexpired or unowned lease is a
// no-op.
//
// This check is side-effecting: it must be invoked by exactly one authority,
// the reconciler's expired-lease sweep, so two processes never race to
// double-count the same expiry.
func (j *Job) CheckLeaseExpired(now time.Time, maxRetries int) {
	if j.LeaseExpiry == nil || !now.After(*j.LeaseExpiry) {
		return
	}

	switch j.Status {
	case StatusTaken, StatusRunning, StatusCancelling:
	default:
		return
	}

	j.Status = StatusAbandoned
	j.clearOwnership()
	j.RetryCount++

	if j.RetryCount <= maxRetries {
		j.Status = StatusRetrying
	} else {
		j.Status = StatusFailed
		j.setCompleted()
	}
}

// FailExhausted permanently fails an abandoned job whose retry budget is
// spent. The job has no owner at this point, so there is no owner guard.
func (j *Job) FailExhausted() error {
	if err := j.ensure("failExhausted", StatusAbandoned); err != nil {
		return err
	}
	j.Status = StatusFailed
	j.setCompleted()
	j.clearOwnership()
	return nil
}

// CancelStuck force-finalizes a Cancelling job whose worker never confirmed:
// either the lease was cleared by the cancel request and nobody picked the
// confirmation up, or the owner stopped heartbeating past the lease window.
func (j *Job) CancelStuck(now time.Time, lease time.Duration) error {
	if err := j.ensure("cancelStuck", StatusCancelling); err != nil {
		return err
	}
	if j.Owner != "" && (j.LeaseExpiry == nil || !now.After(j.LeaseExpiry.Add(lease))) {
		return ErrStillOwned
	}

	j.Status = StatusCancelled
	j.setCompleted()
	j.clearOwnership()
	return nil
}

func (j *Job) ensure(event string, allowed ...Status) error {
	for _, s := range allowed {
		if j.Status == s {
			return nil
		}
	}
	return &InvalidTransitionError{Status: j.Status, Event: event}
}

func (j *Job) ensureOwner(workerID string) error {
	if j.Owner != workerID {
		return &OwnerMismatchError{Owner: j.Owner, WorkerID: workerID}
	}
	return nil
}

func (j *Job) clearOwnership() {
	j.Owner = ""
	j.LeaseExpiry = nil
}

// setCompleted stamps CompletedAt on the first transition into a terminal
// state; later transitions in a retried attempt never overwrite it.
func (j *Job) setCompleted() {
	if j.CompletedAt == nil {
		now := time.Now().UTC()
		j.CompletedAt = &now
	}
}
