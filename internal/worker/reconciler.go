package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"longjob/internal/job"
	"longjob/internal/notify"
	"longjob/internal/queue"
	"longjob/internal/store"

	"github.com/google/uuid"
)

// CleanerConfig holds configuration for the reconciler.
type CleanerConfig struct {
	Interval      time.Duration // time between sweeps (default: 5m)
	LeaseDuration time.Duration // stuck-cancellation grace window (default: 5m)
	MaxRetries    int           // abandonment retry budget (default: 3)
	Backoff       time.Duration // pause after a failed tick (default: 5s)
}

// Cleaner is the periodic reconciler. It is the single authority for lease
// expiry: no other process may call CheckLeaseExpired, otherwise two
// processes could double-count the same expiry against the retry budget.
type Cleaner struct {
	cfg      CleanerConfig
	repo     store.JobRepository
	queue    *queue.Queue
	notifier notify.Notifier
	log      *slog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewCleaner creates a reconciler. Zero config values get the defaults above.
func NewCleaner(repo store.JobRepository, q *queue.Queue, n notify.Notifier, log *slog.Logger, cfg CleanerConfig) *Cleaner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}

	return &Cleaner{
		cfg:      cfg,
		repo:     repo,
		queue:    q,
		notifier: n,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks the sweeps until the context is cancelled. A tick that fails on
// infrastructure backs off briefly instead of crashing the loop.
func (c *Cleaner) Run(ctx context.Context) error {
	c.log.Info("reconciler starting", "interval", c.cfg.Interval)

	// The queue lives in process memory, so ids admitted before a restart are
	// gone; repopulate from the store before the first tick.
	if err := c.requeueQueued(ctx); err != nil {
		c.log.ErrorContext(ctx, "startup requeue failed", "error", err)
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.runSweeps(ctx); err != nil {
				c.log.ErrorContext(ctx, "reconciliation tick failed", "error", err)
				select {
				case <-time.After(c.cfg.Backoff):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// runSweeps executes one reconciliation pass. Sweep order matters: expired
// leases are classified first so the retrying and abandoned sweeps of the
// same tick pick up the result.
func (c *Cleaner) runSweeps(ctx context.Context) error {
	if err := c.sweepExpiredLeases(ctx); err != nil {
		return err
	}
	if err := c.sweepRetrying(ctx); err != nil {
		return err
	}
	if err := c.sweepAbandoned(ctx); err != nil {
		return err
	}
	return c.sweepStuckCancellations(ctx)
}

// requeueQueued pushes every Queued id onto the queue. Without it a job whose
// submission beat a crash, or whose queue push failed after the insert, would
// wait forever: no sweep covers Queued. Duplicate delivery is harmless.
func (c *Cleaner) requeueQueued(ctx context.Context) error {
	jobs, err := c.repo.GetByStatus(ctx, job.StatusQueued)
	if err != nil {
		return fmt.Errorf("failed to list queued jobs: %w", err)
	}

	for _, j := range jobs {
		if err := c.queue.Enqueue(ctx, j.ID); err != nil {
			return fmt.Errorf("failed to requeue job %s: %w", j.ID, err)
		}
		c.log.InfoContext(ctx, "requeued job on startup", "job_id", j.ID)
	}
	return nil
}

// reload fetches the job's current record and reports whether it is still in
// the swept status. Listing snapshots go stale the moment a worker writes.
func (c *Cleaner) reload(ctx context.Context, id uuid.UUID, want job.Status) (*job.Job, bool) {
	j, err := c.repo.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.log.ErrorContext(ctx, "failed to reload job for sweep",
				"job_id", id, "error", err)
		}
		return nil, false
	}
	if j.Status != want {
		return nil, false
	}
	return j, true
}

// sweepExpiredLeases finds Taken/Running jobs whose worker stopped
// heartbeating and consumes a retry for each. Cancelling jobs are deliberately
// excluded; they belong to the stuck-cancellation sweep.
func (c *Cleaner) sweepExpiredLeases(ctx context.Context) error {
	for _, status := range []job.Status{job.StatusTaken, job.StatusRunning} {
		jobs, err := c.repo.GetByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("expired-lease sweep: failed to list %s jobs: %w", status, err)
		}

		for _, stale := range jobs {
			// A worker may have finished between the scan and this point;
			// acting on the listing snapshot would overwrite its result.
			j, ok := c.reload(ctx, stale.ID, status)
			if !ok {
				continue
			}

			before := j.Status
			j.CheckLeaseExpired(c.now(), c.cfg.MaxRetries)
			if j.Status == before {
				continue
			}

			if err := c.repo.Update(ctx, j); err != nil {
				c.log.ErrorContext(ctx, "expired-lease sweep: failed to persist job",
					"job_id", j.ID, "error", err)
				continue
			}
			c.notifier.NotifyStatus(ctx, j)
			c.log.InfoContext(ctx, "reclaimed expired lease",
				"job_id", j.ID, "status", j.Status, "retry_count", j.RetryCount)

			if j.Status == job.StatusRetrying {
				// Best effort; the retrying sweep requeues leftovers next tick.
				if err := c.queue.Enqueue(ctx, j.ID); err != nil {
					c.log.WarnContext(ctx, "failed to requeue reclaimed job",
						"job_id", j.ID, "error", err)
				}
			}
		}
	}
	return nil
}

// sweepRetrying pushes retry-eligible ids back onto the queue. Retrying is
// already lease-eligible, so requeueing is a queue push only; duplicate
// delivery is harmless because the lease gates execution.
func (c *Cleaner) sweepRetrying(ctx context.Context) error {
	jobs, err := c.repo.GetByStatus(ctx, job.StatusRetrying)
	if err != nil {
		return fmt.Errorf("retrying sweep: failed to list jobs: %w", err)
	}

	for _, j := range jobs {
		if err := c.queue.Enqueue(ctx, j.ID); err != nil {
			c.log.WarnContext(ctx, "retrying sweep: failed to requeue job",
				"job_id", j.ID, "error", err)
			continue
		}
		c.log.DebugContext(ctx, "requeued retrying job", "job_id", j.ID)
	}
	return nil
}

// sweepAbandoned settles jobs stranded in Abandoned, normally only seen after
// a crash between the abandonment and its follow-up transition: within the
// retry budget they go back to Retrying and the queue, beyond it they fail
// permanently.
func (c *Cleaner) sweepAbandoned(ctx context.Context) error {
	jobs, err := c.repo.GetByStatus(ctx, job.StatusAbandoned)
	if err != nil {
		return fmt.Errorf("abandoned sweep: failed to list jobs: %w", err)
	}

	for _, stale := range jobs {
		j, ok := c.reload(ctx, stale.ID, job.StatusAbandoned)
		if !ok {
			continue
		}

		if j.RetryCount <= c.cfg.MaxRetries {
			if err := j.Retry(); err != nil {
				c.log.ErrorContext(ctx, "abandoned sweep: retry transition failed",
					"job_id", j.ID, "error", err)
				continue
			}
		} else {
			if err := j.FailExhausted(); err != nil {
				c.log.ErrorContext(ctx, "abandoned sweep: fail transition failed",
					"job_id", j.ID, "error", err)
				continue
			}
		}

		if err := c.repo.Update(ctx, j); err != nil {
			c.log.ErrorContext(ctx, "abandoned sweep: failed to persist job",
				"job_id", j.ID, "error", err)
			continue
		}
		c.notifier.NotifyStatus(ctx, j)
		c.log.InfoContext(ctx, "settled abandoned job",
			"job_id", j.ID, "status", j.Status, "retry_count", j.RetryCount)

		if j.Status == job.StatusRetrying {
			if err := c.queue.Enqueue(ctx, j.ID); err != nil {
				c.log.WarnContext(ctx, "failed to requeue abandoned job",
					"job_id", j.ID, "error", err)
			}
		}
	}
	return nil
}

// sweepStuckCancellations finalizes Cancelling jobs whose worker never
// confirmed: the lease was freed by the cancel request and nobody picked the
// confirmation up, or the owner went silent past the grace window.
func (c *Cleaner) sweepStuckCancellations(ctx context.Context) error {
	jobs, err := c.repo.GetByStatus(ctx, job.StatusCancelling)
	if err != nil {
		return fmt.Errorf("stuck-cancel sweep: failed to list jobs: %w", err)
	}

	for _, stale := range jobs {
		// The executing worker may have confirmed the cancellation already;
		// re-stamping its record would move completedAt.
		j, ok := c.reload(ctx, stale.ID, job.StatusCancelling)
		if !ok {
			continue
		}

		if err := j.CancelStuck(c.now(), c.cfg.LeaseDuration); err != nil {
			if errors.Is(err, job.ErrStillOwned) {
				continue
			}
			c.log.ErrorContext(ctx, "stuck-cancel sweep: transition failed",
				"job_id", j.ID, "error", err)
			continue
		}

		if err := c.repo.Update(ctx, j); err != nil {
			c.log.ErrorContext(ctx, "stuck-cancel sweep: failed to persist job",
				"job_id", j.ID, "error", err)
			continue
		}
		c.notifier.NotifyStatus(ctx, j)
		c.log.InfoContext(ctx, "finalized stuck cancellation", "job_id", j.ID)
	}
	return nil
}
