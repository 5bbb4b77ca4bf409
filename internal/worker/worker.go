// Package worker contains the job execution loop and the reconciler.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"longjob/internal/executor"
	"longjob/internal/job"
	"longjob/internal/notify"
	"longjob/internal/queue"
	"longjob/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Config holds configuration for one worker loop.
type Config struct {
	ID                 string
	LeaseDuration      time.Duration // how long an acquired lease is valid (default: 5m)
	HeartbeatInterval  time.Duration // interval between lease renewals (default: 5m)
	CancelPollInterval time.Duration // how often to check for a cancel request (default: 1s)
	MainLoopBackoff    time.Duration // pause after an unexpected task failure (default: 5s)
}

// Worker competes for queued jobs, executes them under a heartbeated lease
// and reports terminal outcomes. Run one Worker per unit of concurrency.
type Worker struct {
	cfg      Config
	repo     store.JobRepository
	queue    *queue.Queue
	registry *executor.Registry
	notifier notify.Notifier
	log      *slog.Logger

	// now is injectable for tests.
	now func() time.Time

	outcomes metric.Int64Counter
}

// New creates a worker. Zero config durations get the defaults above.
func New(repo store.JobRepository, q *queue.Queue, reg *executor.Registry, n notify.Notifier, log *slog.Logger, cfg Config) *Worker {
	if cfg.ID == "" {
		cfg.ID = "worker-" + uuid.NewString()
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 5 * time.Minute
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Minute
	}
	if cfg.CancelPollInterval <= 0 {
		cfg.CancelPollInterval = 1 * time.Second
	}
	if cfg.MainLoopBackoff <= 0 {
		cfg.MainLoopBackoff = 5 * time.Second
	}

	w := &Worker{
		cfg:      cfg,
		repo:     repo,
		queue:    q,
		registry: reg,
		notifier: n,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}

	meter := otel.Meter("longjob-worker")
	counter, err := meter.Int64Counter("longjob.jobs.processed",
		metric.WithDescription("Terminal job outcomes observed by this worker"))
	if err != nil {
		log.Warn("failed to register outcome counter", "error", err)
	} else {
		w.outcomes = counter
	}

	return w
}

// Run is the main dequeue loop. Each job id is handled in its own task so a
// per-job failure never stops the loop. Run blocks until the context is
// cancelled, then waits for in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker starting", "worker_id", w.cfg.ID)

	var wg sync.WaitGroup
	for {
		jobID, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.log.Info("worker stopping, draining tasks", "worker_id", w.cfg.ID)
			wg.Wait()
			return err
		}

		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			w.runTask(ctx, id)
		}(jobID)
	}
}

// runTask is the per-job fault boundary. An unexpected error best-effort
// fails the job and backs off; the reconciler is the backstop for anything
// left behind.
func (w *Worker) runTask(ctx context.Context, id uuid.UUID) {
	if err := w.processJob(ctx, id); err != nil {
		w.log.ErrorContext(ctx, "job task failed",
			"job_id", id, "worker_id", w.cfg.ID, "error", err)
		w.failBestEffort(ctx, id)

		select {
		case <-time.After(w.cfg.MainLoopBackoff):
		case <-ctx.Done():
		}
	}
}

func (w *Worker) processJob(ctx context.Context, id uuid.UUID) error {
	j, err := w.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.log.WarnContext(ctx, "dequeued unknown job", "job_id", id)
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", id, err)
	}

	// Stale redelivery or lost race: someone else progressed the job.
	if !j.TryAcquire(w.cfg.ID, w.now(), w.cfg.LeaseDuration) {
		w.log.DebugContext(ctx, "skipping job not eligible for lease",
			"job_id", id, "status", j.Status)
		return nil
	}
	if err := w.repo.Update(ctx, j); err != nil {
		return fmt.Errorf("failed to persist lease for job %s: %w", id, err)
	}
	w.notifier.NotifyStatus(ctx, j)

	tracer := otel.Tracer("longjob-worker")
	ctx, span := tracer.Start(ctx, "process_job",
		trace.WithAttributes(
			attribute.String("job.id", j.ID.String()),
			attribute.String("job.type", string(j.Type)),
			attribute.String("worker.id", w.cfg.ID),
			attribute.Int("job.retry_count", j.RetryCount),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	exec, err := w.registry.Resolve(j.Type)
	if err != nil {
		// No executor is fatal to this job only, never retried.
		span.RecordError(err)
		w.log.ErrorContext(ctx, "no executor for job type",
			"job_id", j.ID, "job_type", j.Type)
		return w.failNow(ctx, j)
	}

	if err := j.Start(w.cfg.ID); err != nil {
		return fmt.Errorf("failed to start job %s: %w", j.ID, err)
	}
	if err := w.repo.Update(ctx, j); err != nil {
		return fmt.Errorf("failed to persist start of job %s: %w", j.ID, err)
	}
	w.notifier.NotifyStatus(ctx, j)

	execCtx, cancelExec := context.WithCancel(ctx)
	defer cancelExec()

	watchCtx, stopWatchers := context.WithCancel(ctx)
	var watchers sync.WaitGroup
	watchers.Add(2)
	go func() {
		defer watchers.Done()
		w.runHeartbeat(watchCtx, j.ID)
	}()
	go func() {
		defer watchers.Done()
		w.watchCancellation(watchCtx, j.ID, cancelExec)
	}()

	execErr := exec.Execute(execCtx, j, w.progressFunc(j))

	stopWatchers()
	watchers.Wait()

	if execErr != nil {
		span.RecordError(execErr)
	}
	return w.finalize(ctx, j, execErr)
}

// progressFunc builds the per-unit callback: abort on cancellation, push the
// unit to the sink, then persist the advanced cursor while still the executing
// worker.
func (w *Worker) progressFunc(j *job.Job) executor.ProgressFunc {
	return func(ctx context.Context, unit string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.notifier.NotifyProgress(ctx, j, unit)
		return w.persistCursor(ctx, j)
	}
}

// persistCursor copies the in-memory payload onto the latest persisted record
// so concurrent status changes (a cancel request, a reconciler repair) are
// never clobbered. Losing the record to another owner aborts execution.
func (w *Worker) persistCursor(ctx context.Context, j *job.Job) error {
	latest, err := w.repo.Get(ctx, j.ID)
	if err != nil {
		return fmt.Errorf("failed to reload job %s: %w", j.ID, err)
	}

	switch {
	case latest.Owner == w.cfg.ID:
	case latest.Status == job.StatusCancelling && latest.Owner == "":
		// Cancel requested; keep saving progress until the poll notices.
	default:
		return &job.OwnerMismatchError{Owner: latest.Owner, WorkerID: w.cfg.ID}
	}

	copyPayload(latest, j)
	if err := w.repo.Update(ctx, latest); err != nil {
		return fmt.Errorf("failed to persist cursor for job %s: %w", j.ID, err)
	}
	return nil
}

// finalize reloads the record and settles the terminal state. A pending
// cancellation wins over both success and failure of the executor.
func (w *Worker) finalize(ctx context.Context, j *job.Job, execErr error) error {
	latest, err := w.repo.Get(ctx, j.ID)
	if err != nil {
		return fmt.Errorf("failed to reload job %s for finalization: %w", j.ID, err)
	}
	copyPayload(latest, j)

	if latest.Status == job.StatusCancelling {
		if err := latest.CancelByWorker(w.cfg.ID); err != nil {
			return fmt.Errorf("failed to confirm cancellation of job %s: %w", j.ID, err)
		}
		if err := w.repo.Update(ctx, latest); err != nil {
			return fmt.Errorf("failed to persist cancellation of job %s: %w", j.ID, err)
		}
		w.notifier.NotifyStatus(ctx, latest)
		w.recordOutcome(ctx, latest, "cancelled")
		w.log.InfoContext(ctx, "job cancelled", "job_id", j.ID, "worker_id", w.cfg.ID)
		return nil
	}

	if execErr != nil {
		if errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded) {
			// Shutdown, not a cancel request. Leave the lease to expire so
			// the reconciler requeues the job with its cursor intact.
			w.log.InfoContext(ctx, "job interrupted by shutdown",
				"job_id", j.ID, "worker_id", w.cfg.ID, "cursor", cursorOf(latest))
			return nil
		}
		var mismatch *job.OwnerMismatchError
		if errors.As(execErr, &mismatch) {
			// Lost the record mid-flight; whoever took it is in charge now.
			w.log.WarnContext(ctx, "lost job ownership mid-execution",
				"job_id", j.ID, "worker_id", w.cfg.ID, "owner", mismatch.Owner)
			return nil
		}

		w.log.ErrorContext(ctx, "executor failed",
			"job_id", j.ID, "worker_id", w.cfg.ID, "error", execErr)
		return w.failNow(ctx, latest)
	}

	if err := latest.Complete(w.cfg.ID); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", j.ID, err)
	}
	if err := w.repo.Update(ctx, latest); err != nil {
		return fmt.Errorf("failed to persist completion of job %s: %w", j.ID, err)
	}
	w.notifier.NotifyStatus(ctx, latest)
	w.recordOutcome(ctx, latest, "completed")
	w.log.InfoContext(ctx, "job completed", "job_id", j.ID, "worker_id", w.cfg.ID)
	return nil
}

// failNow transitions the held job to Failed and persists it.
func (w *Worker) failNow(ctx context.Context, j *job.Job) error {
	if err := j.Fail(w.cfg.ID); err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", j.ID, err)
	}
	if err := w.repo.Update(ctx, j); err != nil {
		return fmt.Errorf("failed to persist failure of job %s: %w", j.ID, err)
	}
	w.notifier.NotifyStatus(ctx, j)
	w.recordOutcome(ctx, j, "failed")
	return nil
}

// failBestEffort is the task-boundary recovery: mark the job Failed if we
// still can, swallow anything secondary.
func (w *Worker) failBestEffort(ctx context.Context, id uuid.UUID) {
	latest, err := w.repo.Get(ctx, id)
	if err != nil {
		w.log.WarnContext(ctx, "recovery could not load job", "job_id", id, "error", err)
		return
	}
	if latest.Status.IsTerminal() {
		return
	}
	if err := latest.Fail(w.cfg.ID); err != nil {
		w.log.WarnContext(ctx, "recovery could not fail job",
			"job_id", id, "status", latest.Status, "error", err)
		return
	}
	if err := w.repo.Update(ctx, latest); err != nil {
		w.log.WarnContext(ctx, "recovery could not persist failure", "job_id", id, "error", err)
		return
	}
	w.notifier.NotifyStatus(ctx, latest)
	w.recordOutcome(ctx, latest, "failed")
}

// runHeartbeat renews the lease until the watch context is cancelled or the
// job is no longer ours to renew.
func (w *Worker) runHeartbeat(ctx context.Context, id uuid.UUID) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			latest, err := w.repo.Get(ctx, id)
			if err != nil {
				w.log.WarnContext(ctx, "heartbeat could not load job", "job_id", id, "error", err)
				continue
			}
			if err := latest.Heartbeat(w.cfg.ID, w.now(), w.cfg.LeaseDuration); err != nil {
				// Cancel request or reconciler took the lease away.
				w.log.DebugContext(ctx, "stopping heartbeat", "job_id", id, "error", err)
				return
			}
			if err := w.repo.Update(ctx, latest); err != nil {
				w.log.WarnContext(ctx, "heartbeat could not persist lease", "job_id", id, "error", err)
			}
		}
	}
}

// watchCancellation polls the persisted status and cancels the execution
// context once a cancel request lands.
func (w *Worker) watchCancellation(ctx context.Context, id uuid.UUID, cancelExec context.CancelFunc) {
	ticker := time.NewTicker(w.cfg.CancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			latest, err := w.repo.Get(ctx, id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					cancelExec()
					return
				}
				w.log.WarnContext(ctx, "cancel poll could not load job", "job_id", id, "error", err)
				continue
			}
			if latest.Status == job.StatusCancelling || latest.Status.IsTerminal() {
				cancelExec()
				return
			}
		}
	}
}

func (w *Worker) recordOutcome(ctx context.Context, j *job.Job, outcome string) {
	if w.outcomes == nil {
		return
	}
	w.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("job.type", string(j.Type)),
	))
}

// copyPayload carries the executing worker's payload progress onto a freshly
// loaded record.
func copyPayload(dst, src *job.Job) {
	if src.Encode != nil {
		p := *src.Encode
		dst.Encode = &p
	}
}

func cursorOf(j *job.Job) int {
	if j.Encode != nil {
		return j.Encode.Cursor
	}
	return 0
}
