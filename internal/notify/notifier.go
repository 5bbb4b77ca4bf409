// Package notify delivers job lifecycle updates to subscribed clients.
package notify

import (
	"context"

	"longjob/internal/job"
)

// Notifier pushes status and progress updates for a job. Delivery is best
// effort: a missing or broken subscriber never fails the job itself.
type Notifier interface {
	NotifyStatus(ctx context.Context, j *job.Job)
	NotifyProgress(ctx context.Context, j *job.Job, unit string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) NotifyStatus(context.Context, *job.Job) {}

func (NopNotifier) NotifyProgress(context.Context, *job.Job, string) {}
