package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"longjob/internal/job"
	"longjob/pkg/api"

	"github.com/google/uuid"
)

// SSEManager fans out job events to Server-Sent-Events subscribers. Multiple
// subscribers per job are supported; each connection serializes its own
// writes so frames from the worker and the keep-alive ticker never interleave.
type SSEManager struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

// Subscription is one client connection on a job's event stream.
type Subscription struct {
	manager *SSEManager
	jobID   uuid.UUID
	userID  string

	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEManager creates an empty subscriber registry.
func NewSSEManager(log *slog.Logger) *SSEManager {
	return &SSEManager{
		log:  log,
		subs: make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

// Subscribe registers w as a listener for the job's events, writes the SSE
// response headers and sends the initial connected frame. The caller must
// Unsubscribe when the client goes away.
func (m *SSEManager) Subscribe(userID string, jobID uuid.UUID, w http.ResponseWriter) (*Subscription, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := &Subscription{
		manager: m,
		jobID:   jobID,
		userID:  userID,
		w:       w,
		flusher: flusher,
	}

	m.mu.Lock()
	if m.subs[jobID] == nil {
		m.subs[jobID] = make(map[*Subscription]struct{})
	}
	m.subs[jobID][sub] = struct{}{}
	m.mu.Unlock()

	if err := sub.send(api.JobEvent{
		Event:     api.EventConnected,
		JobID:     jobID.String(),
		Timestamp: time.Now().UTC(),
	}); err != nil {
		m.Unsubscribe(sub)
		return nil, err
	}

	return sub, nil
}

// Unsubscribe removes the subscription from the registry.
func (m *SSEManager) Unsubscribe(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set, ok := m.subs[sub.jobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(m.subs, sub.jobID)
		}
	}
}

// NotifyStatus implements Notifier.
func (m *SSEManager) NotifyStatus(ctx context.Context, j *job.Job) {
	m.broadcast(ctx, j.ID, statusEvent(j))
}

func statusEvent(j *job.Job) api.JobEvent {
	return api.JobEvent{
		Event:      api.EventStatus,
		JobID:      j.ID.String(),
		Status:     string(j.Status),
		RetryCount: j.RetryCount,
		Timestamp:  time.Now().UTC(),
	}
}

// NotifyProgress implements Notifier.
func (m *SSEManager) NotifyProgress(ctx context.Context, j *job.Job, unit string) {
	cursor := 0
	if j.Encode != nil {
		cursor = j.Encode.Cursor
	}
	m.broadcast(ctx, j.ID, api.JobEvent{
		Event:     api.EventProgress,
		JobID:     j.ID.String(),
		Unit:      unit,
		Cursor:    cursor,
		Timestamp: time.Now().UTC(),
	})
}

// broadcast sends the event to every subscriber of the job. A subscriber
// whose write fails is dropped; delivery problems never propagate to the
// caller.
func (m *SSEManager) broadcast(ctx context.Context, jobID uuid.UUID, event api.JobEvent) {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs[jobID]))
	for sub := range m.subs[jobID] {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		if err := sub.send(event); err != nil {
			m.log.WarnContext(ctx, "dropping event subscriber",
				"job_id", jobID, "user_id", sub.userID, "error", err)
			m.Unsubscribe(sub)
		}
	}
}

// SendStatus delivers the job's current status to this subscription only.
// Used for the catch-up frame right after subscribing; a broadcast there
// would hand every other listener a duplicate frame.
func (s *Subscription) SendStatus(j *job.Job) error {
	return s.send(statusEvent(j))
}

// KeepAlive writes an SSE comment frame so proxies don't close an idle
// stream.
func (s *Subscription) KeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Subscription) send(event api.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
