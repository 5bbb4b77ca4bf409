package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"longjob/internal/job"
	"longjob/internal/logger"
	"longjob/internal/server/middleware"
	"longjob/internal/store"
	"longjob/pkg/api"

	"github.com/google/uuid"
)

// CreateJob handles POST /api/jobs.
// It validates the typed payload, persists the record and pushes the id onto
// the queue. A full queue blocks the request, which is the backpressure the
// queue is there to apply.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	j, err := job.New(job.Type(req.JobType), userID, req.Payload)
	if err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := j.Enqueue(); err != nil {
		h.httpError(w, "Failed to queue job", http.StatusInternalServerError)
		return
	}

	if err := h.repo.Add(ctx, j); err != nil {
		logger.FromContext(ctx, h.log).Error("failed to persist job", "error", err)
		h.httpError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	if err := h.queue.Enqueue(ctx, j.ID); err != nil {
		// The record stays Queued; the reconciler's startup requeue recovers
		// it on the next service start.
		logger.FromContext(ctx, h.log).Error("failed to enqueue job",
			"job_id", j.ID, "error", err)
		h.httpError(w, "Failed to enqueue job", http.StatusServiceUnavailable)
		return
	}

	logger.FromContext(ctx, h.log).Info("job submitted",
		"job_id", j.ID, "job_type", j.Type, "user_id", userID)
	h.respondJson(w, http.StatusCreated, api.CreateJobResponse{JobID: j.ID.String()})
}

// CancelJob handles POST /api/jobs/{id}/cancel.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	j, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	if err := j.RequestCancel(); err != nil {
		var invalidErr *job.InvalidTransitionError
		if errors.As(err, &invalidErr) {
			h.httpError(w, err.Error(), http.StatusConflict)
			return
		}
		h.httpError(w, "Failed to cancel job", http.StatusInternalServerError)
		return
	}

	if err := h.repo.Update(ctx, j); err != nil {
		logger.FromContext(ctx, h.log).Error("failed to persist cancel request",
			"job_id", j.ID, "error", err)
		h.httpError(w, "Failed to cancel job", http.StatusInternalServerError)
		return
	}
	h.sse.NotifyStatus(ctx, j)

	logger.FromContext(ctx, h.log).Info("cancel requested",
		"job_id", j.ID, "status", j.Status)
	h.respondJson(w, http.StatusOK, stateResponse(j))
}

// JobState handles GET /api/jobs/{id}/state.
func (h *Handlers) JobState(w http.ResponseWriter, r *http.Request) {
	j, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	h.respondJson(w, http.StatusOK, stateResponse(j))
}

// JobEvents handles GET /api/jobs/{id}/events: an SSE stream of status and
// progress frames. The stream stays open until the client disconnects or the
// job is observed terminal on a keep-alive tick.
func (h *Handlers) JobEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	j, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	userID, _ := middleware.UserIDFromContext(ctx)
	sub, err := h.sse.Subscribe(userID, j.ID, w)
	if err != nil {
		h.httpError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	defer h.sse.Unsubscribe(sub)

	// Deliver the current status so late subscribers aren't blind until the
	// next transition. This subscription only; existing listeners already
	// have it.
	if err := sub.SendStatus(j); err != nil {
		return
	}

	ticker := time.NewTicker(h.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sub.KeepAlive(); err != nil {
				return
			}
			latest, err := h.repo.Get(ctx, j.ID)
			if err != nil || latest.Status.IsTerminal() {
				return
			}
		}
	}
}

// loadOwned parses the path id, loads the job and enforces that the caller
// owns it. On failure the response is already written.
func (h *Handlers) loadOwned(w http.ResponseWriter, r *http.Request) (*job.Job, bool) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return nil, false
	}

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	j, err := h.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Job not found", http.StatusNotFound)
			return nil, false
		}
		logger.FromContext(ctx, h.log).Error("failed to load job", "job_id", id, "error", err)
		h.httpError(w, "Failed to load job", http.StatusInternalServerError)
		return nil, false
	}

	if j.UserID != userID {
		authErr := &job.UnauthorizedError{UserID: userID, JobID: j.ID}
		h.httpError(w, authErr.Error(), http.StatusForbidden)
		return nil, false
	}

	return j, true
}

func stateResponse(j *job.Job) api.JobStateResponse {
	resp := api.JobStateResponse{
		ID:          j.ID.String(),
		JobType:     string(j.Type),
		Status:      string(j.Status),
		RetryCount:  j.RetryCount,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.Encode != nil {
		resp.Cursor = j.Encode.Cursor
		resp.Produced = j.Encode.Produced
	}
	return resp
}
