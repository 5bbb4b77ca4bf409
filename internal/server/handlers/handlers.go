// Package handlers contains HTTP handlers for the job API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"longjob/internal/notify"
	"longjob/internal/queue"
	"longjob/internal/store"
	"longjob/pkg/api"
)

// Pinger reports whether the backing store is reachable. The postgres store
// implements it; the memory store has nothing to ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	repo  store.JobRepository
	queue *queue.Queue
	sse   *notify.SSEManager
	log   *slog.Logger

	// Pinger is optional; when set, /api/health checks it.
	Pinger Pinger

	// KeepAliveInterval paces SSE keep-alive comments and the terminal-state
	// poll on the events stream.
	KeepAliveInterval time.Duration
}

// New creates a new Handlers instance with the given dependencies.
func New(repo store.JobRepository, q *queue.Queue, sse *notify.SSEManager, log *slog.Logger) *Handlers {
	return &Handlers{
		repo:              repo,
		queue:             q,
		sse:               sse,
		log:               log,
		KeepAliveInterval: 30 * time.Second,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
