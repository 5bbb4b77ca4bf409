// Package server wires the HTTP API for the job service.
package server

import (
	"context"
	"net/http"
	"time"

	"longjob/internal/server/handlers"
	"longjob/internal/server/middleware"
)

// Options carries the middleware configuration for the API surface.
type Options struct {
	AuthUsername string
	AuthPassword string
	RateLimit    float64
	RateBurst    int

	// Metrics is the Prometheus scrape handler; nil disables the endpoint.
	Metrics http.Handler
}

// Server is the HTTP server for the job API.
type Server struct {
	httpServer *http.Server
}

// New creates the server with all routes registered.
func New(addr string, h *handlers.Handlers, opts Options) *Server {
	auth := middleware.Auth(opts.AuthUsername, opts.AuthPassword)
	limit := middleware.RateLimit(opts.RateLimit, opts.RateBurst)

	protected := func(fn http.HandlerFunc) http.Handler {
		return middleware.RequestID(auth(limit(fn)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/jobs", protected(h.CreateJob))
	mux.Handle("POST /api/jobs/{id}/cancel", protected(h.CancelJob))
	mux.Handle("GET /api/jobs/{id}/state", protected(h.JobState))
	mux.Handle("GET /api/jobs/{id}/events", protected(h.JobEvents))

	mux.HandleFunc("GET /api/health", h.Health)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// No WriteTimeout: the events endpoint holds SSE streams open
			// for the lifetime of a job.
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
