// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the server.
package api

import (
	"encoding/json"
	"time"
)

// CreateJobRequest is the request body for submitting a new job.
type CreateJobRequest struct {
	JobType string `json:"job_type"`
	// Payload is the type-specific input, e.g. {"input": "text to encode"}
	// for encode jobs.
	Payload json.RawMessage `json:"payload"`
}

// CreateJobResponse is the response body after submitting a job.
type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

// JobStateResponse is the response body for job state queries.
type JobStateResponse struct {
	ID          string     `json:"id"`
	JobType     string     `json:"job_type"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	Cursor      int        `json:"cursor"`
	Produced    string     `json:"produced,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Event types delivered over the SSE stream.
const (
	EventConnected = "connected"
	EventStatus    = "status"
	EventProgress  = "progress"
)

// JobEvent is a single frame on the progress stream.
type JobEvent struct {
	Event      string    `json:"event"`
	JobID      string    `json:"job_id"`
	Status     string    `json:"status,omitempty"`
	RetryCount int       `json:"retry_count,omitempty"`
	Unit       string    `json:"unit,omitempty"`
	Cursor     int       `json:"cursor,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
