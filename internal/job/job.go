// Package job contains the job record, its payload variants and the
// state machine that governs every status transition.
package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type discriminates the payload variant carried by a job record.
type Type string

const (
	// TypeEncode is the character-frequency encoding job.
	TypeEncode Type = "encode"
)

// Status is the current state of a job in its lifecycle.
// It is mutated only through the transition methods in statemachine.go.
type Status string

const (
	StatusCreated    Status = "created"
	StatusQueued     Status = "queued"
	StatusTaken      Status = "taken"
	StatusRunning    Status = "running"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
	StatusRetrying   Status = "retrying"
)

// IsTerminal reports whether no further transitions are defined for this attempt.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusFailed
}

// EncodePayload is the type-specific state of an encode job: the input blob,
// the resumption cursor and the output produced so far.
type EncodePayload struct {
	Input    string `json:"input"`
	Cursor   int    `json:"cursor"`
	Produced string `json:"produced"`
}

// UpdateProgress advances the resumption cursor.
func (p *EncodePayload) UpdateProgress(cursor int, produced string) {
	p.Cursor = cursor
	p.Produced = produced
}

// Reset rewinds the cursor to the start. Used when the stored cursor no
// longer matches the deterministic output.
func (p *EncodePayload) Reset() {
	p.Cursor = 0
	p.Produced = ""
}

// Job is the durable record for a single background job. The envelope fields
// are common to all types; exactly one payload pointer is set, selected by Type.
type Job struct {
	ID     uuid.UUID
	UserID string
	Type   Type
	Status Status

	// Owner and LeaseExpiry are both set or both empty, never one without
	// the other. Owner is the id of the worker holding the lease.
	Owner       string
	LeaseExpiry *time.Time

	RetryCount int

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	Encode *EncodePayload
}

// NewEncode creates an encode job in the Created state.
func NewEncode(userID, input string) *Job {
	return &Job{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      TypeEncode,
		Status:    StatusCreated,
		CreatedAt: time.Now().UTC(),
		Encode:    &EncodePayload{Input: input},
	}
}

// encodeCreatePayload is the submission payload for encode jobs.
type encodeCreatePayload struct {
	Input string `json:"input"`
}

// New builds a job of the given type from a raw submission payload.
// Unknown types and malformed payloads are rejected at this boundary.
func New(t Type, userID string, payload json.RawMessage) (*Job, error) {
	switch t {
	case TypeEncode:
		var p encodeCreatePayload
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", t, err)
		}
		if p.Input == "" {
			return nil, fmt.Errorf("invalid %s payload: input is required", t)
		}
		return NewEncode(userID, p.Input), nil
	default:
		return nil, &UnknownTypeError{Type: t}
	}
}

// Clone returns an independent deep copy of the record.
func (j *Job) Clone() *Job {
	c := *j
	if j.LeaseExpiry != nil {
		t := *j.LeaseExpiry
		c.LeaseExpiry = &t
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Encode != nil {
		p := *j.Encode
		c.Encode = &p
	}
	return &c
}
