package job

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNew_Encode(t *testing.T) {
	j, err := New(TypeEncode, "user-1", json.RawMessage(`{"input":"aab"}`))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if j.Type != TypeEncode {
		t.Errorf("got type %s, want %s", j.Type, TypeEncode)
	}
	if j.Status != StatusCreated {
		t.Errorf("got status %s, want %s", j.Status, StatusCreated)
	}
	if j.UserID != "user-1" {
		t.Errorf("got user %q", j.UserID)
	}
	if j.Encode == nil || j.Encode.Input != "aab" {
		t.Errorf("payload not populated: %+v", j.Encode)
	}
	if j.Encode.Cursor != 0 || j.Encode.Produced != "" {
		t.Error("fresh job must start with an empty cursor")
	}
	if j.CreatedAt.IsZero() {
		t.Error("createdAt not set")
	}
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New("transcode", "user-1", json.RawMessage(`{}`))

	var unknownErr *UnknownTypeError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected unknown-type error, got %v", err)
	}
	if unknownErr.Type != "transcode" {
		t.Errorf("got type %q in error", unknownErr.Type)
	}
}

func TestNew_RejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"unknown field", `{"input":"abc","extra":1}`},
		{"missing input", `{}`},
		{"wrong shape", `["abc"]`},
		{"not json", `{input}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(TypeEncode, "user-1", json.RawMessage(tt.payload)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestClone_IsIndependent(t *testing.T) {
	j := NewEncode("user-1", "aab")
	j.Status = StatusRunning
	expiry := time.Now().UTC()
	j.Owner = "worker-1"
	j.LeaseExpiry = &expiry
	j.Encode.UpdateProgress(2, "2a")

	c := j.Clone()
	c.Encode.UpdateProgress(3, "2a1")
	newExpiry := expiry.Add(time.Hour)
	c.LeaseExpiry = &newExpiry

	if j.Encode.Cursor != 2 || j.Encode.Produced != "2a" {
		t.Error("mutating the clone's payload leaked into the original")
	}
	if !j.LeaseExpiry.Equal(expiry) {
		t.Error("mutating the clone's lease leaked into the original")
	}
}

func TestEncodePayload_Reset(t *testing.T) {
	p := &EncodePayload{Input: "aab", Cursor: 4, Produced: "2a1b"}
	p.Reset()
	if p.Cursor != 0 || p.Produced != "" {
		t.Errorf("reset left cursor=%d produced=%q", p.Cursor, p.Produced)
	}
	if p.Input != "aab" {
		t.Error("reset must not clear the input")
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusCancelled, StatusCompleted, StatusFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusCreated, StatusQueued, StatusTaken, StatusRunning, StatusCancelling, StatusAbandoned, StatusRetrying} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
