package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (p *fakePinger) Ping(context.Context) error { return p.err }

func TestHealth_OK(t *testing.T) {
	f := newFixture()

	rec := httptest.NewRecorder()
	f.h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}

func TestHealth_ReportsUnreachableStore(t *testing.T) {
	f := newFixture()
	f.h.Pinger = &fakePinger{err: errors.New("connection refused")}

	rec := httptest.NewRecorder()
	f.h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want 503", rec.Code)
	}
}
