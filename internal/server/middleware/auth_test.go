package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// captureUser records the user id the middleware resolved.
func captureUser(userID *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFromContext(r.Context())
		*userID = id
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_BasicAuthSuccess(t *testing.T) {
	var userID string
	handler := Auth("admin", "secret")(captureUser(&userID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if userID != "admin" {
		t.Errorf("got user id %q, want admin", userID)
	}
}

func TestAuth_BasicAuthRejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no credentials", func(r *http.Request) {}},
		{"wrong password", func(r *http.Request) { r.SetBasicAuth("admin", "wrong") }},
		{"wrong username", func(r *http.Request) { r.SetBasicAuth("intruder", "secret") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var userID string
			handler := Auth("admin", "secret")(captureUser(&userID))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("got status %d, want 401", rec.Code)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate challenge")
			}
			if userID != "" {
				t.Error("handler ran despite rejected auth")
			}
		})
	}
}

func TestAuth_DisabledUsesHeader(t *testing.T) {
	var userID string
	handler := Auth("", "")(captureUser(&userID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-Id", "user-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if userID != "user-42" {
		t.Errorf("got user id %q, want user-42", userID)
	}
}

func TestAuth_DisabledFallsBackToAnonymous(t *testing.T) {
	var userID string
	handler := Auth("", "")(captureUser(&userID))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if userID != "anonymous" {
		t.Errorf("got user id %q, want anonymous", userID)
	}
}
