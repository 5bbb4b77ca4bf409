package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func limitedHandler(limit float64, burst int) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Auth("", "")(RateLimit(limit, burst)(ok))
}

func doRequest(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-Id", userID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_EnforcesBurst(t *testing.T) {
	handler := limitedHandler(1, 2)

	for i := 0; i < 2; i++ {
		if rec := doRequest(handler, "user-1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d, want 200", i, rec.Code)
		}
	}

	rec := doRequest(handler, "user-1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestRateLimit_BucketsArePerUser(t *testing.T) {
	handler := limitedHandler(1, 1)

	if rec := doRequest(handler, "user-1"); rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if rec := doRequest(handler, "user-1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want 429", rec.Code)
	}

	// A different user has an untouched bucket.
	if rec := doRequest(handler, "user-2"); rec.Code != http.StatusOK {
		t.Errorf("got status %d for second user, want 200", rec.Code)
	}
}

func TestRateLimit_ZeroDisablesLimiting(t *testing.T) {
	handler := limitedHandler(0, 0)

	for i := 0; i < 50; i++ {
		if rec := doRequest(handler, "user-1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d, want 200", i, rec.Code)
		}
	}
}
