package middleware

import (
	"net/http"

	"longjob/internal/logger"

	"github.com/google/uuid"
)

// RequestID attaches a correlation id to the request context and echoes it
// back in the response. An incoming X-Request-Id is reused so ids survive
// proxies.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-Id", requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
