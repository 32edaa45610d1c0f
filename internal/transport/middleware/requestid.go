package middleware

import (
	"net/http"

	"github.com/frahmantamala/salespilot/pkg/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
)

// RequestID attaches a trace id to the request logger. Gateways do not send
// X-Trace-ID, so chi's request id is reused before a fresh uuid is minted.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = middleware.GetReqID(r.Context())
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "trace_id", traceID)

		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
