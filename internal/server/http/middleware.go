package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const ctxKeyOwnerID contextKey = "owner_id"

// ownerHeader carries the caller identity. Authentication itself terminates at
// the gateway; this service trusts the forwarded header.
const ownerHeader = "X-User-ID"

// ownerContextMiddleware extracts the owner identity from the request header
// and stores it in the request context.
func ownerContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(ownerHeader))
		if owner == "" {
			writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyOwnerID, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// correlationIDMiddleware ensures every response carries a correlation ID,
// either propagated from the caller or taken from the chi request ID.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = middleware.GetReqID(r.Context())
		}
		if correlationID != "" {
			w.Header().Set("X-Correlation-ID", correlationID)
		}
		next.ServeHTTP(w, r)
	})
}

// jsonContentTypeMiddleware sets Content-Type: application/json for all responses.
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one structured line per handled request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request handled")
	})
}

// ownerFromContext extracts the owner identity from the request context.
func ownerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyOwnerID).(string); ok {
		return v
	}
	return ""
}
