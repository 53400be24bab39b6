package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/piptrade/botd/internal/apperr"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// IngestTokenHeader carries the shared ingest secret when one is configured.
const IngestTokenHeader = "X-INGEST-TOKEN"

// requestIDMiddleware tags each request with a short unique id.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLogMiddleware writes one structured line per request.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http")
	})
}

// metricsMiddleware records request counts and latency per route template.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.Requests.WithLabelValues(route, r.Method, strconv.Itoa(wrapper.status)).Inc()
		s.metrics.Duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// corsMiddleware applies the configured origin policy and answers
// pre-flights with 204.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case s.cfg.AllowAnyOrigin():
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && s.cfg.AllowsOrigin(origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+IngestTokenHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ingestAuthMiddleware enforces the shared ingest secret when configured.
func (s *Server) ingestAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.IngestToken != "" {
			got := r.Header.Get(IngestTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.IngestToken)) != 1 {
				writeErr(w, apperr.New(apperr.Unauthorized, "missing or invalid ingest token"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter captures the response code for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// routeSuffix extracts the trailing path variable, lower-cased.
func routeSuffix(r *http.Request, name string) string {
	return strings.ToLower(mux.Vars(r)[name])
}
