package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Route surfaces used as the error label
const (
	SurfacePublic = "public"
	SurfaceAuth   = "auth"
	SurfaceAdmin  = "admin"
	SurfaceOther  = "other"
)

// HTTPMiddleware records request count, latency and errors per route
// pattern. WebSocket upgrades are passed through untracked.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := Global()
		if m == nil || isUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		path := normalizePath(r)

		m.APIRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(code)).Inc()
		m.APIRequestDurationSeconds.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		if code >= 400 {
			m.APIErrorsTotal.WithLabelValues(surfaceOf(r.Method, path), categorizeStatus(code)).Inc()
		}
	})
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// surfaceOf maps a normalized path to the part of the API it belongs to
func surfaceOf(method, path string) string {
	rest, ok := strings.CutPrefix(path, "/api/v1/")
	if !ok {
		return SurfaceOther
	}
	switch {
	case rest == "auth/login":
		return SurfaceAuth
	case strings.HasPrefix(rest, "directory"), rest == "events":
		return SurfacePublic
	case rest == "queues" && method == http.MethodGet:
		return SurfacePublic
	default:
		return SurfaceAdmin
	}
}

// normalizePath returns the chi route pattern. Unrouted requests fall
// back to the raw path with ids and extension numbers collapsed.
func normalizePath(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return strings.TrimSuffix(rctx.RoutePattern(), "/*")
	}

	parts := strings.Split(r.URL.Path, "/")
	for i, part := range parts {
		switch {
		case isUUID(part):
			parts[i] = "{id}"
		case isNumber(part):
			parts[i] = "{number}"
		}
	}
	return strings.Join(parts, "/")
}

// isUUID checks if a string is a canonical 36 character UUID
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// categorizeStatus buckets HTTP error codes
func categorizeStatus(status int) string {
	switch {
	case status >= 500:
		return "server_error"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return "auth_error"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusBadRequest:
		return "bad_request"
	case status >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
