package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/session"
)

type ctxKey int

const sessionKey ctxKey = iota

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// authMiddleware checks the bearer token and attaches the acting session
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			sendError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims, err := s.Tokens.Verify(token, time.Now())
		if err != nil {
			s.logger.Warn("rejected bearer token",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
				"error", err,
			)
			sendError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		// the token outlives neither the user nor a role change
		user, found := s.Repos.Users.Get(claims.Subject)
		if !found {
			sendError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		sess := &session.Session{
			User:      user,
			IPAddress: s.Proxies.ClientIP(r),
			UserAgent: r.UserAgent(),
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

// requireRole allows only the listed roles
func requireRole(roles ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := sessionFrom(r).Role()
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			sendError(w, http.StatusForbidden, "Forbidden")
		})
	}
}

// requireBackend answers 503 when no backend is configured
func (s *Server) requireBackend(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Backend == nil {
			sendError(w, http.StatusServiceUnavailable, "Backend not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sessionFrom returns the session attached by authMiddleware, or nil
func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(sessionKey).(*session.Session)
	return sess
}
