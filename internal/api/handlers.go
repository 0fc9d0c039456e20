package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/foxzi/phonebook/internal/directory"
	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/ratelimit"
	"github.com/foxzi/phonebook/internal/session"
)

// Version is reported by the health endpoint
var Version = "dev"

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Extensions int    `json:"extensions"`
	Backend    bool   `json:"backend"`
	Events     int    `json:"event_clients"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// LoginRequest is the request body for POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token
type LoginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	User      *models.AdminUser `json:"user"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		Version:    Version,
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Extensions: len(s.Repos.Extensions.List()),
		Backend:    s.Backend != nil,
	}
	if s.Events != nil {
		resp.Events = s.Events.Count()
	}
	sendJSON(w, http.StatusOK, resp)
}

// handleDirectory handles GET /api/v1/directory
func (s *Server) handleDirectory(w http.ResponseWriter, r *http.Request) {
	by, ok := directory.ParseGrouping(r.URL.Query().Get("group"))
	if !ok {
		sendError(w, http.StatusBadRequest, "group must be queue or department")
		return
	}
	sendJSON(w, http.StatusOK, s.Directory.List(r.URL.Query().Get("q"), by))
}

// handleDirectoryStats handles GET /api/v1/directory/stats
func (s *Server) handleDirectoryStats(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.Directory.Stats())
}

// handleDirectoryLeaders handles GET /api/v1/directory/leaders
func (s *Server) handleDirectoryLeaders(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.Directory.Leaders())
}

// handleQueuesPublic handles GET /api/v1/queues
func (s *Server) handleQueuesPublic(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.Directory.Queues())
}

// handleLogin handles POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		sendError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	attempt := ratelimit.Request{Email: req.Email, IP: s.Proxies.ClientIP(r)}
	if s.Limiter != nil {
		if res := s.Limiter.Check(attempt); !res.Allowed {
			s.logger.Warn("login throttled", "email", req.Email, "ip", attempt.IP, "level", res.DeniedBy)
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			sendError(w, http.StatusTooManyRequests, "Too many failed login attempts")
			return
		}
	}

	user, err := s.Sessions.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, session.ErrInvalidCredentials) {
		if s.Limiter != nil {
			s.Limiter.RecordFailure(attempt)
		}
		sendError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		s.logger.Error("failed to authenticate", "email", req.Email, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	if s.Limiter != nil {
		s.Limiter.Reset(req.Email)
	}

	token, expires, err := s.Tokens.Issue(user, time.Now())
	if err != nil {
		s.logger.Error("failed to issue token", "user_id", user.ID, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	sendJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires, User: user})
}

// handleMe handles GET /api/v1/auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, sessionFrom(r).User)
}

// Helper functions

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
