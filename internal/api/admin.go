package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/phonebook/internal/models"
)

const defaultQueueColor = "#3b82f6"

// handleExtensionsList handles GET /api/v1/extensions?department=&number=
func (s *Server) handleExtensionsList(w http.ResponseWriter, r *http.Request) {
	exts := s.extensions()
	q := r.URL.Query()

	if number := strings.TrimSpace(q.Get("number")); number != "" {
		ext, err := exts.GetByNumber(r.Context(), number)
		if err != nil {
			s.logger.Error("failed to look up extension", "number", number, "error", err)
			sendError(w, http.StatusInternalServerError, "Failed to list extensions")
			return
		}
		list := []models.Extension{}
		if ext != nil {
			list = append(list, *ext)
		}
		sendJSON(w, http.StatusOK, list)
		return
	}

	list, err := exts.List(r.Context(), strings.TrimSpace(q.Get("department")))
	if err != nil {
		s.logger.Error("failed to list extensions", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to list extensions")
		return
	}
	sendJSON(w, http.StatusOK, list)
}

// handleExtensionGet handles GET /api/v1/extensions/{id}
func (s *Server) handleExtensionGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ext, err := s.extensions().Get(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get extension", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to get extension")
		return
	}
	if ext == nil {
		sendError(w, http.StatusNotFound, "Extension not found")
		return
	}
	sendJSON(w, http.StatusOK, ext)
}

// handleExtensionCreate handles POST /api/v1/extensions
func (s *Server) handleExtensionCreate(w http.ResponseWriter, r *http.Request) {
	var in models.ExtensionInput
	if !decodeJSON(w, r, &in) {
		return
	}

	in.Number = strings.TrimSpace(in.Number)
	in.Name = strings.TrimSpace(in.Name)
	if in.Number == "" {
		sendError(w, http.StatusBadRequest, "number is required")
		return
	}
	if in.Name == "" {
		sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if in.Status == "" {
		in.Status = models.StatusActive
	}
	if !in.Status.Valid() {
		sendError(w, http.StatusBadRequest, "status must be active, inactive or maintenance")
		return
	}

	ext, err := s.extensions().Add(r.Context(), sessionFrom(r), in)
	if err != nil {
		s.logger.Error("failed to create extension", "number", in.Number, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to create extension")
		return
	}
	sendJSON(w, http.StatusCreated, ext)
}

// trimmed trims a patch field in place and reports whether it is still set
func trimmed(field *string) bool {
	if field == nil {
		return true
	}
	*field = strings.TrimSpace(*field)
	return *field != ""
}

// handleExtensionUpdate handles PUT /api/v1/extensions/{id}
func (s *Server) handleExtensionUpdate(w http.ResponseWriter, r *http.Request) {
	var patch models.ExtensionPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	if !trimmed(patch.Number) {
		sendError(w, http.StatusBadRequest, "number must not be empty")
		return
	}
	if !trimmed(patch.Name) {
		sendError(w, http.StatusBadRequest, "name must not be empty")
		return
	}
	if patch.Status != nil && !patch.Status.Valid() {
		sendError(w, http.StatusBadRequest, "status must be active, inactive or maintenance")
		return
	}

	id := chi.URLParam(r, "id")
	ext, err := s.extensions().Update(r.Context(), sessionFrom(r), id, patch)
	if err != nil {
		s.logger.Error("failed to update extension", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to update extension")
		return
	}
	if ext == nil {
		sendError(w, http.StatusNotFound, "Extension not found")
		return
	}
	sendJSON(w, http.StatusOK, ext)
}

// handleExtensionDelete handles DELETE /api/v1/extensions/{id}
func (s *Server) handleExtensionDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.extensions().Delete(r.Context(), sessionFrom(r), id)
	if err != nil {
		s.logger.Error("failed to delete extension", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to delete extension")
		return
	}
	if !deleted {
		sendError(w, http.StatusNotFound, "Extension not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleQueueGet handles GET /api/v1/queues/{id}
func (s *Server) handleQueueGet(w http.ResponseWriter, r *http.Request) {
	q, ok := s.Repos.Queues.Get(chi.URLParam(r, "id"))
	if !ok {
		sendError(w, http.StatusNotFound, "Queue not found")
		return
	}
	sendJSON(w, http.StatusOK, q)
}

// handleQueueCreate handles POST /api/v1/queues
func (s *Server) handleQueueCreate(w http.ResponseWriter, r *http.Request) {
	var in models.QueueInput
	if !decodeJSON(w, r, &in) {
		return
	}

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if in.Color == "" {
		in.Color = defaultQueueColor
	}

	q, err := s.Repos.Queues.Add(r.Context(), sessionFrom(r), in)
	if err != nil {
		s.logger.Error("failed to create queue", "name", in.Name, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to create queue")
		return
	}
	sendJSON(w, http.StatusCreated, q)
}

// handleQueueUpdate handles PUT /api/v1/queues/{id}
func (s *Server) handleQueueUpdate(w http.ResponseWriter, r *http.Request) {
	var patch models.QueuePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		sendError(w, http.StatusBadRequest, "name must not be empty")
		return
	}

	id := chi.URLParam(r, "id")
	q, err := s.Repos.Queues.Update(r.Context(), sessionFrom(r), id, patch)
	if err != nil {
		s.logger.Error("failed to update queue", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to update queue")
		return
	}
	if q == nil {
		sendError(w, http.StatusNotFound, "Queue not found")
		return
	}
	sendJSON(w, http.StatusOK, q)
}

// handleQueueDelete handles DELETE /api/v1/queues/{id}
func (s *Server) handleQueueDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.Repos.Queues.Delete(r.Context(), sessionFrom(r), id)
	if err != nil {
		s.logger.Error("failed to delete queue", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to delete queue")
		return
	}
	if !deleted {
		sendError(w, http.StatusNotFound, "Queue not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUsersList handles GET /api/v1/users
func (s *Server) handleUsersList(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.Repos.Users.List())
}

// handleUserGet handles GET /api/v1/users/{id}
func (s *Server) handleUserGet(w http.ResponseWriter, r *http.Request) {
	u, ok := s.Repos.Users.Get(chi.URLParam(r, "id"))
	if !ok {
		sendError(w, http.StatusNotFound, "User not found")
		return
	}
	sendJSON(w, http.StatusOK, u)
}

// handleUserCreate handles POST /api/v1/users
func (s *Server) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	var in models.AdminUserInput
	if !decodeJSON(w, r, &in) {
		return
	}

	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Email == "" {
		sendError(w, http.StatusBadRequest, "email is required")
		return
	}
	if in.FullName == "" {
		sendError(w, http.StatusBadRequest, "full_name is required")
		return
	}
	if in.Role == "" {
		in.Role = models.RoleAdmin
	}
	if !in.Role.Valid() {
		sendError(w, http.StatusBadRequest, "role must be super_admin, admin or moderator")
		return
	}
	if s.Repos.Users.FindByEmail(in.Email) != nil {
		sendError(w, http.StatusConflict, "email already registered")
		return
	}

	u, err := s.Repos.Users.Add(r.Context(), sessionFrom(r), in)
	if err != nil {
		s.logger.Error("failed to create user", "email", in.Email, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	sendJSON(w, http.StatusCreated, u)
}

// handleUserUpdate handles PUT /api/v1/users/{id}
func (s *Server) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	var patch models.AdminUserPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	id := chi.URLParam(r, "id")
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if email == "" {
			sendError(w, http.StatusBadRequest, "email must not be empty")
			return
		}
		if other := s.Repos.Users.FindByEmail(email); other != nil && other.ID != id {
			sendError(w, http.StatusConflict, "email already registered")
			return
		}
		patch.Email = &email
	}
	if patch.FullName != nil && strings.TrimSpace(*patch.FullName) == "" {
		sendError(w, http.StatusBadRequest, "full_name must not be empty")
		return
	}
	if patch.Role != nil && !patch.Role.Valid() {
		sendError(w, http.StatusBadRequest, "role must be super_admin, admin or moderator")
		return
	}

	u, err := s.Repos.Users.Update(r.Context(), sessionFrom(r), id, patch)
	if err != nil {
		s.logger.Error("failed to update user", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to update user")
		return
	}
	if u == nil {
		sendError(w, http.StatusNotFound, "User not found")
		return
	}
	sendJSON(w, http.StatusOK, u)
}

// handleUserDelete handles DELETE /api/v1/users/{id}
func (s *Server) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess := sessionFrom(r)
	if id == sess.User.ID {
		sendError(w, http.StatusBadRequest, "cannot delete the logged in user")
		return
	}

	deleted, err := s.Repos.Users.Delete(r.Context(), sess, id)
	if err != nil {
		s.logger.Error("failed to delete user", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}
	if !deleted {
		sendError(w, http.StatusNotFound, "User not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAuditLogs handles GET /api/v1/audit-logs
func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.AuditLogFilter{
		Action:     models.AuditAction(strings.ToUpper(q.Get("action"))),
		EntityType: q.Get("entity_type"),
		UserID:     q.Get("user_id"),
	}

	switch f.Action {
	case "", models.ActionCreate, models.ActionUpdate, models.ActionDelete:
	default:
		sendError(w, http.StatusBadRequest, "action must be CREATE, UPDATE or DELETE")
		return
	}

	var err error
	if f.Limit, err = queryInt(q.Get("limit")); err != nil {
		sendError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if f.Offset, err = queryInt(q.Get("offset")); err != nil {
		sendError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	sendJSON(w, http.StatusOK, s.Audit.Filter(f))
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
