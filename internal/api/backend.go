package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/phonebook/internal/backend"
	"github.com/foxzi/phonebook/internal/directory"
	"github.com/foxzi/phonebook/internal/ipfilter"
	"github.com/foxzi/phonebook/internal/models"
)

// NginxResponse is the response for GET /allowed-ips/nginx
type NginxResponse struct {
	Block   string `json:"block"`
	Applied string `json:"applied,omitempty"`
}

// sendBackendError maps backend sentinel errors to HTTP statuses
func (s *Server) sendBackendError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		sendError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, backend.ErrInvalidIP):
		sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, backend.ErrDuplicateIP), errors.Is(err, backend.ErrDepartmentInUse):
		sendError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("backend request failed", "op", op, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to "+op)
	}
}

// handleDepartmentsList handles GET /api/v1/departments
func (s *Server) handleDepartmentsList(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	list, err := s.Backend.Departments.List(r.Context(), activeOnly)
	if err != nil {
		s.sendBackendError(w, err, "list departments")
		return
	}
	sendJSON(w, http.StatusOK, list)
}

// handleDepartmentGet handles GET /api/v1/departments/{id}
func (s *Server) handleDepartmentGet(w http.ResponseWriter, r *http.Request) {
	d, err := s.Backend.Departments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendBackendError(w, err, "get department")
		return
	}
	sendJSON(w, http.StatusOK, d)
}

// handleDepartmentCreate handles POST /api/v1/departments
func (s *Server) handleDepartmentCreate(w http.ResponseWriter, r *http.Request) {
	var in models.Department
	if !decodeJSON(w, r, &in) {
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	d, err := s.Backend.Departments.Create(r.Context(), in)
	if err != nil {
		s.sendBackendError(w, err, "create department")
		return
	}
	sendJSON(w, http.StatusCreated, d)
}

// handleDepartmentUpdate handles PUT /api/v1/departments/{id}
func (s *Server) handleDepartmentUpdate(w http.ResponseWriter, r *http.Request) {
	var patch models.DepartmentPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		sendError(w, http.StatusBadRequest, "name must not be empty")
		return
	}

	d, err := s.Backend.Departments.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.sendBackendError(w, err, "update department")
		return
	}
	sendJSON(w, http.StatusOK, d)
}

// handleDepartmentToggle handles POST /api/v1/departments/{id}/toggle
func (s *Server) handleDepartmentToggle(w http.ResponseWriter, r *http.Request) {
	d, err := s.Backend.Departments.ToggleActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendBackendError(w, err, "toggle department")
		return
	}
	sendJSON(w, http.StatusOK, d)
}

// handleDepartmentDelete handles DELETE /api/v1/departments/{id}
func (s *Server) handleDepartmentDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.Backend.Departments.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendBackendError(w, err, "delete department")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTechniciansList handles GET /api/v1/technicians?q=&region=
func (s *Server) handleTechniciansList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.Backend.Technicians.List(r.Context(), strings.TrimSpace(q.Get("region")))
	if err != nil {
		s.sendBackendError(w, err, "list technicians")
		return
	}
	sendJSON(w, http.StatusOK, directory.GroupTechnicians(directory.SearchTechnicians(list, q.Get("q"))))
}

// handleTechnicianCreate handles POST /api/v1/technicians
func (s *Server) handleTechnicianCreate(w http.ResponseWriter, r *http.Request) {
	var in models.Technician
	if !decodeJSON(w, r, &in) {
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" || in.Phone == "" {
		sendError(w, http.StatusBadRequest, "name and phone are required")
		return
	}

	t, err := s.Backend.Technicians.Create(r.Context(), in)
	if err != nil {
		s.sendBackendError(w, err, "create technician")
		return
	}
	sendJSON(w, http.StatusCreated, t)
}

// handleTechnicianUpdate handles PUT /api/v1/technicians/{id}
func (s *Server) handleTechnicianUpdate(w http.ResponseWriter, r *http.Request) {
	var patch models.TechnicianPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	t, err := s.Backend.Technicians.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.sendBackendError(w, err, "update technician")
		return
	}
	sendJSON(w, http.StatusOK, t)
}

// handleTechnicianDelete handles DELETE /api/v1/technicians/{id}
func (s *Server) handleTechnicianDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.Backend.Technicians.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendBackendError(w, err, "delete technician")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAllowedIPsList handles GET /api/v1/allowed-ips
func (s *Server) handleAllowedIPsList(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	list, err := s.Backend.AllowedIPs.List(r.Context(), activeOnly)
	if err != nil {
		s.sendBackendError(w, err, "list allowed ips")
		return
	}
	sendJSON(w, http.StatusOK, list)
}

// handleAllowedIPCreate handles POST /api/v1/allowed-ips
func (s *Server) handleAllowedIPCreate(w http.ResponseWriter, r *http.Request) {
	var in models.AllowedIP
	if !decodeJSON(w, r, &in) {
		return
	}
	a, err := s.Backend.AllowedIPs.Create(r.Context(), in)
	if err != nil {
		s.sendBackendError(w, err, "create allowed ip")
		return
	}
	sendJSON(w, http.StatusCreated, a)
}

// handleAllowedIPUpdate handles PUT /api/v1/allowed-ips/{id}
func (s *Server) handleAllowedIPUpdate(w http.ResponseWriter, r *http.Request) {
	var patch models.AllowedIPPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	a, err := s.Backend.AllowedIPs.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.sendBackendError(w, err, "update allowed ip")
		return
	}
	sendJSON(w, http.StatusOK, a)
}

// handleAllowedIPDelete handles DELETE /api/v1/allowed-ips/{id}
func (s *Server) handleAllowedIPDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.Backend.AllowedIPs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendBackendError(w, err, "delete allowed ip")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAllowedIPsNginx handles GET /api/v1/allowed-ips/nginx
func (s *Server) handleAllowedIPsNginx(w http.ResponseWriter, r *http.Request) {
	list, err := s.Backend.AllowedIPs.List(r.Context(), true)
	if err != nil {
		s.sendBackendError(w, err, "render nginx block")
		return
	}
	sendJSON(w, http.StatusOK, NginxResponse{Block: ipfilter.RenderNginx(list)})
}

// handleAllowedIPsNginxApply handles POST /api/v1/allowed-ips/nginx/apply
func (s *Server) handleAllowedIPsNginxApply(w http.ResponseWriter, r *http.Request) {
	list, err := s.Backend.AllowedIPs.List(r.Context(), true)
	if err != nil {
		s.sendBackendError(w, err, "render nginx block")
		return
	}

	block := ipfilter.RenderNginx(list)
	if err := ipfilter.UpdateNginxConfig(s.Nginx.ConfPath, s.Nginx.BackupPath, block); err != nil {
		s.logger.Error("failed to update nginx config", "path", s.Nginx.ConfPath, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to update nginx config")
		return
	}

	s.logger.Info("nginx allowlist updated", "path", s.Nginx.ConfPath, "entries", len(list))
	sendJSON(w, http.StatusOK, NginxResponse{Block: block, Applied: s.Nginx.ConfPath})
}

// handleAllowedIPsTraefik handles GET /api/v1/allowed-ips/traefik
func (s *Server) handleAllowedIPsTraefik(w http.ResponseWriter, r *http.Request) {
	list, err := s.Backend.AllowedIPs.List(r.Context(), true)
	if err != nil {
		s.sendBackendError(w, err, "render traefik config")
		return
	}
	data, err := ipfilter.RenderTraefik(list)
	if err != nil {
		s.logger.Error("failed to render traefik config", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to render traefik config")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleAllowedIPsTraefikApply handles POST /api/v1/allowed-ips/traefik/apply
func (s *Server) handleAllowedIPsTraefikApply(w http.ResponseWriter, r *http.Request) {
	list, err := s.Backend.AllowedIPs.List(r.Context(), true)
	if err != nil {
		s.sendBackendError(w, err, "render traefik config")
		return
	}
	data, err := ipfilter.RenderTraefik(list)
	if err == nil {
		err = ipfilter.UpdateTraefikConfig(s.Traefik.DynamicConfigPath, s.Traefik.BackupPath, data)
	}
	if err != nil {
		s.logger.Error("failed to update traefik config", "path", s.Traefik.DynamicConfigPath, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to update traefik config")
		return
	}

	s.logger.Info("traefik allowlist updated", "path", s.Traefik.DynamicConfigPath, "entries", len(list))
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok", "applied": s.Traefik.DynamicConfigPath})
}
