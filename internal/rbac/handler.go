package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/archivault/archivault/internal/platform/httpx"
	"github.com/archivault/archivault/internal/requestctx"
)

// Handler serves role and permission management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type roleResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Level     int       `json:"level"`
	CompanyID *int64    `json:"companyId,omitempty"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toRoleResponse(r Role) roleResponse {
	return roleResponse{
		ID:        r.ID,
		Name:      r.Name,
		Level:     r.Level,
		CompanyID: r.CompanyID,
		System:    r.System(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type roleRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=64"`
	Level int    `json:"level" validate:"gte=0,lte=998"`
}

type rolePermissionsRequest struct {
	PermissionIDs []int64 `json:"permissionIds" validate:"required"`
}

// ListRoles handles GET /api/roles.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	actor := requestctx.ActorFromContext(r.Context())
	roles, err := h.service.ListRoles(r.Context(), callerCompany(actor))
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = toRoleResponse(role)
	}
	httpx.JSON(w, http.StatusOK, out)
}

// CreateRole handles POST /api/roles.
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor := requestctx.ActorFromContext(r.Context())
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Level, callerCompany(actor))
	if err != nil {
		h.respondServiceError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

// UpdateRole handles PUT /api/roles/{id}.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor := requestctx.ActorFromContext(r.Context())
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Level, callerCompany(actor))
	if err != nil {
		h.respondServiceError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

// DeleteRole handles DELETE /api/roles/{id}.
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor := requestctx.ActorFromContext(r.Context())
	if err := h.service.DeleteRole(r.Context(), id, callerCompany(actor)); err != nil {
		h.respondServiceError(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetRolePermissions handles PUT /api/roles/{id}/permissions.
func (h *Handler) SetRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req rolePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor := requestctx.ActorFromContext(r.Context())
	if err := h.service.SetRolePermissions(r.Context(), id, req.PermissionIDs, callerCompany(actor)); err != nil {
		h.respondServiceError(w, "set role permissions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignUserRole handles POST /api/users/{id}/roles/{roleId}.
func (h *Handler) AssignUserRole(w http.ResponseWriter, r *http.Request) {
	userID, roleID, ok := userRoleParams(w, r)
	if !ok {
		return
	}
	if err := h.service.AssignRole(r.Context(), userID, roleID); err != nil {
		h.respondServiceError(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveUserRole handles DELETE /api/users/{id}/roles/{roleId}.
func (h *Handler) RemoveUserRole(w http.ResponseWriter, r *http.Request) {
	userID, roleID, ok := userRoleParams(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, roleID); err != nil {
		h.respondServiceError(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPermissions handles GET /api/permissions.
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	type permResponse struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Level *int   `json:"level,omitempty"`
	}
	out := make([]permResponse, len(perms))
	for i, p := range perms {
		out[i] = permResponse{ID: p.ID, Name: p.Name, Level: p.Level}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrSystemRole), errors.Is(err, ErrTenantMismatch):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func callerCompany(actor *requestctx.Actor) *int64 {
	if actor == nil || actor.CompanyID == 0 {
		return nil
	}
	id := actor.CompanyID
	return &id
}

func userRoleParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return 0, 0, false
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleId"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return 0, 0, false
	}
	return userID, roleID, true
}
