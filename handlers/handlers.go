package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/medins-agent/internal/authz"
	"github.com/upb/medins-agent/models"
	"github.com/upb/medins-agent/services"
	"github.com/upb/medins-agent/utils"
)

// UserAdmin is the subset of the user service used by admin endpoints
type UserAdmin interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) (*models.User, error)
}

// UpdateRoleRequest is the body of PUT /admin/users/{id}/role
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// RolesResponse lists the configured role tiers
type RolesResponse struct {
	AdminRoles    []authz.Role `json:"admin_roles"`
	ReadOnlyRoles []authz.Role `json:"read_only_roles"`
}

// UserListResponse is a page of users
type UserListResponse struct {
	Users []*models.User `json:"users"`
	Count int            `json:"count"`
}

// UserHandler serves role listing and user administration
type UserHandler struct {
	users  UserAdmin
	roles  *authz.RoleSet
	logger *zap.Logger
}

// NewUserHandler creates a UserHandler
func NewUserHandler(users UserAdmin, roles *authz.RoleSet, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		roles:  roles,
		logger: logger,
	}
}

// GetRoles handles GET /roles
func (h *UserHandler) GetRoles(w http.ResponseWriter, r *http.Request) {
	resp := RolesResponse{
		AdminRoles:    h.roles.AdminRoles(),
		ReadOnlyRoles: h.roles.ReadOnlyRoles(),
	}
	if resp.AdminRoles == nil {
		resp.AdminRoles = []authz.Role{}
	}
	if resp.ReadOnlyRoles == nil {
		resp.ReadOnlyRoles = []authz.Role{}
	}
	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write roles response", zap.Error(err))
	}
}

// ListUsers handles GET /admin/users?limit=&offset=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	users, err := h.users.ListUsers(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if users == nil {
		users = []*models.User{}
	}

	if err := utils.WriteOK(w, UserListResponse{Users: users, Count: len(users)}); err != nil {
		h.logger.Error("failed to write users response", zap.Error(err))
	}
}

// UpdateUserRole handles PUT /admin/users/{id}/role
func (h *UserHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"), "id")
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	var req UpdateRoleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		HandleServiceError(w, errInvalidBody, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	user, err := h.users.UpdateRole(r.Context(), id, req.Role)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	actor := ""
	if caller := authz.IdentityFromContext(r.Context()); caller != nil {
		actor = caller.Username
	}
	h.logger.Info("user role updated",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)),
		zap.String("actor", actor))

	if err := utils.WriteOK(w, user); err != nil {
		h.logger.Error("failed to write user response", zap.Error(err))
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.NewDomainError(services.ErrorTypeValidation, name+" must be an integer", err).
			WithDetail(name, raw)
	}
	return n, nil
}
