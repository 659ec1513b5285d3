package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gestock/gestock-api/internal/keycloak"
	"github.com/gestock/gestock-api/internal/models"
	"github.com/gestock/gestock-api/internal/services"
)

// UserManager covers the directory operations the admin surface drives.
type UserManager interface {
	ListDirectory(ctx context.Context) ([]models.DirectoryUser, error)
	CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.DirectoryUser, error)
	SetEnabled(ctx context.Context, userID string, enabled bool) error
	Delete(ctx context.Context, userID string) error
	ResetPassword(ctx context.Context, userID, newPassword string) error
}

// RoleManager covers role assignment and removal with local/remote sync.
type RoleManager interface {
	AssignRole(ctx context.Context, userID, roleName string) (*services.SyncResult, error)
	RemoveRole(ctx context.Context, userID, roleName string) (*services.SyncResult, error)
	GetUserRoles(ctx context.Context, userID string) ([]keycloak.RoleRepresentation, error)
}

type AdminUsersHandler struct {
	users     UserManager
	roles     RoleManager
	logger    *zap.Logger
	validator *validator.Validate
}

func NewAdminUsersHandler(users UserManager, roles RoleManager, logger *zap.Logger) *AdminUsersHandler {
	return &AdminUsersHandler{
		users:     users,
		roles:     roles,
		logger:    logger,
		validator: validator.New(),
	}
}

// ListUsers godoc
// @Summary List directory users
// @Description Lists all identity provider users annotated with their local business role
// @Tags admin-users
// @Produce json
// @Success 200 {array} models.DirectoryUser
// @Failure 500 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/users [get]
func (h *AdminUsersHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListDirectory(c.Request.Context())
	if err != nil {
		RespondInternalError(c, "Failed to list users", h.logger, zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, users)
}

// CreateUser godoc
// @Summary Create a user
// @Description Creates a user in the identity provider and provisions the local record
// @Tags admin-users
// @Accept json
// @Produce json
// @Param user body models.CreateUserRequest true "User to create"
// @Success 201 {object} models.DirectoryUser
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/users [post]
func (h *AdminUsersHandler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body", h.logger, zap.Error(err))
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		RespondValidationError(c, err.Error(), h.logger)
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), &req)
	if err != nil {
		switch {
		case keycloak.IsConflict(err):
			RespondConflict(c, "User already exists", h.logger, zap.String("email", req.Email))
		case keycloak.IsUnauthorized(err):
			RespondWithError(c, http.StatusBadGateway, "Identity provider rejected admin credentials", ErrorCodeInternalError, h.logger, zap.Error(err))
		default:
			RespondInternalError(c, "Failed to create user", h.logger, zap.Error(err))
		}
		return
	}

	c.JSON(http.StatusCreated, user)
}

// ToggleUserStatus godoc
// @Summary Enable or disable a user
// @Description Sets the account status on both sides; a user without a local record is toggled in the identity provider only
// @Tags admin-users
// @Produce json
// @Param id path string true "User ID"
// @Param enabled query bool true "Target status"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/users/{id}/toggle-status [put]
func (h *AdminUsersHandler) ToggleUserStatus(c *gin.Context) {
	userID := c.Param("id")

	enabled, err := strconv.ParseBool(c.Query("enabled"))
	if err != nil {
		RespondBadRequest(c, "Query parameter 'enabled' must be true or false", h.logger, zap.String("user_id", userID))
		return
	}

	if err := h.users.SetEnabled(c.Request.Context(), userID, enabled); err != nil {
		switch {
		case errors.Is(err, services.ErrProtectedRole):
			RespondForbidden(c, "Administrator accounts cannot be disabled", h.logger, zap.String("user_id", userID))
		case keycloak.IsNotFound(err):
			RespondNotFound(c, "User not found", h.logger, zap.String("user_id", userID))
		default:
			RespondInternalError(c, "Failed to update user status", h.logger, zap.Error(err))
		}
		return
	}

	RespondWithMessage(c, http.StatusOK, "User status updated", gin.H{"id": userID, "enabled": enabled})
}

// ResetUserPassword godoc
// @Summary Reset a user's password
// @Tags admin-users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param password body models.UpdatePasswordRequest true "New password"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/users/{id}/reset-password [put]
func (h *AdminUsersHandler) ResetUserPassword(c *gin.Context) {
	userID := c.Param("id")

	var req models.UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body", h.logger, zap.Error(err))
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		RespondValidationError(c, err.Error(), h.logger)
		return
	}

	if err := h.users.ResetPassword(c.Request.Context(), userID, req.NewPassword); err != nil {
		if keycloak.IsNotFound(err) {
			RespondNotFound(c, "User not found", h.logger, zap.String("user_id", userID))
			return
		}
		RespondInternalError(c, "Failed to reset password", h.logger, zap.Error(err))
		return
	}

	RespondWithMessage(c, http.StatusOK, "Password reset", nil)
}

// DeleteUser godoc
// @Summary Delete a user
// @Description Removes the user from the identity provider and the local database
// @Tags admin-users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/users/{id} [delete]
func (h *AdminUsersHandler) DeleteUser(c *gin.Context) {
	userID := c.Param("id")

	if err := h.users.Delete(c.Request.Context(), userID); err != nil {
		if keycloak.IsNotFound(err) {
			RespondNotFound(c, "User not found", h.logger, zap.String("user_id", userID))
			return
		}
		RespondInternalError(c, "Failed to delete user", h.logger, zap.Error(err))
		return
	}

	RespondWithMessage(c, http.StatusOK, "User deleted", nil)
}

// GetUserRoles godoc
// @Summary List a user's realm roles
// @Tags admin-users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {array} keycloak.RoleRepresentation
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/users/{id}/roles [get]
func (h *AdminUsersHandler) GetUserRoles(c *gin.Context) {
	userID := c.Param("id")

	roles, err := h.roles.GetUserRoles(c.Request.Context(), userID)
	if err != nil {
		if keycloak.IsNotFound(err) {
			RespondNotFound(c, "User not found", h.logger, zap.String("user_id", userID))
			return
		}
		RespondInternalError(c, "Failed to fetch user roles", h.logger, zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, roles)
}

type assignRoleRequest struct {
	RoleName string `json:"roleName" binding:"required"`
}

// AssignRole godoc
// @Summary Assign a business role to a user
// @Description Updates the local role and reconciles realm role mappings in the identity provider
// @Tags admin-users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param role body assignRoleRequest true "Role to assign"
// @Success 200 {object} services.SyncResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/users/{id}/roles [post]
func (h *AdminUsersHandler) AssignRole(c *gin.Context) {
	userID := c.Param("id")

	var req assignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body", h.logger, zap.Error(err))
		return
	}

	result, err := h.roles.AssignRole(c.Request.Context(), userID, req.RoleName)
	if err != nil {
		h.respondRoleError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RemoveRole godoc
// @Summary Remove a business role from a user
// @Description Resets the user to the default role locally and removes the realm role mapping
// @Tags admin-users
// @Produce json
// @Param id path string true "User ID"
// @Param roleName path string true "Role name"
// @Success 200 {object} services.SyncResult
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /admin/users/{id}/roles/{roleName} [delete]
func (h *AdminUsersHandler) RemoveRole(c *gin.Context) {
	userID := c.Param("id")
	roleName := c.Param("roleName")

	result, err := h.roles.RemoveRole(c.Request.Context(), userID, roleName)
	if err != nil {
		h.respondRoleError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *AdminUsersHandler) respondRoleError(c *gin.Context, userID string, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		RespondNotFound(c, "User not found", h.logger, zap.String("user_id", userID))
	case errors.Is(err, services.ErrProtectedRole):
		RespondForbidden(c, "Administrator role assignments cannot be changed", h.logger, zap.String("user_id", userID))
	case errors.Is(err, services.ErrUnknownRole):
		RespondBadRequest(c, "Unknown role", h.logger, zap.String("user_id", userID))
	default:
		RespondInternalError(c, "Failed to update user roles", h.logger, zap.Error(err), zap.String("user_id", userID))
	}
}
