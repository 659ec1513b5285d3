package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gestock/gestock-api/internal/keycloak"
	"github.com/gestock/gestock-api/internal/middleware"
	"github.com/gestock/gestock-api/internal/models"
	"github.com/gestock/gestock-api/internal/services"
)

// ProfileManager covers the self-service operations of an authenticated user.
type ProfileManager interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID, firstName, lastName, email string) error
	ResetPassword(ctx context.Context, userID, newPassword string) error
}

type ProfileHandler struct {
	users     ProfileManager
	logger    *zap.Logger
	validator *validator.Validate
}

func NewProfileHandler(users ProfileManager, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		users:     users,
		logger:    logger,
		validator: validator.New(),
	}
}

// GetProfile godoc
// @Summary Get the authenticated user's profile
// @Tags profile
// @Produce json
// @Success 200 {object} models.User
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /users/profile [get]
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		RespondWithError(c, http.StatusUnauthorized, "Authentication required", ErrorCodeUnauthorized, h.logger)
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), principal.Subject)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondNotFound(c, "Profile not found", h.logger, zap.String("user_id", principal.Subject))
			return
		}
		RespondInternalError(c, "Failed to load profile", h.logger, zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateProfile godoc
// @Summary Update the authenticated user's profile
// @Tags profile
// @Accept json
// @Produce json
// @Param profile body models.UpdateProfileRequest true "Profile changes"
// @Success 200 {object} models.User
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /users/profile [put]
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		RespondWithError(c, http.StatusUnauthorized, "Authentication required", ErrorCodeUnauthorized, h.logger)
		return
	}

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body", h.logger, zap.Error(err))
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		RespondValidationError(c, err.Error(), h.logger)
		return
	}

	if err := h.users.UpdateProfile(c.Request.Context(), principal.Subject, req.FirstName, req.LastName, req.Email); err != nil {
		if keycloak.IsConflict(err) {
			RespondConflict(c, "Email already in use", h.logger, zap.String("email", req.Email))
			return
		}
		RespondInternalError(c, "Failed to update profile", h.logger, zap.Error(err))
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), principal.Subject)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondNotFound(c, "Profile not found", h.logger, zap.String("user_id", principal.Subject))
			return
		}
		RespondInternalError(c, "Failed to load profile", h.logger, zap.Error(err))
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdatePassword godoc
// @Summary Change the authenticated user's password
// @Tags profile
// @Accept json
// @Produce json
// @Param password body models.UpdatePasswordRequest true "New password"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /users/password [put]
func (h *ProfileHandler) UpdatePassword(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		RespondWithError(c, http.StatusUnauthorized, "Authentication required", ErrorCodeUnauthorized, h.logger)
		return
	}

	var req models.UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body", h.logger, zap.Error(err))
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		RespondValidationError(c, err.Error(), h.logger)
		return
	}

	if err := h.users.ResetPassword(c.Request.Context(), principal.Subject, req.NewPassword); err != nil {
		RespondInternalError(c, "Failed to update password", h.logger, zap.Error(err))
		return
	}

	RespondWithMessage(c, http.StatusOK, "Password updated", nil)
}
