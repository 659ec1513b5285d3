package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DirectoryPinger reports the reachability of the identity provider.
type DirectoryPinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db       *gorm.DB
	keycloak DirectoryPinger
	logger   *zap.Logger
	version  string
}

func NewHealthHandler(db *gorm.DB, keycloak DirectoryPinger, logger *zap.Logger, version string) *HealthHandler {
	return &HealthHandler{
		db:       db,
		keycloak: keycloak,
		logger:   logger,
		version:  version,
	}
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health godoc
// @Summary Service health
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus
// @Failure 503 {object} HealthStatus
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	status := HealthStatus{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Checks:    map[string]string{},
	}

	httpStatus := http.StatusOK

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		h.logger.Error("Database health check failed", zap.Error(err))
		status.Status = "unhealthy"
		status.Checks["database"] = err.Error()
		httpStatus = http.StatusServiceUnavailable
	} else {
		status.Checks["database"] = "ok"
	}

	c.JSON(httpStatus, status)
}

// KeycloakHealth godoc
// @Summary Identity provider health
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus
// @Failure 503 {object} HealthStatus
// @Router /health/keycloak [get]
func (h *HealthHandler) KeycloakHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Checks:    map[string]string{},
	}

	if err := h.keycloak.Ping(ctx); err != nil {
		h.logger.Error("Keycloak health check failed", zap.Error(err))
		status.Status = "unhealthy"
		status.Checks["keycloak"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}

	status.Checks["keycloak"] = "ok"
	c.JSON(http.StatusOK, status)
}
