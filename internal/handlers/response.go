package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorCode string

const (
	ErrorCodeBadRequest       ErrorCode = "BAD_REQUEST"
	ErrorCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrorCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrorCodeConflict         ErrorCode = "CONFLICT"
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrorCodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondWithError(c *gin.Context, statusCode int, message string, code ErrorCode, logger *zap.Logger, logFields ...zap.Field) {
	if logger != nil {
		fields := append([]zap.Field{
			zap.Int("status_code", statusCode),
			zap.String("error_code", string(code)),
			zap.String("error_message", message),
		}, logFields...)

		if statusCode >= 500 {
			logger.Error("Internal server error", fields...)
		} else {
			logger.Warn("Client error", fields...)
		}
	}

	c.JSON(statusCode, ErrorResponse{Error: message, Code: code})
}

func RespondWithMessage(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, SuccessResponse{Message: message, Data: data})
}

func RespondBadRequest(c *gin.Context, message string, logger *zap.Logger, logFields ...zap.Field) {
	RespondWithError(c, http.StatusBadRequest, message, ErrorCodeBadRequest, logger, logFields...)
}

func RespondForbidden(c *gin.Context, message string, logger *zap.Logger, logFields ...zap.Field) {
	RespondWithError(c, http.StatusForbidden, message, ErrorCodeForbidden, logger, logFields...)
}

func RespondNotFound(c *gin.Context, message string, logger *zap.Logger, logFields ...zap.Field) {
	RespondWithError(c, http.StatusNotFound, message, ErrorCodeNotFound, logger, logFields...)
}

func RespondConflict(c *gin.Context, message string, logger *zap.Logger, logFields ...zap.Field) {
	RespondWithError(c, http.StatusConflict, message, ErrorCodeConflict, logger, logFields...)
}

func RespondValidationError(c *gin.Context, message string, logger *zap.Logger, logFields ...zap.Field) {
	RespondWithError(c, http.StatusBadRequest, message, ErrorCodeValidationFailed, logger, logFields...)
}

func RespondInternalError(c *gin.Context, message string, logger *zap.Logger, logFields ...zap.Field) {
	RespondWithError(c, http.StatusInternalServerError, message, ErrorCodeInternalError, logger, logFields...)
}
