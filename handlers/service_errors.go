package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/medins-agent/internal/authz"
	"github.com/upb/medins-agent/services"
	"github.com/upb/medins-agent/utils"
)

// clientMessage returns the text safe to show a client. Wrapped causes stay in the logs.
func clientMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var writeErr error
	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	var deny *authz.DenyError
	switch {
	case errors.As(err, &deny):
		if deny.Kind == authz.DenyMisconfiguredPolicy {
			logger.Error("access policy misconfigured", zap.Error(err))
		}
		writeErr = utils.WriteDenial(w, deny)

	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, clientMessage(err))

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, clientMessage(err), details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, utils.CodeUnauthorized, clientMessage(err))

	case services.IsForbiddenError(err):
		writeErr = utils.WriteForbidden(w, clientMessage(err))

	case services.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, clientMessage(err), details)

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, clientMessage(err), details)

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
