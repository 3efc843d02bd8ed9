package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/middleware"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/utils"
	"go.uber.org/zap"
)

// auditUnavailable is the only text non-admin callers see for a broken chain
const auditUnavailable = "audit system unavailable"

// HandleServiceError maps domain errors to HTTP responses. Messages carry
// no internal state; ledger integrity detail is only returned to admins.
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var domainErr *services.DomainError
	message := err.Error()
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, message)

	case services.IsValidationError(err), services.IsMissingReassignmentReason(err):
		writeErr = utils.WriteBadRequest(w, message, details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, message)

	case services.IsPermissionDenied(err):
		role, action := details["role"], details["action"]
		writeErr = utils.WriteForbidden(w,
			fmt.Sprintf("role %q may not %v", role, action),
			map[string]interface{}{"role": role, "action": action})

	case services.IsInvalidTransition(err):
		writeErr = utils.WriteConflict(w, message, details)

	case services.IsConflictError(err):
		writeErr = utils.WriteConflict(w, message, details)

	case services.IsLedgerIntegrityViolation(err):
		logger.Error("ledger integrity violation",
			zap.Any("event_id", details["event_id"]),
			zap.Any("expected_hash", details["expected"]),
			zap.Any("actual_hash", details["actual"]),
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))

		var shown map[string]interface{}
		if caller := middleware.GetIdentityFromContext(r.Context()); caller != nil && caller.Role == models.RoleAdmin {
			shown = details
		}
		writeErr = utils.WriteServiceUnavailable(w, auditUnavailable, shown)

	case services.IsInternalError(err):
		logger.Error("internal server error",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
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
	if domainErr != nil {
		logger.Debug("handled service error",
			zap.String("type", string(domainErr.Type)),
			zap.String("message", domainErr.Message))
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
