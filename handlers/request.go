package handlers

import (
	"net/http"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/middleware"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// requireIdentity returns the authenticated identity or writes a 401
func requireIdentity(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*models.Identity, bool) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		logger.Error("identity not found in context",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return nil, false
	}
	return identity, true
}

// pathID parses a positive integer URL parameter or writes a 400
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := utils.ParseID(chi.URLParam(r, name), name)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return 0, false
	}
	return id, true
}

// pathUUID parses a UUID URL parameter or writes a 400
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := utils.ParseUUID(chi.URLParam(r, name), name)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return uuid.Nil, false
	}
	return id, true
}

// decodeAndValidate decodes the JSON body into req and validates it,
// writing a 400 on failure
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}, logger *zap.Logger) bool {
	if err := utils.DecodeJSON(w, r, req); err != nil {
		HandleValidationError(w, err, logger)
		return false
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}
