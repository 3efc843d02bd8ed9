package handlers

import (
	"net/http"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/identities"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/utils"
	"go.uber.org/zap"
)

// CurrentIdentityResponse is the response body for GET /api/v1/me
type CurrentIdentityResponse struct {
	*models.Identity
	Message string `json:"message"`
}

// RegisterIdentityRequest is the body of POST /api/v1/identities
type RegisterIdentityRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=64"`
	Role       string `json:"role" validate:"required,role"`
	MFAEnabled bool   `json:"mfa_enabled"`
}

// ChangeRoleRequest is the body of PUT /api/v1/identities/{id}/role
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,role"`
}

// IdentityHandler serves identity management
type IdentityHandler struct {
	service *identities.Service
	logger  *zap.Logger
}

// NewIdentityHandler creates a new IdentityHandler
func NewIdentityHandler(service *identities.Service, logger *zap.Logger) *IdentityHandler {
	return &IdentityHandler{
		service: service,
		logger:  logger,
	}
}

// HandleMe handles GET /api/v1/me
func (h *IdentityHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	_ = utils.WriteOK(w, CurrentIdentityResponse{
		Identity: identity,
		Message:  identity.AccessMessage(),
	})
}

// HandleGet handles GET /api/v1/identities/{id}
func (h *IdentityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	identity, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, identity)
}

// HandleRegister handles POST /api/v1/identities
func (h *IdentityHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}

	var req RegisterIdentityRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	identity, err := h.service.Register(r.Context(), actor, req.Username, models.Role(req.Role), req.MFAEnabled)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, identity)
}

// HandleChangeRole handles PUT /api/v1/identities/{id}/role
func (h *IdentityHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req ChangeRoleRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	identity, err := h.service.ChangeRole(r.Context(), actor, id, models.Role(req.Role))
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, identity)
}

// HandlePurge handles DELETE /api/v1/identities/{id}
func (h *IdentityHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	summary, err := h.service.Purge(r.Context(), actor, id)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, summary)
}
