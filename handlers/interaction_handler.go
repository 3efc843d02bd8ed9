package handlers

import (
	"net/http"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/interactions"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/utils"
	"go.uber.org/zap"
)

// CreateInteractionRequest is the body of POST /api/v1/interactions
type CreateInteractionRequest struct {
	Query    string `json:"query" validate:"notblank,max=4000"`
	Category string `json:"category,omitempty" validate:"omitempty,category"`
}

// FlagInteractionRequest is the body of POST /api/v1/interactions/{id}/flag
type FlagInteractionRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// InteractionHandler serves the interaction log
type InteractionHandler struct {
	service *interactions.Service
	logger  *zap.Logger
}

// NewInteractionHandler creates a new InteractionHandler
func NewInteractionHandler(service *interactions.Service, logger *zap.Logger) *InteractionHandler {
	return &InteractionHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCreate handles POST /api/v1/interactions
func (h *InteractionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateInteractionRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	record, err := h.service.CreateInteraction(r.Context(), identity, req.Query, models.InteractionCategory(req.Category))
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, record)
}

// HandleList handles GET /api/v1/interactions
func (h *InteractionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}

	limit, err := utils.ParseOptionalInt(r.URL.Query().Get("limit"), "limit", 0, 1, 200)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	offset, err := utils.ParseOptionalInt(r.URL.Query().Get("offset"), "offset", 0, 0, 1_000_000)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	records, err := h.service.ListForIdentity(r.Context(), identity, limit, offset)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, records)
}

// HandleGet handles GET /api/v1/interactions/{id}
func (h *InteractionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	record, err := h.service.Get(r.Context(), identity, id)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, record)
}

// HandleFlag handles POST /api/v1/interactions/{id}/flag. The body is optional.
func (h *InteractionHandler) HandleFlag(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req FlagInteractionRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	record, err := h.service.Flag(r.Context(), identity, id, req.Reason)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, record)
}
