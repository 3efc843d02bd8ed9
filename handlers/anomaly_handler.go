package handlers

import (
	"net/http"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/anomalies"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/utils"
	"go.uber.org/zap"
)

// RaiseAnomalyRequest is the body of POST /api/v1/interactions/{id}/anomalies
type RaiseAnomalyRequest struct {
	Description string `json:"description" validate:"notblank,max=2000"`
}

// TransitionAnomalyRequest is the body of POST /api/v1/anomalies/{id}/transitions
type TransitionAnomalyRequest struct {
	Event string `json:"event" validate:"required,anomaly_event"`
}

// AnomalyHandler serves the anomaly lifecycle
type AnomalyHandler struct {
	service *anomalies.Service
	logger  *zap.Logger
}

// NewAnomalyHandler creates a new AnomalyHandler
func NewAnomalyHandler(service *anomalies.Service, logger *zap.Logger) *AnomalyHandler {
	return &AnomalyHandler{
		service: service,
		logger:  logger,
	}
}

// HandleRaise handles POST /api/v1/interactions/{id}/anomalies
func (h *AnomalyHandler) HandleRaise(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	interactionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req RaiseAnomalyRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	report, err := h.service.Raise(r.Context(), identity, interactionID, req.Description)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, report)
}

// HandleListByInteraction handles GET /api/v1/interactions/{id}/anomalies
func (h *AnomalyHandler) HandleListByInteraction(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	interactionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	reports, err := h.service.ListByInteraction(r.Context(), identity, interactionID)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, reports)
}

// HandleGet handles GET /api/v1/anomalies/{id}
func (h *AnomalyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	report, err := h.service.Get(r.Context(), identity, id)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, report)
}

// HandleTransition handles POST /api/v1/anomalies/{id}/transitions
func (h *AnomalyHandler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req TransitionAnomalyRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	report, err := h.service.Transition(r.Context(), identity, id, models.AnomalyEvent(req.Event))
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, report)
}
