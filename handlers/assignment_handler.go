package handlers

import (
	"net/http"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/assignments"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssignShipmentRequest is the body of POST /api/v1/shipments/{ref}/assignments.
// A missing reason is accepted here; the tracker decides whether one is required.
type AssignShipmentRequest struct {
	DriverID uuid.UUID `json:"driver_id" validate:"required"`
	Reason   *string   `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// AssignmentHandler serves the assignment tracker
type AssignmentHandler struct {
	service *assignments.Service
	logger  *zap.Logger
}

// NewAssignmentHandler creates a new AssignmentHandler
func NewAssignmentHandler(service *assignments.Service, logger *zap.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service: service,
		logger:  logger,
	}
}

// HandleAssign handles POST /api/v1/shipments/{ref}/assignments
func (h *AssignmentHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}

	var req AssignShipmentRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	record, err := h.service.Assign(r.Context(), identity, req.DriverID, chi.URLParam(r, "ref"), req.Reason)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, record)
}

// HandleActive handles GET /api/v1/shipments/{ref}/assignments/active
func (h *AssignmentHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}

	record, err := h.service.Active(r.Context(), identity, chi.URLParam(r, "ref"))
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, record)
}

// HandleHistory handles GET /api/v1/shipments/{ref}/assignments
func (h *AssignmentHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}

	records, err := h.service.History(r.Context(), identity, chi.URLParam(r, "ref"))
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, records)
}
