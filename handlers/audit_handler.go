package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/ledger"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/utils"
	"go.uber.org/zap"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditEventsResponse is one page of the audit trail. NextCursor is set
// when more events match; pass it back as ?cursor= to continue.
type AuditEventsResponse struct {
	Events     []*models.AuditEvent `json:"events"`
	NextCursor *int64               `json:"next_cursor,omitempty"`
}

// AuditHandler serves the audit ledger
type AuditHandler struct {
	ledger *ledger.Service
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(ledgerSvc *ledger.Service, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		ledger: ledgerSvc,
		logger: logger,
	}
}

// HandleEvents handles GET /api/v1/audit/events
func (h *AuditHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter, err := parseAuditFilter(q)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	limit, err := utils.ParseOptionalInt(q.Get("limit"), "limit", defaultAuditLimit, 1, maxAuditLimit)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if c := q.Get("cursor"); c != "" {
		cursor, err := strconv.ParseInt(c, 10, 64)
		if err != nil || cursor < 0 {
			_ = utils.WriteBadRequest(w, "cursor must be a non-negative integer", nil)
			return
		}
		if cursor+1 > filter.FromID {
			filter.FromID = cursor + 1
		}
	}

	events, err := h.ledger.Query(r.Context(), identity, filter)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	response := AuditEventsResponse{Events: make([]*models.AuditEvent, 0, limit)}
	for event, err := range events {
		if err != nil {
			HandleServiceError(w, r, err, h.logger)
			return
		}
		if len(response.Events) == limit {
			next := response.Events[limit-1].ID
			response.NextCursor = &next
			break
		}
		response.Events = append(response.Events, event)
	}

	_ = utils.WriteOK(w, response)
}

// HandleVerify handles GET /api/v1/audit/verify
func (h *AuditHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}

	q := r.URL.Query()
	fromID, err := optionalID(q, "from_id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	toID, err := optionalID(q, "to_id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	result, err := h.ledger.Verify(r.Context(), identity, fromID, toID)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, result)
}

// HandleCorrection handles POST /api/v1/audit/events/{id}/corrections
func (h *AuditHandler) HandleCorrection(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	event, err := h.ledger.RecordCorrection(r.Context(), identity, id)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, event)
}

func parseAuditFilter(q url.Values) (repositories.AuditFilter, error) {
	var filter repositories.AuditFilter

	if v := q.Get("actor_id"); v != "" {
		id, err := utils.ParseUUID(v, "actor_id")
		if err != nil {
			return filter, err
		}
		filter.ActorID = &id
	}
	if v := q.Get("action"); v != "" {
		action := models.AuditAction(v)
		if !action.Valid() {
			return filter, errors.New("action must be a known audit action")
		}
		filter.Action = action
	}
	filter.TargetPrefix = q.Get("target_prefix")

	var err error
	if filter.Since, err = optionalTime(q, "since"); err != nil {
		return filter, err
	}
	if filter.Until, err = optionalTime(q, "until"); err != nil {
		return filter, err
	}
	if filter.FromID, err = optionalID(q, "from_id"); err != nil {
		return filter, err
	}
	if filter.ToID, err = optionalID(q, "to_id"); err != nil {
		return filter, err
	}
	if filter.ToID > 0 && filter.FromID > filter.ToID {
		return filter, errors.New("from_id must not exceed to_id")
	}
	return filter, nil
}

func optionalID(q url.Values, name string) (int64, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	return utils.ParseID(v, name)
}

func optionalTime(q url.Values, name string) (time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, errors.New(name + " must be an RFC 3339 timestamp")
	}
	return t, nil
}
