package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/ledger"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/utils"
	"go.uber.org/zap"
)

// HealthChecker is implemented by the storage backends
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// LedgerStatus reports the background verifier's last outcome
type LedgerStatus interface {
	GetStats() ledger.Stats
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	store  HealthChecker
	ledger LedgerStatus
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. ledgerStatus may be nil when
// the background monitor is disabled.
func NewHealthHandler(store HealthChecker, ledgerStatus LedgerStatus, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		ledger: ledgerStatus,
		logger: logger,
	}
}

// HandleHealth handles GET /health
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /health/ready
// Readiness check - storage must answer and the last ledger verification,
// if any, must have passed
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.store == nil {
		checks["database"] = "not_configured"
	} else if err := h.store.HealthCheck(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	switch {
	case h.ledger == nil:
		checks["ledger"] = "not_monitored"
	default:
		stats := h.ledger.GetStats()
		switch {
		case stats.Runs == 0:
			checks["ledger"] = "pending"
		case stats.LastOK:
			checks["ledger"] = "verified"
		case stats.LastViolation:
			checks["ledger"] = "integrity_violation"
			allHealthy = false
		default:
			checks["ledger"] = "verification_failed"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
