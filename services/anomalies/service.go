// Package anomalies manages anomaly reports raised against flagged
// interactions and their review lifecycle.
package anomalies

import (
	"context"
	"strings"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/access"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/ledger"
	"go.uber.org/zap"
)

const maxDescriptionLength = 2000

// transitionActions maps lifecycle events to the capability they require
var transitionActions = map[models.AnomalyEvent]access.Action{
	models.AnomalyEventReviewStart: access.ActionReviewStart,
	models.AnomalyEventResolve:     access.ActionResolve,
	models.AnomalyEventDismiss:     access.ActionDismiss,
}

// Service is the anomaly lifecycle manager
type Service struct {
	reports      repositories.AnomalyRepository
	interactions repositories.InteractionRepository
	ledger       *ledger.Service
	enforcer     *access.Enforcer
	txMgr        repositories.TransactionManager
	locks        *keyedMutex
	logger       *zap.Logger
}

// NewService creates an anomaly service
func NewService(reports repositories.AnomalyRepository, interactions repositories.InteractionRepository, ledgerSvc *ledger.Service, enforcer *access.Enforcer, txMgr repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		reports:      reports,
		interactions: interactions,
		ledger:       ledgerSvc,
		enforcer:     enforcer,
		txMgr:        txMgr,
		locks:        newKeyedMutex(),
		logger:       logger,
	}
}

// Raise opens a report against a flagged interaction. Several reports may
// be raised against the same interaction.
func (s *Service) Raise(ctx context.Context, actor *models.Identity, interactionID int64, description string) (*models.AnomalyReport, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, services.NewValidationError("description is required")
	}
	if len(description) > maxDescriptionLength {
		return nil, services.NewValidationError("description is too long")
	}

	interaction, err := s.interactions.GetByID(ctx, interactionID)
	if err != nil {
		return nil, services.WrapRepository("interaction", interactionID, err)
	}
	if err := s.enforcer.Require(actor, access.ActionCreate, access.ReportFrom(interaction)); err != nil {
		return nil, err
	}
	if !interaction.Flagged {
		return nil, services.NewValidationError("anomalies can only be raised against flagged interactions")
	}

	report := models.NewAnomalyReport(actor.ID, interactionID, description)
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, services.WrapRepository("interaction", interactionID, err)
	}

	s.logger.Info("anomaly raised",
		zap.Int64("report_id", report.ID),
		zap.Int64("interaction_id", interactionID),
		zap.String("role", string(actor.Role)))
	return report, nil
}

// Get returns a report the actor may read
func (s *Service) Get(ctx context.Context, actor *models.Identity, id int64) (*models.AnomalyReport, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, services.WrapRepository("anomaly report", id, err)
	}
	if err := s.enforcer.Require(actor, access.ActionRead, access.ReportResource(report)); err != nil {
		return nil, err
	}
	return report, nil
}

// ListByInteraction returns the reports raised against an interaction the
// actor may read
func (s *Service) ListByInteraction(ctx context.Context, actor *models.Identity, interactionID int64) ([]*models.AnomalyReport, error) {
	interaction, err := s.interactions.GetByID(ctx, interactionID)
	if err != nil {
		return nil, services.WrapRepository("interaction", interactionID, err)
	}
	if err := s.enforcer.Require(actor, access.ActionRead, access.InteractionResource(interaction)); err != nil {
		return nil, err
	}

	reports, err := s.reports.ListByInteraction(ctx, interactionID)
	if err != nil {
		return nil, services.WrapRepository("anomaly report", interactionID, err)
	}
	return reports, nil
}

// Transition applies event to the report. A role with no lifecycle
// capability at all is denied, as is an actor who may not read the report;
// any other rejected request, including an unknown event or an edge the role
// may not take, is an invalid transition. Transitions on the same report are
// serialized; the status change and its ledger event commit together.
func (s *Service) Transition(ctx context.Context, actor *models.Identity, reportID int64, event models.AnomalyEvent) (*models.AnomalyReport, error) {
	action, known := transitionActions[event]
	if !known {
		action = access.Action(event)
	}
	if actor == nil || !actor.Active || !canTransition(actor.Role) {
		return nil, s.enforcer.Authorize(actor, action, access.Kind(access.ResourceAnomalyReport)).Err()
	}

	unlock := s.locks.Lock(reportID)
	defer unlock()

	report, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.AnomalyReport, error) {
		report, err := s.reports.GetForUpdate(ctx, reportID)
		if err != nil {
			return nil, services.WrapRepository("anomaly report", reportID, err)
		}

		res := access.ReportResource(report)
		if err := s.enforcer.Require(actor, access.ActionRead, res); err != nil {
			return nil, err
		}
		allowed := known && s.enforcer.Authorize(actor, action, res).Allowed

		t, ok := models.LookupTransition(report.Status, event)
		if !ok || !allowed || !t.AllowedFor(actor.Role) {
			return nil, services.NewInvalidTransition(string(report.Status), string(event), string(actor.Role))
		}

		report.Apply(t)
		if err := s.reports.UpdateStatus(ctx, report.ID, report.Status, report.UpdatedAt); err != nil {
			return nil, services.WrapRepository("anomaly report", reportID, err)
		}
		if _, err := s.ledger.Append(ctx, ledger.Entry{
			Actor:  actor,
			Action: event.AuditAction(),
			Target: report.Ref(),
		}); err != nil {
			return nil, err
		}
		return report, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("anomaly transitioned",
		zap.Int64("report_id", report.ID),
		zap.String("event", string(event)),
		zap.String("status", string(report.Status)),
		zap.String("actor_role", string(actor.Role)))
	return report, nil
}

// canTransition reports whether role holds any lifecycle capability
func canTransition(role models.Role) bool {
	for _, action := range transitionActions {
		if access.Holds(role, action, access.ResourceAnomalyReport) {
			return true
		}
	}
	return false
}
