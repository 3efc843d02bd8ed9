// Package assignments tracks driver to shipment bindings. History is never
// overwritten; the active assignment is the most recent record.
package assignments

import (
	"context"
	"errors"
	"strings"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/access"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxShipmentRefLength = 64

// Service is the assignment tracker
type Service struct {
	assignments repositories.AssignmentRepository
	identities  repositories.IdentityRepository
	ledger      *ledger.Service
	enforcer    *access.Enforcer
	txMgr       repositories.TransactionManager
	logger      *zap.Logger
}

// NewService creates an assignment service
func NewService(assignments repositories.AssignmentRepository, identities repositories.IdentityRepository, ledgerSvc *ledger.Service, enforcer *access.Enforcer, txMgr repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		assignments: assignments,
		identities:  identities,
		ledger:      ledgerSvc,
		enforcer:    enforcer,
		txMgr:       txMgr,
		logger:      logger,
	}
}

func normalizeRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", services.NewValidationError("shipment reference is required")
	}
	if len(ref) > maxShipmentRefLength {
		return "", services.NewValidationError("shipment reference is too long")
	}
	return ref, nil
}

// Assign binds driverID to the shipment. When the shipment already has an
// active assignment this is a reassignment and reason is required.
func (s *Service) Assign(ctx context.Context, actor *models.Identity, driverID uuid.UUID, shipmentRef string, reason *string) (*models.AssignmentRecord, error) {
	shipmentRef, err := normalizeRef(shipmentRef)
	if err != nil {
		return nil, err
	}
	if err := s.enforcer.Require(actor, access.ActionAssign, access.Kind(access.ResourceAssignment)); err != nil {
		return nil, err
	}

	driver, err := s.identities.GetByID(ctx, driverID)
	if err != nil {
		return nil, services.WrapRepository("driver", driverID, err)
	}
	if driver.Role != models.RoleDriver {
		return nil, services.NewValidationError("identity is not a driver").WithDetail("role", string(driver.Role))
	}

	var trimmed *string
	if reason != nil {
		if r := strings.TrimSpace(*reason); r != "" {
			trimmed = &r
		}
	}

	action := models.AuditActionAssignmentCreated
	record, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.AssignmentRecord, error) {
		if err := s.assignments.LockShipment(ctx, shipmentRef); err != nil {
			return nil, services.WrapInternal("failed to lock shipment", err)
		}

		active, err := s.assignments.Active(ctx, shipmentRef)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, services.WrapRepository("assignment", shipmentRef, err)
		}

		if active != nil {
			if trimmed == nil {
				return nil, services.NewMissingReassignmentReason(shipmentRef)
			}
			action = models.AuditActionAssignmentReassigned
		}

		record := models.NewAssignmentRecord(driverID, shipmentRef, trimmed)
		if active != nil && record.AssignedAt.Before(active.AssignedAt) {
			// keep the new record active under clock skew; the id breaks the tie
			record.AssignedAt = active.AssignedAt
		}
		if err := s.assignments.Create(ctx, record); err != nil {
			return nil, services.WrapRepository("assignment", shipmentRef, err)
		}

		if _, err := s.ledger.Append(ctx, ledger.Entry{
			Actor:  actor,
			Action: action,
			Target: models.ShipmentTarget(shipmentRef),
		}); err != nil {
			return nil, err
		}
		return record, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("shipment assigned",
		zap.Int64("assignment_id", record.ID),
		zap.String("shipment_ref", shipmentRef),
		zap.Bool("reassignment", action == models.AuditActionAssignmentReassigned))
	return record, nil
}

// Active returns the shipment's current assignment
func (s *Service) Active(ctx context.Context, actor *models.Identity, shipmentRef string) (*models.AssignmentRecord, error) {
	shipmentRef, err := normalizeRef(shipmentRef)
	if err != nil {
		return nil, err
	}
	if !access.Holds(roleOf(actor), access.ActionRead, access.ResourceAssignment) {
		return nil, s.enforcer.Require(actor, access.ActionRead, access.Kind(access.ResourceAssignment))
	}

	record, err := s.assignments.Active(ctx, shipmentRef)
	if err != nil {
		return nil, services.WrapRepository("assignment", shipmentRef, err)
	}
	if err := s.enforcer.Require(actor, access.ActionRead, access.AssignmentResource(record)); err != nil {
		return nil, err
	}
	return record, nil
}

// History lists the shipment's assignments oldest first, restricted to
// those the actor may read
func (s *Service) History(ctx context.Context, actor *models.Identity, shipmentRef string) ([]*models.AssignmentRecord, error) {
	shipmentRef, err := normalizeRef(shipmentRef)
	if err != nil {
		return nil, err
	}
	if !access.Holds(roleOf(actor), access.ActionRead, access.ResourceAssignment) {
		return nil, s.enforcer.Require(actor, access.ActionRead, access.Kind(access.ResourceAssignment))
	}

	records, err := s.assignments.ListByShipment(ctx, shipmentRef)
	if err != nil {
		return nil, services.WrapRepository("assignment", shipmentRef, err)
	}

	visible := make([]*models.AssignmentRecord, 0, len(records))
	for _, r := range records {
		if access.Allows(actor, access.ActionRead, access.AssignmentResource(r)) {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

func roleOf(identity *models.Identity) models.Role {
	if identity == nil {
		return ""
	}
	return identity.Role
}
