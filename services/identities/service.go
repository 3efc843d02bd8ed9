// Package identities provisions identities, changes roles and runs the
// purge cascade. Every mutation is recorded in the ledger in the same
// transaction.
package identities

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/access"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 64
)

// PurgeSummary counts the rows touched by a purge
type PurgeSummary struct {
	IdentityID          uuid.UUID `json:"identity_id"`
	ReportsDeleted      int64     `json:"reports_deleted"`
	InteractionsDeleted int       `json:"interactions_deleted"`
	ReportsCleared      int64     `json:"reports_cleared"`
	EventsCleared       int64     `json:"events_cleared"`
	AssignmentsCleared  int64     `json:"assignments_cleared"`
}

// Service manages identities
type Service struct {
	repos    *repositories.Repositories
	ledger   *ledger.Service
	enforcer *access.Enforcer
	txMgr    repositories.TransactionManager
	logger   *zap.Logger
}

// NewService creates an identity service
func NewService(repos *repositories.Repositories, ledgerSvc *ledger.Service, enforcer *access.Enforcer, txMgr repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		repos:    repos,
		ledger:   ledgerSvc,
		enforcer: enforcer,
		txMgr:    txMgr,
		logger:   logger,
	}
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return "", services.NewValidationError("username must be between 3 and 64 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return "", services.NewValidationError("username must not contain whitespace")
	}
	return username, nil
}

// Get returns the identity. Any active identity may read itself; reading
// others requires admin.
func (s *Service) Get(ctx context.Context, actor *models.Identity, id uuid.UUID) (*models.Identity, error) {
	if actor == nil || actor.ID != id {
		if err := s.enforcer.Require(actor, access.ActionRead, access.Kind(access.ResourceIdentity)); err != nil {
			return nil, err
		}
	}
	identity, err := s.repos.Identities.GetByID(ctx, id)
	if err != nil {
		return nil, services.WrapRepository("identity", id, err)
	}
	return identity, nil
}

// Register provisions a new identity
func (s *Service) Register(ctx context.Context, actor *models.Identity, username string, role models.Role, mfaEnabled bool) (*models.Identity, error) {
	if err := s.enforcer.Require(actor, access.ActionCreate, access.Kind(access.ResourceIdentity)); err != nil {
		return nil, err
	}
	return s.register(ctx, actor, username, role, mfaEnabled)
}

// Bootstrap provisions the first admin as a system event. It is a no-op
// when the username already exists.
func (s *Service) Bootstrap(ctx context.Context, username string) (*models.Identity, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	existing, err := s.repos.Identities.GetByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapRepository("identity", username, err)
	}
	return s.register(ctx, nil, username, models.RoleAdmin, true)
}

func (s *Service) register(ctx context.Context, actor *models.Identity, username string, role models.Role, mfaEnabled bool) (*models.Identity, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, services.NewValidationError("unknown role").WithDetail("role", string(role))
	}

	identity := models.NewIdentity(username, role, mfaEnabled)
	err = services.WithTransaction(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
		_, err := s.repos.Identities.GetByUsername(ctx, username)
		if err == nil {
			return services.NewDomainError(services.ErrorTypeConflict, "username already exists", nil).
				WithDetail("username", username)
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return services.WrapRepository("identity", username, err)
		}

		if err := s.repos.Identities.Create(ctx, identity); err != nil {
			return services.WrapInternal("failed to create identity", err)
		}
		_, err = s.ledger.Append(ctx, ledger.Entry{
			Actor:  actor,
			Action: models.AuditActionIdentityCreated,
			Target: identity.Ref(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("identity registered",
		zap.String("identity_id", identity.ID.String()),
		zap.String("role", string(role)))
	return identity, nil
}

// ChangeRole moves the identity to newRole
func (s *Service) ChangeRole(ctx context.Context, actor *models.Identity, id uuid.UUID, newRole models.Role) (*models.Identity, error) {
	if err := s.enforcer.Require(actor, access.ActionChangeRole, access.Kind(access.ResourceIdentity)); err != nil {
		return nil, err
	}
	if !newRole.Valid() {
		return nil, services.NewValidationError("unknown role").WithDetail("role", string(newRole))
	}
	if actor.ID == id {
		return nil, services.NewValidationError("cannot change your own role")
	}

	return services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.Identity, error) {
		identity, err := s.repos.Identities.GetByID(ctx, id)
		if err != nil {
			return nil, services.WrapRepository("identity", id, err)
		}
		if identity.Role == newRole {
			return nil, services.NewValidationError("identity already holds this role").
				WithDetail("role", string(newRole))
		}

		previous := identity.Role
		identity.Role = newRole
		identity.UpdatedAt = time.Now().UTC()
		if err := s.repos.Identities.UpdateRole(ctx, id, newRole, identity.UpdatedAt); err != nil {
			return nil, services.WrapRepository("identity", id, err)
		}
		if _, err := s.ledger.Append(ctx, ledger.Entry{
			Actor:  actor,
			Action: models.AuditActionRoleChanged,
			Target: identity.Ref(),
		}); err != nil {
			return nil, err
		}

		s.logger.Info("role changed",
			zap.String("identity_id", id.String()),
			zap.String("from", string(previous)),
			zap.String("to", string(newRole)))
		return identity, nil
	})
}

// Purge removes the identity and its interaction history. Reports raised
// against its interactions are deleted with them; every other reference is
// nulled. Ledger rows keep their frozen actor reference, so the chain still
// verifies.
func (s *Service) Purge(ctx context.Context, actor *models.Identity, id uuid.UUID) (*PurgeSummary, error) {
	if err := s.enforcer.Require(actor, access.ActionPurge, access.Kind(access.ResourceIdentity)); err != nil {
		return nil, err
	}
	if actor.ID == id {
		return nil, services.NewValidationError("cannot purge your own identity")
	}

	summary, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*PurgeSummary, error) {
		identity, err := s.repos.Identities.GetByID(ctx, id)
		if err != nil {
			return nil, services.WrapRepository("identity", id, err)
		}

		summary := &PurgeSummary{IdentityID: id}
		if summary.ReportsDeleted, err = s.repos.Anomalies.DeleteByInteractionOwner(ctx, id); err != nil {
			return nil, services.WrapInternal("failed to delete anomaly reports", err)
		}
		deleted, err := s.repos.Interactions.DeleteByIdentity(ctx, id)
		if err != nil {
			return nil, services.WrapInternal("failed to delete interactions", err)
		}
		summary.InteractionsDeleted = len(deleted)
		if summary.ReportsCleared, err = s.repos.Anomalies.ClearIdentity(ctx, id); err != nil {
			return nil, services.WrapInternal("failed to clear anomaly reports", err)
		}
		if summary.EventsCleared, err = s.repos.AuditEvents.ClearActor(ctx, id); err != nil {
			return nil, services.WrapInternal("failed to clear audit events", err)
		}
		if summary.AssignmentsCleared, err = s.repos.Assignments.ClearDriver(ctx, id); err != nil {
			return nil, services.WrapInternal("failed to clear assignments", err)
		}
		if err := s.repos.Identities.Delete(ctx, id); err != nil {
			return nil, services.WrapRepository("identity", id, err)
		}

		if _, err := s.ledger.Append(ctx, ledger.Entry{
			Actor:  actor,
			Action: models.AuditActionIdentityPurged,
			Target: identity.Ref(),
		}); err != nil {
			return nil, err
		}
		return summary, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("identity purged",
		zap.String("identity_id", id.String()),
		zap.Int("interactions_deleted", summary.InteractionsDeleted),
		zap.Int64("reports_deleted", summary.ReportsDeleted),
		zap.Int64("events_cleared", summary.EventsCleared))
	return summary, nil
}
