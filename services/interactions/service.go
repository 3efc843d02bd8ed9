// Package interactions records chat interactions and their flagged state.
package interactions

import (
	"context"
	"strings"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/access"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/ledger"
	"go.uber.org/zap"
)

const (
	maxQueryLength = 4000
	defaultPage    = 50
	maxPage        = 200
)

// Service is the interaction log
type Service struct {
	repo      repositories.InteractionRepository
	ledger    *ledger.Service
	enforcer  *access.Enforcer
	txMgr     repositories.TransactionManager
	responder Responder
	logger    *zap.Logger
}

// NewService creates an interaction service. A nil responder uses PrototypeResponder.
func NewService(repo repositories.InteractionRepository, ledgerSvc *ledger.Service, enforcer *access.Enforcer, txMgr repositories.TransactionManager, responder Responder, logger *zap.Logger) *Service {
	if responder == nil {
		responder = PrototypeResponder{}
	}
	return &Service{
		repo:      repo,
		ledger:    ledgerSvc,
		enforcer:  enforcer,
		txMgr:     txMgr,
		responder: responder,
		logger:    logger,
	}
}

func validateQuery(query string, category models.InteractionCategory) error {
	if strings.TrimSpace(query) == "" {
		return services.NewValidationError("query is required")
	}
	if len(query) > maxQueryLength {
		return services.NewValidationError("query is too long")
	}
	if !category.Valid() {
		return services.NewValidationError("unknown interaction category: " + string(category))
	}
	return nil
}

// CreateInteraction answers query for identity and records the exchange
func (s *Service) CreateInteraction(ctx context.Context, identity *models.Identity, query string, category models.InteractionCategory) (*models.InteractionRecord, error) {
	if identity == nil {
		return nil, services.ErrUnauthorized
	}
	if category == "" {
		category = models.CategoryGeneral
	}
	if err := validateQuery(query, category); err != nil {
		return nil, err
	}
	if err := s.enforcer.Require(identity, access.ActionCreate, access.NewInteraction(identity.ID, category)); err != nil {
		return nil, err
	}

	start := time.Now()
	response, err := s.responder.Respond(ctx, identity, query, category)
	if err != nil {
		return nil, services.WrapInternal("failed to produce response", err)
	}
	latency := int(time.Since(start).Milliseconds())

	return s.Record(ctx, identity, query, response, category, latency)
}

// Record stores an interaction. It always starts unflagged and writes no
// ledger event.
func (s *Service) Record(ctx context.Context, identity *models.Identity, query, response string, category models.InteractionCategory, latencyMs int) (*models.InteractionRecord, error) {
	if identity == nil {
		return nil, services.ErrUnauthorized
	}
	if err := validateQuery(query, category); err != nil {
		return nil, err
	}
	if latencyMs < 0 {
		return nil, services.NewValidationError("latency cannot be negative")
	}
	if err := s.enforcer.Require(identity, access.ActionCreate, access.NewInteraction(identity.ID, category)); err != nil {
		return nil, err
	}

	record := models.NewInteractionRecord(identity.ID, query, response, category, latencyMs)
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, services.WrapRepository("interaction", nil, err)
	}

	s.logger.Info("interaction recorded",
		zap.Int64("interaction_id", record.ID),
		zap.String("role", string(identity.Role)),
		zap.String("category", string(category)),
		zap.Int("latency_ms", latencyMs))
	return record, nil
}

// Get returns an interaction the actor may read
func (s *Service) Get(ctx context.Context, actor *models.Identity, id int64) (*models.InteractionRecord, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, services.WrapRepository("interaction", id, err)
	}
	if err := s.enforcer.Require(actor, access.ActionRead, access.InteractionResource(record)); err != nil {
		return nil, err
	}
	return record, nil
}

// ListForIdentity returns the actor's own interactions, newest first
func (s *Service) ListForIdentity(ctx context.Context, actor *models.Identity, limit, offset int) ([]*models.InteractionRecord, error) {
	if actor == nil {
		return nil, services.ErrUnauthorized
	}
	if limit <= 0 {
		limit = defaultPage
	}
	if limit > maxPage {
		limit = maxPage
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repo.ListByIdentity(ctx, actor.ID, limit, offset)
	if err != nil {
		return nil, services.WrapRepository("interaction", actor.ID, err)
	}

	visible := make([]*models.InteractionRecord, 0, len(records))
	for _, r := range records {
		if access.Allows(actor, access.ActionRead, access.InteractionResource(r)) {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// Flag marks an interaction as flagged. Flagging an already flagged record
// returns it unchanged and writes nothing; the first flag commits together
// with one flag_triggered event.
func (s *Service) Flag(ctx context.Context, actor *models.Identity, id int64, reason string) (*models.InteractionRecord, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, services.WrapRepository("interaction", id, err)
	}
	if err := s.enforcer.Require(actor, access.ActionFlag, access.InteractionResource(current)); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)

	return services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.InteractionRecord, error) {
		record, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return nil, services.WrapRepository("interaction", id, err)
		}
		if !record.MarkFlagged(reason) {
			return record, nil
		}

		if err := s.repo.MarkFlagged(ctx, id, record.FlagReason); err != nil {
			return nil, services.WrapRepository("interaction", id, err)
		}
		if _, err := s.ledger.Append(ctx, ledger.Entry{
			Actor:  actor,
			Action: models.AuditActionFlagTriggered,
			Target: record.Ref(),
		}); err != nil {
			return nil, err
		}

		s.logger.Info("interaction flagged",
			zap.Int64("interaction_id", id),
			zap.String("actor_role", string(actor.Role)))
		return record, nil
	})
}
