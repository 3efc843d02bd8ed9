// Package ledger maintains the hash-chained audit ledger: appends inside the
// caller's transaction, chain verification, and lazy audit trail queries.
package ledger

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/access"
	"go.uber.org/zap"
)

// DefaultPageSize is used when the configured page size is not positive
const DefaultPageSize = 500

// Recorder receives ledger metrics
type Recorder interface {
	RecordAppend(action string)
	RecordVerification(ok bool)
}

// Entry is an event to append. A nil Actor records a system event.
type Entry struct {
	Actor  *models.Identity
	Action models.AuditAction
	Target string
}

// VerificationResult summarizes a verification run
type VerificationResult struct {
	OK         bool  `json:"ok"`
	FromID     int64 `json:"from_id"`
	ToID       int64 `json:"to_id"`
	Checked    int   `json:"checked"`
	BrokenAtID int64 `json:"broken_at_id,omitempty"`
}

// Service appends to and reads the audit ledger
type Service struct {
	repo     repositories.AuditEventRepository
	txMgr    repositories.TransactionManager
	enforcer *access.Enforcer
	recorder Recorder
	logger   *zap.Logger
	pageSize int
	now      func() time.Time
}

// NewService creates a ledger service. recorder may be nil.
func NewService(repo repositories.AuditEventRepository, txMgr repositories.TransactionManager, enforcer *access.Enforcer, recorder Recorder, logger *zap.Logger, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		repo:     repo,
		txMgr:    txMgr,
		enforcer: enforcer,
		recorder: recorder,
		logger:   logger,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// Append adds an event to the chain. It joins the transaction carried by
// ctx, so the event commits or rolls back with the caller's mutation.
func (s *Service) Append(ctx context.Context, entry Entry) (*models.AuditEvent, error) {
	if !entry.Action.Valid() {
		return nil, services.NewValidationError("unknown audit action: " + string(entry.Action))
	}
	if strings.TrimSpace(entry.Target) == "" {
		return nil, services.NewValidationError("audit target is required")
	}

	event, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.AuditEvent, error) {
		if err := s.repo.LockChain(ctx); err != nil {
			return nil, services.WrapInternal("failed to lock ledger", err)
		}

		prevHash, err := s.headHash(ctx)
		if err != nil {
			return nil, err
		}

		event := &models.AuditEvent{
			Action:    entry.Action,
			Target:    entry.Target,
			Timestamp: CanonicalTime(s.now()),
		}
		if entry.Actor != nil {
			id := entry.Actor.ID
			event.ActorID = &id
			event.ActorRef = id.String()
		}
		event.IntegrityHash = HashEvent(prevHash, event)

		if err := s.repo.Insert(ctx, event); err != nil {
			return nil, services.WrapInternal("failed to append audit event", err)
		}
		return event, nil
	})
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		s.recorder.RecordAppend(string(event.Action))
	}
	s.logger.Debug("ledger event appended",
		zap.Int64("event_id", event.ID),
		zap.String("action", string(event.Action)),
		zap.String("target", event.Target))
	return event, nil
}

func (s *Service) headHash(ctx context.Context) (string, error) {
	last, err := s.repo.Last(ctx)
	if errors.Is(err, repositories.ErrNotFound) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", services.WrapInternal("failed to read ledger head", err)
	}
	return last.IntegrityHash, nil
}

// Head returns the most recent event, or nil for an empty ledger
func (s *Service) Head(ctx context.Context) (*models.AuditEvent, error) {
	last, err := s.repo.Last(ctx)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, services.WrapInternal("failed to read ledger head", err)
	}
	return last, nil
}

// Verify checks the chain on behalf of actor
func (s *Service) Verify(ctx context.Context, actor *models.Identity, fromID, toID int64) (*VerificationResult, error) {
	if err := s.enforcer.Require(actor, access.ActionVerify, access.Kind(access.ResourceAuditEvent)); err != nil {
		return nil, err
	}
	return s.Check(ctx, fromID, toID)
}

// Check recomputes every hash with fromID <= id <= toID. A non-positive
// fromID starts at the first event and a non-positive toID ends at the
// current head. The event before fromID seeds the chain. Checking stops at
// the first mismatch, including a stored actor id that differs from the
// hashed actor reference, returning the partial result together with a
// ledger_integrity_violation error.
func (s *Service) Check(ctx context.Context, fromID, toID int64) (*VerificationResult, error) {
	if fromID <= 0 {
		fromID = 1
	}
	if toID <= 0 {
		head, err := s.Head(ctx)
		if err != nil {
			return nil, err
		}
		if head == nil {
			return &VerificationResult{OK: true, FromID: fromID}, nil
		}
		toID = head.ID
	}
	if toID < fromID {
		return nil, services.NewValidationError("verification range is empty")
	}

	result := &VerificationResult{FromID: fromID, ToID: toID}

	prevHash := GenesisHash
	prev, err := s.repo.Before(ctx, fromID)
	switch {
	case err == nil:
		prevHash = prev.IntegrityHash
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, services.WrapInternal("failed to read preceding audit event", err)
	}

	next := fromID
	for {
		page, err := s.repo.Range(ctx, next, toID, s.pageSize)
		if err != nil {
			return nil, services.WrapInternal("failed to read audit events", err)
		}

		for _, event := range page {
			expected := HashEvent(prevHash, event)
			if expected != event.IntegrityHash {
				result.BrokenAtID = event.ID
				return result, services.NewLedgerIntegrityViolation(event.ID, expected, event.IntegrityHash)
			}
			// purge nulls actor_id; any other value must be the hashed actor_ref
			if event.ActorID != nil && event.ActorID.String() != event.ActorRef {
				result.BrokenAtID = event.ID
				return result, services.NewLedgerActorMismatch(event.ID, event.ActorRef, event.ActorID.String())
			}
			prevHash = event.IntegrityHash
			result.Checked++
			next = event.ID + 1
		}

		if len(page) < s.pageSize {
			break
		}
	}

	result.OK = true
	return result, nil
}

// CheckAll verifies the whole chain and records the outcome
func (s *Service) CheckAll(ctx context.Context) (*VerificationResult, error) {
	result, err := s.Check(ctx, 0, 0)
	if s.recorder != nil && (err == nil || services.IsLedgerIntegrityViolation(err)) {
		s.recorder.RecordVerification(err == nil)
	}
	return result, err
}

// Query returns the audit trail matching filter for actor
func (s *Service) Query(ctx context.Context, actor *models.Identity, filter repositories.AuditFilter) (iter.Seq2[*models.AuditEvent, error], error) {
	if err := s.enforcer.Require(actor, access.ActionRead, access.Kind(access.ResourceAuditEvent)); err != nil {
		return nil, err
	}
	return s.Events(ctx, filter), nil
}

// Events lazily yields events matching filter in id order. Each range over
// the sequence starts again from the beginning of the filter and stops at
// the head observed when that range began, so it always terminates.
// Events appended while ranging are not yielded. A storage failure is
// yielded once as the final element.
func (s *Service) Events(ctx context.Context, filter repositories.AuditFilter) iter.Seq2[*models.AuditEvent, error] {
	return func(yield func(*models.AuditEvent, error) bool) {
		head, err := s.Head(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		if head == nil {
			return
		}

		bounded := filter
		if bounded.ToID <= 0 || bounded.ToID > head.ID {
			bounded.ToID = head.ID
		}

		var after int64
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := s.repo.Find(ctx, bounded, after, s.pageSize)
			if err != nil {
				yield(nil, services.WrapInternal("failed to query audit events", err))
				return
			}

			for _, event := range page {
				if !yield(event, nil) {
					return
				}
				after = event.ID
			}

			if len(page) < s.pageSize {
				return
			}
		}
	}
}

// RecordCorrection appends a ledger_correction event referencing an
// earlier event. Events are never edited; corrections are new links.
func (s *Service) RecordCorrection(ctx context.Context, actor *models.Identity, eventID int64) (*models.AuditEvent, error) {
	if err := s.enforcer.Require(actor, access.ActionWrite, access.Kind(access.ResourceAuditEvent)); err != nil {
		return nil, err
	}

	return services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.AuditEvent, error) {
		if _, err := s.repo.GetByID(ctx, eventID); err != nil {
			return nil, services.WrapRepository("audit event", eventID, err)
		}
		return s.Append(ctx, Entry{
			Actor:  actor,
			Action: models.AuditActionLedgerCorrection,
			Target: models.EventTarget(eventID),
		})
	})
}
