package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Advisory lock keys (class, object) used with pg_advisory_xact_lock
const (
	lockClassLedger   = 1
	lockClassShipment = 2
)

const auditEventColumns = `id, actor_id, actor_ref, action, target, timestamp, integrity_hash`

// AuditEventRepository implements the repositories.AuditEventRepository interface
type AuditEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditEventRepository creates a new audit event repository
func NewAuditEventRepository(db *DB, logger *zap.Logger) repositories.AuditEventRepository {
	return &AuditEventRepository{
		db:     db,
		logger: logger,
	}
}

// LockChain takes the transaction-scoped ledger lock. It is released on
// commit or rollback, so the next appender reads a durably stored head.
func (r *AuditEventRepository) LockChain(ctx context.Context) error {
	if !inTransaction(ctx) {
		return fmt.Errorf("ledger lock requires a transaction")
	}
	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, 0)`, lockClassLedger); err != nil {
		return fmt.Errorf("failed to lock ledger: %w", err)
	}
	return nil
}

// Last retrieves the chain head
func (r *AuditEventRepository) Last(ctx context.Context) (*models.AuditEvent, error) {
	query := `SELECT ` + auditEventColumns + ` FROM audit_events ORDER BY id DESC LIMIT 1`

	event, err := scanAuditEvent(GetExecutor(ctx, r.db).QueryRowContext(ctx, query))
	if err != nil {
		return nil, notFound(err, "audit event", "head")
	}
	return event, nil
}

// Insert appends an event and assigns its ID
func (r *AuditEventRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (actor_id, actor_ref, action, target, timestamp, integrity_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query,
		event.ActorID,
		event.ActorRef,
		event.Action,
		event.Target,
		event.Timestamp,
		event.IntegrityHash,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	r.logger.Debug("audit event inserted", zap.Int64("id", event.ID), zap.String("action", string(event.Action)))
	return nil
}

// GetByID retrieves an event by ID
func (r *AuditEventRepository) GetByID(ctx context.Context, id int64) (*models.AuditEvent, error) {
	query := `SELECT ` + auditEventColumns + ` FROM audit_events WHERE id = $1`

	event, err := scanAuditEvent(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "audit event", id)
	}
	return event, nil
}

// Before retrieves the event immediately preceding id
func (r *AuditEventRepository) Before(ctx context.Context, id int64) (*models.AuditEvent, error) {
	query := `SELECT ` + auditEventColumns + ` FROM audit_events WHERE id < $1 ORDER BY id DESC LIMIT 1`

	event, err := scanAuditEvent(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "audit event before", id)
	}
	return event, nil
}

// Range retrieves events with fromID <= id <= toID in id order
func (r *AuditEventRepository) Range(ctx context.Context, fromID, toID int64, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT ` + auditEventColumns + `
		FROM audit_events
		WHERE id >= $1 AND id <= $2
		ORDER BY id
		LIMIT $3
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, fromID, toID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	return scanAll(rows, scanAuditEvent)
}

// Find retrieves events matching filter with id > afterID in id order
func (r *AuditEventRepository) Find(ctx context.Context, filter repositories.AuditFilter, afterID int64, limit int) ([]*models.AuditEvent, error) {
	where, args := auditFilterClause(filter, afterID)
	args = append(args, limit)

	query := `SELECT ` + auditEventColumns + ` FROM audit_events WHERE ` + where +
		fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	return scanAll(rows, scanAuditEvent)
}

// ClearActor nulls the actor reference on the identity's events. The frozen
// actor_ref column is left untouched.
func (r *AuditEventRepository) ClearActor(ctx context.Context, actorID uuid.UUID) (int64, error) {
	query := `UPDATE audit_events SET actor_id = NULL WHERE actor_id = $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, actorID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear audit event actor: %w", err)
	}
	return affected(result)
}

// auditFilterClause builds the WHERE clause and positional args for filter
func auditFilterClause(filter repositories.AuditFilter, afterID int64) (string, []interface{}) {
	conds := []string{"id > $1"}
	args := []interface{}{afterID}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.FromID > 0 {
		add("id >= $%d", filter.FromID)
	}
	if filter.ToID > 0 {
		add("id <= $%d", filter.ToID)
	}
	if filter.ActorID != nil {
		add("actor_ref = $%d", filter.ActorID.String())
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.TargetPrefix != "" {
		add("target LIKE $%d", escapeLike(filter.TargetPrefix)+"%")
	}
	if !filter.Since.IsZero() {
		add("timestamp >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("timestamp < $%d", filter.Until)
	}

	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanAuditEvent(row rowScanner) (*models.AuditEvent, error) {
	event := &models.AuditEvent{}
	err := row.Scan(
		&event.ID,
		&event.ActorID,
		&event.ActorRef,
		&event.Action,
		&event.Target,
		&event.Timestamp,
		&event.IntegrityHash,
	)
	if err != nil {
		return nil, err
	}
	return event, nil
}
