package postgres

import (
	"context"
	"fmt"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const interactionColumns = `id, identity_id, timestamp, query, response, flagged, flag_reason, category, latency_ms`

// InteractionRepository implements the repositories.InteractionRepository interface
type InteractionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInteractionRepository creates a new interaction repository
func NewInteractionRepository(db *DB, logger *zap.Logger) repositories.InteractionRepository {
	return &InteractionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new interaction and assigns its ID
func (r *InteractionRepository) Create(ctx context.Context, record *models.InteractionRecord) error {
	query := `
		INSERT INTO interactions (identity_id, timestamp, query, response, flagged, flag_reason, category, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query,
		record.IdentityID,
		record.Timestamp,
		record.Query,
		record.Response,
		record.Flagged,
		record.FlagReason,
		record.Category,
		record.LatencyMs,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to create interaction: %w", err)
	}

	r.logger.Debug("interaction created", zap.Int64("id", record.ID), zap.String("category", string(record.Category)))
	return nil
}

// GetByID retrieves an interaction by ID
func (r *InteractionRepository) GetByID(ctx context.Context, id int64) (*models.InteractionRecord, error) {
	query := `SELECT ` + interactionColumns + ` FROM interactions WHERE id = $1`

	record, err := scanInteraction(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "interaction", id)
	}
	return record, nil
}

// GetForUpdate retrieves an interaction with a row lock
func (r *InteractionRepository) GetForUpdate(ctx context.Context, id int64) (*models.InteractionRecord, error) {
	query := `SELECT ` + interactionColumns + ` FROM interactions WHERE id = $1 FOR UPDATE`

	record, err := scanInteraction(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "interaction", id)
	}
	return record, nil
}

// ListByIdentity retrieves interactions owned by an identity, newest first
func (r *InteractionRepository) ListByIdentity(ctx context.Context, identityID uuid.UUID, limit, offset int) ([]*models.InteractionRecord, error) {
	query := `
		SELECT ` + interactionColumns + `
		FROM interactions
		WHERE identity_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, identityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	return scanAll(rows, scanInteraction)
}

// MarkFlagged sets the flagged bit. Rows already flagged are left untouched.
func (r *InteractionRepository) MarkFlagged(ctx context.Context, id int64, reason *string) error {
	query := `UPDATE interactions SET flagged = true, flag_reason = $2 WHERE id = $1 AND flagged = false`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("failed to flag interaction: %w", err)
	}
	return requireRow(result, "unflagged interaction", id)
}

// DeleteByIdentity removes the identity's interactions and returns their IDs
func (r *InteractionRepository) DeleteByIdentity(ctx context.Context, identityID uuid.UUID) ([]int64, error) {
	query := `DELETE FROM interactions WHERE identity_id = $1 RETURNING id`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete interactions: %w", err)
	}
	ids, err := scanAll(rows, func(row rowScanner) (int64, error) {
		var id int64
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("interactions deleted", zap.String("identity_id", identityID.String()), zap.Int("count", len(ids)))
	return ids, nil
}

func scanInteraction(row rowScanner) (*models.InteractionRecord, error) {
	record := &models.InteractionRecord{}
	err := row.Scan(
		&record.ID,
		&record.IdentityID,
		&record.Timestamp,
		&record.Query,
		&record.Response,
		&record.Flagged,
		&record.FlagReason,
		&record.Category,
		&record.LatencyMs,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}
