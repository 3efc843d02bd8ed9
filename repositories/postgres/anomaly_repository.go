package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const anomalyColumns = `id, identity_id, interaction_id, description, status, created_at, updated_at`

// AnomalyRepository implements the repositories.AnomalyRepository interface
type AnomalyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAnomalyRepository creates a new anomaly report repository
func NewAnomalyRepository(db *DB, logger *zap.Logger) repositories.AnomalyRepository {
	return &AnomalyRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new report and assigns its ID
func (r *AnomalyRepository) Create(ctx context.Context, report *models.AnomalyReport) error {
	query := `
		INSERT INTO anomaly_reports (identity_id, interaction_id, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query,
		report.IdentityID,
		report.InteractionID,
		report.Description,
		report.Status,
		report.CreatedAt,
		report.UpdatedAt,
	).Scan(&report.ID)
	if err != nil {
		return fmt.Errorf("failed to create anomaly report: %w", err)
	}

	r.logger.Debug("anomaly report created", zap.Int64("id", report.ID), zap.Int64("interaction_id", report.InteractionID))
	return nil
}

// GetByID retrieves a report by ID
func (r *AnomalyRepository) GetByID(ctx context.Context, id int64) (*models.AnomalyReport, error) {
	query := `SELECT ` + anomalyColumns + ` FROM anomaly_reports WHERE id = $1`

	report, err := scanAnomaly(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "anomaly report", id)
	}
	return report, nil
}

// GetForUpdate retrieves a report with a row lock, serializing transitions
// on the same report across connections
func (r *AnomalyRepository) GetForUpdate(ctx context.Context, id int64) (*models.AnomalyReport, error) {
	query := `SELECT ` + anomalyColumns + ` FROM anomaly_reports WHERE id = $1 FOR UPDATE`

	report, err := scanAnomaly(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "anomaly report", id)
	}
	return report, nil
}

// ListByInteraction retrieves every report raised against an interaction
func (r *AnomalyRepository) ListByInteraction(ctx context.Context, interactionID int64) ([]*models.AnomalyReport, error) {
	query := `SELECT ` + anomalyColumns + ` FROM anomaly_reports WHERE interaction_id = $1 ORDER BY id`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, interactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomaly reports: %w", err)
	}
	return scanAll(rows, scanAnomaly)
}

// UpdateStatus sets the report status
func (r *AnomalyRepository) UpdateStatus(ctx context.Context, id int64, status models.AnomalyStatus, updatedAt time.Time) error {
	query := `UPDATE anomaly_reports SET status = $2, updated_at = $3 WHERE id = $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id, status, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update anomaly report: %w", err)
	}
	return requireRow(result, "anomaly report", id)
}

// DeleteByInteractionOwner removes reports raised against the identity's interactions
func (r *AnomalyRepository) DeleteByInteractionOwner(ctx context.Context, identityID uuid.UUID) (int64, error) {
	query := `
		DELETE FROM anomaly_reports
		WHERE interaction_id IN (SELECT id FROM interactions WHERE identity_id = $1)
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, identityID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete anomaly reports: %w", err)
	}
	return affected(result)
}

// ClearIdentity anonymizes the identity's remaining reports
func (r *AnomalyRepository) ClearIdentity(ctx context.Context, identityID uuid.UUID) (int64, error) {
	query := `UPDATE anomaly_reports SET identity_id = NULL WHERE identity_id = $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, identityID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear anomaly report identity: %w", err)
	}
	return affected(result)
}

func scanAnomaly(row rowScanner) (*models.AnomalyReport, error) {
	report := &models.AnomalyReport{}
	err := row.Scan(
		&report.ID,
		&report.IdentityID,
		&report.InteractionID,
		&report.Description,
		&report.Status,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return report, nil
}
