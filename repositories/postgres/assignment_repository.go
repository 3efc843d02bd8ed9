package postgres

import (
	"context"
	"fmt"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const assignmentColumns = `id, driver_id, shipment_ref, assigned_at, reassignment_reason`

// AssignmentRepository implements the repositories.AssignmentRepository interface
type AssignmentRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *DB, logger *zap.Logger) repositories.AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new assignment and assigns its ID
func (r *AssignmentRepository) Create(ctx context.Context, record *models.AssignmentRecord) error {
	query := `
		INSERT INTO assignments (driver_id, shipment_ref, assigned_at, reassignment_reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query,
		record.DriverID,
		record.ShipmentRef,
		record.AssignedAt,
		record.ReassignmentReason,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to create assignment: %w", err)
	}

	r.logger.Debug("assignment created", zap.Int64("id", record.ID), zap.String("shipment_ref", record.ShipmentRef))
	return nil
}

// LockShipment takes a transaction-scoped advisory lock for the shipment
func (r *AssignmentRepository) LockShipment(ctx context.Context, shipmentRef string) error {
	if !inTransaction(ctx) {
		return fmt.Errorf("shipment lock requires a transaction")
	}
	query := `SELECT pg_advisory_xact_lock($1, hashtext($2))`
	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, lockClassShipment, shipmentRef); err != nil {
		return fmt.Errorf("failed to lock shipment: %w", err)
	}
	return nil
}

// Active retrieves the shipment's active assignment
func (r *AssignmentRepository) Active(ctx context.Context, shipmentRef string) (*models.AssignmentRecord, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE shipment_ref = $1
		ORDER BY assigned_at DESC, id DESC
		LIMIT 1
	`

	record, err := scanAssignment(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, shipmentRef))
	if err != nil {
		return nil, notFound(err, "active assignment", shipmentRef)
	}
	return record, nil
}

// ListByShipment retrieves every assignment for a shipment, oldest first
func (r *AssignmentRepository) ListByShipment(ctx context.Context, shipmentRef string) ([]*models.AssignmentRecord, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE shipment_ref = $1
		ORDER BY assigned_at, id
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, shipmentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	return scanAll(rows, scanAssignment)
}

// ClearDriver nulls the driver reference on the identity's assignments
func (r *AssignmentRepository) ClearDriver(ctx context.Context, driverID uuid.UUID) (int64, error) {
	query := `UPDATE assignments SET driver_id = NULL WHERE driver_id = $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, driverID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear assignment driver: %w", err)
	}
	return affected(result)
}

func scanAssignment(row rowScanner) (*models.AssignmentRecord, error) {
	record := &models.AssignmentRecord{}
	err := row.Scan(
		&record.ID,
		&record.DriverID,
		&record.ShipmentRef,
		&record.AssignedAt,
		&record.ReassignmentReason,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}
