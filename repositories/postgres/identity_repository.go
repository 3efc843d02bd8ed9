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

const identityColumns = `id, username, role, mfa_enabled, active, created_at, updated_at`

// IdentityRepository implements the repositories.IdentityRepository interface
type IdentityRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(db *DB, logger *zap.Logger) repositories.IdentityRepository {
	return &IdentityRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new identity
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	query := `
		INSERT INTO identities (id, username, role, mfa_enabled, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		identity.ID,
		identity.Username,
		identity.Role,
		identity.MFAEnabled,
		identity.Active,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}

	r.logger.Debug("identity created", zap.String("id", identity.ID.String()), zap.String("role", string(identity.Role)))
	return nil
}

// GetByID retrieves an identity by ID
func (r *IdentityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`

	identity, err := scanIdentity(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "identity", id)
	}
	return identity, nil
}

// GetByUsername retrieves an identity by username
func (r *IdentityRepository) GetByUsername(ctx context.Context, username string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE username = $1`

	identity, err := scanIdentity(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, notFound(err, "identity", username)
	}
	return identity, nil
}

// UpdateRole sets the identity's role
func (r *IdentityRepository) UpdateRole(ctx context.Context, id uuid.UUID, role models.Role, updatedAt time.Time) error {
	query := `UPDATE identities SET role = $2, updated_at = $3 WHERE id = $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id, role, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update identity role: %w", err)
	}
	return requireRow(result, "identity", id)
}

// Delete removes the identity row
func (r *IdentityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM identities WHERE id = $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	return requireRow(result, "identity", id)
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	identity := &models.Identity{}
	err := row.Scan(
		&identity.ID,
		&identity.Username,
		&identity.Role,
		&identity.MFAEnabled,
		&identity.Active,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return identity, nil
}
