package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a referenced row is absent
var ErrNotFound = errors.New("record not found")

// TransactionManager manages storage transactions
type TransactionManager interface {
	// Begin starts a new transaction. The returned transaction's Context
	// carries the transaction so repositories pick it up.
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a storage transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns a context carrying this transaction
	Context() context.Context
}

type transactionContextKey struct{}

// ContextWithTx returns a copy of ctx carrying tx
func ContextWithTx(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionContextKey{}, tx)
}

// TxFromContext retrieves the transaction carried by ctx, if any
func TxFromContext(ctx context.Context) (Transaction, bool) {
	tx, ok := ctx.Value(transactionContextKey{}).(Transaction)
	return tx, ok
}

// IdentityRepository handles identity data operations
type IdentityRepository interface {
	// Create inserts a new identity
	Create(ctx context.Context, identity *models.Identity) error

	// GetByID retrieves an identity by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)

	// GetByUsername retrieves an identity by username
	GetByUsername(ctx context.Context, username string) (*models.Identity, error)

	// UpdateRole sets the identity's role
	UpdateRole(ctx context.Context, id uuid.UUID, role models.Role, updatedAt time.Time) error

	// Delete removes the identity row. Dependents must be handled first.
	Delete(ctx context.Context, id uuid.UUID) error
}

// InteractionRepository handles interaction log data operations
type InteractionRepository interface {
	// Create inserts a new interaction and assigns its ID
	Create(ctx context.Context, record *models.InteractionRecord) error

	// GetByID retrieves an interaction by ID
	GetByID(ctx context.Context, id int64) (*models.InteractionRecord, error)

	// GetForUpdate retrieves an interaction and locks it until the
	// surrounding transaction ends
	GetForUpdate(ctx context.Context, id int64) (*models.InteractionRecord, error)

	// ListByIdentity retrieves interactions owned by an identity, newest first
	ListByIdentity(ctx context.Context, identityID uuid.UUID, limit, offset int) ([]*models.InteractionRecord, error)

	// MarkFlagged sets the flagged bit and reason
	MarkFlagged(ctx context.Context, id int64, reason *string) error

	// DeleteByIdentity removes every interaction owned by an identity and
	// returns the removed IDs
	DeleteByIdentity(ctx context.Context, identityID uuid.UUID) ([]int64, error)
}

// AnomalyRepository handles anomaly report data operations
type AnomalyRepository interface {
	// Create inserts a new report and assigns its ID
	Create(ctx context.Context, report *models.AnomalyReport) error

	// GetByID retrieves a report by ID
	GetByID(ctx context.Context, id int64) (*models.AnomalyReport, error)

	// GetForUpdate retrieves a report and locks it until the surrounding
	// transaction ends
	GetForUpdate(ctx context.Context, id int64) (*models.AnomalyReport, error)

	// ListByInteraction retrieves every report raised against an interaction
	ListByInteraction(ctx context.Context, interactionID int64) ([]*models.AnomalyReport, error)

	// UpdateStatus sets the report status
	UpdateStatus(ctx context.Context, id int64, status models.AnomalyStatus, updatedAt time.Time) error

	// DeleteByInteractionOwner removes reports raised against interactions
	// owned by the identity. It must run before those interactions are deleted.
	DeleteByInteractionOwner(ctx context.Context, identityID uuid.UUID) (int64, error)

	// ClearIdentity nulls the reporter reference on the identity's reports
	ClearIdentity(ctx context.Context, identityID uuid.UUID) (int64, error)
}

// AuditFilter narrows an audit trail query. Zero values match everything.
type AuditFilter struct {
	ActorID      *uuid.UUID
	Action       models.AuditAction
	TargetPrefix string
	Since        time.Time
	Until        time.Time
	FromID       int64
	ToID         int64
}

// AuditEventRepository handles audit ledger rows. It never updates a row
// except to null the actor reference on identity purge.
type AuditEventRepository interface {
	// LockChain serializes appends until the surrounding transaction ends
	LockChain(ctx context.Context) error

	// Last retrieves the chain head, or ErrNotFound for an empty ledger
	Last(ctx context.Context) (*models.AuditEvent, error)

	// Insert appends an event and assigns its ID
	Insert(ctx context.Context, event *models.AuditEvent) error

	// GetByID retrieves an event by ID
	GetByID(ctx context.Context, id int64) (*models.AuditEvent, error)

	// Before retrieves the event immediately preceding id, or ErrNotFound
	Before(ctx context.Context, id int64) (*models.AuditEvent, error)

	// Range retrieves up to limit events with fromID <= id <= toID in id order
	Range(ctx context.Context, fromID, toID int64, limit int) ([]*models.AuditEvent, error)

	// Find retrieves up to limit events matching filter with id > afterID in id order
	Find(ctx context.Context, filter AuditFilter, afterID int64, limit int) ([]*models.AuditEvent, error)

	// ClearActor nulls the actor reference on the identity's events
	ClearActor(ctx context.Context, actorID uuid.UUID) (int64, error)
}

// AssignmentRepository handles driver/shipment assignment data operations
type AssignmentRepository interface {
	// Create inserts a new assignment and assigns its ID
	Create(ctx context.Context, record *models.AssignmentRecord) error

	// LockShipment serializes assignment changes for a shipment until the
	// surrounding transaction ends
	LockShipment(ctx context.Context, shipmentRef string) error

	// Active retrieves the shipment's active assignment, or ErrNotFound
	Active(ctx context.Context, shipmentRef string) (*models.AssignmentRecord, error)

	// ListByShipment retrieves every assignment for a shipment, oldest first
	ListByShipment(ctx context.Context, shipmentRef string) ([]*models.AssignmentRecord, error)

	// ClearDriver nulls the driver reference on the identity's assignments
	ClearDriver(ctx context.Context, driverID uuid.UUID) (int64, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Identities   IdentityRepository
	Interactions InteractionRepository
	Anomalies    AnomalyRepository
	AuditEvents  AuditEventRepository
	Assignments  AssignmentRepository
}
