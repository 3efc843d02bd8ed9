package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// NewDBFromConn wraps an existing pool, e.g. one opened by sqlmock in tests
func NewDBFromConn(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// InitSchema creates the compliance tables. Foreign keys carry no ON DELETE
// action: identity purge cascades are performed explicitly by the service
// layer, and the constraints reject any purge that skipped a dependent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Identities table
		CREATE TABLE IF NOT EXISTS identities (
			id UUID PRIMARY KEY,
			username VARCHAR(255) NOT NULL UNIQUE,
			role VARCHAR(32) NOT NULL CHECK (role IN ('admin', 'agent', 'auditor', 'dispatcher', 'driver', 'support')),
			mfa_enabled BOOLEAN NOT NULL DEFAULT false,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Interaction log
		CREATE TABLE IF NOT EXISTS interactions (
			id BIGSERIAL PRIMARY KEY,
			identity_id UUID REFERENCES identities(id),
			timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			query TEXT NOT NULL,
			response TEXT NOT NULL,
			flagged BOOLEAN NOT NULL DEFAULT false,
			flag_reason TEXT,
			category VARCHAR(16) NOT NULL CHECK (category IN ('auth', 'document', 'anomaly', 'general')),
			latency_ms INTEGER NOT NULL DEFAULT 0
		);

		-- Anomaly reports
		CREATE TABLE IF NOT EXISTS anomaly_reports (
			id BIGSERIAL PRIMARY KEY,
			identity_id UUID REFERENCES identities(id),
			interaction_id BIGINT NOT NULL REFERENCES interactions(id),
			description TEXT NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'in_review', 'resolved', 'dismissed')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Audit ledger
		CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			actor_id UUID REFERENCES identities(id),
			actor_ref VARCHAR(64) NOT NULL DEFAULT '',
			action VARCHAR(64) NOT NULL,
			target TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			integrity_hash CHAR(64) NOT NULL
		);

		-- Driver assignments
		CREATE TABLE IF NOT EXISTS assignments (
			id BIGSERIAL PRIMARY KEY,
			driver_id UUID REFERENCES identities(id),
			shipment_ref VARCHAR(64) NOT NULL,
			assigned_at TIMESTAMPTZ NOT NULL,
			reassignment_reason TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_interactions_identity_id ON interactions(identity_id);
		CREATE INDEX IF NOT EXISTS idx_interactions_flagged ON interactions(flagged);

		CREATE INDEX IF NOT EXISTS idx_anomaly_reports_interaction_id ON anomaly_reports(interaction_id);
		CREATE INDEX IF NOT EXISTS idx_anomaly_reports_identity_id ON anomaly_reports(identity_id);
		CREATE INDEX IF NOT EXISTS idx_anomaly_reports_status ON anomaly_reports(status);

		CREATE INDEX IF NOT EXISTS idx_audit_events_actor_id ON audit_events(actor_id);
		CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events(action);
		CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp);

		CREATE INDEX IF NOT EXISTS idx_assignments_shipment ON assignments(shipment_ref, assigned_at DESC, id DESC);
		CREATE INDEX IF NOT EXISTS idx_assignments_driver_id ON assignments(driver_id);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
