package app

import (
	"context"
	"fmt"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/auth"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/config"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/handlers"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/internal/observability"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/middleware"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories/memory"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories/postgres"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/access"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/anomalies"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/assignments"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/identities"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/interactions"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/ledger"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Health       *handlers.HealthHandler
	Identities   *handlers.IdentityHandler
	Interactions *handlers.InteractionHandler
	Anomalies    *handlers.AnomalyHandler
	Assignments  *handlers.AssignmentHandler
	Audit        *handlers.AuditHandler
}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Store is the active storage backend; RepoFactory is only set for postgres
	Store       handlers.HealthChecker
	RepoFactory *postgres.RepositoryFactory

	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Services
	Enforcer     *access.Enforcer
	Ledger       *ledger.Service
	Interactions *interactions.Service
	Anomalies    *anomalies.Service
	Assignments  *assignments.Service
	Identities   *identities.Service

	// Monitor is nil when background verification is disabled
	Monitor *ledger.Monitor

	// Auth
	Tokens         *auth.TokenService
	AuthMiddleware *middleware.AuthMiddleware

	Handlers Handlers
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	deps.initServices(cfg)

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	if cfg.Auth.BootstrapAdmin != "" {
		admin, err := deps.Identities.Bootstrap(ctx, cfg.Auth.BootstrapAdmin)
		if err != nil {
			_ = deps.Close(ctx)
			return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
		}
		logger.Info("bootstrap admin ready",
			zap.String("identity_id", admin.ID.String()),
			zap.String("username", admin.Username))
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully",
		zap.String("storage", cfg.Storage.Driver))
	return deps, nil
}

// initStorage opens the configured backend and builds the repositories
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		store := memory.NewStore(d.Logger)
		d.Store = store
		d.Repos = store.NewRepositories()
		d.TxManager = store.GetTransactionManager()
		d.Logger.Warn("using in-memory storage, data is lost on restart")
		return nil

	case config.StoragePostgres:
		factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		if err := factory.GetDB().PingContext(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("database ping failed: %w", err)
		}
		if cfg.Database.InitSchema {
			if err := factory.InitSchema(ctx); err != nil {
				_ = factory.Close()
				return fmt.Errorf("failed to initialize schema: %w", err)
			}
		}

		d.RepoFactory = factory
		d.Store = factory.GetDB()
		d.Repos = factory.NewRepositories()
		d.TxManager = factory.GetTransactionManager()
		d.Logger.Info("database connection established",
			zap.String("connection", cfg.Database.LogString()))
		return nil
	}
	return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// initServices builds the enforcer, the ledger and the domain services
// over the repositories
func (d *Dependencies) initServices(cfg *config.Config) {
	d.Enforcer = access.NewEnforcer(d.Metrics, d.Logger)
	d.Ledger = ledger.NewService(d.Repos.AuditEvents, d.TxManager, d.Enforcer, d.Metrics, d.Logger, cfg.Ledger.PageSize)

	d.Interactions = interactions.NewService(d.Repos.Interactions, d.Ledger, d.Enforcer, d.TxManager, interactions.PrototypeResponder{}, d.Logger)
	d.Anomalies = anomalies.NewService(d.Repos.Anomalies, d.Repos.Interactions, d.Ledger, d.Enforcer, d.TxManager, d.Logger)
	d.Assignments = assignments.NewService(d.Repos.Assignments, d.Repos.Identities, d.Ledger, d.Enforcer, d.TxManager, d.Logger)
	d.Identities = identities.NewService(d.Repos, d.Ledger, d.Enforcer, d.TxManager, d.Logger)

	if cfg.Ledger.VerifyInterval > 0 {
		monitorCfg := ledger.DefaultMonitorConfig()
		monitorCfg.Interval = cfg.Ledger.VerifyInterval
		d.Monitor = ledger.NewMonitor(d.Ledger, d.Logger, monitorCfg)
	}
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	d.Tokens = tokens
	d.AuthMiddleware = middleware.NewAuthMiddleware(tokens, d.Repos.Identities, cfg.Auth.CookieName, d.Logger)
	return nil
}

func (d *Dependencies) initHandlers() {
	var status handlers.LedgerStatus
	if d.Monitor != nil {
		status = d.Monitor
	}

	d.Handlers = Handlers{
		Health:       handlers.NewHealthHandler(d.Store, status, d.Logger),
		Identities:   handlers.NewIdentityHandler(d.Identities, d.Logger),
		Interactions: handlers.NewInteractionHandler(d.Interactions, d.Logger),
		Anomalies:    handlers.NewAnomalyHandler(d.Anomalies, d.Logger),
		Assignments:  handlers.NewAssignmentHandler(d.Assignments, d.Logger),
		Audit:        handlers.NewAuditHandler(d.Ledger, d.Logger),
	}
}

// Start launches background workers. It is a no-op when background
// verification is disabled.
func (d *Dependencies) Start() error {
	if d.Monitor == nil {
		return nil
	}
	return d.Monitor.Start()
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Stop background verification before the database goes away
	if d.Monitor != nil && d.Monitor.GetStats().Started {
		timeout := d.Config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		if err := d.Monitor.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop ledger monitor: %w", err))
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
