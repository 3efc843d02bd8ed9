package main

import (
	"context"
	"fmt"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/app"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/config"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/internal/observability"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "compliancectl",
	Short: "Operate the compliance core",
	Long: `compliancectl inspects the compliance core storage directly. It verifies
the audit ledger hash chain, exports the audit trail and issues tokens for
local development. Configuration is read from the same environment and .env
file as the server.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
}

// annotationAnyStorage marks commands that work against an empty
// in-memory store
const annotationAnyStorage = "compliancectl/any-storage"

// loadDependencies opens storage with the server's configuration. Tests
// replace it with an in-memory setup.
var loadDependencies = func(cmd *cobra.Command) (*app.Dependencies, error) {
	ctx := cmd.Context()
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkStorage(cmd, cfg); err != nil {
		return nil, err
	}
	// the CLI never provisions identities or runs the monitor
	cfg.Auth.BootstrapAdmin = ""
	cfg.Ledger.VerifyInterval = 0
	cfg.Observability.MetricsEnabled = false

	logger, err := observability.NewLogger(logLevel, cfg.Environment)
	if err != nil {
		return nil, err
	}
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return deps, nil
}

// checkStorage rejects the memory driver for commands that read existing
// data, since the CLI would only ever see a fresh empty store
func checkStorage(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.Storage.Driver != config.StorageMemory {
		return nil
	}
	if _, ok := cmd.Annotations[annotationAnyStorage]; ok {
		return nil
	}
	return fmt.Errorf("%s needs persistent storage: STORAGE_DRIVER=%s starts an empty store", cmd.Name(), cfg.Storage.Driver)
}

// withDependencies loads the dependencies for the duration of fn
func withDependencies(cmd *cobra.Command, fn func(deps *app.Dependencies) error) error {
	deps, err := loadDependencies(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close(context.Background()) }()
	return fn(deps)
}
