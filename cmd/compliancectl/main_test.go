package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/app"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/config"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func memoryDependencies(t *testing.T) *app.Dependencies {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
		Storage:     config.StorageConfig{Driver: config.StorageMemory},
		Auth: config.AuthConfig{
			JWTSecret:      "ctl-test-secret",
			Issuer:         "compliance-test",
			TokenTTL:       time.Minute,
			BootstrapAdmin: "root_admin",
		},
		Ledger:        config.LedgerConfig{PageSize: 2},
		Observability: config.ObservabilityConfig{LogLevel: "debug"},
	}
	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	original := loadDependencies
	loadDependencies = func(*cobra.Command) (*app.Dependencies, error) { return deps, nil }
	t.Cleanup(func() { loadDependencies = original })
	return deps
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	verifyFrom, verifyTo = 0, 0
	trailOpts.actor, trailOpts.action, trailOpts.target = "", "", ""
	trailOpts.since, trailOpts.until, trailOpts.limit = "", "", 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, deps *app.Dependencies) *models.Identity {
	t.Helper()
	ctx := context.Background()
	admin, err := deps.Repos.Identities.GetByUsername(ctx, "root_admin")
	require.NoError(t, err)
	for _, name := range []string{"agent_one", "agent_two", "agent_three"} {
		_, err := deps.Identities.Register(ctx, admin, name, models.RoleAgent, false)
		require.NoError(t, err)
	}
	return admin
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "compliancectl dev\n", out)
}

func TestVerify(t *testing.T) {
	deps := memoryDependencies(t)
	seed(t, deps)

	t.Run("intact chain", func(t *testing.T) {
		out, err := execute(t, "verify")
		require.NoError(t, err)
		assert.Contains(t, out, "ledger OK: 4 events verified (ids 1..4)")
	})

	t.Run("range", func(t *testing.T) {
		out, err := execute(t, "verify", "--from", "2", "--to", "3")
		require.NoError(t, err)
		assert.Contains(t, out, "2 events verified (ids 2..3)")
	})

	t.Run("forged event fails with both hashes", func(t *testing.T) {
		forged := &models.AuditEvent{
			ActorRef:      "system",
			Action:        models.AuditActionRoleChanged,
			Target:        "identity:forged",
			Timestamp:     time.Now().UTC(),
			IntegrityHash: strings.Repeat("a", 64),
		}
		require.NoError(t, deps.Repos.AuditEvents.Insert(context.Background(), forged))

		out, err := execute(t, "verify")
		require.ErrorIs(t, err, errChainBroken)
		assert.Contains(t, out, "INTEGRITY VIOLATION at event 5")
		assert.Contains(t, out, "stored hash:   "+strings.Repeat("a", 64))
		assert.Contains(t, out, "verified before break: 4 events")
	})
}

func TestVerify_BootstrapOnly(t *testing.T) {
	memoryDependencies(t)

	out, err := execute(t, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "1 events verified")
}

func TestTrail(t *testing.T) {
	deps := memoryDependencies(t)
	admin := seed(t, deps)

	decode := func(t *testing.T, out string) []models.AuditEvent {
		t.Helper()
		var events []models.AuditEvent
		sc := bufio.NewScanner(strings.NewReader(out))
		for sc.Scan() {
			var ev models.AuditEvent
			require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
			events = append(events, ev)
		}
		return events
	}

	t.Run("all events in id order", func(t *testing.T) {
		out, err := execute(t, "trail")
		require.NoError(t, err)
		events := decode(t, out)
		require.Len(t, events, 4)
		for i, ev := range events {
			assert.Equal(t, int64(i+1), ev.ID)
		}
	})

	t.Run("by actor with limit", func(t *testing.T) {
		out, err := execute(t, "trail", "--actor", admin.ID.String(), "--limit", "2")
		require.NoError(t, err)
		events := decode(t, out)
		require.Len(t, events, 2)
		for _, ev := range events {
			assert.Equal(t, admin.ID.String(), ev.ActorRef)
		}
	})

	t.Run("bad flags", func(t *testing.T) {
		_, err := execute(t, "trail", "--actor", "nope")
		assert.Error(t, err)

		_, err = execute(t, "trail", "--action", "deleted_everything")
		assert.Error(t, err)

		_, err = execute(t, "trail", "--since", "yesterday")
		assert.Error(t, err)
	})
}

func TestToken(t *testing.T) {
	deps := memoryDependencies(t)

	out, err := execute(t, "token", "root_admin")
	require.NoError(t, err)

	claims, err := deps.Tokens.ValidateToken(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "root_admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)

	_, err = execute(t, "token", "ghost")
	assert.ErrorContains(t, err, `no identity named "ghost"`)
}

func TestCheckStorage(t *testing.T) {
	memory := &config.Config{Storage: config.StorageConfig{Driver: config.StorageMemory}}
	postgres := &config.Config{Storage: config.StorageConfig{Driver: config.StoragePostgres}}

	tests := []struct {
		name    string
		cmd     *cobra.Command
		cfg     *config.Config
		wantErr bool
	}{
		{"verify on memory", verifyCmd, memory, true},
		{"trail on memory", trailCmd, memory, true},
		{"token on memory", tokenCmd, memory, false},
		{"verify on postgres", verifyCmd, postgres, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkStorage(tt.cmd, tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "needs persistent storage")
				return
			}
			assert.NoError(t, err)
		})
	}
}
