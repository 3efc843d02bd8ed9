package identities

import (
	"context"
	"testing"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories/memory"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/access"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/anomalies"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/assignments"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/interactions"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/ledger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	repos        *repositories.Repositories
	ledger       *ledger.Service
	interactions *interactions.Service
	anomalies    *anomalies.Service
	assignments  *assignments.Service
	service      *Service
	admin        *models.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore(zap.NewNop())
	repos := store.NewRepositories()
	txMgr := store.GetTransactionManager()
	enforcer := access.NewEnforcer(nil, zap.NewNop())
	ledgerSvc := ledger.NewService(repos.AuditEvents, txMgr, enforcer, nil, zap.NewNop(), 0)

	f := &fixture{
		repos:        repos,
		ledger:       ledgerSvc,
		interactions: interactions.NewService(repos.Interactions, ledgerSvc, enforcer, txMgr, nil, zap.NewNop()),
		anomalies:    anomalies.NewService(repos.Anomalies, repos.Interactions, ledgerSvc, enforcer, txMgr, zap.NewNop()),
		assignments:  assignments.NewService(repos.Assignments, repos.Identities, ledgerSvc, enforcer, txMgr, zap.NewNop()),
		service:      NewService(repos, ledgerSvc, enforcer, txMgr, zap.NewNop()),
	}

	admin, err := f.service.Bootstrap(context.Background(), "root_admin")
	require.NoError(t, err)
	f.admin = admin
	return f
}

func (f *fixture) register(t *testing.T, username string, role models.Role) *models.Identity {
	t.Helper()
	identity, err := f.service.Register(context.Background(), f.admin, username, role, false)
	require.NoError(t, err)
	return identity
}

func (f *fixture) events(t *testing.T) []*models.AuditEvent {
	t.Helper()
	var out []*models.AuditEvent
	for ev, err := range f.ledger.Events(context.Background(), repositories.AuditFilter{}) {
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, models.RoleAdmin, f.admin.Role)
	again, err := f.service.Bootstrap(ctx, "root_admin")
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, again.ID)

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, models.AuditActionIdentityCreated, events[0].Action)
	assert.True(t, events[0].System())
	assert.Equal(t, f.admin.Ref(), events[0].Target)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jane := f.register(t, "agent_jane", models.RoleAgent)
	assert.True(t, jane.Active)

	events := f.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, f.admin.ID.String(), events[1].ActorRef)
	assert.Equal(t, jane.Ref(), events[1].Target)

	tests := []struct {
		name     string
		actor    *models.Identity
		username string
		role     models.Role
		check    func(error) bool
	}{
		{"duplicate username", f.admin, "agent_jane", models.RoleAgent, services.IsConflictError},
		{"short username", f.admin, "ab", models.RoleAgent, services.IsValidationError},
		{"whitespace", f.admin, "agent jane", models.RoleAgent, services.IsValidationError},
		{"unknown role", f.admin, "someone", models.Role("owner"), services.IsValidationError},
		{"non-admin", jane, "someone", models.RoleAgent, services.IsPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Register(ctx, tt.actor, tt.username, tt.role, false)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
	assert.Len(t, f.events(t), 2)
}

func TestChangeRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.register(t, "agent_jane", models.RoleAgent)

	updated, err := f.service.ChangeRole(ctx, f.admin, jane.ID, models.RoleSupport)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupport, updated.Role)

	stored, err := f.repos.Identities.GetByID(ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupport, stored.Role)

	events := f.events(t)
	last := events[len(events)-1]
	assert.Equal(t, models.AuditActionRoleChanged, last.Action)
	assert.Equal(t, jane.Ref(), last.Target)

	t.Run("same role", func(t *testing.T) {
		_, err := f.service.ChangeRole(ctx, f.admin, jane.ID, models.RoleSupport)
		assert.True(t, services.IsValidationError(err))
	})
	t.Run("own role", func(t *testing.T) {
		_, err := f.service.ChangeRole(ctx, f.admin, f.admin.ID, models.RoleAgent)
		assert.True(t, services.IsValidationError(err))
	})
	t.Run("unknown identity", func(t *testing.T) {
		_, err := f.service.ChangeRole(ctx, f.admin, uuid.New(), models.RoleAgent)
		assert.True(t, services.IsNotFoundError(err))
	})
	t.Run("non-admin", func(t *testing.T) {
		_, err := f.service.ChangeRole(ctx, stored, f.admin.ID, models.RoleAgent)
		require.True(t, services.IsPermissionDenied(err))
		assert.Equal(t, "change_role", services.GetErrorDetails(err)["action"])
	})
	assert.Len(t, f.events(t), len(events))
}

func TestPurge_Cascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jane := f.register(t, "agent_jane", models.RoleAgent)
	dispatcher := f.register(t, "disp_dan", models.RoleDispatcher)
	driver := f.register(t, "driver_dee", models.RoleDriver)

	rec, err := f.interactions.CreateInteraction(ctx, jane, "Where is the manifest?", models.CategoryDocument)
	require.NoError(t, err)
	_, err = f.interactions.Flag(ctx, jane, rec.ID, "")
	require.NoError(t, err)
	report, err := f.anomalies.Raise(ctx, jane, rec.ID, "Barcode missing")
	require.NoError(t, err)
	_, err = f.anomalies.Transition(ctx, jane, report.ID, models.AnomalyEventReviewStart)
	require.NoError(t, err)

	// a report by the dispatcher against another identity's interaction survives
	other, err := f.interactions.CreateInteraction(ctx, dispatcher, "Customs form?", models.CategoryDocument)
	require.NoError(t, err)
	_, err = f.interactions.Flag(ctx, dispatcher, other.ID, "")
	require.NoError(t, err)
	_, err = f.assignments.Assign(ctx, dispatcher, driver.ID, "SHP-1", nil)
	require.NoError(t, err)

	before, err := f.ledger.CheckAll(ctx)
	require.NoError(t, err)
	require.True(t, before.OK)

	summary, err := f.service.Purge(ctx, f.admin, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.InteractionsDeleted)
	assert.Equal(t, int64(1), summary.ReportsDeleted)
	assert.Equal(t, int64(2), summary.EventsCleared)

	_, err = f.repos.Identities.GetByID(ctx, jane.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = f.repos.Interactions.GetByID(ctx, rec.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = f.repos.Anomalies.GetByID(ctx, report.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = f.repos.Interactions.GetByID(ctx, other.ID)
	assert.NoError(t, err)

	events := f.events(t)
	last := events[len(events)-1]
	assert.Equal(t, models.AuditActionIdentityPurged, last.Action)
	assert.Equal(t, f.admin.ID.String(), last.ActorRef)
	for _, ev := range events {
		if ev.ActorRef == jane.ID.String() {
			assert.Nil(t, ev.ActorID, "event %d still points at the purged identity", ev.ID)
		}
	}

	after, err := f.ledger.CheckAll(ctx)
	require.NoError(t, err)
	assert.True(t, after.OK)
	assert.Equal(t, len(events), after.Checked)

	// the frozen actor reference still finds the purged identity's events
	janeID := jane.ID
	trail, err := f.ledger.Query(ctx, f.admin, repositories.AuditFilter{ActorID: &janeID})
	require.NoError(t, err)
	var count int
	for _, err := range trail {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestPurge_DriverAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dispatcher := f.register(t, "disp_dan", models.RoleDispatcher)
	driver := f.register(t, "driver_dee", models.RoleDriver)

	record, err := f.assignments.Assign(ctx, dispatcher, driver.ID, "SHP-2", nil)
	require.NoError(t, err)

	summary, err := f.service.Purge(ctx, f.admin, driver.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.AssignmentsCleared)

	history, err := f.assignments.History(ctx, dispatcher, "SHP-2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, record.ID, history[0].ID)
	assert.Nil(t, history[0].DriverID)
}

func TestPurge_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auditor := f.register(t, "audit_ann", models.RoleAuditor)
	count := len(f.events(t))

	_, err := f.service.Purge(ctx, auditor, f.admin.ID)
	assert.True(t, services.IsPermissionDenied(err))
	_, err = f.service.Purge(ctx, f.admin, f.admin.ID)
	assert.True(t, services.IsValidationError(err))
	_, err = f.service.Purge(ctx, f.admin, uuid.New())
	assert.True(t, services.IsNotFoundError(err))

	assert.Len(t, f.events(t), count)
	_, err = f.repos.Identities.GetByID(ctx, auditor.ID)
	assert.NoError(t, err)
}
