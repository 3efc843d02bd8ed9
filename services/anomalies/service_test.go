package anomalies

import (
	"context"
	"sync"
	"testing"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories/memory"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/access"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/interactions"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	repos        *repositories.Repositories
	ledger       *ledger.Service
	interactions *interactions.Service
	service      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore(zap.NewNop())
	repos := store.NewRepositories()
	txMgr := store.GetTransactionManager()
	enforcer := access.NewEnforcer(nil, zap.NewNop())
	ledgerSvc := ledger.NewService(repos.AuditEvents, txMgr, enforcer, nil, zap.NewNop(), 0)

	return &fixture{
		repos:        repos,
		ledger:       ledgerSvc,
		interactions: interactions.NewService(repos.Interactions, ledgerSvc, enforcer, txMgr, nil, zap.NewNop()),
		service:      NewService(repos.Anomalies, repos.Interactions, ledgerSvc, enforcer, txMgr, zap.NewNop()),
	}
}

func (f *fixture) identity(t *testing.T, username string, role models.Role) *models.Identity {
	t.Helper()
	identity := models.NewIdentity(username, role, false)
	require.NoError(t, f.repos.Identities.Create(context.Background(), identity))
	return identity
}

// flagged records an interaction for owner and flags it
func (f *fixture) flagged(t *testing.T, owner *models.Identity) *models.InteractionRecord {
	t.Helper()
	ctx := context.Background()
	rec, err := f.interactions.CreateInteraction(ctx, owner, "Where is the manifest?", models.CategoryDocument)
	require.NoError(t, err)
	rec, err = f.interactions.Flag(ctx, owner, rec.ID, "")
	require.NoError(t, err)
	return rec
}

func (f *fixture) actions(t *testing.T) []models.AuditAction {
	t.Helper()
	var out []models.AuditAction
	for ev, err := range f.ledger.Events(context.Background(), repositories.AuditFilter{}) {
		require.NoError(t, err)
		out = append(out, ev.Action)
	}
	return out
}

func TestRaise(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.identity(t, "agent_jane", models.RoleAgent)
	rec := f.flagged(t, jane)

	report, err := f.service.Raise(ctx, jane, rec.ID, "  Barcode missing ")
	require.NoError(t, err)
	assert.Equal(t, models.AnomalyStatusOpen, report.Status)
	assert.Equal(t, "Barcode missing", report.Description)
	assert.Equal(t, rec.ID, report.InteractionID)

	second, err := f.service.Raise(ctx, jane, rec.ID, "Also wrong weight")
	require.NoError(t, err)
	assert.NotEqual(t, report.ID, second.ID, "duplicate reports are allowed")

	reports, err := f.service.ListByInteraction(ctx, jane, rec.ID)
	require.NoError(t, err)
	assert.Len(t, reports, 2)

	assert.Equal(t, []models.AuditAction{models.AuditActionFlagTriggered}, f.actions(t), "raising writes no ledger event")
}

func TestRaise_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.identity(t, "agent_jane", models.RoleAgent)
	bob := f.identity(t, "agent_bob", models.RoleAgent)
	admin := f.identity(t, "root_admin", models.RoleAdmin)
	auditor := f.identity(t, "audit_amy", models.RoleAuditor)

	flagged := f.flagged(t, jane)
	unflagged, err := f.interactions.CreateInteraction(ctx, jane, "hi", models.CategoryGeneral)
	require.NoError(t, err)

	tests := []struct {
		name          string
		actor         *models.Identity
		interactionID int64
		description   string
		check         func(error) bool
	}{
		{"blank description", jane, flagged.ID, " ", services.IsValidationError},
		{"missing interaction", jane, 999, "x", services.IsNotFoundError},
		{"other agent's interaction", bob, flagged.ID, "x", services.IsPermissionDenied},
		{"own unflagged interaction", jane, unflagged.ID, "x", services.IsPermissionDenied},
		{"admin on unflagged interaction", admin, unflagged.ID, "x", services.IsValidationError},
		{"auditor", auditor, flagged.ID, "x", services.IsPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Raise(ctx, tt.actor, tt.interactionID, tt.description)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	reports, err := f.repos.Anomalies.ListByInteraction(ctx, flagged.ID)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestGet_Scoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.identity(t, "agent_jane", models.RoleAgent)
	bob := f.identity(t, "agent_bob", models.RoleAgent)
	auditor := f.identity(t, "audit_amy", models.RoleAuditor)
	dispatcher := f.identity(t, "disp_dan", models.RoleDispatcher)
	driver := f.identity(t, "driver_dee", models.RoleDriver)

	report, err := f.service.Raise(ctx, jane, f.flagged(t, jane).ID, "Barcode missing")
	require.NoError(t, err)

	for _, actor := range []*models.Identity{jane, auditor, dispatcher} {
		_, err := f.service.Get(ctx, actor, report.ID)
		assert.NoError(t, err, actor.Username)
	}
	for _, actor := range []*models.Identity{bob, driver} {
		_, err := f.service.Get(ctx, actor, report.ID)
		assert.True(t, services.IsPermissionDenied(err), actor.Username)
	}

	_, err = f.service.Get(ctx, auditor, 404)
	assert.True(t, services.IsNotFoundError(err))
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name   string
		path   []models.AnomalyEvent
		role   models.Role
		event  models.AnomalyEvent
		want   models.AnomalyStatus
		action models.AuditAction
		check  func(error) bool
		// ownReport raises the report as the acting identity
		ownReport bool
	}{
		{name: "agent starts review", role: models.RoleAgent, ownReport: true, event: models.AnomalyEventReviewStart, want: models.AnomalyStatusInReview, action: models.AuditActionAnomalyReviewStarted},
		{name: "admin starts review", role: models.RoleAdmin, event: models.AnomalyEventReviewStart, want: models.AnomalyStatusInReview, action: models.AuditActionAnomalyReviewStarted},
		{name: "admin dismisses open", role: models.RoleAdmin, event: models.AnomalyEventDismiss, want: models.AnomalyStatusDismissed, action: models.AuditActionFlagDismissed},
		{name: "admin resolves in review", path: []models.AnomalyEvent{models.AnomalyEventReviewStart}, role: models.RoleAdmin, event: models.AnomalyEventResolve, want: models.AnomalyStatusResolved, action: models.AuditActionFlagResolved},
		{name: "admin dismisses in review", path: []models.AnomalyEvent{models.AnomalyEventReviewStart}, role: models.RoleAdmin, event: models.AnomalyEventDismiss, want: models.AnomalyStatusDismissed, action: models.AuditActionFlagDismissed},

		{name: "resolve from open", role: models.RoleAdmin, event: models.AnomalyEventResolve, check: services.IsInvalidTransition},
		{name: "review twice", path: []models.AnomalyEvent{models.AnomalyEventReviewStart}, role: models.RoleAdmin, event: models.AnomalyEventReviewStart, check: services.IsInvalidTransition},
		{name: "leave resolved", path: []models.AnomalyEvent{models.AnomalyEventReviewStart, models.AnomalyEventResolve}, role: models.RoleAdmin, event: models.AnomalyEventDismiss, check: services.IsInvalidTransition},
		{name: "leave dismissed", path: []models.AnomalyEvent{models.AnomalyEventDismiss}, role: models.RoleAdmin, event: models.AnomalyEventReviewStart, check: services.IsInvalidTransition},
		{name: "agent starts review on another agent's report", role: models.RoleAgent, event: models.AnomalyEventReviewStart, check: services.IsPermissionDenied},
		{name: "agent dismisses open", role: models.RoleAgent, ownReport: true, event: models.AnomalyEventDismiss, check: services.IsInvalidTransition},
		{name: "agent resolves", path: []models.AnomalyEvent{models.AnomalyEventReviewStart}, role: models.RoleAgent, ownReport: true, event: models.AnomalyEventResolve, check: services.IsInvalidTransition},
		{name: "auditor resolves", path: []models.AnomalyEvent{models.AnomalyEventReviewStart}, role: models.RoleAuditor, event: models.AnomalyEventResolve, check: services.IsPermissionDenied},
		{name: "dispatcher starts review", role: models.RoleDispatcher, event: models.AnomalyEventReviewStart, check: services.IsPermissionDenied},
		{name: "unknown event", role: models.RoleAdmin, event: "reopen", check: services.IsInvalidTransition},
		{name: "unknown event without lifecycle capability", role: models.RoleAuditor, event: "reopen", check: services.IsPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			jane := f.identity(t, "agent_jane", models.RoleAgent)
			admin := f.identity(t, "root_admin", models.RoleAdmin)
			actor := f.identity(t, "actor", tt.role)

			reporter := jane
			if tt.ownReport {
				reporter = actor
			}
			report, err := f.service.Raise(ctx, reporter, f.flagged(t, reporter).ID, "Barcode missing")
			require.NoError(t, err)
			for _, step := range tt.path {
				_, err := f.service.Transition(ctx, admin, report.ID, step)
				require.NoError(t, err)
			}
			before := f.actions(t)

			got, err := f.service.Transition(ctx, actor, report.ID, tt.event)

			if tt.check != nil {
				assert.True(t, tt.check(err), "got %v", err)
				assert.Nil(t, got)
				assert.Equal(t, before, f.actions(t), "rejected transition writes nothing")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)

			stored, err := f.repos.Anomalies.GetByID(ctx, report.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Status)

			after := f.actions(t)
			require.Len(t, after, len(before)+1)
			assert.Equal(t, tt.action, after[len(after)-1])

			head, err := f.ledger.Head(ctx)
			require.NoError(t, err)
			assert.Equal(t, report.Ref(), head.Target)
		})
	}
}

func TestTransition_MissingReport(t *testing.T) {
	f := newFixture(t)
	admin := f.identity(t, "root_admin", models.RoleAdmin)

	_, err := f.service.Transition(context.Background(), admin, 77, models.AnomalyEventDismiss)
	assert.True(t, services.IsNotFoundError(err))
}

func TestTransition_ResolveDoesNotClearFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.identity(t, "agent_jane", models.RoleAgent)
	admin := f.identity(t, "root_admin", models.RoleAdmin)
	rec := f.flagged(t, jane)

	report, err := f.service.Raise(ctx, jane, rec.ID, "Barcode missing")
	require.NoError(t, err)
	_, err = f.service.Transition(ctx, admin, report.ID, models.AnomalyEventDismiss)
	require.NoError(t, err)

	stored, err := f.repos.Interactions.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.Flagged)
}

func TestTransition_ConcurrentTerminalEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.identity(t, "agent_jane", models.RoleAgent)
	admin := f.identity(t, "root_admin", models.RoleAdmin)

	report, err := f.service.Raise(ctx, jane, f.flagged(t, jane).ID, "Barcode missing")
	require.NoError(t, err)
	_, err = f.service.Transition(ctx, admin, report.ID, models.AnomalyEventReviewStart)
	require.NoError(t, err)

	events := []models.AnomalyEvent{models.AnomalyEventResolve, models.AnomalyEventDismiss}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(event models.AnomalyEvent) {
			defer wg.Done()
			_, err := f.service.Transition(ctx, admin, report.ID, event)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if services.IsInvalidTransition(err) {
				rejected++
			}
		}(events[i%2])
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 9, rejected)
	assert.Len(t, f.actions(t), 3)
	assert.Zero(t, f.service.locks.size())
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlock := k.Lock(1)
	acquired := make(chan struct{})
	go func() {
		u := k.Lock(1)
		close(acquired)
		u()
	}()

	other := k.Lock(2)
	other()

	select {
	case <-acquired:
		t.Fatal("second lock on the same key acquired while held")
	default:
	}

	unlock()
	<-acquired
	assert.Zero(t, k.size())
}
