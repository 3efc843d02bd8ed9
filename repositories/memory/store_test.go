package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *repositories.Repositories) {
	t.Helper()
	store := NewStore(zap.NewNop())
	return store, store.NewRepositories()
}

func seedIdentity(t *testing.T, repos *repositories.Repositories, username string, role models.Role) *models.Identity {
	t.Helper()
	identity := models.NewIdentity(username, role, false)
	require.NoError(t, repos.Identities.Create(context.Background(), identity))
	return identity
}

func TestTransaction_CommitPublishes(t *testing.T) {
	store, repos := newTestStore(t)
	ctx := context.Background()
	owner := seedIdentity(t, repos, "agent_jane", models.RoleAgent)

	err := store.GetTransactionManager().InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		rec := models.NewInteractionRecord(owner.ID, "Where is the manifest?", "reply", models.CategoryDocument, 5)
		return repos.Interactions.Create(ctx, rec)
	})
	require.NoError(t, err)

	got, err := repos.Interactions.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Where is the manifest?", got.Query)
}

func TestTransaction_RollbackDiscards(t *testing.T) {
	store, repos := newTestStore(t)
	ctx := context.Background()
	owner := seedIdentity(t, repos, "agent_jane", models.RoleAgent)
	boom := errors.New("boom")

	err := store.GetTransactionManager().InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		rec := models.NewInteractionRecord(owner.ID, "q", "r", models.CategoryGeneral, 1)
		require.NoError(t, repos.Interactions.Create(ctx, rec))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repos.Interactions.GetByID(ctx, 1)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestTransaction_ReadersSeeCommittedSnapshot(t *testing.T) {
	store, repos := newTestStore(t)
	ctx := context.Background()
	owner := seedIdentity(t, repos, "agent_jane", models.RoleAgent)

	tx, err := store.GetTransactionManager().Begin(ctx)
	require.NoError(t, err)

	rec := models.NewInteractionRecord(owner.ID, "q", "r", models.CategoryGeneral, 1)
	require.NoError(t, repos.Interactions.Create(tx.Context(), rec))

	_, err = repos.Interactions.GetByID(ctx, rec.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound, "uncommitted write must not be visible")

	_, err = repos.Interactions.GetByID(tx.Context(), rec.ID)
	assert.NoError(t, err)

	require.NoError(t, tx.Commit())
	_, err = repos.Interactions.GetByID(ctx, rec.ID)
	assert.NoError(t, err)

	assert.Error(t, tx.Commit())
	assert.NoError(t, tx.Rollback())
}

func TestTransaction_JoinsExisting(t *testing.T) {
	store, _ := newTestStore(t)
	tm := store.GetTransactionManager()

	var outer, inner repositories.Transaction
	err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		outer = tx
		return tm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
			inner = tx
			return nil
		})
	})
	require.NoError(t, err)
	assert.Same(t, outer, inner)
}

func TestTransaction_SerializesWriters(t *testing.T) {
	store, repos := newTestStore(t)
	tm := store.GetTransactionManager()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
				var prev string
				if last, err := repos.AuditEvents.Last(ctx); err == nil {
					prev = last.IntegrityHash
				}
				return repos.AuditEvents.Insert(ctx, &models.AuditEvent{
					Action:        models.AuditActionLedgerCorrection,
					Target:        prev,
					Timestamp:     time.Now().UTC(),
					IntegrityHash: uuid.NewString(),
				})
			})
		}()
	}
	wg.Wait()

	head, err := repos.AuditEvents.Last(context.Background())
	require.NoError(t, err)
	events, err := repos.AuditEvents.Range(context.Background(), 1, head.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 20)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].IntegrityHash, events[i].Target)
	}
}

func TestLocks_RequireTransaction(t *testing.T) {
	store, repos := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, repos.AuditEvents.LockChain(ctx))
	assert.Error(t, repos.Assignments.LockShipment(ctx, "SHP-1"))
	_, err := repos.Anomalies.GetForUpdate(ctx, 1)
	assert.Error(t, err)

	err = store.GetTransactionManager().InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		require.NoError(t, repos.AuditEvents.LockChain(ctx))
		return repos.Assignments.LockShipment(ctx, "SHP-1")
	})
	assert.NoError(t, err)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	_, repos := newTestStore(t)
	ctx := context.Background()
	owner := seedIdentity(t, repos, "agent_jane", models.RoleAgent)

	rec := models.NewInteractionRecord(owner.ID, "q", "r", models.CategoryGeneral, 1)
	require.NoError(t, repos.Interactions.Create(ctx, rec))

	got, err := repos.Interactions.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	got.Flagged = true
	*got.IdentityID = uuid.New()

	again, err := repos.Interactions.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, again.Flagged)
	assert.Equal(t, owner.ID, *again.IdentityID)
}

func TestIdentityRepository(t *testing.T) {
	_, repos := newTestStore(t)
	ctx := context.Background()
	jane := seedIdentity(t, repos, "agent_jane", models.RoleAgent)

	assert.Error(t, repos.Identities.Create(ctx, models.NewIdentity("agent_jane", models.RoleDriver, false)))

	got, err := repos.Identities.GetByUsername(ctx, "agent_jane")
	require.NoError(t, err)
	assert.Equal(t, jane.ID, got.ID)

	require.NoError(t, repos.Identities.UpdateRole(ctx, jane.ID, models.RoleSupport, time.Now().UTC()))
	got, err = repos.Identities.GetByID(ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupport, got.Role)

	err = repos.Identities.UpdateRole(ctx, uuid.New(), models.RoleSupport, time.Now())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestIdentityRepository_DeleteChecksReferences(t *testing.T) {
	_, repos := newTestStore(t)
	ctx := context.Background()
	jane := seedIdentity(t, repos, "agent_jane", models.RoleAgent)

	rec := models.NewInteractionRecord(jane.ID, "q", "r", models.CategoryGeneral, 1)
	require.NoError(t, repos.Interactions.Create(ctx, rec))
	assert.Error(t, repos.Identities.Delete(ctx, jane.ID))

	ids, err := repos.Interactions.DeleteByIdentity(ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{rec.ID}, ids)
	assert.NoError(t, repos.Identities.Delete(ctx, jane.ID))
	assert.ErrorIs(t, repos.Identities.Delete(ctx, jane.ID), repositories.ErrNotFound)
}

func TestInteractionRepository_MarkFlaggedOnce(t *testing.T) {
	_, repos := newTestStore(t)
	ctx := context.Background()
	jane := seedIdentity(t, repos, "agent_jane", models.RoleAgent)
	rec := models.NewInteractionRecord(jane.ID, "q", "r", models.CategoryDocument, 1)
	require.NoError(t, repos.Interactions.Create(ctx, rec))

	reason := "wrong bay"
	require.NoError(t, repos.Interactions.MarkFlagged(ctx, rec.ID, &reason))
	assert.ErrorIs(t, repos.Interactions.MarkFlagged(ctx, rec.ID, nil), repositories.ErrNotFound)

	got, err := repos.Interactions.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Flagged)
	assert.Equal(t, "wrong bay", *got.FlagReason)
}

func TestInteractionRepository_ListByIdentity(t *testing.T) {
	_, repos := newTestStore(t)
	ctx := context.Background()
	jane := seedIdentity(t, repos, "agent_jane", models.RoleAgent)
	other := seedIdentity(t, repos, "agent_bob", models.RoleAgent)

	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := models.NewInteractionRecord(jane.ID, "q", "r", models.CategoryGeneral, 1)
		rec.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repos.Interactions.Create(ctx, rec))
	}
	require.NoError(t, repos.Interactions.Create(ctx, models.NewInteractionRecord(other.ID, "q", "r", models.CategoryGeneral, 1)))

	list, err := repos.Interactions.ListByIdentity(ctx, jane.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].ID)
	assert.Equal(t, int64(2), list[1].ID)

	list, err = repos.Interactions.ListByIdentity(ctx, jane.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].ID)

	list, err = repos.Interactions.ListByIdentity(ctx, jane.ID, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAnomalyRepository_PurgeHelpers(t *testing.T) {
	_, repos := newTestStore(t)
	ctx := context.Background()
	jane := seedIdentity(t, repos, "agent_jane", models.RoleAgent)
	bob := seedIdentity(t, repos, "agent_bob", models.RoleAgent)

	janeRec := models.NewInteractionRecord(jane.ID, "q", "r", models.CategoryGeneral, 1)
	bobRec := models.NewInteractionRecord(bob.ID, "q", "r", models.CategoryGeneral, 1)
	require.NoError(t, repos.Interactions.Create(ctx, janeRec))
	require.NoError(t, repos.Interactions.Create(ctx, bobRec))

	require.NoError(t, repos.Anomalies.Create(ctx, models.NewAnomalyReport(jane.ID, janeRec.ID, "on own")))
	require.NoError(t, repos.Anomalies.Create(ctx, models.NewAnomalyReport(jane.ID, bobRec.ID, "on bob's")))

	err := repos.Anomalies.Create(ctx, models.NewAnomalyReport(jane.ID, 99, "missing"))
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	n, err := repos.Anomalies.DeleteByInteractionOwner(ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repos.Anomalies.ClearIdentity(ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining, err := repos.Anomalies.ListByInteraction(ctx, bobRec.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Nil(t, remaining[0].IdentityID)
}

func TestAuditEventRepository_Queries(t *testing.T) {
	_, repos := newTestStore(t)
	ctx := context.Background()
	actor := uuid.New()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	actions := []models.AuditAction{
		models.AuditActionFlagTriggered,
		models.AuditActionAnomalyReviewStarted,
		models.AuditActionFlagResolved,
		models.AuditActionAssignmentCreated,
	}
	for i, action := range actions {
		ev := &models.AuditEvent{
			Action:        action,
			Target:        models.ReportTarget(int64(i)),
			Timestamp:     base.Add(time.Duration(i) * time.Hour),
			IntegrityHash: uuid.NewString(),
		}
		if i%2 == 0 {
			ev.ActorID = &actor
			ev.ActorRef = actor.String()
		}
		require.NoError(t, repos.AuditEvents.Insert(ctx, ev))
		assert.Equal(t, int64(i+1), ev.ID)
	}

	prev, err := repos.AuditEvents.Before(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), prev.ID)
	_, err = repos.AuditEvents.Before(ctx, 1)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	tests := []struct {
		name    string
		filter  repositories.AuditFilter
		afterID int64
		limit   int
		want    []int64
	}{
		{name: "all", want: []int64{1, 2, 3, 4}},
		{name: "after id", afterID: 2, want: []int64{3, 4}},
		{name: "limit", limit: 2, want: []int64{1, 2}},
		{name: "actor", filter: repositories.AuditFilter{ActorID: &actor}, want: []int64{1, 3}},
		{name: "action", filter: repositories.AuditFilter{Action: models.AuditActionFlagResolved}, want: []int64{3}},
		{name: "target prefix", filter: repositories.AuditFilter{TargetPrefix: "report:3"}, want: []int64{4}},
		{name: "time window", filter: repositories.AuditFilter{Since: base.Add(time.Hour), Until: base.Add(3 * time.Hour)}, want: []int64{2, 3}},
		{name: "id window", filter: repositories.AuditFilter{FromID: 2, ToID: 3}, want: []int64{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := repos.AuditEvents.Find(ctx, tt.filter, tt.afterID, tt.limit)
			require.NoError(t, err)
			var ids []int64
			for _, ev := range events {
				ids = append(ids, ev.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	n, err := repos.AuditEvents.ClearActor(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	events, err := repos.AuditEvents.Find(ctx, repositories.AuditFilter{ActorID: &actor}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2, "actor_ref survives clearing the actor")
	assert.Nil(t, events[0].ActorID)
}

func TestAssignmentRepository_Active(t *testing.T) {
	_, repos := newTestStore(t)
	ctx := context.Background()

	_, err := repos.Assignments.Active(ctx, "SHP-7")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	first := models.NewAssignmentRecord(uuid.New(), "SHP-7", nil)
	first.AssignedAt = at
	second := models.NewAssignmentRecord(uuid.New(), "SHP-7", nil)
	second.AssignedAt = at
	require.NoError(t, repos.Assignments.Create(ctx, first))
	require.NoError(t, repos.Assignments.Create(ctx, second))

	active, err := repos.Assignments.Active(ctx, "SHP-7")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID, "ties go to the higher id")

	history, err := repos.Assignments.ListByShipment(ctx, "SHP-7")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.ID, history[0].ID)

	n, err := repos.Assignments.ClearDriver(ctx, *first.DriverID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
