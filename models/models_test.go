package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Identity tests
func TestNewIdentity(t *testing.T) {
	identity := NewIdentity("agent_jane", RoleAgent, true)

	assert.NotEqual(t, uuid.Nil, identity.ID)
	assert.Equal(t, "agent_jane", identity.Username)
	assert.Equal(t, RoleAgent, identity.Role)
	assert.True(t, identity.MFAEnabled)
	assert.True(t, identity.Active)
	assert.False(t, identity.CreatedAt.IsZero())
	assert.Equal(t, identity.CreatedAt, identity.UpdatedAt)
	assert.Equal(t, "identities", identity.TableName())
	assert.Equal(t, "identity:"+identity.ID.String(), identity.Ref())
}

func TestRole_Valid(t *testing.T) {
	for _, r := range Roles() {
		assert.True(t, r.Valid(), string(r))
	}
	assert.False(t, Role("ceo").Valid())
	assert.False(t, Role("").Valid())

	r, ok := ParseRole("dispatcher")
	assert.True(t, ok)
	assert.Equal(t, RoleDispatcher, r)

	_, ok = ParseRole("warehouse_manager")
	assert.False(t, ok)
}

func TestIdentity_AccessMessage(t *testing.T) {
	tests := []struct {
		role     Role
		contains string
	}{
		{RoleAdmin, "full access"},
		{RoleAgent, "agent-scoped"},
		{RoleDriver, "driver-scoped"},
		{Role("intern"), "unknown role"},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			identity := &Identity{Role: tt.role}
			assert.Contains(t, identity.AccessMessage(), tt.contains)
		})
	}
}

// Interaction tests
func TestNewInteractionRecord(t *testing.T) {
	owner := uuid.New()
	record := NewInteractionRecord(owner, "where is the manifest?", "reply", CategoryDocument, 12)

	require.NotNil(t, record.IdentityID)
	assert.Equal(t, owner, *record.IdentityID)
	assert.False(t, record.Flagged)
	assert.Nil(t, record.FlagReason)
	assert.Equal(t, CategoryDocument, record.Category)
	assert.Equal(t, 12, record.LatencyMs)
	assert.True(t, record.OwnedBy(owner))
	assert.False(t, record.OwnedBy(uuid.New()))
}

func TestInteractionRecord_MarkFlagged(t *testing.T) {
	record := NewInteractionRecord(uuid.New(), "q", "r", CategoryGeneral, 1)

	assert.True(t, record.MarkFlagged("barcode mismatch"))
	assert.True(t, record.Flagged)
	require.NotNil(t, record.FlagReason)
	assert.Equal(t, "barcode mismatch", *record.FlagReason)

	assert.False(t, record.MarkFlagged("second reason"))
	assert.True(t, record.Flagged)
	assert.Equal(t, "barcode mismatch", *record.FlagReason)
}

func TestInteractionRecord_OrphanedOwner(t *testing.T) {
	record := &InteractionRecord{ID: 4}
	assert.False(t, record.OwnedBy(uuid.New()))
	assert.Equal(t, "interaction:4", record.Ref())
}

func TestInteractionCategory_Valid(t *testing.T) {
	for _, c := range []InteractionCategory{CategoryAuth, CategoryDocument, CategoryAnomaly, CategoryGeneral} {
		assert.True(t, c.Valid())
	}
	assert.False(t, InteractionCategory("policy").Valid())
}

// Anomaly tests
func TestLookupTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  AnomalyStatus
		event AnomalyEvent
		to    AnomalyStatus
		ok    bool
	}{
		{"open review_start", AnomalyStatusOpen, AnomalyEventReviewStart, AnomalyStatusInReview, true},
		{"open dismiss", AnomalyStatusOpen, AnomalyEventDismiss, AnomalyStatusDismissed, true},
		{"open resolve", AnomalyStatusOpen, AnomalyEventResolve, "", false},
		{"in_review resolve", AnomalyStatusInReview, AnomalyEventResolve, AnomalyStatusResolved, true},
		{"in_review dismiss", AnomalyStatusInReview, AnomalyEventDismiss, AnomalyStatusDismissed, true},
		{"in_review review_start", AnomalyStatusInReview, AnomalyEventReviewStart, "", false},
		{"resolved dismiss", AnomalyStatusResolved, AnomalyEventDismiss, "", false},
		{"dismissed review_start", AnomalyStatusDismissed, AnomalyEventReviewStart, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ok := LookupTransition(tt.from, tt.event)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.to, tr.To)
			}
		})
	}
}

func TestTransitions_NeverTargetOpenOrLeaveTerminal(t *testing.T) {
	for _, tr := range anomalyTransitions {
		assert.NotEqual(t, AnomalyStatusOpen, tr.To)
		assert.False(t, tr.From.Terminal(), "edge leaves terminal state %s", tr.From)
	}
}

func TestTransition_AllowedFor(t *testing.T) {
	review, _ := LookupTransition(AnomalyStatusOpen, AnomalyEventReviewStart)
	assert.True(t, review.AllowedFor(RoleAgent))
	assert.True(t, review.AllowedFor(RoleAdmin))
	assert.False(t, review.AllowedFor(RoleAuditor))

	dismiss, _ := LookupTransition(AnomalyStatusOpen, AnomalyEventDismiss)
	assert.True(t, dismiss.AllowedFor(RoleAdmin))
	assert.False(t, dismiss.AllowedFor(RoleAgent))
}

func TestAnomalyEvent_AuditAction(t *testing.T) {
	assert.Equal(t, AuditActionAnomalyReviewStarted, AnomalyEventReviewStart.AuditAction())
	assert.Equal(t, AuditActionFlagResolved, AnomalyEventResolve.AuditAction())
	assert.Equal(t, AuditActionFlagDismissed, AnomalyEventDismiss.AuditAction())
	assert.Equal(t, AuditAction(""), AnomalyEvent("reopen").AuditAction())
}

func TestAnomalyReport_Apply(t *testing.T) {
	report := NewAnomalyReport(uuid.New(), 3, "Barcode missing")
	report.ID = 9
	assert.Equal(t, AnomalyStatusOpen, report.Status)
	assert.Equal(t, "report:9", report.Ref())

	before := report.UpdatedAt
	time.Sleep(time.Millisecond)
	tr, _ := LookupTransition(report.Status, AnomalyEventReviewStart)
	report.Apply(tr)

	assert.Equal(t, AnomalyStatusInReview, report.Status)
	assert.True(t, report.UpdatedAt.After(before))
}

// Audit event tests
func TestAuditAction_Valid(t *testing.T) {
	assert.True(t, AuditActionFlagTriggered.Valid())
	assert.True(t, AuditActionRoleChanged.Valid())
	assert.False(t, AuditAction("inference_request").Valid())
}

func TestAuditEvent_JSON(t *testing.T) {
	actor := uuid.New()
	event := AuditEvent{
		ID:            1,
		ActorID:       &actor,
		ActorRef:      actor.String(),
		Action:        AuditActionFlagTriggered,
		Target:        InteractionTarget(7),
		Timestamp:     time.Now().UTC(),
		IntegrityHash: "abc",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"target":"interaction:7"`)
	assert.Contains(t, string(data), `"integrity_hash":"abc"`)
	assert.False(t, event.System())

	system := AuditEvent{}
	assert.True(t, system.System())
}

// Assignment tests
func TestActiveAssignment(t *testing.T) {
	now := time.Now().UTC()
	first := &AssignmentRecord{ID: 1, ShipmentRef: "SHP-1", AssignedAt: now.Add(-time.Hour)}
	second := &AssignmentRecord{ID: 2, ShipmentRef: "SHP-1", AssignedAt: now}
	tie := &AssignmentRecord{ID: 3, ShipmentRef: "SHP-1", AssignedAt: now}

	assert.Nil(t, ActiveAssignment(nil))
	assert.Equal(t, first, ActiveAssignment([]*AssignmentRecord{first}))
	assert.Equal(t, second, ActiveAssignment([]*AssignmentRecord{second, first}))
	assert.Equal(t, tie, ActiveAssignment([]*AssignmentRecord{first, tie, second}))
}

func TestAssignmentRecord_BoundTo(t *testing.T) {
	driver := uuid.New()
	record := NewAssignmentRecord(driver, "SHP-7", nil)

	assert.True(t, record.BoundTo(driver))
	assert.False(t, record.BoundTo(uuid.New()))
	assert.Equal(t, "shipment:SHP-7", ShipmentTarget(record.ShipmentRef))

	record.DriverID = nil
	assert.False(t, record.BoundTo(driver))
}
