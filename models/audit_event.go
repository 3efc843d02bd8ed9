package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AuditAction names a state-changing action recorded in the ledger
type AuditAction string

const (
	AuditActionFlagTriggered        AuditAction = "flag_triggered"
	AuditActionAnomalyReviewStarted AuditAction = "anomaly_review_started"
	AuditActionFlagResolved         AuditAction = "flag_resolved"
	AuditActionFlagDismissed        AuditAction = "flag_dismissed"
	AuditActionAssignmentCreated    AuditAction = "assignment_created"
	AuditActionAssignmentReassigned AuditAction = "assignment_reassigned"
	AuditActionIdentityCreated      AuditAction = "identity_created"
	AuditActionRoleChanged          AuditAction = "role_changed"
	AuditActionIdentityPurged       AuditAction = "identity_purged"
	AuditActionLedgerCorrection     AuditAction = "ledger_correction"
)

// Valid reports whether a is one of the known actions
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionFlagTriggered,
		AuditActionAnomalyReviewStarted,
		AuditActionFlagResolved,
		AuditActionFlagDismissed,
		AuditActionAssignmentCreated,
		AuditActionAssignmentReassigned,
		AuditActionIdentityCreated,
		AuditActionRoleChanged,
		AuditActionIdentityPurged,
		AuditActionLedgerCorrection:
		return true
	}
	return false
}

// AuditEvent is one link of the hash chain. Rows are never updated except
// for ActorID, which is nulled when the actor identity is purged. ActorRef is
// the actor reference frozen at append time and is what the hash covers.
type AuditEvent struct {
	ID            int64       `json:"id" db:"id"`
	ActorID       *uuid.UUID  `json:"actor_id,omitempty" db:"actor_id"`
	ActorRef      string      `json:"actor_ref" db:"actor_ref"`
	Action        AuditAction `json:"action" db:"action"`
	Target        string      `json:"target" db:"target"`
	Timestamp     time.Time   `json:"timestamp" db:"timestamp"`
	IntegrityHash string      `json:"integrity_hash" db:"integrity_hash"`
}

// TableName returns the table name for the AuditEvent model
func (AuditEvent) TableName() string {
	return "audit_events"
}

// System reports whether the event has no originating identity
func (e *AuditEvent) System() bool {
	return e.ActorRef == ""
}

// IdentityTarget formats the ledger target for an identity
func IdentityTarget(id uuid.UUID) string {
	return "identity:" + id.String()
}

// InteractionTarget formats the ledger target for an interaction
func InteractionTarget(id int64) string {
	return "interaction:" + strconv.FormatInt(id, 10)
}

// ReportTarget formats the ledger target for an anomaly report
func ReportTarget(id int64) string {
	return "report:" + strconv.FormatInt(id, 10)
}

// ShipmentTarget formats the ledger target for a shipment
func ShipmentTarget(ref string) string {
	return "shipment:" + ref
}

// EventTarget formats the ledger target for a prior audit event
func EventTarget(id int64) string {
	return "event:" + strconv.FormatInt(id, 10)
}
