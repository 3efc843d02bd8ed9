package models

import (
	"time"

	"github.com/google/uuid"
)

// AnomalyStatus represents the lifecycle state of an anomaly report
type AnomalyStatus string

const (
	AnomalyStatusOpen      AnomalyStatus = "open"
	AnomalyStatusInReview  AnomalyStatus = "in_review"
	AnomalyStatusResolved  AnomalyStatus = "resolved"
	AnomalyStatusDismissed AnomalyStatus = "dismissed"
)

// Valid reports whether s is one of the known statuses
func (s AnomalyStatus) Valid() bool {
	switch s {
	case AnomalyStatusOpen, AnomalyStatusInReview, AnomalyStatusResolved, AnomalyStatusDismissed:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s
func (s AnomalyStatus) Terminal() bool {
	switch s {
	case AnomalyStatusResolved, AnomalyStatusDismissed:
		return true
	case AnomalyStatusOpen, AnomalyStatusInReview:
		return false
	}
	return false
}

// AnomalyEvent is a request to move a report along its lifecycle
type AnomalyEvent string

const (
	AnomalyEventReviewStart AnomalyEvent = "review_start"
	AnomalyEventResolve     AnomalyEvent = "resolve"
	AnomalyEventDismiss     AnomalyEvent = "dismiss"
)

// Valid reports whether e is one of the known events
func (e AnomalyEvent) Valid() bool {
	switch e {
	case AnomalyEventReviewStart, AnomalyEventResolve, AnomalyEventDismiss:
		return true
	}
	return false
}

// AuditAction returns the ledger action recorded for a successful transition
func (e AnomalyEvent) AuditAction() AuditAction {
	switch e {
	case AnomalyEventReviewStart:
		return AuditActionAnomalyReviewStarted
	case AnomalyEventResolve:
		return AuditActionFlagResolved
	case AnomalyEventDismiss:
		return AuditActionFlagDismissed
	}
	return ""
}

// Transition is one outgoing edge of the report state machine together with
// the roles allowed to take it.
type Transition struct {
	From  AnomalyStatus
	Event AnomalyEvent
	To    AnomalyStatus
	Roles []Role
}

// AllowedFor reports whether role may take this edge
func (t Transition) AllowedFor(role Role) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

var anomalyTransitions = []Transition{
	{From: AnomalyStatusOpen, Event: AnomalyEventReviewStart, To: AnomalyStatusInReview, Roles: []Role{RoleAgent, RoleAdmin}},
	{From: AnomalyStatusOpen, Event: AnomalyEventDismiss, To: AnomalyStatusDismissed, Roles: []Role{RoleAdmin}},
	{From: AnomalyStatusInReview, Event: AnomalyEventResolve, To: AnomalyStatusResolved, Roles: []Role{RoleAdmin}},
	{From: AnomalyStatusInReview, Event: AnomalyEventDismiss, To: AnomalyStatusDismissed, Roles: []Role{RoleAdmin}},
}

// LookupTransition finds the edge leaving from on event.
// No edge ever targets open, so a report can never return to it.
func LookupTransition(from AnomalyStatus, event AnomalyEvent) (Transition, bool) {
	for _, t := range anomalyTransitions {
		if t.From == from && t.Event == event {
			return t, true
		}
	}
	return Transition{}, false
}

// AnomalyReport is raised against a flagged interaction
type AnomalyReport struct {
	ID            int64         `json:"id" db:"id"`
	IdentityID    *uuid.UUID    `json:"identity_id,omitempty" db:"identity_id"`
	InteractionID int64         `json:"interaction_id" db:"interaction_id"`
	Description   string        `json:"description" db:"description"`
	Status        AnomalyStatus `json:"status" db:"status"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the AnomalyReport model
func (AnomalyReport) TableName() string {
	return "anomaly_reports"
}

// NewAnomalyReport creates an open report
func NewAnomalyReport(reporter uuid.UUID, interactionID int64, description string) *AnomalyReport {
	now := time.Now().UTC()
	return &AnomalyReport{
		IdentityID:    &reporter,
		InteractionID: interactionID,
		Description:   description,
		Status:        AnomalyStatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Apply moves the report along t. The caller has already matched t.From.
func (r *AnomalyReport) Apply(t Transition) {
	r.Status = t.To
	r.UpdatedAt = time.Now().UTC()
}

// Ref returns the ledger target reference for this report
func (r *AnomalyReport) Ref() string {
	return ReportTarget(r.ID)
}
