package models

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentRecord binds a driver to a shipment. Records are never
// overwritten; the active one is chosen by ActiveAssignment.
type AssignmentRecord struct {
	ID                 int64      `json:"id" db:"id"`
	DriverID           *uuid.UUID `json:"driver_id,omitempty" db:"driver_id"`
	ShipmentRef        string     `json:"shipment_ref" db:"shipment_ref"`
	AssignedAt         time.Time  `json:"assigned_at" db:"assigned_at"`
	ReassignmentReason *string    `json:"reassignment_reason,omitempty" db:"reassignment_reason"`
}

// TableName returns the table name for the AssignmentRecord model
func (AssignmentRecord) TableName() string {
	return "assignments"
}

// NewAssignmentRecord creates an assignment stamped with the current time
func NewAssignmentRecord(driverID uuid.UUID, shipmentRef string, reason *string) *AssignmentRecord {
	return &AssignmentRecord{
		DriverID:           &driverID,
		ShipmentRef:        shipmentRef,
		AssignedAt:         time.Now().UTC(),
		ReassignmentReason: reason,
	}
}

// BoundTo reports whether the record is bound to the given driver
func (a *AssignmentRecord) BoundTo(driverID uuid.UUID) bool {
	return a.DriverID != nil && *a.DriverID == driverID
}

// Supersedes reports whether a is more recent than other: later AssignedAt,
// with ties going to the higher id.
func (a *AssignmentRecord) Supersedes(other *AssignmentRecord) bool {
	if other == nil {
		return true
	}
	if a.AssignedAt.Equal(other.AssignedAt) {
		return a.ID > other.ID
	}
	return a.AssignedAt.After(other.AssignedAt)
}

// ActiveAssignment picks the most recent record, or nil for an empty slice
func ActiveAssignment(records []*AssignmentRecord) *AssignmentRecord {
	var active *AssignmentRecord
	for _, r := range records {
		if r.Supersedes(active) {
			active = r
		}
	}
	return active
}
