package models

import (
	"time"

	"github.com/google/uuid"
)

// InteractionCategory classifies a chat interaction
type InteractionCategory string

const (
	CategoryAuth     InteractionCategory = "auth"
	CategoryDocument InteractionCategory = "document"
	CategoryAnomaly  InteractionCategory = "anomaly"
	CategoryGeneral  InteractionCategory = "general"
)

// Valid reports whether c is one of the known categories
func (c InteractionCategory) Valid() bool {
	switch c {
	case CategoryAuth, CategoryDocument, CategoryAnomaly, CategoryGeneral:
		return true
	}
	return false
}

// InteractionRecord is a single query/response pair.
// IdentityID is nil once the owning identity has been purged.
type InteractionRecord struct {
	ID          int64               `json:"id" db:"id"`
	IdentityID  *uuid.UUID          `json:"identity_id,omitempty" db:"identity_id"`
	Timestamp   time.Time           `json:"timestamp" db:"timestamp"`
	Query       string              `json:"query" db:"query"`
	Response    string              `json:"response" db:"response"`
	Flagged     bool                `json:"flagged" db:"flagged"`
	FlagReason  *string             `json:"flag_reason,omitempty" db:"flag_reason"`
	Category    InteractionCategory `json:"category" db:"category"`
	LatencyMs   int                 `json:"latency_ms" db:"latency_ms"`
}

// TableName returns the table name for the InteractionRecord model
func (InteractionRecord) TableName() string {
	return "interactions"
}

// NewInteractionRecord creates an unflagged interaction
func NewInteractionRecord(identityID uuid.UUID, query, response string, category InteractionCategory, latencyMs int) *InteractionRecord {
	return &InteractionRecord{
		IdentityID: &identityID,
		Timestamp:  time.Now().UTC(),
		Query:      query,
		Response:   response,
		Category:   category,
		LatencyMs:  latencyMs,
	}
}

// OwnedBy reports whether the record belongs to the given identity
func (r *InteractionRecord) OwnedBy(id uuid.UUID) bool {
	return r.IdentityID != nil && *r.IdentityID == id
}

// MarkFlagged sets the flagged bit. It returns false when the record was
// already flagged, in which case nothing changes.
func (r *InteractionRecord) MarkFlagged(reason string) bool {
	if r.Flagged {
		return false
	}
	r.Flagged = true
	if reason != "" {
		r.FlagReason = &reason
	}
	return true
}

// Ref returns the ledger target reference for this interaction
func (r *InteractionRecord) Ref() string {
	return InteractionTarget(r.ID)
}
