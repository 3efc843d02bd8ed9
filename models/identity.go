package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of roles an identity can hold
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAgent      Role = "agent"
	RoleAuditor    Role = "auditor"
	RoleDispatcher Role = "dispatcher"
	RoleDriver     Role = "driver"
	RoleSupport    Role = "support"
)

// Roles lists every valid role in a stable order
func Roles() []Role {
	return []Role{RoleAdmin, RoleAgent, RoleAuditor, RoleDispatcher, RoleDriver, RoleSupport}
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAgent, RoleAuditor, RoleDispatcher, RoleDriver, RoleSupport:
		return true
	}
	return false
}

// ParseRole converts a raw string into a Role
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Identity is an authenticated principal. Only Role may change after the
// identity is referenced by ledger events, and every change is audited.
type Identity struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Username   string    `json:"username" db:"username"`
	Role       Role      `json:"role" db:"role"`
	MFAEnabled bool      `json:"mfa_enabled" db:"mfa_enabled"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Identity model
func (Identity) TableName() string {
	return "identities"
}

// NewIdentity creates an active identity
func NewIdentity(username string, role Role, mfaEnabled bool) *Identity {
	now := time.Now().UTC()
	return &Identity{
		ID:         uuid.New(),
		Username:   username,
		Role:       role,
		MFAEnabled: mfaEnabled,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsAdmin returns true if the identity has the admin role
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Ref returns the ledger target reference for this identity
func (i *Identity) Ref() string {
	return IdentityTarget(i.ID)
}

// AccessMessage describes the data scope granted to the identity's role.
func (i *Identity) AccessMessage() string {
	switch i.Role {
	case RoleAdmin:
		return "Access granted as admin. You have full access to compliance data and audit controls."
	case RoleAgent, RoleAuditor, RoleDispatcher, RoleDriver, RoleSupport:
		return "Access granted as " + string(i.Role) + ". Your queries are limited to " + string(i.Role) + "-scoped compliance data."
	}
	return "Access denied: unknown role."
}
