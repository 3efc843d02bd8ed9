// Package access holds the role policy and the enforcer that every
// operation consults before it touches storage.
package access

import (
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/google/uuid"
)

// Action is an operation a role may be granted on a resource kind
type Action string

const (
	ActionRead        Action = "read"
	ActionCreate      Action = "create"
	ActionWrite       Action = "write"
	ActionAssign      Action = "assign"
	ActionFlag        Action = "flag"
	ActionReviewStart Action = "review_start"
	ActionResolve     Action = "resolve"
	ActionDismiss     Action = "dismiss"
	ActionChangeRole  Action = "change_role"
	ActionPurge       Action = "purge"
	ActionVerify      Action = "verify"
)

// ResourceKind names the kind of record an action applies to
type ResourceKind string

const (
	ResourceInteraction   ResourceKind = "interaction"
	ResourceAnomalyReport ResourceKind = "anomaly_report"
	ResourceAuditEvent    ResourceKind = "audit_event"
	ResourceAssignment    ResourceKind = "assignment"
	ResourceIdentity      ResourceKind = "identity"
)

// Resource describes the record being accessed. Owner and the interaction
// attributes are only consulted by rules that scope on them.
type Resource struct {
	Kind ResourceKind

	// Owner is the identity the record belongs to: the interaction author,
	// or the driver an assignment is bound to
	Owner *uuid.UUID

	Category models.InteractionCategory

	// Flagged is the state of the interaction a report is raised against
	Flagged bool
}

// Kind returns a resource that carries no scoping attributes
func Kind(kind ResourceKind) Resource {
	return Resource{Kind: kind}
}

// InteractionResource scopes an existing interaction
func InteractionResource(rec *models.InteractionRecord) Resource {
	return Resource{
		Kind:     ResourceInteraction,
		Owner:    rec.IdentityID,
		Category: rec.Category,
		Flagged:  rec.Flagged,
	}
}

// NewInteraction scopes an interaction about to be created by identity
func NewInteraction(owner uuid.UUID, category models.InteractionCategory) Resource {
	return Resource{Kind: ResourceInteraction, Owner: &owner, Category: category}
}

// ReportFrom scopes a report raised against rec
func ReportFrom(rec *models.InteractionRecord) Resource {
	return Resource{
		Kind:     ResourceAnomalyReport,
		Owner:    rec.IdentityID,
		Category: rec.Category,
		Flagged:  rec.Flagged,
	}
}

// ReportResource scopes an existing report by its reporter
func ReportResource(rep *models.AnomalyReport) Resource {
	return Resource{Kind: ResourceAnomalyReport, Owner: rep.IdentityID}
}

// AssignmentResource scopes an assignment record
func AssignmentResource(rec *models.AssignmentRecord) Resource {
	return Resource{Kind: ResourceAssignment, Owner: rec.DriverID}
}

func (r Resource) ownedBy(id uuid.UUID) bool {
	return r.Owner != nil && *r.Owner == id
}

// rule decides a single (role, kind, action) capability
type rule func(identity *models.Identity, res Resource) bool

func always(*models.Identity, Resource) bool { return true }

func ownRecord(identity *models.Identity, res Resource) bool {
	return res.ownedBy(identity.ID)
}

func ownFlaggedRecord(identity *models.Identity, res Resource) bool {
	return res.ownedBy(identity.ID) && res.Flagged
}

func categoryIn(categories ...models.InteractionCategory) rule {
	return func(_ *models.Identity, res Resource) bool {
		for _, c := range categories {
			if res.Category == c {
				return true
			}
		}
		return false
	}
}

type grants map[ResourceKind]map[Action]rule

// policy is the role table. Admin is handled separately and may do
// everything; a missing entry is a denial.
var policy = map[models.Role]grants{
	models.RoleDispatcher: {
		ResourceAssignment: {
			ActionRead:   always,
			ActionWrite:  always,
			ActionAssign: always,
		},
		ResourceInteraction: {
			ActionRead:   categoryIn(models.CategoryDocument, models.CategoryGeneral),
			ActionWrite:  categoryIn(models.CategoryDocument, models.CategoryGeneral),
			ActionCreate: categoryIn(models.CategoryDocument, models.CategoryGeneral),
			ActionFlag:   categoryIn(models.CategoryDocument, models.CategoryGeneral),
		},
		ResourceAnomalyReport: {
			ActionRead: always,
		},
	},
	models.RoleDriver: {
		ResourceAssignment: {
			ActionRead: ownRecord,
		},
	},
	models.RoleSupport: {
		ResourceInteraction: {
			ActionRead: categoryIn(models.CategoryDocument),
		},
	},
	models.RoleAgent: {
		ResourceInteraction: {
			ActionCreate: always,
			ActionRead:   ownRecord,
			ActionFlag:   ownRecord,
		},
		ResourceAnomalyReport: {
			ActionCreate:      ownFlaggedRecord,
			ActionRead:        ownRecord,
			ActionReviewStart: ownRecord,
		},
	},
	models.RoleAuditor: {
		ResourceAuditEvent: {
			ActionRead:   always,
			ActionVerify: always,
		},
		ResourceAnomalyReport: {
			ActionRead: always,
		},
	},
}

// Allows evaluates the role table without recording the decision
func Allows(identity *models.Identity, action Action, res Resource) bool {
	if identity == nil || !identity.Active || !identity.Role.Valid() {
		return false
	}
	if identity.Role == models.RoleAdmin {
		return true
	}
	r, ok := policy[identity.Role][res.Kind][action]
	return ok && r(identity, res)
}

// Holds reports whether role has action on kind for at least some records,
// ignoring record scoping
func Holds(role models.Role, action Action, kind ResourceKind) bool {
	if role == models.RoleAdmin {
		return true
	}
	_, ok := policy[role][kind][action]
	return ok
}
