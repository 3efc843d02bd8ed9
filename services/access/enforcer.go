package access

import (
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/services"
	"go.uber.org/zap"
)

// DecisionRecorder receives every decision the enforcer makes
type DecisionRecorder interface {
	RecordAccessDecision(role, action string, allowed bool)
}

// Decision is the outcome of an authorization check. Denial is a value, not
// an error; callers turn it into one with Err.
type Decision struct {
	Allowed  bool
	Role     models.Role
	Action   Action
	Resource ResourceKind
}

// Err returns nil for an allowed decision and a permission_denied error
// naming the role and action otherwise
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return services.NewPermissionDenied(string(d.Role), string(d.Action), string(d.Resource))
}

// Enforcer evaluates the role policy
type Enforcer struct {
	recorder DecisionRecorder
	logger   *zap.Logger
}

// NewEnforcer creates an enforcer. recorder may be nil.
func NewEnforcer(recorder DecisionRecorder, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		recorder: recorder,
		logger:   logger,
	}
}

// Authorize decides whether identity may perform action on res. It never
// touches storage, so it can run before any transaction begins.
func (e *Enforcer) Authorize(identity *models.Identity, action Action, res Resource) Decision {
	d := Decision{
		Allowed:  Allows(identity, action, res),
		Action:   action,
		Resource: res.Kind,
	}
	if identity != nil {
		d.Role = identity.Role
	}

	if e.recorder != nil {
		e.recorder.RecordAccessDecision(string(d.Role), string(action), d.Allowed)
	}
	if !d.Allowed {
		e.logger.Debug("access denied",
			zap.String("role", string(d.Role)),
			zap.String("action", string(action)),
			zap.String("resource", string(res.Kind)))
	}
	return d
}

// Require is Authorize followed by Decision.Err
func (e *Enforcer) Require(identity *models.Identity, action Action, res Resource) error {
	return e.Authorize(identity, action, res).Err()
}
