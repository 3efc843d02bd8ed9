package interactions

import (
	"context"
	"fmt"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
)

// Responder produces the reply recorded for a query
type Responder interface {
	Respond(ctx context.Context, identity *models.Identity, query string, category models.InteractionCategory) (string, error)
}

// PrototypeResponder answers with a fixed placeholder naming the caller's role
type PrototypeResponder struct{}

// Respond implements Responder
func (PrototypeResponder) Respond(_ context.Context, identity *models.Identity, query string, _ models.InteractionCategory) (string, error) {
	return fmt.Sprintf("[Prototype reply for %s] You asked: %q. In the final system, this would be answered using internal compliance documents only.",
		identity.Role, query), nil
}
