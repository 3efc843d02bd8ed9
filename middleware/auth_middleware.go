package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/auth"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenValidator defines the interface for validating access tokens
type TokenValidator interface {
	// ValidateToken validates a token and returns its claims
	ValidateToken(ctx context.Context, token string) (*auth.ParsedClaims, error)
}

// IdentityResolver looks up the identity a token refers to
type IdentityResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator  TokenValidator
	identities IdentityResolver
	cookieName string
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. Tokens are read from the
// Authorization header first and then from the named cookie.
func NewAuthMiddleware(validator TokenValidator, identities IdentityResolver, cookieName string, logger *zap.Logger) *AuthMiddleware {
	if cookieName == "" {
		cookieName = "access_token"
	}
	return &AuthMiddleware{
		validator:  validator,
		identities: identities,
		cookieName: cookieName,
		logger:     logger,
	}
}

// RequireAuth is a middleware that requires a valid token for an active
// identity. The identity is loaded from storage on every request, so a role
// change or purge takes effect immediately regardless of the token.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := m.extractToken(r)
		if token == "" {
			m.logger.Warn("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		identity, err := m.identities.GetByID(ctx, claims.IdentityID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				m.logger.Warn("token refers to unknown identity",
					zap.String("request_id", requestID),
					zap.String("identity_id", claims.IdentityID.String()))
				_ = utils.WriteUnauthorized(w, "Invalid or expired token")
				return
			}
			m.logger.Error("failed to resolve identity",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteInternalServerError(w, "")
			return
		}
		if !identity.Active {
			m.logger.Warn("inactive identity",
				zap.String("request_id", requestID),
				zap.String("identity_id", identity.ID.String()))
			_ = utils.WriteUnauthorized(w, "Inactive user")
			return
		}

		ctx = WithClaims(ctx, claims)
		ctx = WithIdentity(ctx, identity)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("identity_id", identity.ID.String()),
			zap.String("role", string(identity.Role)))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken extracts the token from the Authorization header ("Bearer TOKEN")
// or the access token cookie. The header takes precedence when both are present.
func (m *AuthMiddleware) extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
