package httpserver

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"chatserver/internal/domain"
	"chatserver/internal/security"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the authenticated caller. User is nil when the token is valid
// but no user record has been provisioned yet (webhook delivery lag); each
// handler decides how to treat that case.
type Identity struct {
	TokenIdentifier string
	User            *domain.User
}

// WithIdentity returns a new context carrying the caller's identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// CurrentIdentity extracts the caller's identity from the request context.
func CurrentIdentity(r *http.Request) *Identity {
	if v := r.Context().Value(identityContextKey); v != nil {
		if id, ok := v.(*Identity); ok {
			return id
		}
	}
	return nil
}

// requireUser returns the caller's user record, writing NotFound when the
// identity has no record yet.
func requireUser(w http.ResponseWriter, r *http.Request) *domain.User {
	id := CurrentIdentity(r)
	if id == nil {
		writeError(w, domain.ErrUnauthenticated)
		return nil
	}
	if id.User == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return nil
	}
	return id.User
}

// AuthMiddleware validates the Bearer token and attaches the caller's
// identity to the context. The token's subject is the identity provider's
// token identifier.
func AuthMiddleware(tokens *security.TokenService, users domain.UserRepository, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid Authorization header"})
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			subject, err := tokens.Subject(tokenStr)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}

			user, err := users.GetByTokenIdentifier(r.Context(), subject)
			if err != nil {
				log.Error("auth: user lookup failed", zap.String("subject", subject), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				return
			}

			ctx := WithIdentity(r.Context(), &Identity{
				TokenIdentifier: subject,
				User:            user,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
