package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pointcard/backend/internal/models"
)

type contextKey string

const ctxIdentityKey contextKey = "identity"

// Identity is the verified (accountID, accountType) pair the session layer
// supplies to every operation. Downstream services trust it and perform no
// credential checks of their own.
type Identity struct {
	AccountID uuid.UUID
	Type      string
}

// TokenVerifier checks a session token and returns the identity it encodes.
// Implemented by auth.Service.
type TokenVerifier interface {
	VerifyToken(token string) (uuid.UUID, string, error)
}

// RequireAuth authenticates requests by verifying the Bearer token and puts
// the resulting Identity into request context.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			accountID, accountType, err := verifier.VerifyToken(raw)
			if err != nil {
				http.Error(w, `{"error":"invalid session token"}`, http.StatusUnauthorized)
				return
			}
			ctx := WithIdentity(r.Context(), &Identity{AccountID: accountID, Type: accountType})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCustomer rejects non-customer identities.
func RequireCustomer(next http.Handler) http.Handler {
	return requireType(models.AccountTypeCustomer, next)
}

// RequireBusiness rejects non-business identities.
func RequireBusiness(next http.Handler) http.Handler {
	return requireType(models.AccountTypeBusiness, next)
}

func requireType(accountType string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromCtx(r.Context())
		if id == nil {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if id.Type != accountType {
			http.Error(w, `{"error":"wrong account type for this operation"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromCtx returns the authenticated identity or nil.
func IdentityFromCtx(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxIdentityKey).(*Identity)
	return id
}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, id)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
