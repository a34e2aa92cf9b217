package shared

import (
	"context"

	"github.com/google/uuid"
)

// Identity carries the verified access-token claims for a request.
type Identity struct {
	AccountID uuid.UUID
	Username  string
	Superuser bool
	Admin     bool
	CompanyID uuid.UUID
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
