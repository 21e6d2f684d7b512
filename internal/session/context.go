package session

import (
	"context"
	"time"

	"github.com/odyssey-erp/backoffice/internal/rbac"
)

// Principal is the authenticated actor of a request. Permissions is the value
// fetched from the store during this request.
type Principal struct {
	Username    string
	Permissions rbac.Permission
	SessionID   string
	ExpiresAt   *time.Time
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal placed by the Guard.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
