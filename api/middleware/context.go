package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type principalKey struct{}

type principal struct {
	userID uuid.UUID
	role   enums.UserRole
}

// WithPrincipal marks ctx as authenticated for userID acting as role.
func WithPrincipal(ctx context.Context, userID uuid.UUID, role enums.UserRole) context.Context {
	return context.WithValue(ctx, principalKey{}, principal{userID: userID, role: role})
}

// Principal returns the authenticated user id and role or an unauthorized error.
func Principal(ctx context.Context) (uuid.UUID, enums.UserRole, error) {
	p, ok := ctx.Value(principalKey{}).(principal)
	if !ok || p.userID == uuid.Nil || !p.role.IsValid() {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return p.userID, p.role, nil
}

// callerID is the authenticated user id as text, or "" for anonymous requests.
func callerID(ctx context.Context) string {
	if id, _, err := Principal(ctx); err == nil {
		return id.String()
	}
	return ""
}
