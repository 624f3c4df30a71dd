// Package userctx carries the authenticated user through the request context.
package userctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/escrow/internal/models"
)

type userKey struct{}

func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// FromContext returns false for anonymous requests
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey{}).(models.User)
	return u, ok
}

// UserID is uuid.Nil for anonymous requests
func UserID(ctx context.Context) uuid.UUID {
	u, _ := FromContext(ctx)
	return u.ID
}
