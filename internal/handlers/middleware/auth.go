package middleware

import (
	"context"
	"net/http"

	"github.com/nkiryanov/escrow/internal/handlers/render"
	"github.com/nkiryanov/escrow/internal/handlers/userctx"
	"github.com/nkiryanov/escrow/internal/models"
)

type authService interface {
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.GetUserFromRequest(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must run after AuthMiddleware.
// Non admins get the same 404 as any missing resource.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok || !user.IsAdmin() {
			render.ServiceError(w, "Not found or you are not authorized for this action", http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
