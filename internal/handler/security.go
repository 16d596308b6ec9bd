package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/auth"
)

// Headers set by the edge proxy in front of the service.
const (
	HeaderAPIKey   = "api_key"
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// RequireAPIKey authenticates the edge service by its API key.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.keys.Verify(r.Context(), r.Header.Get(HeaderAPIKey))
		if err != nil {
			fail(w, r, err)
			return
		}
		ctx := zctx.With(r.Context(), zap.String("api_key", info.Name))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity reads the end user forwarded by the edge. Requests without
// a user id are rejected.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.Identity{
			UserID: r.Header.Get(HeaderUserID),
			Role:   auth.RoleCustomer,
		}
		if id.UserID == "" {
			writeError(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		switch role := auth.Role(r.Header.Get(HeaderUserRole)); role {
		case "", auth.RoleCustomer:
		case auth.RoleAdmin:
			id.Role = auth.RoleAdmin
		default:
			writeError(w, http.StatusUnauthorized, "unknown user role")
			return
		}

		ctx := auth.WithIdentity(r.Context(), id)
		ctx = zctx.With(ctx, zap.String("user_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin lets only admin identities through.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := auth.IdentityFrom(r.Context()); !ok || !id.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
