package middleware

import (
	"net/http"

	authkit "github.com/tradeyard/authkit"
	"github.com/tradeyard/authkit/role"
)

// RequireRole passes requests whose claims hold at least one of the
// required bits. Must run inside [Guard].
func RequireRole(engine *authkit.Engine, required role.Mask) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := engine.RequireRole(claims, required); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAllRoles passes requests whose claims hold every required bit.
func RequireAllRoles(engine *authkit.Engine, required role.Mask) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := engine.RequireAllRoles(claims, required); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
