package middleware

import (
	"net/http"
	"strings"

	"github.com/kidega/apartments/pkg/auth"
	"github.com/kidega/apartments/pkg/httputil"
)

// Authenticate validates the bearer token and attaches the caller's
// Identity to the request context. Requests without a valid access
// token get a 401.
func Authenticate(tokens *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.WriteUnauthorized(w, "Authorization header required")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				httputil.WriteUnauthorized(w, "Invalid authorization header")
				return
			}

			claims, err := tokens.ValidateToken(parts[1], auth.TokenTypeAccess)
			if err != nil {
				httputil.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			identity := auth.Identity{UserID: claims.UserID, Role: claims.Role}
			ctx := auth.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not in the allowed set.
// It must run after Authenticate.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}
			if !allowed[string(identity.Role)] {
				httputil.WriteForbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
