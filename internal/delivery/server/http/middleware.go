package http

import (
	"context"
	"net/http"
	"strings"

	authapp "alex/internal/auth/app"
	authdomain "alex/internal/auth/domain"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// RequireAuth extracts and verifies a Bearer access token, stashing its
// claims in the request context for downstream handlers.
func RequireAuth(authSvc *authapp.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
				return
			}
			claims, err := authSvc.ParseAccessToken(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token", nil)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin wraps a handler that already ran behind RequireAuth, refusing
// callers who don't hold the admin role.
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_token", "missing bearer token", nil)
			return
		}
		for _, role := range claims.Roles {
			if role.Implies(authdomain.RoleAdmin) {
				next(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, "permission_denied", "admin role required", nil)
	}
}

func claimsFromContext(ctx context.Context) (authdomain.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(authdomain.Claims)
	return claims, ok
}

// remoteKey returns the caller identity used as a rate-limit bucket key for
// unauthenticated routes: the first hop of X-Forwarded-For if present, else
// RemoteAddr.
func remoteKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}
