package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"mindtrack/internal/domains"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Authenticator turns a bearer access token into the calling principal.
type Authenticator interface {
	Authenticate(token string) (domains.Principal, error)
}

func Protected(auth Authenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			principal, err := auth.Authenticate(token)
			if err != nil {
				Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// Optional attaches the principal when a valid bearer token is present and lets anonymous requests through.
func Optional(auth Authenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := BearerToken(r); ok {
				if principal, err := auth.Authenticate(token); err == nil {
					r = r.WithContext(WithPrincipal(r.Context(), principal))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole must run after Protected.
func RequireRole(roles ...string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			Error(w, http.StatusForbidden, "Forbidden")
		})
	}
}

func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func WithPrincipal(ctx context.Context, p domains.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

func PrincipalFromContext(ctx context.Context) (domains.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(domains.Principal)
	return p, ok
}
