package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"vcsync.org/internal/apperr"
	"vcsync.org/internal/auth"
)

const authHeader = "Authorization"

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/organizations/register",
	"/v1/organizations/confirm",
	"/v1/organizations/login",
	"/v1/workers/login",
	"/v1/auth/email/request-code",
	"/v1/auth/email/verify-code",
	"/v1/auth/token/refresh",
}

// withAuth resolves the Authorization header into a principal for every non-public path.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.svc.Auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		header := strings.TrimSpace(r.Header.Get(authHeader))
		if header == "" {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		principal, err := a.svc.Auth.Authenticate(r.Context(), header)
		if err != nil {
			if errors.Is(err, apperr.ErrUnauthorized) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// principal returns the caller set by withAuth.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

func isPublicPath(path string) bool {
	path = strings.TrimRight(path, "/")
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
