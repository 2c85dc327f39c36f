package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"alumnihub.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/api/token/",
	"/api/token/refresh/",
	"/api/user/register/",
	"/api/password-reset-request/",
	"/api/password-reset-confirm/",
	"/metrics",
	"/healthz",
	"/readyz",
	"/api/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.auth.AuthenticateToken(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthorized):
				writeError(w, r, http.StatusUnauthorized, "Token is invalid or expired")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireMember returns the authenticated principal or writes a 401.
func requireMember(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return principal, true
}

// requireAdmin returns the principal if it is an admin, otherwise writes
// the 403 body admin views key off.
func requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := requireMember(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	if !principal.IsAdmin {
		writeError(w, r, http.StatusForbidden, "Admin access required")
		return auth.Principal{}, false
	}
	return principal, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
