// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts the bearer token from the Authorization header and adds Identity to context

package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// bearerFromRequest reads the token from the Authorization header, falling
// back to the access_token query parameter for EventSource clients that
// cannot set headers.
func bearerFromRequest(r *http.Request) (string, string) {
	if r.Header.Get("Authorization") == "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, ""
		}
	}
	return extractBearerToken(r.Header.Get("Authorization"))
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// Middleware creates an HTTP middleware that validates bearer tokens and adds
// the Identity to the request context. Requests without a valid token get 401.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := bearerFromRequest(r)
			if errMsg != "" {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", errMsg)
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequirePrivileged creates an HTTP middleware that requires a privileged
// identity. Must be used after Middleware.
func RequirePrivileged() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthenticated", "not authenticated")
				return
			}

			if !id.IsPrivileged {
				writeAuthError(w, http.StatusForbidden, "forbidden", "admin privileges required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
