// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation, query-token fallback and the privileged gate

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityHandler(got **Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_ValidToken(t *testing.T) {
	v := newTestVerifier(t)
	token, err := v.Generate(Identity{UserID: "u1", DisplayName: "Ana"}, time.Hour)
	require.NoError(t, err)

	var got *Identity
	req := httptest.NewRequest(http.MethodGet, "/api/inbox", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	Middleware(v)(identityHandler(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
}

func TestMiddleware_QueryTokenFallback(t *testing.T) {
	v := newTestVerifier(t)
	token, err := v.Generate(Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	var got *Identity
	req := httptest.NewRequest(http.MethodGet, "/api/inbox?access_token="+token, nil)
	rec := httptest.NewRecorder()

	Middleware(v)(identityHandler(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
}

func TestMiddleware_Rejects(t *testing.T) {
	v := newTestVerifier(t)

	tests := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic dXNlcjpwYXNz",
		"empty bearer":   "Bearer ",
		"bad token":      "Bearer nope",
	}

	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			var got *Identity
			req := httptest.NewRequest(http.MethodGet, "/api/inbox", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()

			Middleware(v)(identityHandler(&got)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"unauthenticated"`)
			assert.Nil(t, got)
		})
	}
}

func TestRequirePrivileged(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name string
		id   *Identity
		want int
	}{
		{"no identity", nil, http.StatusUnauthorized},
		{"regular user", &Identity{UserID: "u1"}, http.StatusForbidden},
		{"admin", &Identity{UserID: "root", IsPrivileged: true}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
			if tt.id != nil {
				req = req.WithContext(WithIdentity(req.Context(), tt.id))
			}
			rec := httptest.NewRecorder()

			RequirePrivileged()(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
