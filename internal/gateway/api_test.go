// ABOUTME: Tests for error-to-status mapping and JSON request decoding
// ABOUTME: Checks that internal error details never reach the response body

package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyengo/voyengo/internal/apperr"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.ErrEmptyMessage, http.StatusBadRequest},
		{apperr.ErrInvalidCursor, http.StatusBadRequest},
		{apperr.ErrUnauthenticated, http.StatusUnauthorized},
		{apperr.ErrNotAParticipant, http.StatusForbidden},
		{apperr.ErrIdentityMismatch, http.StatusForbidden},
		{fmt.Errorf("loading conversation: %w", apperr.ErrNotFound), http.StatusNotFound},
		{apperr.Unavailable("querying", errors.New("boom")), http.StatusServiceUnavailable},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}

func TestWriteError_HidesInternalErrors(t *testing.T) {
	env := newTestGateway(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	env.gw.writeError(rec, req, errors.New("pq: relation \"secrets\" does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "internal", body.Code)
	assert.Equal(t, "internal error", body.Error)
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"text":"hi"}`, false},
		{"unknown field", `{"text":"hi","sender_id":"bob"}`, true},
		{"trailing data", `{"text":"hi"}{"text":"again"}`, true},
		{"not json", `text=hi`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v sendMessageRequest
			err := decodeJSON(req, &v)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "hi", v.Text)
		})
	}
}

func TestCORS(t *testing.T) {
	env := newTestGateway(t)
	env.gw.config.Server.CORSOrigins = []string{"https://app.voyengo.test"}
	handler := env.gw.routes()

	req := httptest.NewRequest(http.MethodOptions, "/api/offers", nil)
	req.Header.Set("Origin", "https://app.voyengo.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.voyengo.test", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/offers", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
