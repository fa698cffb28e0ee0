// ABOUTME: Tests for gateway construction, health endpoints, gRPC health and lifecycle
// ABOUTME: Also provides the shared test gateway and HTTP request helpers

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/voyengo/voyengo/internal/apperr"
	"github.com/voyengo/voyengo/internal/auth"
	"github.com/voyengo/voyengo/internal/config"
	"github.com/voyengo/voyengo/internal/notify"
	"github.com/voyengo/voyengo/internal/store"
)

const testConfig = `
server:
  http_addr: "127.0.0.1:0"
  grpc_addr: "127.0.0.1:0"
  shutdown_timeout: "2s"
database:
  path: ":memory:"
auth:
  jwt_secret: "gateway-test-secret-with-32-bytes!"
offers:
  max_page_size: 10
`

type testEnv struct {
	gw       *Gateway
	store    *store.MockStore
	notifier *notify.Broadcaster
}

func newTestGateway(t *testing.T) *testEnv {
	t.Helper()

	cfg, err := config.Parse([]byte(testConfig), false)
	require.NoError(t, err)

	s := store.NewMockStore()
	n := notify.NewBroadcaster(nil)
	gw, err := newGateway(cfg, s, n, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		gw.cancelBase()
		gw.idempotency.Close()
		_ = n.Close()
	})

	return &testEnv{gw: gw, store: s, notifier: n}
}

// token mints a bearer token for userID.
func (e *testEnv) token(t *testing.T, userID, name string, privileged bool) string {
	t.Helper()
	tok, err := e.gw.verifier.Generate(auth.Identity{
		UserID:       userID,
		DisplayName:  name,
		IsPrivileged: privileged,
	}, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a request through the full router. body is JSON-encoded unless nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.gw.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestGateway(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, env.gw.serverID, body["server_id"])
}

func TestReady(t *testing.T) {
	env := newTestGateway(t)

	t.Run("store answers", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("store down", func(t *testing.T) {
		env.store.FailNext("Ping", apperr.Unavailable("ping", errors.New("connection refused")))

		rec := env.do(t, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unavailable", decodeBody[errorResponse](t, rec).Code)
	})
}

func TestNewGateway_RejectsWeakSecret(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig), false)
	require.NoError(t, err)
	cfg.Auth.JWTSecret = "short"

	_, err = newGateway(cfg, store.NewMockStore(), notify.NewBroadcaster(nil), nil)
	assert.Error(t, err)
}

func TestAdminStats(t *testing.T) {
	env := newTestGateway(t)

	env.do(t, http.MethodPost, "/api/conversations", env.token(t, "alice", "Alice", false),
		ensureConversationRequest{OtherUserID: "bob", OtherDisplayName: "Bob"})

	t.Run("requires token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/stats", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("requires privilege", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/stats", env.token(t, "alice", "Alice", false), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("privileged", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/admin/stats", env.token(t, "root", "Ops", true), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		st := decodeBody[statsJSON](t, rec)
		assert.Equal(t, int64(2), st.Users)
		assert.Equal(t, int64(1), st.Conversations)
		assert.Equal(t, int64(0), st.Messages)
	})
}

func TestGRPCHealth(t *testing.T) {
	env := newTestGateway(t)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = env.gw.grpcServer.Serve(lis) }()
	t.Cleanup(env.gw.grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// no bearer token: health is public despite the auth interceptors
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(t.Context(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	env.gw.setServing(true)

	resp, err = client.Check(t.Context(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	env := newTestGateway(t)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- env.gw.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	resp, err := env.gw.healthServer.Check(t.Context(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")

	_, err := resolveTailscaleAuthKey("")
	assert.Error(t, err)

	key, err := resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/voyengo/ts")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/voyengo/ts", dir)

	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.Contains(t, dir, "voyengo-gateway")
}
