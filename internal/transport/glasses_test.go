package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/augmentos-org/cloud-core/internal/transport"
	"github.com/augmentos-org/cloud-core/internal/wire"
)

const testJWTSecret = "test-secret"

func signTestToken(t *testing.T, email string) string {
	t.Helper()
	claims := jwt.MapClaims{"email": email}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return s
}

func newGlassesTestServer(t *testing.T) (*httptest.Server, *transport.Hub) {
	t.Helper()
	hub, _ := newTestHub(t)
	handler := transport.GlassesHandler{
		Hub:  hub,
		Auth: transport.GlassesAuth{Secret: testJWTSecret},
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dialGlasses(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(srv.URL, "http://", "ws://", 1)
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.Dial(context.Background(), url, &websocket.DialOptions{HTTPHeader: headers})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func TestGlassesHandler_RejectsMissingToken(t *testing.T) {
	t.Parallel()
	srv, _ := newGlassesTestServer(t)
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGlassesHandler_SendsConnectionAck(t *testing.T) {
	t.Parallel()
	srv, _ := newGlassesTestServer(t)
	token := signTestToken(t, "wearer@example.com")
	conn := dialGlasses(t, srv, token)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)

	msgType, raw, err := wire.Decode(data)
	require.NoError(t, err)
	require.Equal(t, wire.TypeConnectionAck, msgType)

	var ack wire.ConnectionAck
	require.NoError(t, json.Unmarshal(raw, &ack))
	require.NotEmpty(t, ack.SessionID)
}

func TestGlassesHandler_StartAppTriggersAppStateChange(t *testing.T) {
	t.Parallel()
	srv, _ := newGlassesTestServer(t)
	token := signTestToken(t, "wearer@example.com")
	conn := dialGlasses(t, srv, token)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Drain the initial connection_ack.
	_, _, err := conn.Read(ctx)
	require.NoError(t, err)

	startApp := wire.StartApp{Type: wire.TypeStartApp, PackageName: "unknown.package"}
	data, err := json.Marshal(startApp)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))

	typ, raw, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	msgType, _, err := wire.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, wire.TypeAppStateChange, msgType)
}
