package signal_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"net/http/httptest"

	router "github.com/altamedica/signaling-server/internal/adapters/http"
	"github.com/altamedica/signaling-server/internal/app"
	"github.com/altamedica/signaling-server/internal/config"
	"github.com/altamedica/signaling-server/internal/core"
	"github.com/altamedica/signaling-server/internal/identity"
)

const testSecret = "integration-secret-0123456789"

func testConfig() *config.Config {
	return &config.Config{
		Mode:           "release",
		AllowedOrigins: []string{"*"},
		ReadLimit:      32768,
		PingPeriod:     54 * time.Second,
		SendBuffer:     32,
		Auth:           config.AuthConfig{Secret: testSecret},
		Rate:           config.RateConfig{ConnectLimit: 100, Window: time.Minute},
	}
}

func startServer(t *testing.T, cfg *config.Config) (*httptest.Server, string) {
	t.Helper()

	verifier, err := identity.NewTokenVerifier([]byte(cfg.Auth.Secret), cfg.Auth.Issuer)
	require.NoError(t, err)
	coord := app.NewCoordinator(app.NewRegistry(), identity.RoleAuthorizer{})
	guard := app.NewGuard(cfg.Rate.ConnectLimit, cfg.Rate.Window)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := httptest.NewServer(router.SetupRouter(ctx, cfg, coord, guard, verifier))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/signal"
	return srv, wsURL
}

func signToken(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(sub).
		Expiration(time.Now().Add(time.Hour)).
		Claim("email", sub+"@clinic.test").
		Claim("role", role).
		Build()
	require.NoError(t, err)

	key, err := jwk.FromRaw([]byte(testSecret))
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, key))
	require.NoError(t, err)
	return string(signed)
}

func dial(t *testing.T, wsURL, token string) *websocket.Conn {
	t.Helper()
	if token != "" {
		wsURL += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func writeMsg(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func TestHandshakeWithoutTokenClosesChannel(t *testing.T) {
	_, wsURL := startServer(t, testConfig())

	conn := dial(t, wsURL, "")

	// A join sent immediately must never be processed.
	writeMsg(t, conn, core.Envelope{Type: core.MsgJoin, RoomID: "appt-1"})

	ev := readEvent(t, conn)
	assert.Equal(t, string(core.EvtError), ev["type"])
	assert.Equal(t, string(core.CodeAuthRequired), ev["code"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestHandshakeWithGarbageTokenRejected(t *testing.T) {
	_, wsURL := startServer(t, testConfig())

	conn := dial(t, wsURL, "not-a-jwt")
	ev := readEvent(t, conn)
	assert.Equal(t, string(core.EvtError), ev["type"])
	assert.Equal(t, string(core.CodeInvalidToken), ev["code"])
}

func TestConsultationOverWire(t *testing.T) {
	_, wsURL := startServer(t, testConfig())

	doctor := dial(t, wsURL, signToken(t, "dr-1", "doctor"))
	writeMsg(t, doctor, core.Envelope{Type: core.MsgJoin, RoomID: "appt-1"})
	ev := readEvent(t, doctor)
	require.Equal(t, string(core.EvtJoined), ev["type"])
	assert.Equal(t, "waiting", ev["state"])

	patient := dial(t, wsURL, signToken(t, "pt-1", "patient"))
	writeMsg(t, patient, core.Envelope{Type: core.MsgJoin, RoomID: "appt-1"})
	ev = readEvent(t, patient)
	require.Equal(t, string(core.EvtJoined), ev["type"])
	assert.Equal(t, "active", ev["state"])

	ev = readEvent(t, doctor)
	assert.Equal(t, string(core.EvtPeerJoined), ev["type"])

	// SDP offer relayed untouched, doctor -> patient only.
	writeMsg(t, doctor, core.Envelope{
		Type: core.MsgOffer, RoomID: "appt-1", Payload: json.RawMessage(`"sdp-1"`),
	})
	ev = readEvent(t, patient)
	assert.Equal(t, string(core.MsgOffer), ev["type"])
	assert.Equal(t, "sdp-1", ev["payload"])

	// Patient drops; doctor learns the peer left.
	require.NoError(t, patient.Close())
	ev = readEvent(t, doctor)
	assert.Equal(t, string(core.EvtPeerLeft), ev["type"])
}

func TestPingPong(t *testing.T) {
	_, wsURL := startServer(t, testConfig())

	conn := dial(t, wsURL, signToken(t, "dr-1", "doctor"))
	writeMsg(t, conn, core.Envelope{Type: core.MsgPing})
	ev := readEvent(t, conn)
	assert.Equal(t, string(core.EvtPong), ev["type"])
}

func TestOfferOutsideRoomGetsErrorReply(t *testing.T) {
	_, wsURL := startServer(t, testConfig())

	conn := dial(t, wsURL, signToken(t, "dr-1", "doctor"))
	writeMsg(t, conn, core.Envelope{
		Type: core.MsgOffer, RoomID: "appt-1", Payload: json.RawMessage(`"sdp"`),
	})
	ev := readEvent(t, conn)
	assert.Equal(t, string(core.EvtError), ev["type"])
	assert.Equal(t, string(core.CodeProtocol), ev["code"])
}

func TestConnectRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.ConnectLimit = 1
	_, wsURL := startServer(t, cfg)

	dial(t, wsURL, signToken(t, "dr-1", "doctor"))

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token="+signToken(t, "pt-1", "patient"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := startServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
