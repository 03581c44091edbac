package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/altamedica/signaling-server/internal/app"
	"github.com/altamedica/signaling-server/internal/config"
	"github.com/altamedica/signaling-server/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 5 * time.Second

// Controller owns the WebSocket side of the signaling protocol: handshake,
// authentication binding and disconnect cleanup.
type Controller struct {
	Coord    *app.Coordinator
	Verifier core.Verifier
	Cfg      *config.Config

	upgrader websocket.Upgrader
}

func NewController(cfg *config.Config, coord *app.Coordinator, verifier core.Verifier) *Controller {
	ctl := &Controller{Coord: coord, Verifier: verifier, Cfg: cfg}
	ctl.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	return ctl
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		// Non-browser clients carry no Origin header.
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// Conn wraps a websocket with a buffered outbound queue.
// Close is idempotent so every disconnect path may call it.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newConn(ws *websocket.Conn, buffer int) *Conn {
	return &Conn{ws: ws, send: make(chan []byte, buffer)}
}

func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

// bearerToken pulls the credential from the upgrade request: Authorization
// header first, then the token query parameter (browsers cannot set headers
// on WebSocket handshakes).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return h
	}
	return r.URL.Query().Get("token")
}

// HandleSignal upgrades the request, authenticates the channel and starts
// the pumps. An invalid or missing credential closes the channel before any
// message is read.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	token := bearerToken(c.Request)
	user, err := ctl.Verifier.Verify(c.Request.Context(), token)
	if err != nil {
		ctl.rejectHandshake(ws, err)
		return
	}

	connID := core.ConnectionID(uuid.NewString())
	conn := newConn(ws, ctl.Cfg.SendBuffer)
	ctl.Coord.Bind(connID, user, conn)
	log.Info().Str("module", "signal").Str("conn", string(connID)).
		Str("user", string(user.ID)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, connID, conn)
}

// rejectHandshake reports the auth failure on the wire and closes the
// channel with a policy-violation close frame. The connection is never
// registered, so nothing needs cleanup.
func (ctl *Controller) rejectHandshake(ws *websocket.Conn, cause error) {
	code := core.WireCode(cause)
	log.Warn().Err(cause).Str("module", "signal").Str("code", string(code)).Msg("handshake rejected")

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = ws.WriteJSON(core.NewErrorEvent(cause))
	_ = ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, string(code)),
		time.Now().Add(writeWait),
	)
	_ = ws.Close()
}
