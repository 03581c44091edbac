package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/altamedica/signaling-server/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	ping := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump is the single owner of inbound traffic. Its deferred cleanup is
// the scoped-resource-release point: whatever ends the connection, registry
// cleanup runs exactly once.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, connID core.ConnectionID, c *Conn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("readPump closing")
		cancel()
		ctl.Coord.Disconnect(connID)
		c.Close()
	}()

	pongWait := ctl.Cfg.PingPeriod * 10 / 9
	c.ws.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleSignal(ctx, connID, c, data)
		}
	}
}

// handleSignal dispatches one inbound message. A panic while handling it is
// contained here: logged and surfaced as INTERNAL_ERROR to this connection
// only, never taking the process down.
func (ctl *Controller) handleSignal(ctx context.Context, connID core.ConnectionID, c *Conn, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Str("module", "signal").
				Str("conn", string(connID)).Msg("recovered in message handler")
			ctl.sendError(c, core.ErrInternal)
		}
	}()

	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(connID)).Msg("bad json")
		ctl.sendError(c, core.ErrProtocol)
		return
	}

	switch {
	case env.Type == core.MsgJoin:
		ctl.handleJoin(ctx, connID, c, env)
	case env.Type == core.MsgLeave:
		ctl.handleLeave(connID, c)
	case env.Type == core.MsgPing:
		ctl.handlePing(c)
	case env.Type.Relayable():
		ctl.handleRelay(connID, c, env, data)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
		ctl.sendError(c, core.ErrProtocol)
	}
}

func (ctl *Controller) sendJSON(c *Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *Conn, cause error) {
	ctl.sendJSON(c, core.NewErrorEvent(cause))
}
