package signal

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/altamedica/signaling-server/internal/core"
	"github.com/altamedica/signaling-server/internal/domain"
)

func (ctl *Controller) handleJoin(ctx context.Context, connID core.ConnectionID, c *Conn, env core.Envelope) {
	roomID, err := domain.ParseRoomID(env.RoomID)
	if err != nil {
		ctl.sendError(c, core.ErrProtocol)
		return
	}

	if err := ctl.Coord.Join(ctx, connID, roomID); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(connID)).
			Str("room", string(roomID)).Msg("join rejected")
		ctl.sendError(c, err)
		return
	}
}

func (ctl *Controller) handleLeave(connID core.ConnectionID, c *Conn) {
	if err := ctl.Coord.Leave(connID); err != nil {
		ctl.sendError(c, err)
	}
}

func (ctl *Controller) handlePing(c *Conn) {
	ctl.sendJSON(c, core.PongEvent{Type: core.EvtPong, Timestamp: time.Now().UnixMilli()})
}
