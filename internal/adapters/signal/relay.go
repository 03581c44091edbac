package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/altamedica/signaling-server/internal/core"
	"github.com/altamedica/signaling-server/internal/domain"
)

// handleRelay forwards offer/answer/ice-candidate (and chat/media-toggle)
// frames to the other participant. The raw bytes are passed through
// untouched; SDP and ICE contents are never inspected here.
func (ctl *Controller) handleRelay(connID core.ConnectionID, c *Conn, env core.Envelope, raw []byte) {
	roomID, err := domain.ParseRoomID(env.RoomID)
	if err != nil {
		ctl.sendError(c, core.ErrProtocol)
		return
	}

	if err := ctl.Coord.Relay(connID, roomID, raw); err != nil {
		if errors.Is(err, core.ErrPeerUnavailable) {
			// Informational for the sender, not a teardown.
			ctl.sendError(c, core.ErrPeerUnavailable)
			return
		}
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(connID)).
			Str("type", string(env.Type)).Msg("relay rejected")
		ctl.sendError(c, err)
	}
}
