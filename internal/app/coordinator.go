package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/altamedica/signaling-server/internal/core"
	"github.com/altamedica/signaling-server/internal/domain"
)

// phase is the per-connection protocol state. A connection that left or lost
// its room is ended for good; a new room needs a new channel.
type phase int

const (
	phaseIdle phase = iota
	phaseJoining
	phaseWaiting
	phaseActive
	phaseEnded
)

type connState struct {
	user   *domain.User
	conn   core.SignalConnection
	roomID domain.RoomID
	phase  phase
}

// Coordinator drives the signaling state machine per room. It holds only
// weak references (lookup by id) to connections; the channel adapter owns
// them and their lifetime.
type Coordinator struct {
	mu    sync.RWMutex
	conns map[core.ConnectionID]*connState

	Rooms *Registry
	Authz core.Authorizer
}

func NewCoordinator(rooms *Registry, authz core.Authorizer) *Coordinator {
	return &Coordinator{
		conns: make(map[core.ConnectionID]*connState),
		Rooms: rooms,
		Authz: authz,
	}
}

// Bind registers an authenticated connection. userId and role are fixed for
// the connection's lifetime from here on.
func (c *Coordinator) Bind(connID core.ConnectionID, user *domain.User, conn core.SignalConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[connID] = &connState{user: user, conn: conn, phase: phaseIdle}
	log.Info().Str("module", "app.coordinator").Str("conn", string(connID)).
		Str("user", string(user.ID)).Str("role", string(user.Role)).Msg("connection bound")
}

// ConnCount is exposed for the health endpoint.
func (c *Coordinator) ConnCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}

// Join runs the Idle -> Joining -> Waiting|Active transition. Token
// verification already happened at bind time; authorization runs here,
// before the room lock is taken.
func (c *Coordinator) Join(ctx context.Context, connID core.ConnectionID, roomID domain.RoomID) error {
	c.mu.Lock()
	cs, ok := c.conns[connID]
	if !ok {
		c.mu.Unlock()
		return core.ErrProtocol
	}
	if cs.phase != phaseIdle {
		c.mu.Unlock()
		return fmt.Errorf("%w: join not allowed in current state", core.ErrProtocol)
	}
	cs.phase = phaseJoining
	user := cs.user
	c.mu.Unlock()

	if err := c.Authz.Authorize(ctx, user, roomID); err != nil {
		c.setPhase(connID, phaseIdle)
		return fmt.Errorf("%w: %w", core.ErrForbidden, err)
	}

	res, err := c.Rooms.Join(roomID, connID, user.ID, user.Role)
	if err != nil {
		c.setPhase(connID, phaseIdle)
		return err
	}

	c.mu.Lock()
	if _, still := c.conns[connID]; !still {
		// Disconnected while the join was in flight; undo the registry entry.
		c.mu.Unlock()
		c.Rooms.Leave(roomID, connID)
		return core.ErrPeerUnavailable
	}
	cs.roomID = roomID
	if res.State == domain.RoomActive {
		cs.phase = phaseActive
	} else {
		cs.phase = phaseWaiting
	}
	var peerConn core.SignalConnection
	if res.Peer != nil {
		if peerCS, ok := c.conns[res.PeerConnID]; ok {
			peerCS.phase = phaseActive
			peerConn = peerCS.conn
		}
	}
	selfConn := cs.conn
	c.mu.Unlock()

	c.notify(connID, selfConn, core.JoinedEvent{
		Type:         core.EvtJoined,
		RoomID:       roomID,
		State:        res.State,
		Participants: res.Participants,
	})
	if peerConn != nil {
		self := core.Participant{UserID: user.ID, Role: user.Role, JoinedAt: time.Now()}
		c.notify(res.PeerConnID, peerConn, core.PeerEvent{
			Type:   core.EvtPeerJoined,
			RoomID: roomID,
			State:  res.State,
			Peer:   &self,
		})
	}
	log.Info().Str("module", "app.coordinator").Str("conn", string(connID)).
		Str("room", string(roomID)).Str("state", string(res.State)).Msg("joined room")
	return nil
}

// Relay forwards an opaque payload to the other participant of the room,
// unmodified. Only valid while Active and only for the bound room.
func (c *Coordinator) Relay(connID core.ConnectionID, roomID domain.RoomID, raw []byte) error {
	c.mu.RLock()
	cs, ok := c.conns[connID]
	if !ok || cs.phase != phaseActive || cs.roomID != roomID {
		c.mu.RUnlock()
		return fmt.Errorf("%w: relay not allowed in current state", core.ErrProtocol)
	}
	c.mu.RUnlock()

	peerID, _, err := c.Rooms.PeerOf(roomID, connID)
	if err != nil {
		return err
	}

	c.mu.RLock()
	peerCS, ok := c.conns[peerID]
	c.mu.RUnlock()
	if !ok {
		return core.ErrPeerUnavailable
	}
	if err := peerCS.conn.TrySend(raw); err != nil {
		return fmt.Errorf("%w: %w", core.ErrPeerUnavailable, err)
	}
	return nil
}

// Leave handles an explicit leave message. Out-of-room leaves are protocol
// errors; the connection itself stays usable only for ping afterwards.
func (c *Coordinator) Leave(connID core.ConnectionID) error {
	if !c.exitRoom(connID) {
		return fmt.Errorf("%w: not in a room", core.ErrProtocol)
	}
	return nil
}

// Disconnect runs the same cleanup as Leave and forgets the connection.
// Safe to call multiple times; cleanup runs at most once.
func (c *Coordinator) Disconnect(connID core.ConnectionID) {
	c.exitRoom(connID)
	c.mu.Lock()
	delete(c.conns, connID)
	c.mu.Unlock()
}

// exitRoom removes the connection from its room and notifies the remaining
// peer. Returns false when the connection held no room (idempotent).
func (c *Coordinator) exitRoom(connID core.ConnectionID) bool {
	c.mu.Lock()
	cs, ok := c.conns[connID]
	if !ok || cs.roomID == "" {
		c.mu.Unlock()
		return false
	}
	roomID := cs.roomID
	user := cs.user
	cs.roomID = ""
	cs.phase = phaseEnded
	c.mu.Unlock()

	res, ok := c.Rooms.Leave(roomID, connID)
	if !ok {
		return true
	}
	if res.Peer != nil {
		c.mu.Lock()
		var peerConn core.SignalConnection
		if peerCS, ok := c.conns[res.PeerConnID]; ok {
			peerCS.phase = phaseWaiting
			peerConn = peerCS.conn
		}
		c.mu.Unlock()
		if peerConn != nil {
			gone := core.Participant{UserID: user.ID, Role: user.Role}
			c.notify(res.PeerConnID, peerConn, core.PeerEvent{
				Type:   core.EvtPeerLeft,
				RoomID: roomID,
				State:  res.State,
				Peer:   &gone,
			})
		}
	}
	log.Info().Str("module", "app.coordinator").Str("conn", string(connID)).
		Str("room", string(roomID)).Msg("left room")
	return true
}

// SweepIdle reaps idle waiting rooms and ended tombstones through the
// registry's atomic sweep, then tells any waiting occupant the session ended.
func (c *Coordinator) SweepIdle(maxIdle time.Duration) int {
	swept := c.Rooms.SweepIdle(maxIdle)
	for _, s := range swept {
		for _, connID := range s.Occupants {
			c.mu.Lock()
			var conn core.SignalConnection
			if cs, ok := c.conns[connID]; ok {
				cs.roomID = ""
				cs.phase = phaseEnded
				conn = cs.conn
			}
			c.mu.Unlock()
			if conn != nil {
				c.notify(connID, conn, core.PeerEvent{
					Type:   core.EvtSessionEnded,
					RoomID: s.ID,
					State:  domain.RoomEnded,
				})
			}
		}
		log.Info().Str("module", "app.coordinator").Str("room", string(s.ID)).Msg("idle room swept")
	}
	return len(swept)
}

func (c *Coordinator) setPhase(connID core.ConnectionID, p phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cs, ok := c.conns[connID]; ok {
		cs.phase = p
	}
}

// notify is best-effort: a full or closed peer buffer is logged, never fatal
// for the sender.
func (c *Coordinator) notify(connID core.ConnectionID, conn core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("notify marshal")
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("conn", string(connID)).Msg("notify dropped")
	}
}
