package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/altamedica/signaling-server/internal/core"
	"github.com/altamedica/signaling-server/internal/domain"
)

// room is the unit of serialization: every mutation of one room's state goes
// through its own mutex, so joins and leaves on the same roomId never race
// while distinct rooms proceed in parallel.
type room struct {
	mu           sync.Mutex
	id           domain.RoomID
	state        domain.RoomState
	participants map[core.ConnectionID]core.Participant
	createdAt    time.Time
	lastActivity time.Time
}

// Registry is the authoritative in-memory store of room state.
// Pure data operations, no I/O.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]*room)}
}

// getOrCreate is idempotent; an unknown roomId yields a fresh waiting room.
func (r *Registry) getOrCreate(id domain.RoomID) *room {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return rm
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[id]; ok {
		return rm
	}
	now := time.Now()
	rm = &room{
		id:           id,
		state:        domain.RoomWaiting,
		participants: make(map[core.ConnectionID]core.Participant),
		createdAt:    now,
		lastActivity: now,
	}
	r.rooms[id] = rm
	log.Debug().Str("module", "app.registry").Str("room", string(id)).Msg("room created")
	return rm
}

func (r *Registry) get(id domain.RoomID) (*room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	return rm, ok
}

// JoinResult reports the room state after a successful join and the peer
// already present, if any.
type JoinResult struct {
	State        domain.RoomState
	Peer         *core.Participant
	PeerConnID   core.ConnectionID
	Participants []core.Participant
}

// Join adds a participant, enforcing the one-doctor/one-patient invariant.
func (r *Registry) Join(id domain.RoomID, connID core.ConnectionID, userID domain.UserID, role domain.Role) (*JoinResult, error) {
	rm := r.getOrCreate(id)
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state == domain.RoomEnded {
		return nil, core.ErrRoomEnded
	}
	if len(rm.participants) >= 2 {
		return nil, core.ErrRoomFull
	}
	for _, p := range rm.participants {
		if p.Role == role {
			return nil, core.ErrRoomFull
		}
	}

	res := &JoinResult{}
	for peerID, p := range rm.participants {
		peer := p
		res.Peer = &peer
		res.PeerConnID = peerID
	}

	rm.participants[connID] = core.Participant{
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now(),
	}
	if len(rm.participants) == 2 {
		rm.state = domain.RoomActive
	}
	rm.lastActivity = time.Now()

	res.State = rm.state
	res.Participants = rm.snapshotLocked()
	return res, nil
}

// LeaveResult reports the remaining side of the room, if any.
type LeaveResult struct {
	State      domain.RoomState
	Peer       *core.Participant
	PeerConnID core.ConnectionID
}

// Leave removes a participant. Repeated calls for the same connection are
// no-ops, so disconnect cleanup stays idempotent. An emptied room becomes an
// ended tombstone; the sweeper drops it.
func (r *Registry) Leave(id domain.RoomID, connID core.ConnectionID) (*LeaveResult, bool) {
	rm, ok := r.get(id)
	if !ok {
		return nil, false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.participants[connID]; !ok {
		return nil, false
	}
	delete(rm.participants, connID)
	rm.lastActivity = time.Now()

	res := &LeaveResult{}
	switch len(rm.participants) {
	case 0:
		rm.state = domain.RoomEnded
	case 1:
		rm.state = domain.RoomWaiting
		for peerID, p := range rm.participants {
			peer := p
			res.Peer = &peer
			res.PeerConnID = peerID
		}
	}
	res.State = rm.state
	log.Debug().Str("module", "app.registry").Str("room", string(id)).Str("state", string(rm.state)).Msg("participant left")
	return res, true
}

// PeerOf returns the other participant of an active room. Relays consult
// this so a payload can never leak outside its room.
func (r *Registry) PeerOf(id domain.RoomID, connID core.ConnectionID) (core.ConnectionID, *core.Participant, error) {
	rm, ok := r.get(id)
	if !ok {
		return "", nil, core.ErrProtocol
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state != domain.RoomActive {
		return "", nil, core.ErrPeerUnavailable
	}
	if _, ok := rm.participants[connID]; !ok {
		return "", nil, core.ErrProtocol
	}
	for peerID, p := range rm.participants {
		if peerID != connID {
			peer := p
			rm.lastActivity = time.Now()
			return peerID, &peer, nil
		}
	}
	return "", nil, core.ErrPeerUnavailable
}

// State reports the current room state.
func (r *Registry) State(id domain.RoomID) (domain.RoomState, bool) {
	rm, ok := r.get(id)
	if !ok {
		return "", false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.state, true
}

// Count returns the number of rooms, tombstones included.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SweptRoom names a reaped room and the connection still waiting in it.
type SweptRoom struct {
	ID        domain.RoomID
	Occupants []core.ConnectionID
}

// SweepIdle removes waiting rooms idle beyond maxIdle and ended tombstones.
// Active rooms are never reaped regardless of elapsed time.
func (r *Registry) SweepIdle(maxIdle time.Duration) []SweptRoom {
	r.mu.RLock()
	candidates := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		candidates = append(candidates, rm)
	}
	r.mu.RUnlock()

	cutoff := time.Now().Add(-maxIdle)
	var swept []SweptRoom
	for _, rm := range candidates {
		rm.mu.Lock()
		reap := rm.state == domain.RoomEnded ||
			(rm.state == domain.RoomWaiting && rm.lastActivity.Before(cutoff))
		var occupants []core.ConnectionID
		if reap {
			for connID := range rm.participants {
				occupants = append(occupants, connID)
			}
			rm.state = domain.RoomEnded
			rm.participants = make(map[core.ConnectionID]core.Participant)
		}
		rm.mu.Unlock()

		if reap {
			r.mu.Lock()
			delete(r.rooms, rm.id)
			r.mu.Unlock()
			swept = append(swept, SweptRoom{ID: rm.id, Occupants: occupants})
		}
	}
	return swept
}

func (rm *room) snapshotLocked() []core.Participant {
	out := make([]core.Participant, 0, len(rm.participants))
	for _, p := range rm.participants {
		out = append(out, p)
	}
	return out
}
