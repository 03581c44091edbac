package core

import (
	"encoding/json"
	"time"

	"github.com/altamedica/signaling-server/internal/domain"
)

// MessageType enumerates client-originated signals and server events.
type MessageType string

const (
	// Client -> server.
	MsgJoin        MessageType = "join"
	MsgOffer       MessageType = "offer"
	MsgAnswer      MessageType = "answer"
	MsgCandidate   MessageType = "ice-candidate"
	MsgChat        MessageType = "chat"
	MsgMediaToggle MessageType = "media-toggle"
	MsgLeave       MessageType = "leave"
	MsgPing        MessageType = "ping"

	// Server -> client.
	EvtJoined       MessageType = "joined"
	EvtPeerJoined   MessageType = "peer-joined"
	EvtPeerLeft     MessageType = "peer-left"
	EvtSessionEnded MessageType = "session-ended"
	EvtPong         MessageType = "pong"
	EvtError        MessageType = "error"
)

// Relayable reports whether a client message is forwarded verbatim to the
// peer. SDP/ICE payloads are opaque here; media negotiation belongs to the
// browsers.
func (t MessageType) Relayable() bool {
	switch t {
	case MsgOffer, MsgAnswer, MsgCandidate, MsgChat, MsgMediaToggle:
		return true
	}
	return false
}

// Envelope is the wire shape of every signaling message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Participant is a read-only view of a room member (no transport fields).
type Participant struct {
	UserID   domain.UserID `json:"userId"`
	Role     domain.Role   `json:"role"`
	JoinedAt time.Time     `json:"joinedAt"`
}

type ErrorEvent struct {
	Type    MessageType `json:"type"`
	Code    Code        `json:"code"`
	Message string      `json:"message"`
}

func NewErrorEvent(err error) ErrorEvent {
	return ErrorEvent{Type: EvtError, Code: WireCode(err), Message: WireMessage(err)}
}

type JoinedEvent struct {
	Type         MessageType      `json:"type"`
	RoomID       domain.RoomID    `json:"roomId"`
	State        domain.RoomState `json:"state"`
	Participants []Participant    `json:"participants"`
}

// PeerEvent announces peer-joined / peer-left / session-ended to the
// remaining side of a room.
type PeerEvent struct {
	Type   MessageType      `json:"type"`
	RoomID domain.RoomID    `json:"roomId"`
	State  domain.RoomState `json:"state"`
	Peer   *Participant     `json:"peer,omitempty"`
}

type PongEvent struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}
