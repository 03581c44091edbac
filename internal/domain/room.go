package domain

import "errors"

const MaxRoomIDLen = 64

var ErrInvalidRoomID = errors.New("invalid room id")

// RoomID is externally supplied, usually derived from an appointment id.
type RoomID string

type RoomState string

const (
	RoomWaiting RoomState = "waiting"
	RoomActive  RoomState = "active"
	RoomEnded   RoomState = "ended"
)

func ParseRoomID(s string) (RoomID, error) {
	if s == "" || len(s) > MaxRoomIDLen {
		return "", ErrInvalidRoomID
	}
	return RoomID(s), nil
}
