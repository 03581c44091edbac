package core

import "errors"

// Code is the stable wire-level error code sent to clients.
type Code string

const (
	CodeAuthRequired    Code = "AUTH_REQUIRED"
	CodeInvalidToken    Code = "INVALID_TOKEN"
	CodeForbidden       Code = "FORBIDDEN"
	CodeRoomFull        Code = "ROOM_FULL"
	CodeRoomEnded       Code = "ROOM_ENDED"
	CodeProtocol        Code = "PROTOCOL_ERROR"
	CodePeerUnavailable Code = "PEER_UNAVAILABLE"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// SignalError carries a wire code alongside a human message.
// Sentinel instances below are matched with errors.Is.
type SignalError struct {
	Code    Code
	Message string
}

func (e *SignalError) Error() string { return e.Message }

var (
	ErrAuthRequired    = &SignalError{CodeAuthRequired, "authentication required"}
	ErrInvalidToken    = &SignalError{CodeInvalidToken, "invalid token"}
	ErrForbidden       = &SignalError{CodeForbidden, "not allowed to join this room"}
	ErrRoomFull        = &SignalError{CodeRoomFull, "room already has a participant with this role"}
	ErrRoomEnded       = &SignalError{CodeRoomEnded, "room has ended"}
	ErrProtocol        = &SignalError{CodeProtocol, "message not valid in current state"}
	ErrPeerUnavailable = &SignalError{CodePeerUnavailable, "peer is unavailable"}
	ErrInternal        = &SignalError{CodeInternal, "internal error"}
)

// WireCode maps any error to the code reported to the client.
// Unknown errors are never leaked verbatim.
func WireCode(err error) Code {
	var se *SignalError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// WireMessage returns the client-safe message for err.
func WireMessage(err error) string {
	var se *SignalError
	if errors.As(err, &se) {
		return se.Message
	}
	return ErrInternal.Message
}
