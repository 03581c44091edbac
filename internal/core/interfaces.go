package core

import (
	"context"

	"github.com/altamedica/signaling-server/internal/domain"
)

// ConnectionID is unique per underlying channel (one per socket).
type ConnectionID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(data []byte) error
	Close()
}

// Verifier validates a bearer credential and yields the bound identity.
// Implemented outside the core; failures map to AUTH_REQUIRED/INVALID_TOKEN.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*domain.User, error)
}

// Authorizer decides whether an authenticated user may join a room.
// A denial surfaces as FORBIDDEN and is terminal for that join attempt only.
type Authorizer interface {
	Authorize(ctx context.Context, user *domain.User, roomID domain.RoomID) error
}
