package identity

import (
	"context"

	"github.com/altamedica/signaling-server/internal/core"
	"github.com/altamedica/signaling-server/internal/domain"
)

// RoleAuthorizer is the default room-join authorization: only doctor and
// patient roles participate in consultations. Appointment-level ownership
// checks live in the platform API; deployments that need them plug in their
// own core.Authorizer.
type RoleAuthorizer struct{}

func (RoleAuthorizer) Authorize(_ context.Context, user *domain.User, _ domain.RoomID) error {
	switch user.Role {
	case domain.RoleDoctor, domain.RolePatient:
		return nil
	}
	return core.ErrForbidden
}
