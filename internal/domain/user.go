// Package domain contains entity without logic, just meta-data
package domain

import "errors"

var (
	ErrUnknownRole = errors.New("unknown role")
	ErrEmptyUserID = errors.New("empty user id")
)

type UserID string

// Role is bound to a connection once at authentication time and never
// re-derived afterwards.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDoctor:
		return RoleDoctor, nil
	case RolePatient:
		return RolePatient, nil
	}
	return "", ErrUnknownRole
}

type User struct {
	ID    UserID `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id, email, role string) (*User, error) {
	if id == "" {
		return nil, ErrEmptyUserID
	}
	r, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	return &User{ID: UserID(id), Email: email, Role: r}, nil
}
