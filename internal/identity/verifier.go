// Package identity verifies bearer credentials issued by the platform's
// auth service. The signaling server never issues tokens itself.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/altamedica/signaling-server/internal/core"
	"github.com/altamedica/signaling-server/internal/domain"
)

const (
	emailClaim = "email"
	roleClaim  = "role"
)

// TokenVerifier implements core.Verifier over HS256-signed JWTs.
type TokenVerifier struct {
	key    jwk.Key
	issuer string
}

func NewTokenVerifier(secret []byte, issuer string) (*TokenVerifier, error) {
	key, err := jwk.FromRaw(secret)
	if err != nil {
		return nil, fmt.Errorf("build verification key: %w", err)
	}
	return &TokenVerifier{key: key, issuer: issuer}, nil
}

// Verify parses and validates the credential and returns the bound identity.
// The role claim is checked here once; it is never re-derived later.
func (v *TokenVerifier) Verify(_ context.Context, credential string) (*domain.User, error) {
	raw := strings.TrimPrefix(credential, "Bearer ")
	if raw == "" {
		return nil, core.ErrAuthRequired
	}

	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.key),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	tok, err := jwt.ParseString(raw, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidToken, err)
	}

	email, _ := tok.Get(emailClaim)
	roleVal, ok := tok.Get(roleClaim)
	if !ok {
		return nil, fmt.Errorf("%w: missing role claim", core.ErrInvalidToken)
	}
	role, _ := roleVal.(string)
	emailStr, _ := email.(string)

	user, err := domain.NewUser(tok.Subject(), emailStr, role)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidToken, err)
	}
	return user, nil
}
