package identity

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altamedica/signaling-server/internal/core"
	"github.com/altamedica/signaling-server/internal/domain"
)

const (
	testSecret = "test-secret-0123456789"
	testIssuer = "altamedica-auth"
)

func signToken(t *testing.T, secret string, mutate func(b *jwt.Builder)) string {
	t.Helper()
	b := jwt.NewBuilder().
		Subject("user-1").
		Issuer(testIssuer).
		Expiration(time.Now().Add(time.Hour)).
		Claim("email", "doc@clinic.test").
		Claim("role", "doctor")
	if mutate != nil {
		mutate(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)

	key, err := jwk.FromRaw([]byte(secret))
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, key))
	require.NoError(t, err)
	return string(signed)
}

func newVerifier(t *testing.T) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier([]byte(testSecret), testIssuer)
	require.NoError(t, err)
	return v
}

func TestVerifyValidToken(t *testing.T) {
	v := newVerifier(t)

	user, err := v.Verify(context.Background(), "Bearer "+signToken(t, testSecret, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user-1"), user.ID)
	assert.Equal(t, "doc@clinic.test", user.Email)
	assert.Equal(t, domain.RoleDoctor, user.Role)
}

func TestVerifyBareTokenWithoutScheme(t *testing.T) {
	v := newVerifier(t)

	// Browsers pass the credential as a query parameter, no Bearer prefix.
	user, err := v.Verify(context.Background(), signToken(t, testSecret, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDoctor, user.Role)
}

func TestVerifyEmptyCredential(t *testing.T) {
	v := newVerifier(t)

	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrAuthRequired)
	_, err = v.Verify(context.Background(), "Bearer ")
	assert.ErrorIs(t, err, core.ErrAuthRequired)
}

func TestVerifyWrongSecret(t *testing.T) {
	v := newVerifier(t)

	_, err := v.Verify(context.Background(), signToken(t, "other-secret-9876543210", nil))
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestVerifyExpiredToken(t *testing.T) {
	v := newVerifier(t)

	tok := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Expiration(time.Now().Add(-time.Minute))
	})
	_, err := v.Verify(context.Background(), tok)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestVerifyWrongIssuer(t *testing.T) {
	v := newVerifier(t)

	tok := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Issuer("someone-else")
	})
	_, err := v.Verify(context.Background(), tok)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	v := newVerifier(t)

	tok := signToken(t, testSecret, func(b *jwt.Builder) {
		b.Claim("role", "admin")
	})
	_, err := v.Verify(context.Background(), tok)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestAuthorizerAdmitsConsultationRolesOnly(t *testing.T) {
	authz := RoleAuthorizer{}
	ctx := context.Background()

	assert.NoError(t, authz.Authorize(ctx, &domain.User{Role: domain.RoleDoctor}, "r1"))
	assert.NoError(t, authz.Authorize(ctx, &domain.User{Role: domain.RolePatient}, "r1"))
	assert.ErrorIs(t, authz.Authorize(ctx, &domain.User{Role: "admin"}, "r1"), core.ErrForbidden)
}
