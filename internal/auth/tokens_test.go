package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")

	tokens, err := issuer.Issue("user-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), tokens.ExpiresIn)

	subject, err := issuer.VerifyAccess(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)

	subject, err = issuer.VerifyRefresh(tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)
}

func TestVerifyRejectsCrossTypeTokens(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")

	tokens, err := issuer.Issue("user-1")
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.VerifyRefresh(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")

	raw, err := issuer.sign("user-1", tokenTypeAccess, issuer.accessSecret, -time.Hour)
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")
	other := NewTokenIssuer("different-secret", "refresh-secret")

	tokens, err := other.Issue("user-1")
	require.NoError(t, err)

	_, err = issuer.VerifyAccess(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")

	tokens, err := issuer.Issue("user-1")
	require.NoError(t, err)

	tampered := tokens.AccessToken[:len(tokens.AccessToken)-2] + "xx"
	_, err = issuer.VerifyAccess(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.VerifyAccess("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWithTTLsIgnoresNonPositiveValues(t *testing.T) {
	issuer := NewTokenIssuer("access-secret", "refresh-secret")
	issuer.WithTTLs(0, -time.Hour)

	assert.Equal(t, defaultRefreshTTL, issuer.RefreshTTL())

	tokens, err := issuer.Issue("user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(defaultAccessTTL.Seconds()), tokens.ExpiresIn)
}
