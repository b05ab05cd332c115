package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenIssuer mints and verifies the stateless access/refresh pair. The two
// kinds are signed with separate secrets and carry a typ discriminator so a
// refresh token can never pass as an access token.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenIssuer(accessSecret, refreshSecret string) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
	}
}

func (i *TokenIssuer) WithTTLs(accessTTL, refreshTTL time.Duration) {
	if accessTTL > 0 {
		i.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		i.refreshTTL = refreshTTL
	}
}

func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

func (i *TokenIssuer) Issue(userID string) (Tokens, error) {
	access, err := i.sign(userID, tokenTypeAccess, i.accessSecret, i.accessTTL)
	if err != nil {
		return Tokens{}, err
	}

	refresh, err := i.sign(userID, tokenTypeRefresh, i.refreshSecret, i.refreshTTL)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.accessTTL.Seconds()),
	}, nil
}

func (i *TokenIssuer) VerifyAccess(raw string) (string, error) {
	return i.verify(raw, tokenTypeAccess, i.accessSecret)
}

func (i *TokenIssuer) VerifyRefresh(raw string) (string, error) {
	return i.verify(raw, tokenTypeRefresh, i.refreshSecret)
}

func (i *TokenIssuer) sign(userID, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"typ": tokenType,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// verify collapses every failure mode into ErrInvalidToken so callers
// cannot distinguish expired from malformed.
func (i *TokenIssuer) verify(raw, wantType string, secret []byte) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	if tokenType, _ := claims["typ"].(string); tokenType != wantType {
		return "", ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return "", ErrInvalidToken
	}

	return subject, nil
}
