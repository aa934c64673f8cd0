package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var ErrWrongTokenType = errors.New("token type mismatch")

// TokenPair is the response body of the login endpoint.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenIssuer signs and verifies access and refresh tokens with one HMAC key.
type TokenIssuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(key []byte, issuer string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		key:        key,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Config returns the middleware configuration that accepts this issuer's
// access tokens.
func (ti *TokenIssuer) Config(skipper func(c echo.Context) bool) JWTConfig {
	return JWTConfig{Issuer: ti.issuer, SigningKey: ti.key, Skipper: skipper}
}

func (ti *TokenIssuer) sign(subject string, roles []string, typ string, ttl time.Duration) (string, error) {
	now := ti.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ti.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles:     roles,
		TokenType: typ,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return s, nil
}

// Issue creates an access and refresh token for the user.
func (ti *TokenIssuer) Issue(userID string, roles []string) (*TokenPair, error) {
	access, err := ti.sign(userID, roles, TokenTypeAccess, ti.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := ti.sign(userID, roles, TokenTypeRefresh, ti.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (ti *TokenIssuer) Refresh(refreshToken string) (string, error) {
	claims, err := ti.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	return ti.sign(claims.Subject, claims.Roles, TokenTypeAccess, ti.accessTTL)
}

// Parse validates a token and checks its type. An empty typ accepts either.
func (ti *TokenIssuer) Parse(tokenStr, typ string) (*Claims, error) {
	claims, err := parseToken(tokenStr, ti.key, ti.issuer)
	if err != nil {
		return nil, err
	}
	if typ != "" && claims.TokenType != typ {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
