// Package auth issues and checks sessions.
//
// SESSION FLOW:
//  1. The user signs up / signs in with email + password, or through GitHub.
//  2. The service layer calls TokenService.Generate with the internal user ID.
//  3. The handler stores the JWT in an HttpOnly "token" cookie (API clients
//     may send it as "Authorization: Bearer <jwt>" instead).
//  4. RequireAuth / OptionalAuth validate it on every request and put the
//     user ID in the request context.
//
// Tokens are stateless HS256 JWTs:
//
//	HEADER.PAYLOAD.SIGNATURE
//	payload → {"sub":"<userID>","iss":"lunchbox","exp":...}
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "lunchbox"

// DefaultTokenTTL is used when NewTokenService is given a zero TTL.
const DefaultTokenTTL = 24 * time.Hour

// ErrInvalidToken is returned for any token that fails validation.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; generate one with `openssl rand -hex 32`.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of tokens from Generate. Handlers use it for the
// cookie MaxAge so cookie and token expire together.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate signs a session token for userID using the configured TTL.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration signs a token with an explicit lifetime. Negative
// durations produce already-expired tokens, which tests rely on.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a token without a subject")
	}
	now := time.Now()
	c := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token and returns the user ID in "sub".
//
// jwt.WithValidMethods pins HS256, which blocks the "alg: none" and
// RS/HS confusion attacks; WithExpirationRequired rejects tokens without exp.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || c.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return c.Subject, nil
}
