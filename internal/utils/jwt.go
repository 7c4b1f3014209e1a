package utils // package utils provides helper functions for token creation

import (
	"errors"
	"strings"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AccessToken represents a signed JWT access token along with its expiry.
// Production tokens come from the identity service; this package mints
// compatible ones for operators and local development (`partyctl token`).
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user.  The claims
// mirror the identity service: sub (user id), role, exp and iat.
func NewAccessToken(secret, userID, role string, ttl time.Duration) (AccessToken, error) {
	if secret == "" {
		return AccessToken{}, errors.New("jwt secret is empty")
	}
	if strings.TrimSpace(userID) == "" {
		return AccessToken{}, errors.New("user id is empty")
	}
	if ttl <= 0 {
		return AccessToken{}, errors.New("token ttl must be positive")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": strings.ToUpper(role),
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	// Sign with HS256; JWTAuth accepts the HMAC family only.
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
