// Package jwtx signs and verifies the session tokens carried in the primary
// sign-in cookie.
package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Claim is one subject claim as carried inside a session token.
type Claim struct {
	Type   string `json:"t"`
	Value  string `json:"v"`
	Issuer string `json:"i,omitempty"`
}

// SessionClaims describe an authenticated browser session. The subject
// claim set travels verbatim so the session can be rebuilt without a
// server-side lookup.
type SessionClaims struct {
	jwt.RegisteredClaims

	// Session ID, rotated on every full sign-in
	SID string `json:"sid"`

	// IdP that authenticated the subject ("local" or an external provider)
	IdP string `json:"idp,omitempty"`

	// Persistent is true when the cookie outlives the browser session
	Persistent bool `json:"persistent,omitempty"`

	Identity []Claim `json:"claims"`
}

// NewSessionClaims builds claims valid from now until now+ttl.
func NewSessionClaims(issuer, subject, sid, idp string, claims []Claim, persistent bool, ttl time.Duration, now time.Time) SessionClaims {
	return SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		SID:        sid,
		IdP:        idp,
		Persistent: persistent,
		Identity:   claims,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *SessionClaims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateExpiryWithLeeway checks exp and nbf allowing for clock skew.
func (c *SessionClaims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
