package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinHS256KeySize is the shortest HMAC key accepted for session tokens.
const MinHS256KeySize = 32

// Verifier validates a session token and returns its claims.
type Verifier interface {
	Verify(token string) (SessionClaims, error)
}

// HS256 signs and verifies session tokens with a single symmetric key. The
// tokens never leave this service so there is nothing to publish.
type HS256 struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewHS256 creates a signer/verifier bound to issuer.
func NewHS256(key []byte, issuer string) (*HS256, error) {
	if len(key) < MinHS256KeySize {
		return nil, fmt.Errorf("jwtx: HS256 key must be at least %d bytes, got %d", MinHS256KeySize, len(key))
	}
	return &HS256{
		key:    key,
		issuer: issuer,
		leeway: 30 * time.Second,
		now:    time.Now,
	}, nil
}

// Sign turns claims into a compact JWT.
func (h *HS256) Sign(claims SessionClaims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = h.issuer
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(h.key)
}

// Verify validates signature, issuer and lifetime.
func (h *HS256) Verify(tokenStr string) (SessionClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims SessionClaims
	token, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return h.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSig, err)
	case err != nil:
		return SessionClaims{}, fmt.Errorf("jwtx: parse or verify: %w", err)
	case !token.Valid:
		return SessionClaims{}, ErrInvalidClaim
	}

	if err := claims.ValidateIssuer(h.issuer); err != nil {
		return SessionClaims{}, err
	}
	if err := claims.ValidateExpiryWithLeeway(h.now().UTC(), h.leeway); err != nil {
		return SessionClaims{}, err
	}
	if claims.Subject == "" || claims.SID == "" {
		return SessionClaims{}, ErrInvalidClaim
	}
	return claims, nil
}
