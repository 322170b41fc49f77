package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Entropy of the random tokens, in bytes before encoding.
const (
	// TokenSize128 backs anti-forgery tokens, message ids and OIDC state.
	TokenSize128 = 16
	// TokenSize256 backs partial sign-in resume ids and reset links.
	TokenSize256 = 32
)

// GenerateToken returns size random bytes as unpadded base64url, safe in
// URLs, cookies and form fields alike.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken is the SHA-256 of token, the form in which bearer tokens
// such as reset links are stored and looked up.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// TokensEqual compares in constant time. Empty tokens never match.
func TokensEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
