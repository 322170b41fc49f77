package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const pepperSize = 32

// The pepper is appended to every password before hashing. It lives in a
// file next to the database and is created on first use.
var pepperState struct {
	mu    sync.Mutex
	path  string
	value []byte
}

// SetPepperPath selects the pepper file and forgets any loaded pepper.
func SetPepperPath(file string) {
	pepperState.mu.Lock()
	defer pepperState.mu.Unlock()
	pepperState.path = file
	pepperState.value = nil
}

func loadPepper() ([]byte, error) {
	pepperState.mu.Lock()
	defer pepperState.mu.Unlock()

	if pepperState.value != nil {
		return pepperState.value, nil
	}
	if pepperState.path == "" {
		return nil, errors.New("cryptox: pepper file not set")
	}
	secret, err := LoadOrGenerateSecret(pepperState.path, pepperSize)
	if err != nil {
		return nil, fmt.Errorf("cryptox: load pepper: %w", err)
	}
	// Passwords are peppered with the encoded form of the secret.
	pepperState.value = []byte(base64.RawURLEncoding.EncodeToString(secret))
	return pepperState.value, nil
}

// LoadOrGenerateSecret reads a base64url encoded secret from path, creating
// the file with size fresh random bytes when it does not exist yet. The
// pepper and the session signing key are both kept this way.
func LoadOrGenerateSecret(path string, size int) ([]byte, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		secret := make([]byte, size)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		encoded := base64.RawURLEncoding.EncodeToString(secret)
		if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
			return nil, err
		}
		return secret, nil
	}
	if err != nil {
		return nil, err
	}

	secret, err := base64.RawURLEncoding.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("cryptox: decode secret %s: %w", path, err)
	}
	if len(secret) < size {
		return nil, fmt.Errorf("cryptox: secret %s is %d bytes, want at least %d", path, len(secret), size)
	}
	return secret, nil
}
