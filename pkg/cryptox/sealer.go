package cryptox

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// ErrSealOpen is returned when a sealed value cannot be authenticated or
// decoded. Callers treat it the same as an absent value.
var ErrSealOpen = errors.New("cryptox: sealed value rejected")

// Sealer turns small Go values into opaque, tamper-evident strings using an
// AES-256-GCM keyset. Each value is bound to a purpose (the cookie or store
// key it lives under) through the associated data, so a value sealed for
// one purpose never opens under another.
type Sealer struct {
	primitive tink.AEAD
}

// NewSealer builds a Sealer from a keyset handle holding AEAD keys.
func NewSealer(handle *keyset.Handle) (*Sealer, error) {
	primitive, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("cryptox: aead primitive: %w", err)
	}
	return &Sealer{primitive: primitive}, nil
}

// NewEphemeralSealer generates a fresh in-memory keyset. Everything sealed
// with it becomes unreadable once the process exits.
func NewEphemeralSealer() (*Sealer, error) {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("cryptox: new keyset: %w", err)
	}
	return NewSealer(handle)
}

// Seal encodes v as JSON and encrypts it for purpose.
func (s *Sealer) Seal(purpose string, v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cryptox: encode sealed value: %w", err)
	}
	ciphertext, err := s.primitive.Encrypt(plaintext, []byte(purpose))
	if err != nil {
		return "", fmt.Errorf("cryptox: seal: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal into v. Any failure is reported as ErrSealOpen.
func (s *Sealer) Open(purpose, sealed string, v any) error {
	ciphertext, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSealOpen, err)
	}
	plaintext, err := s.primitive.Decrypt(ciphertext, []byte(purpose))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSealOpen, err)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: %v", ErrSealOpen, err)
	}
	return nil
}

// LoadOrGenerateKeyset reads a cleartext JSON keyset from path, writing a new
// AES-256-GCM keyset there when the file does not exist. The file is as
// sensitive as the pepper and is created with the same permissions.
func LoadOrGenerateKeyset(path string) (*keyset.Handle, error) {
	path = filepath.Clean(path)
	raw, err := os.ReadFile(path)
	if err == nil {
		handle, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(bytes.NewReader(raw)))
		if err != nil {
			return nil, fmt.Errorf("cryptox: read keyset %s: %w", path, err)
		}
		return handle, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("cryptox: new keyset: %w", err)
	}

	var buf bytes.Buffer
	if err := insecurecleartextkeyset.Write(handle, keyset.NewJSONWriter(&buf)); err != nil {
		return nil, fmt.Errorf("cryptox: encode keyset: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return nil, err
	}
	return handle, nil
}
