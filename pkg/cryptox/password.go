package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrPasswordMismatch is returned by VerifyPassword when the hash is
	// well formed but does not match the supplied password.
	ErrPasswordMismatch = errors.New("cryptox: password does not match")
	// ErrMalformedHash reports a stored hash that is not Argon2id PHC.
	ErrMalformedHash = errors.New("cryptox: malformed password hash")
)

// Argon2Params are the cost settings recorded in every hash.
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

// DefaultArgon2 follows the OWASP minimum for Argon2id.
var DefaultArgon2 = Argon2Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	KeyLength:   32,
	SaltLength:  16,
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func (h phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	)
}

func parsePHC(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phc{}, fmt.Errorf("%w: expected 6 fields", ErrMalformedHash)
	}
	if parts[1] != "argon2id" {
		return phc{}, fmt.Errorf("%w: algorithm %q", ErrMalformedHash, parts[1])
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return phc{}, fmt.Errorf("%w: version %q", ErrMalformedHash, parts[2])
	}

	var h phc
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return phc{}, fmt.Errorf("%w: parameter %q", ErrMalformedHash, kv)
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return phc{}, fmt.Errorf("%w: parameter %q", ErrMalformedHash, kv)
		}
		switch k {
		case "m":
			h.params.Memory = uint32(n)
		case "t":
			h.params.Iterations = uint32(n)
		case "p":
			if n == 0 || n > 255 {
				return phc{}, fmt.Errorf("%w: parallelism %d", ErrMalformedHash, n)
			}
			h.params.Parallelism = uint8(n)
		default:
			return phc{}, fmt.Errorf("%w: parameter %q", ErrMalformedHash, kv)
		}
	}
	if h.params.Memory == 0 || h.params.Iterations == 0 || h.params.Parallelism == 0 {
		return phc{}, fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return phc{}, fmt.Errorf("%w: salt: %w", ErrMalformedHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return phc{}, fmt.Errorf("%w: key: %w", ErrMalformedHash, err)
	}
	if len(h.key) == 0 {
		return phc{}, fmt.Errorf("%w: empty key", ErrMalformedHash)
	}
	h.params.SaltLength = uint32(len(h.salt)) // #nosec G115
	h.params.KeyLength = uint32(len(h.key))   // #nosec G115
	return h, nil
}

func derive(password string, salt []byte, p Argon2Params) ([]byte, error) {
	pepper, err := loadPepper()
	if err != nil {
		return nil, err
	}
	input := make([]byte, 0, len(password)+len(pepper))
	input = append(append(input, password...), pepper...)
	return argon2.IDKey(input, salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength), nil
}

// Hash derives a PHC encoded Argon2id hash of the peppered password.
func (p Argon2Params) Hash(password string) (string, error) {
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key, err := derive(password, salt, p)
	if err != nil {
		return "", err
	}
	return phc{params: p, salt: salt, key: key}.String(), nil
}

// HashPassword hashes with DefaultArgon2.
func HashPassword(password string) (string, error) {
	return DefaultArgon2.Hash(password)
}

// VerifyPassword checks password against a hash made by Hash, with the
// parameters recorded in the hash.
func VerifyPassword(password, encodedHash string) error {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return err
	}
	computed, err := derive(password, h.salt, h.params)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(computed, h.key) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// NeedsRehash reports whether encodedHash was made with weaker settings
// than DefaultArgon2. Malformed hashes need one too.
func NeedsRehash(encodedHash string) bool {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return true
	}
	p, want := h.params, DefaultArgon2
	return p.Memory < want.Memory ||
		p.Iterations < want.Iterations ||
		p.KeyLength < want.KeyLength ||
		p.SaltLength < want.SaltLength
}

const (
	passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	passwordLength   = 12
)

// GeneratePassword returns a random password for accounts an operator
// creates without choosing one. Look-alike characters are left out.
func GeneratePassword() (string, error) {
	return randomString(passwordAlphabet, passwordLength)
}

// GenerateNumericCode returns digits random decimal digits, the proof of a
// password reset.
func GenerateNumericCode(digits int) (string, error) {
	if digits <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", digits)
	}
	return randomString("0123456789", digits)
}

func randomString(alphabet string, n int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		r, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("cryptox: random string: %w", err)
		}
		out[i] = alphabet[r.Int64()]
	}
	return string(out), nil
}
