package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// MinSigningKeyBytes is the shortest decoded secret accepted for HS256.
	MinSigningKeyBytes = 32

	// randomKeyBytes matches the size of generated development secrets.
	randomKeyBytes = 256
)

// ErrSigningKeyTooShort is returned when a configured secret decodes to fewer than MinSigningKeyBytes.
var ErrSigningKeyTooShort = errors.New("signing key too short")

// SigningKey is the HMAC secret shared by token encoding and decoding.
// It is built once at startup and passed by pointer; it is never mutated.
type SigningKey struct {
	secret    []byte
	ephemeral bool
}

// NewSigningKey decodes an operator-supplied base64 secret.
// Tokens signed with it stay valid across restarts.
func NewSigningKey(secret string) (*SigningKey, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing key is empty")
	}
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("decode signing key: %w", err)
		}
	}
	if len(decoded) < MinSigningKeyBytes {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrSigningKeyTooShort, len(decoded), MinSigningKeyBytes)
	}
	return &SigningKey{secret: decoded}, nil
}

// RandomSigningKey generates a fresh secret for this process only.
// Every restart invalidates all previously issued tokens.
func RandomSigningKey() (*SigningKey, error) {
	buf := make([]byte, randomKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	// hex keeps the secret printable if an operator wants to persist it
	return &SigningKey{secret: []byte(hex.EncodeToString(buf)), ephemeral: true}, nil
}

// Ephemeral reports whether the key was generated at startup rather than configured.
func (k *SigningKey) Ephemeral() bool {
	return k.ephemeral
}

func (k *SigningKey) bytes() []byte {
	return k.secret
}
