package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// APIKeyHeader carries a service credential.
	APIKeyHeader = "X-Api-Key"

	// APIKeyLength is the number of characters in a generated key.
	APIKeyLength = 64
)

const apiKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateAPIKey returns a random alphanumeric key and the hash to store for it.
// The key itself is never persisted.
func GenerateAPIKey() (key string, hash string, err error) {
	buf := make([]byte, APIKeyLength)
	max := big.NewInt(int64(len(apiKeyAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", "", fmt.Errorf("generate api key: %w", err)
		}
		buf[i] = apiKeyAlphabet[n.Int64()]
	}
	key = string(buf)
	return key, HashToken(key), nil
}

// HashToken hashes a secret for storage/lookup.
// Returns SHA256 hex hash
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
