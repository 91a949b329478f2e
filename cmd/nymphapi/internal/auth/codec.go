package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of minted access tokens.
const DefaultTokenTTL = 15 * time.Minute

// Decode failures. Exactly one is returned for any rejected token.
var (
	// ErrExpiredSignature means the signature verified but the token is past its expiry.
	ErrExpiredSignature = errors.New("token expired")

	// ErrInvalidSignature means the token parsed but was not signed by our key.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrMalformed means the token could not be parsed at all.
	ErrMalformed = errors.New("malformed token")
)

// Claims is the decoded payload of an access token.
type Claims struct {
	Subject   int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// Codec signs and verifies access tokens with HS256.
// It is safe for concurrent use.
type Codec struct {
	key *SigningKey
	now func() time.Time
}

// NewCodec creates a codec bound to key.
func NewCodec(key *SigningKey) *Codec {
	return &Codec{key: key, now: time.Now}
}

// WithClock returns a copy of the codec that reads time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	return &Codec{key: c.key, now: now}
}

// Encode mints a token asserting principalID that expires after ttl.
func (c *Codec) Encode(principalID int64, ttl time.Duration) (string, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(principalID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        jti.String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key.bytes())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies token and returns its claims. Rejections wrap one of
// ErrExpiredSignature, ErrInvalidSignature or ErrMalformed.
func (c *Codec) Decode(token string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &rc,
		func(*jwt.Token) (any, error) { return c.key.bytes(), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if n, short := signatureTruncated(token); short {
			return nil, fmt.Errorf("%w: signature segment is %d characters, want %d", ErrMalformed, n, hs256SignatureLen)
		}
		return nil, classify(err)
	}

	sub, err := strconv.ParseInt(rc.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q is not a principal id", ErrMalformed, rc.Subject)
	}

	claims := &Claims{
		Subject:   sub,
		ExpiresAt: rc.ExpiresAt.Time,
		ID:        rc.ID,
	}
	if rc.IssuedAt != nil {
		claims.IssuedAt = rc.IssuedAt.Time
	}
	return claims, nil
}

// hs256SignatureLen is base64.RawURLEncoding.EncodedLen(32).
const hs256SignatureLen = 43

// signatureTruncated reports whether token is an HS256 token whose signature
// segment has the wrong length, and returns that length. Such a token was cut
// short rather than signed by another key.
func signatureTruncated(token string) (int, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, false
	}
	t, _, err := jwt.NewParser().ParseUnverified(token, &jwt.RegisteredClaims{})
	if err != nil || t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return 0, false
	}
	n := len(parts[2])
	return n, n != hs256SignatureLen
}

// classify maps jwt parser errors onto our three failure kinds.
// The parser checks the signature before any claim, so an expired token
// with a forged signature reports ErrInvalidSignature.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpiredSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
