package qstash

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SignatureHeader = "Upstash-Signature"

	issuer = "Upstash"
)

var (
	ErrMissingSignature = errors.New("qstash signature is missing")
	ErrInvalidSignature = errors.New("qstash signature is invalid")
)

// claims is the QStash signature payload: the registered claims plus the
// base64url SHA-256 of the delivered body.
type claims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

// Verifier checks the HS256 JWT QStash attaches to each delivery. The next
// signing key is tried when the current one fails, which covers key rotation.
type Verifier struct {
	keys []string
	now  func() time.Time
}

func NewVerifier(currentKey, nextKey string) *Verifier {
	v := &Verifier{now: time.Now}
	for _, k := range []string{currentKey, nextKey} {
		if k = strings.TrimSpace(k); k != "" {
			v.keys = append(v.keys, k)
		}
	}
	return v
}

// Enabled reports whether any signing key is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.keys) > 0
}

// Verify validates signature against body. An empty destination skips the
// subject check. Tokens without an exp claim are rejected.
func (v *Verifier) Verify(signature string, body []byte, destination string) error {
	if strings.TrimSpace(signature) == "" {
		return ErrMissingSignature
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if destination != "" {
		opts = append(opts, jwt.WithSubject(destination))
	}
	parser := jwt.NewParser(opts...)

	var lastErr error
	for _, key := range v.keys {
		err := verifyWithKey(parser, key, signature, body)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no signing keys configured")
	}
	return fmt.Errorf("%w: %w", ErrInvalidSignature, lastErr)
}

func verifyWithKey(parser *jwt.Parser, key, token string, body []byte) error {
	var c claims
	_, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return []byte(key), nil
	})
	if err != nil {
		return err
	}
	if strings.TrimRight(c.Body, "=") != bodyHash(body) {
		return errors.New("body hash mismatch")
	}
	return nil
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Sign produces a token in the same format QStash uses, valid for five
// minutes from now. It exists for tests and local tooling that replays
// deliveries.
func Sign(key, destination string, body []byte, now time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Body: bodyHash(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   destination,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
	})
	signed, err := token.SignedString([]byte(key))
	if err != nil {
		return ""
	}
	return signed
}
