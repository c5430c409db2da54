// Package webhook signs and verifies webhook payloads with HMAC-SHA256 and a
// timestamp freshness window.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Verification failure reasons. Callers branch on these; the messages go to
// logs, never to webhook senders.
var (
	ErrMissingSecret    = errors.New("webhook: secret is empty")
	ErrMalformedHeader  = errors.New("webhook: signature header is malformed")
	ErrStaleTimestamp   = errors.New("webhook: timestamp outside tolerance")
	ErrFutureTimestamp  = errors.New("webhook: timestamp too far in the future")
	ErrSignatureInvalid = errors.New("webhook: signature mismatch")
)

// signatureRe accepts exactly one lowercase hex SHA-256 digest.
var signatureRe = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Config holds the verifier's freshness window.
type Config struct {
	// Tolerance is how far in the past a timestamp may be (default 300s).
	Tolerance time.Duration
	// FutureSkew is how far ahead of the verifier's clock a timestamp may be,
	// allowing for clock drift (default 30s).
	FutureSkew time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{Tolerance: 300 * time.Second, FutureSkew: 30 * time.Second}
}

// Signer signs outgoing payloads and verifies incoming ones. The clock is
// injectable so expiry behavior is testable.
type Signer struct {
	secret []byte
	cfg    Config
	now    func() time.Time
}

// NewSigner builds a signer for one shared secret.
func NewSigner(secret string, cfg Config) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.Tolerance <= 0 {
		return nil, fmt.Errorf("webhook: tolerance must be positive, got %v", cfg.Tolerance)
	}
	if cfg.FutureSkew < 0 {
		return nil, fmt.Errorf("webhook: future skew must be non-negative, got %v", cfg.FutureSkew)
	}
	return &Signer{secret: []byte(secret), cfg: cfg, now: time.Now}, nil
}

// Sign computes the hex HMAC-SHA256 signature for a payload at the given
// unix timestamp. The signed message is the timestamp, a dot, then the raw
// payload, binding the signature to the send time.
func (s *Signer) Sign(timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature against the payload and timestamp.
// Format and freshness are rejected before any HMAC computation; the digest
// comparison itself is constant-time.
func (s *Signer) Verify(timestampHeader, signature string, payload []byte) error {
	if !signatureRe.MatchString(signature) {
		return ErrMalformedHeader
	}
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return ErrMalformedHeader
	}

	now := s.now().Unix()
	if now-ts > int64(s.cfg.Tolerance.Seconds()) {
		return ErrStaleTimestamp
	}
	if ts-now > int64(s.cfg.FutureSkew.Seconds()) {
		return ErrFutureTimestamp
	}

	expected := s.Sign(ts, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}
