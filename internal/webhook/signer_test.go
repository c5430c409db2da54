package webhook

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frozenNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func newFrozenSigner(t *testing.T, secret string) *Signer {
	t.Helper()
	s, err := NewSigner(secret, DefaultConfig())
	require.NoError(t, err)
	s.now = func() time.Time { return frozenNow }
	return s
}

func TestNewSignerValidation(t *testing.T) {
	_, err := NewSigner("", DefaultConfig())
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = NewSigner("secret", Config{Tolerance: 0, FutureSkew: 30 * time.Second})
	assert.Error(t, err)

	_, err = NewSigner("secret", Config{Tolerance: time.Minute, FutureSkew: -time.Second})
	assert.Error(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	s := newFrozenSigner(t, "topsecret")
	payload := []byte(`{"event":"alert","score":92}`)
	ts := frozenNow.Unix()

	sig := s.Sign(ts, payload)
	assert.Regexp(t, `^[a-f0-9]{64}$`, sig)

	err := s.Verify(fmt.Sprintf("%d", ts), sig, payload)
	assert.NoError(t, err)
}

func TestVerifySignatureBinding(t *testing.T) {
	s := newFrozenSigner(t, "topsecret")
	payload := []byte(`{"event":"alert"}`)
	ts := frozenNow.Unix()
	sig := s.Sign(ts, payload)

	t.Run("tampered payload", func(t *testing.T) {
		err := s.Verify(fmt.Sprintf("%d", ts), sig, []byte(`{"event":"alert","admin":true}`))
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("shifted timestamp", func(t *testing.T) {
		err := s.Verify(fmt.Sprintf("%d", ts-10), sig, payload)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := newFrozenSigner(t, "differentsecret")
		err := other.Verify(fmt.Sprintf("%d", ts), sig, payload)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})
}

func TestVerifyFreshnessWindow(t *testing.T) {
	s := newFrozenSigner(t, "topsecret")
	payload := []byte("body")

	t.Run("at the stale edge", func(t *testing.T) {
		ts := frozenNow.Unix() - 300
		err := s.Verify(fmt.Sprintf("%d", ts), s.Sign(ts, payload), payload)
		assert.NoError(t, err)
	})

	t.Run("past the stale edge", func(t *testing.T) {
		ts := frozenNow.Unix() - 301
		err := s.Verify(fmt.Sprintf("%d", ts), s.Sign(ts, payload), payload)
		assert.ErrorIs(t, err, ErrStaleTimestamp)
	})

	t.Run("within future skew", func(t *testing.T) {
		ts := frozenNow.Unix() + 30
		err := s.Verify(fmt.Sprintf("%d", ts), s.Sign(ts, payload), payload)
		assert.NoError(t, err)
	})

	t.Run("past future skew", func(t *testing.T) {
		ts := frozenNow.Unix() + 31
		err := s.Verify(fmt.Sprintf("%d", ts), s.Sign(ts, payload), payload)
		assert.ErrorIs(t, err, ErrFutureTimestamp)
	})
}

func TestVerifyMalformedInput(t *testing.T) {
	s := newFrozenSigner(t, "topsecret")
	payload := []byte("body")
	ts := frozenNow.Unix()
	valid := s.Sign(ts, payload)

	tests := []struct {
		name      string
		timestamp string
		signature string
	}{
		{"uppercase hex", fmt.Sprintf("%d", ts), strings.ToUpper(valid)},
		{"truncated signature", fmt.Sprintf("%d", ts), valid[:40]},
		{"non-hex signature", fmt.Sprintf("%d", ts), strings.Repeat("z", 64)},
		{"empty signature", fmt.Sprintf("%d", ts), ""},
		{"non-numeric timestamp", "yesterday", valid},
		{"empty timestamp", "", valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Verify(tt.timestamp, tt.signature, payload)
			assert.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}

func TestSignDeterministic(t *testing.T) {
	s := newFrozenSigner(t, "topsecret")
	ts := frozenNow.Unix()
	payload := []byte("same bytes")

	assert.Equal(t, s.Sign(ts, payload), s.Sign(ts, payload))
	assert.NotEqual(t, s.Sign(ts, payload), s.Sign(ts+1, payload))
	assert.NotEqual(t, s.Sign(ts, payload), s.Sign(ts, []byte("other bytes")))
}
