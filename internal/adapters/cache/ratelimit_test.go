package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowLimiter(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	l := NewSlidingWindowLimiter(3, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("tenant-a"))
	assert.True(t, l.Allow("tenant-a"))
	assert.True(t, l.Allow("tenant-a"))
	assert.False(t, l.Allow("tenant-a"))

	// Keys are independent budgets.
	assert.True(t, l.Allow("tenant-b"))
}

func TestSlidingWindowLimiterDrains(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	l := NewSlidingWindowLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	// Once the recorded hits age out the key recovers fully.
	now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("k"))
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}

func TestSlidingWindowLimiterDeniedNotRecorded(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	l := NewSlidingWindowLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("k"))

	// Hammering while denied must not extend the lockout.
	for i := 0; i < 10; i++ {
		assert.False(t, l.Allow("k"))
	}

	now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("k"))
}
