// Package cache provides TTL cache implementations behind the core.TTLCache
// port: in-process for single-node deployments and Redis for shared state.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache. Eviction is lazy on read, with an
// optional background sweep.
type MemoryCache struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped sync.Once
}

// NewMemoryCache creates a memory cache. When cleanupFreq is positive a
// background sweep runs at that interval until Stop is called.
func NewMemoryCache(logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	cache := &MemoryCache{
		entries: make(map[string]memoryEntry),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	if cleanupFreq > 0 {
		go cache.startCleanupTask(cleanupFreq)
	}
	return cache
}

// Get retrieves a value. Expired entries read as absent.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Set stores a value with its TTL. The value is copied; callers may reuse
// the slice.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: buf, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes an entry.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Cleanup removes all expired entries.
func (c *MemoryCache) Cleanup(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 && c.logger != nil {
		c.logger.Debug("Cleaned up expired cache entries", zap.Int("count", removed))
	}
	return nil
}

// Len reports the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop terminates the background cleanup task.
func (c *MemoryCache) Stop() {
	c.stopped.Do(func() { close(c.stopCh) })
}

func (c *MemoryCache) startCleanupTask(freq time.Duration) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil && c.logger != nil {
				c.logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}
