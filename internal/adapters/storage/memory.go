package storage

import (
	"context"
	"sync"

	"github.com/inboxguard/inboxguard/internal/core"
)

// MemoryBaselineStore is an in-memory baseline store for tests and
// single-node development runs.
type MemoryBaselineStore struct {
	mu        sync.RWMutex
	baselines map[string]*core.TenantBaseline
}

// NewMemoryBaselineStore creates an empty store.
func NewMemoryBaselineStore() *MemoryBaselineStore {
	return &MemoryBaselineStore{baselines: make(map[string]*core.TenantBaseline)}
}

// Put replaces a tenant's baseline wholesale.
func (s *MemoryBaselineStore) Put(baseline *core.TenantBaseline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[baseline.TenantID] = baseline
}

// GetBaseline returns the tenant's baseline, or nil when none has been
// computed yet.
func (s *MemoryBaselineStore) GetBaseline(_ context.Context, tenantID string) (*core.TenantBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baselines[tenantID], nil
}

// MemoryFeedbackStore is an in-memory append-only feedback log.
type MemoryFeedbackStore struct {
	mu      sync.RWMutex
	records map[string][]core.FeedbackRecord
}

// NewMemoryFeedbackStore creates an empty log.
func NewMemoryFeedbackStore() *MemoryFeedbackStore {
	return &MemoryFeedbackStore{records: make(map[string][]core.FeedbackRecord)}
}

// Append adds one record to the tenant's log.
func (s *MemoryFeedbackStore) Append(_ context.Context, rec core.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.TenantID] = append(s.records[rec.TenantID], rec)
	return nil
}

// ListByTenant returns a copy of the tenant's log in insertion order.
func (s *MemoryFeedbackStore) ListByTenant(_ context.Context, tenantID string) ([]core.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.FeedbackRecord, len(s.records[tenantID]))
	copy(out, s.records[tenantID])
	return out, nil
}
