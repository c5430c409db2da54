package core

import (
	"context"
	"time"
)

// ThreatFeed is one external reputation source. Lookup must honor the
// context's deadline; a feed that cannot answer in time is excluded from
// consensus by the aggregator, not retried.
type ThreatFeed interface {
	// Name identifies the feed in verdicts and logs.
	Name() string

	// Reliability is the static 0-1 weight this feed carries in consensus.
	Reliability() float64

	// Lookup resolves an indicator (URL or domain) to a verdict.
	Lookup(ctx context.Context, indicator string) (*FeedVerdict, error)
}

// VIPDirectory is the external directory of protected people.
type VIPDirectory interface {
	// FindByDisplayName returns VIPs whose name matches, ignoring case and
	// surrounding whitespace.
	FindByDisplayName(ctx context.Context, name string) ([]VIP, error)
}

// BaselineStore supplies the per-tenant statistical profile. Baselines are
// recomputed out-of-band; this core only reads them.
type BaselineStore interface {
	GetBaseline(ctx context.Context, tenantID string) (*TenantBaseline, error)
}

// FeedbackStore is an append-only log of human feedback on anomaly alerts.
type FeedbackStore interface {
	Append(ctx context.Context, record FeedbackRecord) error
	ListByTenant(ctx context.Context, tenantID string) ([]FeedbackRecord, error)
}

// TTLCache is an injected key/value cache with per-entry TTL. Eviction is
// lazy (checked on read); Cleanup is an explicit sweep entry point for
// callers that want one.
type TTLCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Cleanup(ctx context.Context) error
}

// GeoData is a resolved IP location.
type GeoData struct {
	Point   GeoPoint
	City    string
	Country string
}

// GeoResolver maps an IP address to coordinates. Implementations return
// (nil, nil) when the IP is unknown rather than an error.
type GeoResolver interface {
	Resolve(ip string) (*GeoData, error)
}
