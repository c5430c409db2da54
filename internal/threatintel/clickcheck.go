package threatintel

import (
	"context"
	"fmt"
	"time"

	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/urlintel"
)

// ClickCheckConfig bounds time-of-click URL verification.
type ClickCheckConfig struct {
	// TTL for click-time verdicts; shorter than the indicator cache because
	// click-time results feed an interactive decision (default 5m).
	TTL time.Duration
	// RateLimit is the per-key request budget inside RateWindow.
	RateLimit  int
	RateWindow time.Duration
}

// DefaultClickCheckConfig returns the documented defaults.
func DefaultClickCheckConfig() ClickCheckConfig {
	return ClickCheckConfig{TTL: 5 * time.Minute, RateLimit: 30, RateWindow: time.Minute}
}

// RateLimiter is the per-key counter the click-time path uses to keep one
// noisy tenant from exhausting the feed budget.
type RateLimiter interface {
	Allow(key string) bool
}

// ClickVerdict is the time-of-click answer for one URL.
type ClickVerdict struct {
	URL            string                  `json:"url"`
	Blocked        bool                    `json:"blocked"`
	Classification core.URLClassification  `json:"classification"`
	Intel          *core.ThreatIntelResult `json:"intel,omitempty"`
	RateLimited    bool                    `json:"rate_limited,omitempty"`
	CheckedAt      time.Time               `json:"checked_at"`
}

// ClickChecker verifies URLs at click time: local classification first, then
// feed consensus when the local verdict is not already conclusive.
type ClickChecker struct {
	cfg        ClickCheckConfig
	aggregator *Aggregator
	classifier *urlintel.Classifier
	limiter    RateLimiter
}

// NewClickChecker validates configuration and builds a checker.
func NewClickChecker(cfg ClickCheckConfig, aggregator *Aggregator, classifier *urlintel.Classifier, limiter RateLimiter) (*ClickChecker, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("threatintel: click-check TTL must be positive, got %v", cfg.TTL)
	}
	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("threatintel: click-check rate limit must be positive, got %d", cfg.RateLimit)
	}
	if aggregator == nil || classifier == nil {
		return nil, fmt.Errorf("threatintel: click checker requires an aggregator and a classifier")
	}
	return &ClickChecker{cfg: cfg, aggregator: aggregator, classifier: classifier, limiter: limiter}, nil
}

// Check resolves one clicked URL. When the rate budget for the key is spent
// the check degrades to local classification only.
func (c *ClickChecker) Check(ctx context.Context, rateKey, rawURL string) (*ClickVerdict, error) {
	verdict := &ClickVerdict{
		URL:            rawURL,
		Classification: c.classifier.Classify(rawURL, nil),
		CheckedAt:      time.Now().UTC(),
	}

	if verdict.Classification.Type == core.URLMalicious && verdict.Classification.TrustLevel == core.TrustLow {
		verdict.Blocked = true
		return verdict, nil
	}

	if c.limiter != nil && !c.limiter.Allow(rateKey) {
		verdict.RateLimited = true
		return verdict, nil
	}

	intel, err := c.aggregator.Lookup(ctx, rawURL, false)
	if err != nil {
		return verdict, err
	}
	verdict.Intel = intel
	verdict.Blocked = intel.ConsensusScore >= maliciousScoreCutoff && intel.Confidence >= 0.8
	return verdict, nil
}
