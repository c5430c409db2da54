// Package feeds provides core.ThreatFeed adapters: HTTP-backed reputation
// services and a static in-memory feed for tests and offline runs.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/core"
)

// HTTPFeedConfig describes one HTTP reputation feed.
type HTTPFeedConfig struct {
	Name string
	// BaseURL is queried as GET {BaseURL}?indicator={indicator}.
	BaseURL string
	APIKey  string
	// Reliability is this feed's 0-1 consensus weight.
	Reliability float64
	// BreakerMaxFailures consecutive failures open the circuit
	// (default 5); BreakerCooldown is how long it stays open (default 30s).
	BreakerMaxFailures uint32
	BreakerCooldown    time.Duration
}

// feedResponse is the wire format reputation feeds answer with.
type feedResponse struct {
	Verdict string   `json:"verdict"`
	Score   int      `json:"score"`
	Tags    []string `json:"tags,omitempty"`
}

// HTTPFeed queries a reputation service over HTTP. Calls run through a
// circuit breaker so a dead feed stops consuming its per-lookup timeout on
// every email.
type HTTPFeed struct {
	cfg     HTTPFeedConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewHTTPFeed validates the config and builds the feed.
func NewHTTPFeed(cfg HTTPFeedConfig, client *http.Client, logger *zap.Logger) (*HTTPFeed, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("feeds: feed name is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("feeds: invalid base URL %q for feed %s", cfg.BaseURL, cfg.Name)
	}
	if cfg.Reliability <= 0 || cfg.Reliability > 1 {
		return nil, fmt.Errorf("feeds: reliability must be in (0,1] for feed %s, got %v", cfg.Name, cfg.Reliability)
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "feed:" + cfg.Name,
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("Feed circuit breaker state change",
					zap.String("feed", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		},
	})
	return &HTTPFeed{cfg: cfg, client: client, breaker: breaker, logger: logger}, nil
}

// Name identifies the feed in verdicts and logs.
func (f *HTTPFeed) Name() string { return f.cfg.Name }

// Reliability is the feed's static consensus weight.
func (f *HTTPFeed) Reliability() float64 { return f.cfg.Reliability }

// Lookup queries the feed for one indicator under the caller's deadline.
func (f *HTTPFeed) Lookup(ctx context.Context, indicator string) (*core.FeedVerdict, error) {
	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetch(ctx, indicator)
	})
	if err != nil {
		// Surface the caller's deadline so the aggregator records a timeout
		// rather than a generic breaker error.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return result.(*core.FeedVerdict), nil
}

func (f *HTTPFeed) fetch(ctx context.Context, indicator string) (*core.FeedVerdict, error) {
	endpoint := fmt.Sprintf("%s?indicator=%s", f.cfg.BaseURL, url.QueryEscape(indicator))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	if f.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("feed %s returned status %d", f.cfg.Name, resp.StatusCode)
	}

	var body feedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode feed response: %w", err)
	}
	return &core.FeedVerdict{
		Verdict: body.Verdict,
		Score:   core.ClampScore(body.Score),
		Tags:    body.Tags,
	}, nil
}
