// Package threatintel queries external reputation feeds in parallel and
// resolves their verdicts into a single reliability-weighted consensus.
package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/metrics"
)

// Verdict labels feeds are expected to use.
const (
	VerdictMalicious  = "malicious"
	VerdictSuspicious = "suspicious"
	VerdictClean      = "clean"
)

// maliciousScoreCutoff is where a numeric feed score counts as a malicious
// vote when the feed did not label its verdict.
const maliciousScoreCutoff = 70

// Config holds the aggregator's tunables.
type Config struct {
	// FeedTimeout bounds each individual feed query (default 3s).
	FeedTimeout time.Duration
	// CacheTTL is how long consensus results stay valid (default 30m).
	CacheTTL time.Duration
	// DisagreementThreshold marks results whose confidence falls below it
	// (default 0.7).
	DisagreementThreshold float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		FeedTimeout:           3 * time.Second,
		CacheTTL:              30 * time.Minute,
		DisagreementThreshold: 0.7,
	}
}

// Aggregator fans out indicator lookups to every configured feed, each under
// its own deadline, and caches the weighted consensus.
type Aggregator struct {
	cfg     Config
	feeds   []core.ThreatFeed
	cache   core.TTLCache
	logger  *zap.Logger
	metrics *metrics.Collectors
	now     func() time.Time
}

// NewAggregator validates configuration and builds an aggregator. The cache
// is injected so tests can use isolated instances with deterministic clocks.
func NewAggregator(cfg Config, feeds []core.ThreatFeed, cache core.TTLCache, logger *zap.Logger, m *metrics.Collectors) (*Aggregator, error) {
	if cfg.FeedTimeout <= 0 {
		return nil, fmt.Errorf("threatintel: feed timeout must be positive, got %v", cfg.FeedTimeout)
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("threatintel: cache TTL must be positive, got %v", cfg.CacheTTL)
	}
	if cfg.DisagreementThreshold <= 0 || cfg.DisagreementThreshold > 1 {
		return nil, fmt.Errorf("threatintel: disagreement threshold must be in (0,1], got %v", cfg.DisagreementThreshold)
	}
	for _, f := range feeds {
		if r := f.Reliability(); r <= 0 || r > 1 {
			return nil, fmt.Errorf("threatintel: feed %q reliability must be in (0,1], got %v", f.Name(), r)
		}
	}
	return &Aggregator{
		cfg:     cfg,
		feeds:   feeds,
		cache:   cache,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}, nil
}

// Lookup resolves one indicator across all feeds. Cached results within the
// TTL are returned without touching the feeds unless forceRefresh is set.
func (a *Aggregator) Lookup(ctx context.Context, indicator string, forceRefresh bool) (*core.ThreatIntelResult, error) {
	key := cacheKey(indicator)

	if !forceRefresh && a.cache != nil {
		if raw, ok := a.cache.Get(ctx, key); ok {
			var cached core.ThreatIntelResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				cached.FromCache = true
				if a.metrics != nil {
					a.metrics.CacheHits.WithLabelValues("threatintel").Inc()
				}
				return &cached, nil
			}
			// A corrupt entry is dropped and re-fetched.
			_ = a.cache.Delete(ctx, key)
		}
		if a.metrics != nil {
			a.metrics.CacheMisses.WithLabelValues("threatintel").Inc()
		}
	}

	result := a.query(ctx, indicator)

	if a.cache != nil {
		if raw, err := json.Marshal(result); err == nil {
			if err := a.cache.Set(ctx, key, raw, a.cfg.CacheTTL); err != nil && a.logger != nil {
				a.logger.Warn("Failed to cache threat intel result", zap.Error(err))
			}
		}
	}
	return result, nil
}

// query fans out to every feed concurrently, each bounded by its own
// deadline. A slow or failing feed is excluded from consensus and recorded,
// never propagated as an error.
func (a *Aggregator) query(ctx context.Context, indicator string) *core.ThreatIntelResult {
	verdicts := make([]core.FeedVerdict, len(a.feeds))

	g, gctx := errgroup.WithContext(ctx)
	for i, feed := range a.feeds {
		g.Go(func() error {
			feedCtx, cancel := context.WithTimeout(gctx, a.cfg.FeedTimeout)
			defer cancel()

			v, err := feed.Lookup(feedCtx, indicator)
			switch {
			case err == nil && v != nil:
				v.Feed = feed.Name()
				v.Reliability = feed.Reliability()
				verdicts[i] = *v
			case feedCtx.Err() == context.DeadlineExceeded:
				verdicts[i] = core.FeedVerdict{Feed: feed.Name(), Reliability: feed.Reliability(), TimedOut: true}
				if a.metrics != nil {
					a.metrics.FeedTimeouts.WithLabelValues(feed.Name()).Inc()
				}
				if a.logger != nil {
					a.logger.Info("Threat feed timed out",
						zap.String("feed", feed.Name()),
						zap.String("indicator", indicator))
				}
			default:
				msg := "no verdict"
				if err != nil {
					msg = err.Error()
				}
				verdicts[i] = core.FeedVerdict{Feed: feed.Name(), Reliability: feed.Reliability(), Error: msg}
				if a.metrics != nil {
					a.metrics.FeedErrors.WithLabelValues(feed.Name()).Inc()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return a.consensus(indicator, verdicts)
}

// consensus computes the reliability-weighted score and agreement-derived
// confidence across usable verdicts.
func (a *Aggregator) consensus(indicator string, verdicts []core.FeedVerdict) *core.ThreatIntelResult {
	result := &core.ThreatIntelResult{
		Indicator: cacheKey(indicator),
		Sources:   verdicts,
		CheckedAt: a.now().UTC(),
	}

	var weightedSum, totalWeight float64
	var usable []core.FeedVerdict
	for _, v := range verdicts {
		if !v.Usable() {
			continue
		}
		usable = append(usable, v)
		weightedSum += float64(v.Score) * v.Reliability
		totalWeight += v.Reliability
	}
	if totalWeight == 0 {
		return result
	}

	result.ConsensusScore = core.ClampScore(int(math.Round(weightedSum / totalWeight)))
	result.Confidence = agreementConfidence(usable)
	result.Disagreement = result.Confidence < a.cfg.DisagreementThreshold
	return result
}

// agreementConfidence derives confidence from how tightly verdicts cluster:
// the majority fraction of malicious-vs-clean votes, sharpened by score
// spread when the vote is unanimous.
func agreementConfidence(verdicts []core.FeedVerdict) float64 {
	if len(verdicts) == 0 {
		return 0
	}
	if len(verdicts) == 1 {
		// One source, no corroboration.
		return 0.6
	}

	malicious, minScore, maxScore := 0, 101, -1
	for _, v := range verdicts {
		if isMaliciousVote(v) {
			malicious++
		}
		if v.Score < minScore {
			minScore = v.Score
		}
		if v.Score > maxScore {
			maxScore = v.Score
		}
	}

	majority := malicious
	if other := len(verdicts) - malicious; other > majority {
		majority = other
	}
	agreement := float64(majority) / float64(len(verdicts))
	if agreement < 1 {
		// A split vote is low confidence no matter the scores.
		return core.ClampRatio(agreement)
	}

	spread := float64(maxScore - minScore)
	return core.ClampRatio(0.8 + 0.2*(1-spread/100))
}

func isMaliciousVote(v core.FeedVerdict) bool {
	switch strings.ToLower(v.Verdict) {
	case VerdictMalicious, VerdictSuspicious:
		return true
	case VerdictClean:
		return false
	default:
		return v.Score >= maliciousScoreCutoff
	}
}

// cacheKey normalizes an indicator: lowercase, scheme and trailing slash
// stripped, so http://EVIL.example/ and evil.example share an entry.
func cacheKey(indicator string) string {
	s := strings.ToLower(strings.TrimSpace(indicator))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	return strings.TrimSuffix(s, "/")
}

// ToSignals converts a consensus result into signals: the consensus verdict
// itself (carrying malware family tags surfaced by the feeds), a
// disagreement marker when sources split, and an info record per timed-out
// feed.
func ToSignals(result *core.ThreatIntelResult) []core.Signal {
	var signals []core.Signal

	if result.ConsensusScore >= maliciousScoreCutoff {
		tags := collectTags(result.Sources)
		meta := map[string]any{
			"indicator":       result.Indicator,
			"consensus_score": result.ConsensusScore,
			"confidence":      result.Confidence,
			"from_cache":      result.FromCache,
		}
		if len(tags) > 0 {
			meta["threat_tags"] = tags
		}
		severity := core.SeverityWarning
		score := 25
		if result.Confidence >= 0.8 {
			severity = core.SeverityCritical
			score = 35
		}
		signals = append(signals, core.NewSignal(core.SignalThreatIntel, severity, score,
			fmt.Sprintf("threat intelligence consensus %d/100 for %s", result.ConsensusScore, result.Indicator),
			meta))
	}

	if result.Disagreement && len(result.Sources) > 1 {
		signals = append(signals, core.NewSignal(core.SignalThreatIntelDisagreement, core.SeverityInfo, 5,
			fmt.Sprintf("reputation sources disagree about %s", result.Indicator),
			map[string]any{"indicator": result.Indicator, "confidence": result.Confidence}))
	}

	for _, v := range result.Sources {
		if v.TimedOut {
			signals = append(signals, core.NewSignal(core.SignalCheckTimeout, core.SeverityInfo, 0,
				fmt.Sprintf("feed %q timed out for %s", v.Feed, result.Indicator),
				map[string]any{"feed": v.Feed, "indicator": result.Indicator}))
		}
	}
	return signals
}

func collectTags(sources []core.FeedVerdict) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, s := range sources {
		for _, t := range s.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	sort.Strings(tags)
	return tags
}
