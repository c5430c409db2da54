package factory

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/adapters/cache"
	"github.com/inboxguard/inboxguard/internal/adapters/feeds"
	"github.com/inboxguard/inboxguard/internal/adapters/geoip"
	"github.com/inboxguard/inboxguard/internal/adapters/vip"
	"github.com/inboxguard/inboxguard/internal/anomaly"
	"github.com/inboxguard/inboxguard/internal/ato"
	"github.com/inboxguard/inboxguard/internal/config"
	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/impersonation"
	"github.com/inboxguard/inboxguard/internal/metrics"
	"github.com/inboxguard/inboxguard/internal/rules"
	"github.com/inboxguard/inboxguard/internal/threatintel"
	"github.com/inboxguard/inboxguard/internal/urlintel"
	"github.com/inboxguard/inboxguard/internal/webhook"
)

// DetectorFactory creates the detection layers based on configuration.
type DetectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewDetectorFactory creates a new detector factory.
func NewDetectorFactory(cfg *config.Config, logger *zap.Logger) *DetectorFactory {
	return &DetectorFactory{cfg: cfg, logger: logger}
}

// CreateRuleEngine creates the deterministic rule engine.
func (f *DetectorFactory) CreateRuleEngine() (*rules.Engine, error) {
	return rules.NewEngine(rules.Config{
		Confidence:        f.cfg.GetFloat64("rules.confidence"),
		UrgencyMinMatches: f.cfg.GetInt("rules.urgency_min_matches"),
	}, f.CreateClassifier(), f.logger)
}

// CreateClassifier creates the URL classifier with the configured global
// tracking domains.
func (f *DetectorFactory) CreateClassifier() *urlintel.Classifier {
	return urlintel.NewClassifier(
		f.cfg.GetStringSlice("urlintel.known_tracking_domains"),
		urlintel.ObfuscationConfig{
			MaxURLLength:   f.cfg.GetInt("urlintel.max_url_length"),
			MaxQueryParams: f.cfg.GetInt("urlintel.max_query_params"),
		})
}

// feedEntry mirrors one threatintel.feeds config item.
type feedEntry struct {
	Name        string  `mapstructure:"name"`
	URL         string  `mapstructure:"url"`
	APIKey      string  `mapstructure:"api_key"`
	Reliability float64 `mapstructure:"reliability"`
}

// CreateFeeds builds the configured HTTP reputation feeds.
func (f *DetectorFactory) CreateFeeds() ([]core.ThreatFeed, error) {
	var entries []feedEntry
	if err := f.cfg.UnmarshalKey("threatintel.feeds", &entries); err != nil {
		return nil, fmt.Errorf("invalid feed configuration: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	out := make([]core.ThreatFeed, 0, len(entries))
	for _, e := range entries {
		feed, err := feeds.NewHTTPFeed(feeds.HTTPFeedConfig{
			Name:        e.Name,
			BaseURL:     e.URL,
			APIKey:      e.APIKey,
			Reliability: e.Reliability,
		}, client, f.logger)
		if err != nil {
			return nil, err
		}
		out = append(out, feed)
	}
	return out, nil
}

// CreateAggregator creates the threat intel aggregator over the given feeds
// and cache.
func (f *DetectorFactory) CreateAggregator(feedList []core.ThreatFeed, ttlCache core.TTLCache, m *metrics.Collectors) (*threatintel.Aggregator, error) {
	feedTimeout, err := f.cfg.GetDuration("threatintel.feed_timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid feed timeout: %w", err)
	}
	cacheTTL, err := f.cfg.GetDuration("threatintel.cache_ttl")
	if err != nil {
		return nil, fmt.Errorf("invalid threat intel cache TTL: %w", err)
	}
	return threatintel.NewAggregator(threatintel.Config{
		FeedTimeout:           feedTimeout,
		CacheTTL:              cacheTTL,
		DisagreementThreshold: f.cfg.GetFloat64("threatintel.disagreement_threshold"),
	}, feedList, ttlCache, f.logger, m)
}

// CreateClickChecker creates the time-of-click URL checker.
func (f *DetectorFactory) CreateClickChecker(aggregator *threatintel.Aggregator, classifier *urlintel.Classifier) (*threatintel.ClickChecker, error) {
	ttl, err := f.cfg.GetDuration("threatintel.clickcheck_ttl")
	if err != nil {
		return nil, fmt.Errorf("invalid click-check TTL: %w", err)
	}
	window, err := f.cfg.GetDuration("threatintel.clickcheck_rate_window")
	if err != nil {
		return nil, fmt.Errorf("invalid click-check rate window: %w", err)
	}
	limit := f.cfg.GetInt("threatintel.clickcheck_rate_limit")
	return threatintel.NewClickChecker(threatintel.ClickCheckConfig{
		TTL:        ttl,
		RateLimit:  limit,
		RateWindow: window,
	}, aggregator, classifier, cache.NewSlidingWindowLimiter(limit, window))
}

// CreateAnomalyDetector creates the behavioral detector with its feedback
// adjuster.
func (f *DetectorFactory) CreateAnomalyDetector(feedback core.FeedbackStore) (*anomaly.Detector, error) {
	var disabled []core.AnomalyDimension
	for _, dim := range f.cfg.GetStringSlice("anomaly.disabled_dimensions") {
		disabled = append(disabled, core.AnomalyDimension(dim))
	}
	var adjuster *anomaly.Adjuster
	if feedback != nil {
		adjuster = anomaly.NewAdjuster(feedback)
	}
	return anomaly.NewDetector(anomaly.Config{
		VolumeZThreshold:         f.cfg.GetFloat64("anomaly.volume_z_threshold"),
		HourProbabilityThreshold: f.cfg.GetFloat64("anomaly.hour_probability_threshold"),
		WeekendActivityThreshold: f.cfg.GetFloat64("anomaly.weekend_activity_threshold"),
		AlertThreshold:           f.cfg.GetInt("anomaly.alert_threshold"),
		Weights: map[core.AnomalyDimension]float64{
			core.DimensionVolume:    f.cfg.GetFloat64("anomaly.weights.volume"),
			core.DimensionTime:      f.cfg.GetFloat64("anomaly.weights.time"),
			core.DimensionRecipient: f.cfg.GetFloat64("anomaly.weights.recipient"),
			core.DimensionContent:   f.cfg.GetFloat64("anomaly.weights.content"),
		},
		DisabledDimensions: disabled,
	}, adjuster, f.logger)
}

// CreateTravelDetector creates the impossible-travel detector with the
// configured GeoIP database.
func (f *DetectorFactory) CreateTravelDetector() (*ato.Detector, error) {
	resolver, err := geoip.NewResolver(f.cfg.GetString("ato.geoip_db_path"), f.logger)
	if err != nil {
		return nil, err
	}
	return ato.NewDetector(ato.Config{
		SpeedThresholdMPH:      f.cfg.GetFloat64("ato.speed_threshold_mph"),
		PatternToleranceMiles:  f.cfg.GetFloat64("ato.pattern_tolerance_miles"),
		VPNMultiplier:          f.cfg.GetFloat64("ato.vpn_score_multiplier"),
		KnownPatternMultiplier: f.cfg.GetFloat64("ato.known_pattern_multiplier"),
		VPNCIDRs:               f.cfg.GetStringSlice("ato.vpn_cidrs"),
	}, resolver, f.logger)
}

// vipEntry mirrors one impersonation.vip_entries config item.
type vipEntry struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
	Title string `mapstructure:"title"`
}

// CreateImpersonationDetector creates the BEC detector over the configured
// VIP directory.
func (f *DetectorFactory) CreateImpersonationDetector() (*impersonation.Detector, error) {
	var entries []vipEntry
	if err := f.cfg.UnmarshalKey("impersonation.vip_entries", &entries); err != nil {
		return nil, fmt.Errorf("invalid VIP configuration: %w", err)
	}
	vips := make([]core.VIP, 0, len(entries))
	for _, e := range entries {
		vips = append(vips, core.VIP{Name: e.Name, Email: e.Email, Title: e.Title})
	}
	return impersonation.NewDetector(vip.NewConfigDirectory(vips), f.logger), nil
}

// CreateWebhookSigner creates the webhook signer when a secret is
// configured. Without one the service runs with webhooks disabled.
func (f *DetectorFactory) CreateWebhookSigner() (*webhook.Signer, error) {
	secret := f.cfg.GetString("webhook.secret")
	if secret == "" {
		return nil, nil
	}
	tolerance, err := f.cfg.GetDuration("webhook.tolerance")
	if err != nil {
		return nil, fmt.Errorf("invalid webhook tolerance: %w", err)
	}
	skew, err := f.cfg.GetDuration("webhook.future_skew")
	if err != nil {
		return nil, fmt.Errorf("invalid webhook future skew: %w", err)
	}
	return webhook.NewSigner(secret, webhook.Config{Tolerance: tolerance, FutureSkew: skew})
}
