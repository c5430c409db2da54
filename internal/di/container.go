// Package di wires the service graph.
package di

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/anomaly"
	"github.com/inboxguard/inboxguard/internal/ato"
	"github.com/inboxguard/inboxguard/internal/config"
	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/dedup"
	"github.com/inboxguard/inboxguard/internal/factory"
	"github.com/inboxguard/inboxguard/internal/impersonation"
	"github.com/inboxguard/inboxguard/internal/logging"
	"github.com/inboxguard/inboxguard/internal/metrics"
	"github.com/inboxguard/inboxguard/internal/rules"
	"github.com/inboxguard/inboxguard/internal/service"
	"github.com/inboxguard/inboxguard/internal/threatintel"
	"github.com/inboxguard/inboxguard/internal/urlintel"
	"github.com/inboxguard/inboxguard/internal/webhook"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(reg *prometheus.Registry) *metrics.Collectors {
		return metrics.NewCollectors(reg)
	}); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStorageFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewDetectorFactory); err != nil {
		return nil, err
	}

	// Register storage adapters
	if err := container.Provide(func(f *factory.StorageFactory) (core.TTLCache, error) {
		return f.CreateCache(context.Background())
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.StorageFactory) (core.BaselineStore, error) {
		return f.CreateBaselineStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.StorageFactory) (core.FeedbackStore, error) {
		return f.CreateFeedbackStore()
	}); err != nil {
		return nil, err
	}

	// Register detection layers
	if err := container.Provide(func(f *factory.DetectorFactory) *urlintel.Classifier {
		return f.CreateClassifier()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.DetectorFactory) (*rules.Engine, error) {
		return f.CreateRuleEngine()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.DetectorFactory) ([]core.ThreatFeed, error) {
		return f.CreateFeeds()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.DetectorFactory, feedList []core.ThreatFeed, ttlCache core.TTLCache, m *metrics.Collectors) (*threatintel.Aggregator, error) {
		return f.CreateAggregator(feedList, ttlCache, m)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.DetectorFactory, agg *threatintel.Aggregator, classifier *urlintel.Classifier) (*threatintel.ClickChecker, error) {
		return f.CreateClickChecker(agg, classifier)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.DetectorFactory, feedback core.FeedbackStore) (*anomaly.Detector, error) {
		return f.CreateAnomalyDetector(feedback)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.DetectorFactory) (*impersonation.Detector, error) {
		return f.CreateImpersonationDetector()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.DetectorFactory) (*ato.Detector, error) {
		return f.CreateTravelDetector()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.DetectorFactory) (*webhook.Signer, error) {
		return f.CreateWebhookSigner()
	}); err != nil {
		return nil, err
	}

	// Register the detection service
	if err := container.Provide(buildDetectionService); err != nil {
		return nil, err
	}

	return container, nil
}

func buildDetectionService(
	cfg *config.Config,
	engine *rules.Engine,
	aggregator *threatintel.Aggregator,
	imp *impersonation.Detector,
	anomalyDetector *anomaly.Detector,
	baselines core.BaselineStore,
	logger *zap.Logger,
	m *metrics.Collectors,
) (*service.DetectionService, error) {
	opts := service.DefaultOptions()
	opts.MaxIndicators = cfg.GetInt("threatintel.max_indicators_per_email")
	opts.DedupOptions = dedup.Options{
		MaxPerGroup:   cfg.GetInt("dedup.max_per_group"),
		MaxSampleURLs: cfg.GetInt("dedup.max_sample_urls"),
	}
	opts.AmplifyConfig = urlintel.AmplifyConfig{
		Multiplier:            cfg.GetFloat64("urlintel.age_amplifier"),
		NewDomainDays:         cfg.GetInt("urlintel.new_domain_days"),
		EstablishedDomainDays: cfg.GetInt("urlintel.established_domain_days"),
	}
	return service.NewDetectionService(opts, engine, aggregator, imp, anomalyDetector, baselines, logger, m)
}
