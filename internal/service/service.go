// Package service orchestrates the detection layers into a single verdict
// per email.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/anomaly"
	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/dedup"
	"github.com/inboxguard/inboxguard/internal/impersonation"
	"github.com/inboxguard/inboxguard/internal/metrics"
	"github.com/inboxguard/inboxguard/internal/rules"
	"github.com/inboxguard/inboxguard/internal/threatintel"
	"github.com/inboxguard/inboxguard/internal/urlintel"
)

// DomainAgeProvider supplies registration-age data for a domain. Optional;
// without it no age amplification is applied.
type DomainAgeProvider interface {
	AgeInfo(ctx context.Context, domain string) (urlintel.DomainAgeInfo, bool)
}

// Options bounds per-email work in the orchestrator.
type Options struct {
	// MaxIndicators caps how many URLs go to the threat intel feeds per
	// email (default 5).
	MaxIndicators int
	// DedupOptions controls signal merging.
	DedupOptions dedup.Options
	// AmplifyConfig controls domain-age amplification.
	AmplifyConfig urlintel.AmplifyConfig
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxIndicators: 5,
		DedupOptions:  dedup.DefaultOptions(),
		AmplifyConfig: urlintel.DefaultAmplifyConfig(),
	}
}

// DetectionService runs every analysis layer over an email and merges their
// signals into one verdict. Individual layer failures degrade the verdict,
// they never abort it.
type DetectionService struct {
	opts          Options
	engine        *rules.Engine
	aggregator    *threatintel.Aggregator
	impersonation *impersonation.Detector
	anomaly       *anomaly.Detector
	baselines     core.BaselineStore
	domainAge     DomainAgeProvider
	logger        *zap.Logger
	metrics       *metrics.Collectors
	now           func() time.Time
}

// NewDetectionService wires the layers together. The rule engine is the only
// mandatory layer; every other collaborator may be nil and its layer is
// skipped.
func NewDetectionService(
	opts Options,
	engine *rules.Engine,
	aggregator *threatintel.Aggregator,
	imp *impersonation.Detector,
	anomalyDetector *anomaly.Detector,
	baselines core.BaselineStore,
	logger *zap.Logger,
	m *metrics.Collectors,
) (*DetectionService, error) {
	if engine == nil {
		return nil, fmt.Errorf("service: rule engine is required")
	}
	if opts.MaxIndicators <= 0 {
		opts.MaxIndicators = 5
	}
	return &DetectionService{
		opts:          opts,
		engine:        engine,
		aggregator:    aggregator,
		impersonation: imp,
		anomaly:       anomalyDetector,
		baselines:     baselines,
		logger:        logger,
		metrics:       m,
		now:           time.Now,
	}, nil
}

// SetDomainAgeProvider installs the optional registration-age source.
func (s *DetectionService) SetDomainAgeProvider(p DomainAgeProvider) {
	s.domainAge = p
}

// AnalyzeRequest carries one email and its behavioral context through the
// pipeline. Behavior is optional; without it the anomaly layer is skipped.
type AnalyzeRequest struct {
	Email    *core.Email
	Tenant   core.TenantContext
	Behavior *core.EmailBehaviorData
}

// AnalyzeEmail runs the full pipeline and returns the merged verdict.
func (s *DetectionService) AnalyzeEmail(ctx context.Context, req AnalyzeRequest) (*core.Verdict, error) {
	if req.Email == nil {
		return nil, fmt.Errorf("service: email is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	verdict := &core.Verdict{
		EmailID:    req.Email.ID,
		TenantID:   req.Tenant.TenantID,
		AnalyzedAt: s.now().UTC(),
	}

	ruleResult := s.timedLayer(core.LayerDeterministic, func() core.LayerResult {
		return s.engine.Analyze(req.Email, rules.NewContext(req.Tenant))
	})
	verdict.Layers = append(verdict.Layers, ruleResult)

	if s.aggregator != nil && len(req.Email.URLs) > 0 {
		verdict.Layers = append(verdict.Layers, s.threatIntelLayer(ctx, req.Email))
	}
	if s.impersonation != nil {
		verdict.Layers = append(verdict.Layers, s.impersonationLayer(ctx, req.Email, req.Tenant))
	}
	if s.anomaly != nil && req.Behavior != nil {
		verdict.Layers = append(verdict.Layers, s.anomalyLayer(ctx, req))
	}

	var signals []core.Signal
	for _, layer := range verdict.Layers {
		signals = append(signals, layer.Signals...)
	}

	if s.domainAge != nil {
		if age, ok := s.domainAge.AgeInfo(ctx, req.Email.FromDomain()); ok {
			signals = urlintel.AmplifySignals(signals, age, s.opts.AmplifyConfig)
		}
	}

	verdict.Signals = dedup.Deduplicate(signals, s.opts.DedupOptions)
	verdict.Score = core.SumSignalScores(verdict.Signals)
	verdict.RiskLevel = core.RiskLevel(verdict.Score)

	if s.metrics != nil {
		s.metrics.EmailsAnalyzed.Inc()
	}
	if s.logger != nil {
		s.logger.Info("Email analyzed",
			zap.String("email_id", req.Email.ID.String()),
			zap.String("tenant_id", req.Tenant.TenantID),
			zap.Int("score", verdict.Score),
			zap.String("risk_level", verdict.RiskLevel),
			zap.Int("signal_count", len(verdict.Signals)))
	}
	return verdict, nil
}

// threatIntelLayer looks up a bounded set of the email's URLs.
func (s *DetectionService) threatIntelLayer(ctx context.Context, email *core.Email) core.LayerResult {
	return s.timedLayer(core.LayerThreatIntel, func() core.LayerResult {
		indicators := email.URLs
		if len(indicators) > s.opts.MaxIndicators {
			indicators = indicators[:s.opts.MaxIndicators]
		}

		var signals []core.Signal
		var maxConfidence float64
		for _, indicator := range indicators {
			result, err := s.aggregator.Lookup(ctx, indicator, false)
			if err != nil {
				signals = append(signals, s.layerFailureSignal(core.LayerThreatIntel, err))
				continue
			}
			signals = append(signals, threatintel.ToSignals(result)...)
			if result.Confidence > maxConfidence {
				maxConfidence = result.Confidence
			}
		}
		return core.LayerResult{
			Layer:      core.LayerThreatIntel,
			Score:      core.SumSignalScores(signals),
			Confidence: maxConfidence,
			Signals:    signals,
		}
	})
}

func (s *DetectionService) impersonationLayer(ctx context.Context, email *core.Email, tenant core.TenantContext) core.LayerResult {
	return s.timedLayer(core.LayerImpersonation, func() core.LayerResult {
		result, err := s.impersonation.Analyze(ctx, email, tenant)
		if err != nil {
			return core.LayerResult{
				Layer:   core.LayerImpersonation,
				Signals: []core.Signal{s.layerFailureSignal(core.LayerImpersonation, err)},
			}
		}
		return core.LayerResult{
			Layer:      core.LayerImpersonation,
			Score:      core.SumSignalScores(result.Signals),
			Confidence: result.Confidence,
			Signals:    result.Signals,
		}
	})
}

func (s *DetectionService) anomalyLayer(ctx context.Context, req AnalyzeRequest) core.LayerResult {
	return s.timedLayer(core.LayerAnomaly, func() core.LayerResult {
		var baseline *core.TenantBaseline
		if s.baselines != nil {
			var err error
			baseline, err = s.baselines.GetBaseline(ctx, req.Tenant.TenantID)
			if err != nil {
				return core.LayerResult{
					Layer:   core.LayerAnomaly,
					Signals: []core.Signal{s.layerFailureSignal(core.LayerAnomaly, err)},
				}
			}
		}

		result, err := s.anomaly.Analyze(ctx, *req.Behavior, baseline, req.Tenant)
		if err != nil {
			return core.LayerResult{
				Layer:   core.LayerAnomaly,
				Signals: []core.Signal{s.layerFailureSignal(core.LayerAnomaly, err)},
			}
		}

		signals := anomaly.ToSignals(result)
		if result.ShouldAlert && s.metrics != nil {
			s.metrics.AlertsRaised.WithLabelValues("anomaly", string(result.AlertSeverity)).Inc()
		}
		return core.LayerResult{
			Layer:      core.LayerAnomaly,
			Score:      core.SumSignalScores(signals),
			Confidence: confidenceForAnomaly(result),
			Signals:    signals,
		}
	})
}

// layerFailureSignal records a degraded layer as an informational signal so
// the verdict shows what could not be evaluated.
func (s *DetectionService) layerFailureSignal(layer string, err error) core.Signal {
	if s.logger != nil {
		s.logger.Warn("Detection layer degraded",
			zap.String("layer", layer), zap.Error(err))
	}
	return core.NewSignal(core.SignalCheckTimeout, core.SeverityInfo, 0,
		fmt.Sprintf("%s layer unavailable: %v", layer, err),
		map[string]any{"layer": layer})
}

// timedLayer runs a layer and stamps its duration onto the result.
func (s *DetectionService) timedLayer(layer string, fn func() core.LayerResult) core.LayerResult {
	started := time.Now()
	result := fn()
	elapsed := time.Since(started)
	if result.ProcessingTimeMs == 0 {
		result.ProcessingTimeMs = float64(elapsed.Microseconds()) / 1000
	}
	if s.metrics != nil {
		s.metrics.LayerDuration.WithLabelValues(layer).Observe(elapsed.Seconds())
	}
	return result
}

func confidenceForAnomaly(result *core.AnomalyResult) float64 {
	if result == nil || !result.HasAnomaly {
		return 0
	}
	return core.ClampRatio(0.5 + float64(len(result.AnomalyTypes))*0.1)
}
