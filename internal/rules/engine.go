package rules

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/urlintel"
)

// Config holds the engine's tunables.
type Config struct {
	// Confidence is reported on every deterministic layer result. These are
	// rules, not probabilistic models, so it is fixed (default 0.8).
	Confidence float64

	// UrgencyMinMatches is the distinct-pattern threshold for the urgency
	// signal (default 2).
	UrgencyMinMatches int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{Confidence: 0.8, UrgencyMinMatches: 2}
}

// Engine runs the deterministic strategies plus per-URL classification over
// one email. It performs no network I/O.
type Engine struct {
	cfg        Config
	strategies []Strategy
	classifier *urlintel.Classifier
	logger     *zap.Logger
}

// NewEngine creates an engine with the standard strategy set. Configuration
// is validated here so a bad threshold fails at construction, not mid-scan.
func NewEngine(cfg Config, classifier *urlintel.Classifier, logger *zap.Logger) (*Engine, error) {
	if cfg.Confidence <= 0 || cfg.Confidence > 1 {
		return nil, fmt.Errorf("rules: confidence must be in (0,1], got %v", cfg.Confidence)
	}
	if cfg.UrgencyMinMatches < 1 {
		return nil, fmt.Errorf("rules: urgency_min_matches must be >= 1, got %d", cfg.UrgencyMinMatches)
	}
	if classifier == nil {
		return nil, fmt.Errorf("rules: classifier is required")
	}

	return &Engine{
		cfg: cfg,
		strategies: []Strategy{
			NewAuthStrategy(),
			NewSenderStrategy(),
			NewDomainStrategy(),
			NewDisplayNameStrategy(),
			NewHeaderStrategy(),
			NewContentStrategy(cfg.UrgencyMinMatches),
		},
		classifier: classifier,
		logger:     logger,
	}, nil
}

// Analyze runs every strategy and the URL classifier over the email and
// returns the deterministic layer result. The layer score is the signal sum
// saturated at 100.
func (e *Engine) Analyze(email *core.Email, rctx *Context) core.LayerResult {
	started := time.Now()
	if rctx == nil {
		rctx = &Context{}
	}

	signals := make([]core.Signal, 0, 8)
	for _, strategy := range e.strategies {
		signals = append(signals, strategy.Detect(email, rctx)...)
	}
	signals = append(signals, e.urlSignals(email, rctx)...)

	result := core.LayerResult{
		Layer:            core.LayerDeterministic,
		Score:            core.SumSignalScores(signals),
		Confidence:       e.cfg.Confidence,
		Signals:          signals,
		ProcessingTimeMs: float64(time.Since(started).Microseconds()) / 1000,
	}

	if e.logger != nil {
		e.logger.Debug("Deterministic analysis complete",
			zap.String("email_id", email.ID.String()),
			zap.Int("score", result.Score),
			zap.Int("signal_count", len(signals)))
	}
	return result
}

// urlSignals classifies each extracted URL and converts non-zero effective
// scores into signals. The trust multiplier is applied here: a high-trust
// tracking link contributes nothing.
func (e *Engine) urlSignals(email *core.Email, rctx *Context) []core.Signal {
	var signals []core.Signal
	for _, raw := range email.URLs {
		classification := e.classifier.Classify(raw, rctx.KnownTrackingDomains)
		effective := classification.EffectiveScore()
		if effective == 0 && (classification.Type == core.URLSafe || classification.TrustLevel == core.TrustHigh) {
			continue
		}

		meta := map[string]any{
			"url":         classification.URL,
			"trust_level": string(classification.TrustLevel),
		}
		for k, v := range classification.Metadata {
			meta[k] = v
		}

		signals = append(signals, core.NewSignal(
			signalTypeForURL(classification.Type),
			severityForURL(classification.Type, effective),
			effective,
			classification.Reason,
			meta,
		))
	}
	return signals
}

func signalTypeForURL(t core.URLType) core.SignalType {
	switch t {
	case core.URLMalicious:
		return core.SignalMaliciousURL
	case core.URLRedirect:
		return core.SignalRedirectURL
	case core.URLTracking:
		return core.SignalTrackingURL
	case core.URLShortener:
		return core.SignalShortenerURL
	default:
		return core.SignalTrackingURL
	}
}

func severityForURL(t core.URLType, effectiveScore int) core.Severity {
	if t == core.URLMalicious && effectiveScore >= 30 {
		return core.SeverityCritical
	}
	if effectiveScore >= 15 {
		return core.SeverityWarning
	}
	return core.SeverityInfo
}
