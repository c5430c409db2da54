// Package anomaly scores an email against its tenant's statistical baseline
// across volume, time-of-day, recipient-novelty, and content dimensions.
package anomaly

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/rules"
)

// Dimension severity grades.
const (
	GradeLow    = "low"
	GradeMedium = "medium"
	GradeHigh   = "high"
)

// Config holds the detector's tunables. The composite weights are
// empirically tuned constants; they are configuration, not derivation.
type Config struct {
	VolumeZThreshold         float64
	HourProbabilityThreshold float64
	WeekendActivityThreshold float64
	AlertThreshold           int
	Weights                  map[core.AnomalyDimension]float64
	DisabledDimensions       []core.AnomalyDimension
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		VolumeZThreshold:         3.0,
		HourProbabilityThreshold: 0.02,
		WeekendActivityThreshold: 0.1,
		AlertThreshold:           75,
		Weights: map[core.AnomalyDimension]float64{
			core.DimensionVolume:    0.30,
			core.DimensionTime:      0.20,
			core.DimensionRecipient: 0.25,
			core.DimensionContent:   0.25,
		},
	}
}

// Detector computes per-dimension anomalies and their weighted composite.
type Detector struct {
	cfg      Config
	adjuster *Adjuster
	logger   *zap.Logger
}

// NewDetector validates configuration and builds a detector. The adjuster is
// optional; without it no feedback adjustment is applied.
func NewDetector(cfg Config, adjuster *Adjuster, logger *zap.Logger) (*Detector, error) {
	if cfg.VolumeZThreshold <= 0 {
		return nil, fmt.Errorf("anomaly: volume z threshold must be positive, got %v", cfg.VolumeZThreshold)
	}
	if cfg.HourProbabilityThreshold <= 0 || cfg.HourProbabilityThreshold >= 1 {
		return nil, fmt.Errorf("anomaly: hour probability threshold must be in (0,1), got %v", cfg.HourProbabilityThreshold)
	}
	if cfg.AlertThreshold <= 0 || cfg.AlertThreshold > 100 {
		return nil, fmt.Errorf("anomaly: alert threshold must be in (0,100], got %d", cfg.AlertThreshold)
	}
	var weightSum float64
	for dim, w := range cfg.Weights {
		if w < 0 {
			return nil, fmt.Errorf("anomaly: weight for %q must be non-negative, got %v", dim, w)
		}
		weightSum += w
	}
	if math.Abs(weightSum-1.0) > 0.01 {
		return nil, fmt.Errorf("anomaly: dimension weights must sum to 1, got %v", weightSum)
	}
	for _, dim := range cfg.DisabledDimensions {
		if _, ok := cfg.Weights[dim]; !ok {
			return nil, fmt.Errorf("anomaly: cannot disable unknown dimension %q", dim)
		}
	}
	return &Detector{cfg: cfg, adjuster: adjuster, logger: logger}, nil
}

// Analyze scores one email's behavior against the tenant baseline. A nil
// baseline yields a neutral result: no profile means nothing to deviate from.
func (d *Detector) Analyze(ctx context.Context, behavior core.EmailBehaviorData, baseline *core.TenantBaseline, tenant core.TenantContext) (*core.AnomalyResult, error) {
	result := &core.AnomalyResult{
		Details:       make(map[core.AnomalyDimension]core.DimensionDetail),
		AlertSeverity: core.SeverityInfo,
	}
	if baseline == nil {
		return result, nil
	}

	disabled := d.disabledSet(tenant)
	if !disabled[core.DimensionVolume] {
		if detail, ok := d.checkVolume(behavior, baseline); ok {
			result.Details[core.DimensionVolume] = detail
			result.AnomalyTypes = append(result.AnomalyTypes, core.DimensionVolume)
		}
	}
	if !disabled[core.DimensionTime] {
		if detail, ok := d.checkTime(behavior, baseline); ok {
			result.Details[core.DimensionTime] = detail
			result.AnomalyTypes = append(result.AnomalyTypes, core.DimensionTime)
		}
	}
	if !disabled[core.DimensionRecipient] {
		if detail, ok := d.checkRecipients(behavior, baseline); ok {
			result.Details[core.DimensionRecipient] = detail
			result.AnomalyTypes = append(result.AnomalyTypes, core.DimensionRecipient)
		}
	}
	if !disabled[core.DimensionContent] {
		if detail, ok := d.checkContent(behavior); ok {
			result.Details[core.DimensionContent] = detail
			result.AnomalyTypes = append(result.AnomalyTypes, core.DimensionContent)
		}
	}

	composite := 0.0
	for dim, detail := range result.Details {
		composite += float64(detail.Score) * d.cfg.Weights[dim]
	}

	if d.adjuster != nil && len(result.AnomalyTypes) > 0 {
		adjustment, err := d.adjuster.AdjustmentFor(ctx, tenant.TenantID, result.AnomalyTypes)
		if err != nil {
			// Feedback is an enhancement; its absence never fails detection.
			if d.logger != nil {
				d.logger.Warn("Feedback adjustment unavailable",
					zap.String("tenant", tenant.TenantID), zap.Error(err))
			}
		} else {
			result.FeedbackAdjustment = adjustment
			composite += float64(adjustment)
		}
	}

	result.CompositeScore = core.ClampScore(int(math.Round(composite)))
	result.HasAnomaly = len(result.AnomalyTypes) > 0
	result.ShouldAlert = result.CompositeScore >= d.cfg.AlertThreshold
	if result.ShouldAlert {
		result.AlertSeverity = core.SeverityCritical
	} else if result.HasAnomaly {
		result.AlertSeverity = core.SeverityWarning
	}
	return result, nil
}

// ToSignals converts an anomaly result into the shared signal vocabulary.
func ToSignals(result *core.AnomalyResult) []core.Signal {
	if result == nil || !result.HasAnomaly {
		return nil
	}
	signals := make([]core.Signal, 0, len(result.AnomalyTypes))
	for _, dim := range result.AnomalyTypes {
		detail := result.Details[dim]
		sev := core.SeverityInfo
		switch detail.Severity {
		case GradeHigh:
			sev = core.SeverityCritical
		case GradeMedium:
			sev = core.SeverityWarning
		}
		signals = append(signals, core.NewSignal(signalTypeFor(dim), sev,
			weightedContribution(detail.Score), detail.Detail,
			map[string]any{"dimension": string(dim), "grade": detail.Severity}))
	}
	return signals
}

// weightedContribution scales a 0-100 dimension score down to a signal-sized
// contribution so four anomalies cannot alone max out an email.
func weightedContribution(score int) int {
	return core.ClampScore(score / 4)
}

func signalTypeFor(dim core.AnomalyDimension) core.SignalType {
	switch dim {
	case core.DimensionVolume:
		return core.SignalVolumeAnomaly
	case core.DimensionTime:
		return core.SignalTimeAnomaly
	case core.DimensionRecipient:
		return core.SignalRecipientAnomaly
	default:
		return core.SignalContentAnomaly
	}
}

func (d *Detector) disabledSet(tenant core.TenantContext) map[core.AnomalyDimension]bool {
	set := make(map[core.AnomalyDimension]bool, len(d.cfg.DisabledDimensions)+len(tenant.DisabledAnomalyTypes))
	for _, dim := range d.cfg.DisabledDimensions {
		set[dim] = true
	}
	for _, dim := range tenant.DisabledAnomalyTypes {
		set[dim] = true
	}
	return set
}

// checkVolume computes a z-score for the sender's observed daily volume.
func (d *Detector) checkVolume(behavior core.EmailBehaviorData, baseline *core.TenantBaseline) (core.DimensionDetail, bool) {
	stats := baseline.DailyEmailVolume
	if stats.StdDev <= 0 {
		return core.DimensionDetail{}, false
	}
	z := (behavior.SenderDailyVolume - stats.Mean) / stats.StdDev
	if math.Abs(z) < 1 {
		return core.DimensionDetail{}, false
	}

	grade := GradeLow
	switch {
	case math.Abs(z) >= d.cfg.VolumeZThreshold:
		grade = GradeHigh
	case math.Abs(z) >= 2:
		grade = GradeMedium
	}
	return core.DimensionDetail{
		ZScore:   z,
		Score:    core.ClampScore(int(math.Round(math.Abs(z) * 15))),
		Severity: grade,
		Detail: fmt.Sprintf("daily volume %.0f vs baseline %.1f±%.1f (z=%.1f)",
			behavior.SenderDailyVolume, stats.Mean, stats.StdDev, z),
	}, true
}

// checkTime flags sends at hours the tenant rarely uses, and weekend sends
// for weekday-only tenants.
func (d *Detector) checkTime(behavior core.EmailBehaviorData, baseline *core.TenantBaseline) (core.DimensionDetail, bool) {
	hour := behavior.SentAt.Hour()
	p := baseline.HourlyDistribution[hour]
	weekend := isWeekend(behavior.SentAt)
	quietWeekend := weekend && baseline.WeekendActivity < d.cfg.WeekendActivityThreshold

	score := 0
	var parts []string
	grade := GradeLow

	if p < d.cfg.HourProbabilityThreshold {
		score += 50
		grade = GradeMedium
		if p < d.cfg.HourProbabilityThreshold/2 {
			grade = GradeHigh
		}
		parts = append(parts, fmt.Sprintf("hour %02d has baseline probability %.3f", hour, p))
	}
	if quietWeekend {
		score += 30
		parts = append(parts, fmt.Sprintf("weekend send for a tenant with %.0f%% weekend activity", baseline.WeekendActivity*100))
		if grade == GradeLow {
			grade = GradeMedium
		}
	}
	if score == 0 {
		return core.DimensionDetail{}, false
	}
	return core.DimensionDetail{
		Probability: p,
		Score:       core.ClampScore(score),
		Severity:    grade,
		Detail:      strings.Join(parts, "; "),
	}, true
}

// checkRecipients counts recipients outside the tenant's known set.
func (d *Detector) checkRecipients(behavior core.EmailBehaviorData, baseline *core.TenantBaseline) (core.DimensionDetail, bool) {
	newCount := 0
	for _, rcpt := range behavior.Recipients {
		if isKnownRecipient(rcpt, baseline) {
			continue
		}
		newCount++
	}
	if newCount == 0 {
		return core.DimensionDetail{}, false
	}

	score := newCount * 25
	if behavior.FirstContact {
		score += 15
	}
	grade := GradeLow
	switch {
	case newCount >= 4:
		grade = GradeHigh
	case newCount >= 2:
		grade = GradeMedium
	}
	return core.DimensionDetail{
		Score:    core.ClampScore(score),
		Severity: grade,
		Detail:   fmt.Sprintf("%d recipient(s) outside the tenant's known set", newCount),
	}, true
}

var punctuationRunRe = regexp.MustCompile(`[!?]{3,}`)

// checkContent flags the stylistic tells of pressure campaigns.
func (d *Detector) checkContent(behavior core.EmailBehaviorData) (core.DimensionDetail, bool) {
	score := 0
	var parts []string

	if n := rules.CountUrgencyMatches(behavior.Subject); n >= 2 {
		score += 40
		parts = append(parts, fmt.Sprintf("%d urgency phrases in subject", n))
	}
	if punctuationRunRe.MatchString(behavior.Subject) {
		score += 20
		parts = append(parts, "excessive punctuation run")
	}
	if isAllCaps(behavior.Subject) {
		score += 25
		parts = append(parts, "all-caps subject")
	}
	if score == 0 {
		return core.DimensionDetail{}, false
	}

	grade := GradeLow
	switch {
	case score >= 65:
		grade = GradeHigh
	case score >= 40:
		grade = GradeMedium
	}
	return core.DimensionDetail{
		Score:    core.ClampScore(score),
		Severity: grade,
		Detail:   strings.Join(parts, "; "),
	}, true
}

func isKnownRecipient(rcpt string, baseline *core.TenantBaseline) bool {
	for _, known := range baseline.TopRecipients {
		if strings.EqualFold(known, rcpt) {
			return true
		}
	}
	return core.ContainsDomain(core.DomainOf(rcpt), baseline.KnownRecipientDomains)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// isAllCaps reports whether a subject with at least five letters contains no
// lowercase at all.
func isAllCaps(s string) bool {
	letters, lower := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsLower(r) {
				lower++
			}
		}
	}
	return letters >= 5 && lower == 0
}
