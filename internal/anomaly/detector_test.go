package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxguard/inboxguard/internal/adapters/storage"
	"github.com/inboxguard/inboxguard/internal/core"
)

// quietWednesday is a weekday send at an hour the test baselines mark as
// perfectly normal.
var quietWednesday = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func testBaseline() *core.TenantBaseline {
	b := &core.TenantBaseline{
		TenantID:              "acme",
		DailyEmailVolume:      core.VolumeStats{Mean: 10, StdDev: 2},
		TopRecipients:         []string{"alice@acme.example", "bob@acme.example"},
		KnownRecipientDomains: []string{"acme.example"},
		WeekendActivity:       0.3,
	}
	for i := range b.HourlyDistribution {
		b.HourlyDistribution[i] = 1.0 / 24
	}
	return b
}

func normalBehavior() core.EmailBehaviorData {
	return core.EmailBehaviorData{
		Sender:            "alice@acme.example",
		Recipients:        []string{"bob@acme.example"},
		Subject:           "Weekly status report",
		SentAt:            quietWednesday,
		SenderDailyVolume: 10,
	}
}

func newTestDetector(t *testing.T, adjuster *Adjuster) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultConfig(), adjuster, nil)
	require.NoError(t, err)
	return d
}

func TestNewDetectorValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero z threshold", func(c *Config) { c.VolumeZThreshold = 0 }},
		{"hour threshold out of range", func(c *Config) { c.HourProbabilityThreshold = 1 }},
		{"alert threshold out of range", func(c *Config) { c.AlertThreshold = 101 }},
		{"weights do not sum to one", func(c *Config) {
			c.Weights = map[core.AnomalyDimension]float64{core.DimensionVolume: 0.5}
		}},
		{"negative weight", func(c *Config) {
			c.Weights[core.DimensionVolume] = -0.3
		}},
		{"disabling unknown dimension", func(c *Config) {
			c.DisabledDimensions = []core.AnomalyDimension{"entropy"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewDetector(cfg, nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestAnalyzeVolumeSpike(t *testing.T) {
	d := newTestDetector(t, nil)

	behavior := normalBehavior()
	behavior.SenderDailyVolume = 20

	result, err := d.Analyze(context.Background(), behavior, testBaseline(), core.TenantContext{TenantID: "acme"})
	require.NoError(t, err)

	require.True(t, result.HasAnomaly)
	require.Contains(t, result.AnomalyTypes, core.DimensionVolume)

	detail := result.Details[core.DimensionVolume]
	assert.InDelta(t, 5.0, detail.ZScore, 0.001)
	assert.Equal(t, 75, detail.Score)
	assert.Equal(t, GradeHigh, detail.Severity)

	// A single dimension cannot reach the alert threshold on its own.
	assert.False(t, result.ShouldAlert)
	assert.Equal(t, core.SeverityWarning, result.AlertSeverity)
}

func TestAnalyzeNilBaselineIsNeutral(t *testing.T) {
	d := newTestDetector(t, nil)

	behavior := normalBehavior()
	behavior.SenderDailyVolume = 1000

	result, err := d.Analyze(context.Background(), behavior, nil, core.TenantContext{TenantID: "acme"})
	require.NoError(t, err)
	assert.False(t, result.HasAnomaly)
	assert.Zero(t, result.CompositeScore)
	assert.Equal(t, core.SeverityInfo, result.AlertSeverity)
}

func TestAnalyzeNormalBehaviorIsClean(t *testing.T) {
	d := newTestDetector(t, nil)

	result, err := d.Analyze(context.Background(), normalBehavior(), testBaseline(), core.TenantContext{TenantID: "acme"})
	require.NoError(t, err)
	assert.False(t, result.HasAnomaly)
	assert.Zero(t, result.CompositeScore)
	assert.False(t, result.ShouldAlert)
}

func TestAnalyzeTimeDimension(t *testing.T) {
	d := newTestDetector(t, nil)

	baseline := testBaseline()
	baseline.HourlyDistribution = [24]float64{}
	baseline.HourlyDistribution[10] = 0.5
	baseline.WeekendActivity = 0.01

	behavior := normalBehavior()
	// Saturday 03:00 for a weekday-only tenant.
	behavior.SentAt = time.Date(2026, 3, 7, 3, 0, 0, 0, time.UTC)

	result, err := d.Analyze(context.Background(), behavior, baseline, core.TenantContext{TenantID: "acme"})
	require.NoError(t, err)

	require.Contains(t, result.AnomalyTypes, core.DimensionTime)
	detail := result.Details[core.DimensionTime]
	assert.Equal(t, 80, detail.Score)
	assert.Equal(t, GradeHigh, detail.Severity)
}

func TestAnalyzeRecipientDimension(t *testing.T) {
	d := newTestDetector(t, nil)

	behavior := normalBehavior()
	behavior.Recipients = []string{"stranger@elsewhere.example", "bob@acme.example"}
	behavior.FirstContact = true

	result, err := d.Analyze(context.Background(), behavior, testBaseline(), core.TenantContext{TenantID: "acme"})
	require.NoError(t, err)

	require.Contains(t, result.AnomalyTypes, core.DimensionRecipient)
	detail := result.Details[core.DimensionRecipient]
	assert.Equal(t, 40, detail.Score)
	assert.Equal(t, GradeLow, detail.Severity)
}

func TestAnalyzeContentDimension(t *testing.T) {
	d := newTestDetector(t, nil)

	behavior := normalBehavior()
	behavior.Subject = "URGENT ACTION REQUIRED IMMEDIATELY!!!"

	result, err := d.Analyze(context.Background(), behavior, testBaseline(), core.TenantContext{TenantID: "acme"})
	require.NoError(t, err)

	require.Contains(t, result.AnomalyTypes, core.DimensionContent)
	detail := result.Details[core.DimensionContent]
	assert.Equal(t, 85, detail.Score)
	assert.Equal(t, GradeHigh, detail.Severity)
}

func TestAnalyzeCompositeAlert(t *testing.T) {
	d := newTestDetector(t, nil)

	baseline := testBaseline()
	baseline.HourlyDistribution = [24]float64{}
	baseline.HourlyDistribution[10] = 0.5

	behavior := core.EmailBehaviorData{
		Sender:            "alice@acme.example",
		Recipients:        []string{"x@one.example", "y@two.example", "z@three.example"},
		Subject:           "URGENT ACTION REQUIRED IMMEDIATELY!!!",
		SentAt:            time.Date(2026, 3, 4, 3, 0, 0, 0, time.UTC),
		SenderDailyVolume: 30,
		FirstContact:      true,
	}

	result, err := d.Analyze(context.Background(), behavior, baseline, core.TenantContext{TenantID: "acme"})
	require.NoError(t, err)

	assert.Len(t, result.AnomalyTypes, 4)
	assert.True(t, result.ShouldAlert)
	assert.Equal(t, core.SeverityCritical, result.AlertSeverity)
	assert.GreaterOrEqual(t, result.CompositeScore, 75)
}

func TestAnalyzeDisabledDimensions(t *testing.T) {
	behavior := normalBehavior()
	behavior.SenderDailyVolume = 20

	t.Run("via config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DisabledDimensions = []core.AnomalyDimension{core.DimensionVolume}
		d, err := NewDetector(cfg, nil, nil)
		require.NoError(t, err)

		result, err := d.Analyze(context.Background(), behavior, testBaseline(), core.TenantContext{TenantID: "acme"})
		require.NoError(t, err)
		assert.NotContains(t, result.AnomalyTypes, core.DimensionVolume)
		assert.False(t, result.HasAnomaly)
	})

	t.Run("via tenant context", func(t *testing.T) {
		d := newTestDetector(t, nil)
		tenant := core.TenantContext{
			TenantID:             "acme",
			DisabledAnomalyTypes: []core.AnomalyDimension{core.DimensionVolume},
		}
		result, err := d.Analyze(context.Background(), behavior, testBaseline(), tenant)
		require.NoError(t, err)
		assert.NotContains(t, result.AnomalyTypes, core.DimensionVolume)
	})
}

func TestAnalyzeFeedbackAdjustment(t *testing.T) {
	store := storage.NewMemoryFeedbackStore()
	adjuster := NewAdjuster(store)
	for i := 0; i < 2; i++ {
		require.NoError(t, adjuster.Record(context.Background(), core.FeedbackRecord{
			TenantID:     "acme",
			Kind:         core.FeedbackFalsePositive,
			AnomalyTypes: []core.AnomalyDimension{core.DimensionVolume},
		}))
	}

	behavior := normalBehavior()
	behavior.SenderDailyVolume = 20

	plain, err := newTestDetector(t, nil).Analyze(context.Background(), behavior, testBaseline(), core.TenantContext{TenantID: "acme"})
	require.NoError(t, err)

	adjusted, err := newTestDetector(t, adjuster).Analyze(context.Background(), behavior, testBaseline(), core.TenantContext{TenantID: "acme"})
	require.NoError(t, err)

	assert.Equal(t, -6, adjusted.FeedbackAdjustment)
	assert.Equal(t, plain.CompositeScore-6, adjusted.CompositeScore)
}

func TestToSignals(t *testing.T) {
	result := &core.AnomalyResult{
		HasAnomaly:   true,
		AnomalyTypes: []core.AnomalyDimension{core.DimensionVolume, core.DimensionContent},
		Details: map[core.AnomalyDimension]core.DimensionDetail{
			core.DimensionVolume:  {Score: 100, Severity: GradeHigh, Detail: "volume spike"},
			core.DimensionContent: {Score: 40, Severity: GradeMedium, Detail: "urgency phrasing"},
		},
	}

	signals := ToSignals(result)
	require.Len(t, signals, 2)

	assert.Equal(t, core.SignalVolumeAnomaly, signals[0].Type)
	assert.Equal(t, core.SeverityCritical, signals[0].Severity)
	assert.Equal(t, 25, signals[0].Score)

	assert.Equal(t, core.SignalContentAnomaly, signals[1].Type)
	assert.Equal(t, core.SeverityWarning, signals[1].Severity)
	assert.Equal(t, 10, signals[1].Score)

	assert.Nil(t, ToSignals(nil))
	assert.Nil(t, ToSignals(&core.AnomalyResult{}))
}
