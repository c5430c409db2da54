package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxguard/inboxguard/internal/adapters/storage"
	"github.com/inboxguard/inboxguard/internal/adapters/vip"
	"github.com/inboxguard/inboxguard/internal/anomaly"
	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/impersonation"
	"github.com/inboxguard/inboxguard/internal/rules"
	"github.com/inboxguard/inboxguard/internal/threatintel"
	"github.com/inboxguard/inboxguard/internal/urlintel"
)

// countingFeed records lookups and answers from a fixed table.
type countingFeed struct {
	verdicts map[string]core.FeedVerdict
	fail     error
	calls    atomic.Int64
}

func (f *countingFeed) Name() string         { return "counting" }
func (f *countingFeed) Reliability() float64 { return 0.9 }

func (f *countingFeed) Lookup(_ context.Context, indicator string) (*core.FeedVerdict, error) {
	f.calls.Add(1)
	if f.fail != nil {
		return nil, f.fail
	}
	if v, ok := f.verdicts[indicator]; ok {
		return &v, nil
	}
	return &core.FeedVerdict{Verdict: threatintel.VerdictClean, Score: 5}, nil
}

func newTestEngine(t *testing.T) *rules.Engine {
	t.Helper()
	classifier := urlintel.NewClassifier(nil, urlintel.DefaultObfuscationConfig())
	engine, err := rules.NewEngine(rules.DefaultConfig(), classifier, nil)
	require.NoError(t, err)
	return engine
}

func newTestService(t *testing.T, feed core.ThreatFeed) *DetectionService {
	t.Helper()

	var aggregator *threatintel.Aggregator
	if feed != nil {
		var err error
		aggregator, err = threatintel.NewAggregator(threatintel.DefaultConfig(),
			[]core.ThreatFeed{feed}, nil, nil, nil)
		require.NoError(t, err)
	}

	directory := vip.NewConfigDirectory([]core.VIP{
		{Name: "Jane Rivera", Email: "jane@acme.example", Title: "CEO"},
	})

	anomalyDetector, err := anomaly.NewDetector(anomaly.DefaultConfig(), nil, nil)
	require.NoError(t, err)

	baselines := storage.NewMemoryBaselineStore()
	baselines.Put(&core.TenantBaseline{
		TenantID:         "acme",
		DailyEmailVolume: core.VolumeStats{Mean: 10, StdDev: 2},
	})

	svc, err := NewDetectionService(DefaultOptions(), newTestEngine(t), aggregator,
		impersonation.NewDetector(directory, nil), anomalyDetector, baselines, nil, nil)
	require.NoError(t, err)
	return svc
}

func acmeTenant() core.TenantContext {
	return core.TenantContext{TenantID: "acme", OrgDomains: []string{"acme.example"}}
}

func layerNames(verdict *core.Verdict) []string {
	names := make([]string, 0, len(verdict.Layers))
	for _, layer := range verdict.Layers {
		names = append(names, layer.Layer)
	}
	return names
}

func TestNewDetectionServiceRequiresEngine(t *testing.T) {
	_, err := NewDetectionService(DefaultOptions(), nil, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestAnalyzeEmailRequiresEmail(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.AnalyzeEmail(context.Background(), AnalyzeRequest{Tenant: acmeTenant()})
	assert.Error(t, err)
}

func TestAnalyzeEmailCleanMessage(t *testing.T) {
	svc := newTestService(t, &countingFeed{})

	email := &core.Email{
		ID:       uuid.New(),
		TenantID: "acme",
		Headers:  map[string]string{"Received-SPF": "pass", "Message-ID": "<ok@partner.example>"},
		From:     core.EmailAddress{Address: "alice@partner.example", Domain: "partner.example", DisplayName: "Alice"},
		Subject:  "Quarterly report attached",
		TextBody: "Please find the quarterly report attached.",
	}

	verdict, err := svc.AnalyzeEmail(context.Background(), AnalyzeRequest{Email: email, Tenant: acmeTenant()})
	require.NoError(t, err)

	assert.Zero(t, verdict.Score)
	assert.Equal(t, "none", verdict.RiskLevel)
	// No URLs means the threat intel layer never runs.
	assert.NotContains(t, layerNames(verdict), core.LayerThreatIntel)
}

func TestAnalyzeEmailPhishingPipeline(t *testing.T) {
	feed := &countingFeed{verdicts: map[string]core.FeedVerdict{
		"https://paypa1.com/login": {Verdict: threatintel.VerdictMalicious, Score: 90},
	}}
	svc := newTestService(t, feed)

	email := &core.Email{
		ID:       uuid.New(),
		TenantID: "acme",
		Headers:  map[string]string{"Received-SPF": "fail", "Message-ID": "<x@gmail.com>"},
		From:     core.EmailAddress{Address: "jane.rivera.ceo@gmail.com", Domain: "gmail.com", DisplayName: "Jane Rivera"},
		Subject:  "Urgent wire transfer needed immediately",
		TextBody: "I need you to process a wire transfer right away.",
		URLs:     []string{"https://paypa1.com/login"},
	}
	behavior := &core.EmailBehaviorData{
		Sender:            email.From.Address,
		Subject:           email.Subject,
		SentAt:            time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		SenderDailyVolume: 10,
	}

	verdict, err := svc.AnalyzeEmail(context.Background(),
		AnalyzeRequest{Email: email, Tenant: acmeTenant(), Behavior: behavior})
	require.NoError(t, err)

	names := layerNames(verdict)
	assert.Contains(t, names, core.LayerDeterministic)
	assert.Contains(t, names, core.LayerThreatIntel)
	assert.Contains(t, names, core.LayerImpersonation)
	assert.Contains(t, names, core.LayerAnomaly)

	assert.Equal(t, 100, verdict.Score)
	assert.Equal(t, "critical", verdict.RiskLevel)

	types := make(map[core.SignalType]bool)
	for _, sig := range verdict.Signals {
		types[sig.Type] = true
	}
	assert.True(t, types[core.SignalSPFFail])
	assert.True(t, types[core.SignalBECImpersonation])
	assert.True(t, types[core.SignalThreatIntel])
}

func TestAnalyzeEmailDegradesOnFeedFailure(t *testing.T) {
	svc := newTestService(t, &countingFeed{fail: errors.New("feed down")})

	email := &core.Email{
		ID:      uuid.New(),
		Headers: map[string]string{"Message-ID": "<m@partner.example>"},
		From:    core.EmailAddress{Address: "a@partner.example", Domain: "partner.example"},
		URLs:    []string{"https://example.com/page"},
	}

	verdict, err := svc.AnalyzeEmail(context.Background(), AnalyzeRequest{Email: email, Tenant: acmeTenant()})
	require.NoError(t, err)

	// The errored feed is excluded from consensus inside the aggregator; the
	// verdict still includes the layer with nothing to report.
	assert.Contains(t, layerNames(verdict), core.LayerThreatIntel)
	assert.Zero(t, verdict.Score)
}

func TestAnalyzeEmailBoundsIndicators(t *testing.T) {
	feed := &countingFeed{}
	svc := newTestService(t, feed)

	var urls []string
	for i := 0; i < 8; i++ {
		urls = append(urls, fmt.Sprintf("https://site-%d.example/page", i))
	}
	email := &core.Email{
		ID:      uuid.New(),
		Headers: map[string]string{"Message-ID": "<m@partner.example>"},
		From:    core.EmailAddress{Address: "a@partner.example", Domain: "partner.example"},
		URLs:    urls,
	}

	_, err := svc.AnalyzeEmail(context.Background(), AnalyzeRequest{Email: email, Tenant: acmeTenant()})
	require.NoError(t, err)
	assert.Equal(t, int64(5), feed.calls.Load())
}

func TestAnalyzeEmailDedupesTrackingSignals(t *testing.T) {
	svc := newTestService(t, nil)

	email := &core.Email{
		ID:      uuid.New(),
		Headers: map[string]string{"Received-SPF": "pass", "Message-ID": "<m@news.example>"},
		From:    core.EmailAddress{Address: "digest@news.example", Domain: "news.example"},
		URLs: []string{
			"https://click.sendgrid.net/t/1",
			"https://click.sendgrid.net/t/2",
			"https://click.sendgrid.net/t/3",
		},
	}

	verdict, err := svc.AnalyzeEmail(context.Background(), AnalyzeRequest{Email: email, Tenant: acmeTenant()})
	require.NoError(t, err)

	var tracking []core.Signal
	for _, sig := range verdict.Signals {
		if sig.Type == core.SignalTrackingURL {
			tracking = append(tracking, sig)
		}
	}
	require.Len(t, tracking, 1)
	assert.Equal(t, 3, tracking[0].Meta("duplicate_count"))
}

func TestAnalyzeEmailDomainAgeAmplification(t *testing.T) {
	svc := newTestService(t, nil)
	svc.SetDomainAgeProvider(staticAgeProvider{
		"evil-fresh.example": {Domain: "evil-fresh.example", AgeDays: 3, Known: true},
	})

	email := &core.Email{
		ID:       uuid.New(),
		Headers:  map[string]string{"Received-SPF": "pass", "Message-ID": "<m@evil-fresh.example>"},
		From:     core.EmailAddress{Address: "billing@evil-fresh.example", Domain: "evil-fresh.example"},
		Subject:  "Verify your account",
		TextBody: "You must verify your account password now.",
	}

	verdict, err := svc.AnalyzeEmail(context.Background(), AnalyzeRequest{Email: email, Tenant: acmeTenant()})
	require.NoError(t, err)

	var amplified bool
	for _, sig := range verdict.Signals {
		if sig.Type == core.SignalCredentialRequest {
			amplified = sig.Meta("age_amplified") == true
			assert.Equal(t, 60, sig.Score)
		}
	}
	assert.True(t, amplified)
}

type staticAgeProvider map[string]urlintel.DomainAgeInfo

func (p staticAgeProvider) AgeInfo(_ context.Context, domain string) (urlintel.DomainAgeInfo, bool) {
	info, ok := p[domain]
	return info, ok
}

func TestAnalyzeEmailCancelledContext(t *testing.T) {
	svc := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.AnalyzeEmail(ctx, AnalyzeRequest{Email: &core.Email{ID: uuid.New()}, Tenant: acmeTenant()})
	assert.Error(t, err)
}
