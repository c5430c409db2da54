package rules

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/urlintel"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultConfig(),
		urlintel.NewClassifier(nil, urlintel.DefaultObfuscationConfig()), nil)
	require.NoError(t, err)
	return engine
}

func baseEmail() *core.Email {
	return &core.Email{
		ID:       uuid.New(),
		TenantID: "tenant-1",
		Headers: map[string]string{
			"Message-ID": "<abc@corp.example>",
		},
		From: core.EmailAddress{
			Address:     "jane@corp.example",
			Domain:      "corp.example",
			DisplayName: "Jane Doe",
		},
		Subject:    "Quarterly report",
		TextBody:   "Attached is the quarterly report for review.",
		ReceivedAt: time.Now(),
	}
}

func TestNewEngineValidation(t *testing.T) {
	classifier := urlintel.NewClassifier(nil, urlintel.DefaultObfuscationConfig())

	_, err := NewEngine(Config{Confidence: 0, UrgencyMinMatches: 2}, classifier, nil)
	assert.Error(t, err)

	_, err = NewEngine(Config{Confidence: 1.2, UrgencyMinMatches: 2}, classifier, nil)
	assert.Error(t, err)

	_, err = NewEngine(Config{Confidence: 0.8, UrgencyMinMatches: 0}, classifier, nil)
	assert.Error(t, err)

	_, err = NewEngine(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestAnalyzeCleanEmail(t *testing.T) {
	engine := newTestEngine(t)
	email := baseEmail()
	email.Headers["Received-SPF"] = "pass"

	result := engine.Analyze(email, nil)
	assert.Equal(t, core.LayerDeterministic, result.Layer)
	assert.Equal(t, 0, result.Score)
	// The passing SPF check is still recorded for explainability.
	require.Len(t, result.Signals, 1)
	assert.Equal(t, core.SignalSPFPass, result.Signals[0].Type)
	assert.Equal(t, 0, result.Signals[0].Score)
}

func TestAnalyzeSaturatesAtHundred(t *testing.T) {
	// DMARC failure plus financial and credential requests exceed the cap.
	engine := newTestEngine(t)
	email := baseEmail()
	email.Headers["Received-SPF"] = "pass"
	email.Headers["Authentication-Results"] = "corp.example; dmarc=fail"
	email.TextBody = "Please process the wire transfer and verify your account before the deadline."

	result := engine.Analyze(email, nil)
	assert.Equal(t, 100, result.Score)

	types := signalTypes(result.Signals)
	assert.Contains(t, types, core.SignalDMARCFail)
	assert.Contains(t, types, core.SignalFinancialRequest)
	assert.Contains(t, types, core.SignalCredentialRequest)
}

func TestAuthStrategy(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		wantType core.SignalType
		wantScore int
	}{
		{
			name:      "spf pass",
			headers:   map[string]string{"Received-SPF": "pass (sender authorized)"},
			wantType:  core.SignalSPFPass,
			wantScore: 0,
		},
		{
			name:      "spf softfail",
			headers:   map[string]string{"Received-SPF": "softfail"},
			wantType:  core.SignalSPFSoftfail,
			wantScore: 10,
		},
		{
			name:      "spf fail",
			headers:   map[string]string{"Received-SPF": "fail"},
			wantType:  core.SignalSPFFail,
			wantScore: 20,
		},
		{
			name:      "spf fail via authentication results",
			headers:   map[string]string{"Authentication-Results": "corp.example; spf=fail"},
			wantType:  core.SignalSPFFail,
			wantScore: 20,
		},
		{
			name:      "case-insensitive header lookup",
			headers:   map[string]string{"received-spf": "fail"},
			wantType:  core.SignalSPFFail,
			wantScore: 20,
		},
	}

	strategy := NewAuthStrategy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := baseEmail()
			for k, v := range tt.headers {
				email.Headers[k] = v
			}
			signals := strategy.Detect(email, &Context{})
			require.Len(t, signals, 1)
			assert.Equal(t, tt.wantType, signals[0].Type)
			assert.Equal(t, tt.wantScore, signals[0].Score)
		})
	}
}

func TestAuthStrategyDMARCFail(t *testing.T) {
	email := baseEmail()
	email.Headers["Authentication-Results"] = "corp.example; spf=pass; dmarc=fail"

	signals := NewAuthStrategy().Detect(email, &Context{})
	require.Len(t, signals, 2)
	assert.Equal(t, core.SignalSPFPass, signals[0].Type)
	assert.Equal(t, core.SignalDMARCFail, signals[1].Type)
	assert.Equal(t, 30, signals[1].Score)
	assert.Equal(t, core.SeverityCritical, signals[1].Severity)
}

func TestContentStrategy(t *testing.T) {
	strategy := NewContentStrategy(2)

	t.Run("urgency below threshold", func(t *testing.T) {
		email := baseEmail()
		email.Subject = "Urgent: server maintenance"
		assert.Empty(t, strategy.Detect(email, &Context{}))
	})

	t.Run("urgency at threshold", func(t *testing.T) {
		email := baseEmail()
		email.Subject = "Urgent: respond immediately"
		signals := strategy.Detect(email, &Context{})
		require.Len(t, signals, 1)
		assert.Equal(t, core.SignalUrgencyLanguage, signals[0].Type)
		assert.Equal(t, 15, signals[0].Score)
	})

	t.Run("financial request", func(t *testing.T) {
		email := baseEmail()
		email.TextBody = "Please send the gift cards to this address."
		signals := strategy.Detect(email, &Context{})
		require.Len(t, signals, 1)
		assert.Equal(t, core.SignalFinancialRequest, signals[0].Type)
		assert.Equal(t, 35, signals[0].Score)
	})

	t.Run("credential request", func(t *testing.T) {
		email := baseEmail()
		email.TextBody = "Your account has been suspended. Click below to restore access."
		signals := strategy.Detect(email, &Context{})
		require.Len(t, signals, 1)
		assert.Equal(t, core.SignalCredentialRequest, signals[0].Type)
		assert.Equal(t, 40, signals[0].Score)
	})

	t.Run("html body fallback", func(t *testing.T) {
		email := baseEmail()
		email.TextBody = ""
		email.HTMLBody = "<p>Please verify your account now.</p>"
		signals := strategy.Detect(email, &Context{})
		require.Len(t, signals, 1)
		assert.Equal(t, core.SignalCredentialRequest, signals[0].Type)
	})
}

func TestSenderStrategy(t *testing.T) {
	strategy := NewSenderStrategy()

	email := baseEmail()
	email.From = core.EmailAddress{Address: "x@mailinator.com", Domain: "mailinator.com"}
	signals := strategy.Detect(email, &Context{})
	require.Len(t, signals, 1)
	assert.Equal(t, core.SignalDisposableDomain, signals[0].Type)
	assert.Equal(t, 25, signals[0].Score)

	email.From = core.EmailAddress{Address: "x@gmail.com", Domain: "gmail.com"}
	signals = strategy.Detect(email, &Context{})
	require.Len(t, signals, 1)
	assert.Equal(t, core.SignalFreeEmailSender, signals[0].Type)
	assert.Equal(t, 5, signals[0].Score)
}

func TestDomainStrategy(t *testing.T) {
	strategy := NewDomainStrategy()

	email := baseEmail()
	email.From = core.EmailAddress{Address: "support@paypa1.com", Domain: "paypa1.com"}
	signals := strategy.Detect(email, &Context{})
	require.Len(t, signals, 1)
	assert.Equal(t, core.SignalHomoglyphDomain, signals[0].Type)
	assert.Equal(t, 40, signals[0].Score)

	email.From = core.EmailAddress{Address: "support@paypal-billing-update.com", Domain: "paypal-billing-update.com"}
	signals = strategy.Detect(email, &Context{})
	require.Len(t, signals, 1)
	assert.Equal(t, core.SignalCousinDomain, signals[0].Type)
	assert.Equal(t, 20, signals[0].Score)

	email.From = core.EmailAddress{Address: "support@paypal.com", Domain: "paypal.com"}
	assert.Empty(t, strategy.Detect(email, &Context{}))
}

func TestHeaderStrategy(t *testing.T) {
	strategy := NewHeaderStrategy()

	email := baseEmail()
	email.ReplyTo = "attacker@elsewhere.example"
	signals := strategy.Detect(email, &Context{})
	require.Len(t, signals, 1)
	assert.Equal(t, core.SignalReplyToMismatch, signals[0].Type)

	email = baseEmail()
	delete(email.Headers, "Message-ID")
	signals = strategy.Detect(email, &Context{})
	require.Len(t, signals, 1)
	assert.Equal(t, core.SignalMissingMessageID, signals[0].Type)
}

func TestURLSignalsTrustMultiplier(t *testing.T) {
	engine := newTestEngine(t)

	email := baseEmail()
	email.Headers["Received-SPF"] = "pass"
	email.URLs = []string{
		"https://click.e.mail.quora.com/track/1",
		"https://click.e.mail.quora.com/track/2",
	}

	// Unknown tenant: tracking links score at half trust.
	result := engine.Analyze(email, &Context{})
	var trackingScore int
	for _, sig := range result.Signals {
		if sig.Type == core.SignalTrackingURL {
			trackingScore += sig.Score
		}
	}
	assert.Equal(t, 10, trackingScore)

	// Tenant that knows the tracking domain: zero contribution, no signal.
	result = engine.Analyze(email, &Context{KnownTrackingDomains: []string{"click.e.mail.quora.com"}})
	for _, sig := range result.Signals {
		assert.NotEqual(t, core.SignalTrackingURL, sig.Type)
	}
	assert.Equal(t, 0, result.Score)
}

func signalTypes(signals []core.Signal) []core.SignalType {
	types := make([]core.SignalType, 0, len(signals))
	for _, s := range signals {
		types = append(types, s.Type)
	}
	return types
}
