package impersonation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxguard/inboxguard/internal/adapters/vip"
	"github.com/inboxguard/inboxguard/internal/core"
)

func testDirectory() *vip.ConfigDirectory {
	return vip.NewConfigDirectory([]core.VIP{
		{Name: "Jane Rivera", Email: "jane.rivera@acme.example", Title: "CEO"},
	})
}

func acmeTenant() core.TenantContext {
	return core.TenantContext{TenantID: "acme", OrgDomains: []string{"acme.example"}}
}

func email(displayName, address string) *core.Email {
	return &core.Email{
		From: core.EmailAddress{Address: address, DisplayName: displayName},
	}
}

func signalTypes(signals []core.Signal) []core.SignalType {
	types := make([]core.SignalType, 0, len(signals))
	for _, s := range signals {
		types = append(types, s.Type)
	}
	return types
}

func TestAnalyzeCleanEmail(t *testing.T) {
	d := NewDetector(testDirectory(), nil)

	result, err := d.Analyze(context.Background(),
		email("Bob Smith", "bob@partner.example"), acmeTenant())
	require.NoError(t, err)

	assert.False(t, result.IsImpersonation)
	assert.Equal(t, RiskNone, result.RiskLevel)
	assert.Empty(t, result.Signals)
}

func TestAnalyzeVIPFromOwnAddress(t *testing.T) {
	d := NewDetector(testDirectory(), nil)

	result, err := d.Analyze(context.Background(),
		email("Jane Rivera", "jane.rivera@acme.example"), acmeTenant())
	require.NoError(t, err)
	assert.False(t, result.IsImpersonation)
	assert.Nil(t, result.MatchedVIP)
}

func TestAnalyzeVIPSpoofOnFreemail(t *testing.T) {
	d := NewDetector(testDirectory(), nil)

	result, err := d.Analyze(context.Background(),
		email("Jane Rivera", "jane.rivera.ceo@gmail.com"), acmeTenant())
	require.NoError(t, err)

	assert.True(t, result.IsImpersonation)
	require.NotNil(t, result.MatchedVIP)
	assert.Equal(t, "Jane Rivera", result.MatchedVIP.Name)
	assert.Equal(t, RiskCritical, result.RiskLevel)

	require.Contains(t, signalTypes(result.Signals), core.SignalBECImpersonation)
	for _, sig := range result.Signals {
		if sig.Type == core.SignalBECImpersonation {
			assert.Equal(t, core.SeverityCritical, sig.Severity)
			assert.Equal(t, 45, sig.Score)
		}
	}
}

func TestAnalyzeVIPSpoofCaseAndSpacing(t *testing.T) {
	d := NewDetector(testDirectory(), nil)

	result, err := d.Analyze(context.Background(),
		email("  jane   RIVERA ", "attacker@evil.example"), acmeTenant())
	require.NoError(t, err)
	require.NotNil(t, result.MatchedVIP)

	// Corporate-looking sender domain keeps the severity at warning.
	for _, sig := range result.Signals {
		if sig.Type == core.SignalBECImpersonation {
			assert.Equal(t, core.SeverityWarning, sig.Severity)
			assert.Equal(t, 30, sig.Score)
		}
	}
}

func TestAnalyzeExecTitleOutsideOrg(t *testing.T) {
	d := NewDetector(nil, nil)

	t.Run("freemail sender", func(t *testing.T) {
		result, err := d.Analyze(context.Background(),
			email("Acme CEO", "bigboss@gmail.com"), acmeTenant())
		require.NoError(t, err)
		assert.Contains(t, signalTypes(result.Signals), core.SignalFreemailExec)
		assert.Equal(t, RiskCritical, result.RiskLevel)
	})

	t.Run("corporate sender", func(t *testing.T) {
		result, err := d.Analyze(context.Background(),
			email("Acme CEO", "boss@unrelated.example"), acmeTenant())
		require.NoError(t, err)
		assert.Contains(t, signalTypes(result.Signals), core.SignalExecTitleSpoof)
		assert.Equal(t, RiskMedium, result.RiskLevel)
	})

	t.Run("title from inside the org is fine", func(t *testing.T) {
		result, err := d.Analyze(context.Background(),
			email("CEO Jane", "jane@acme.example"), acmeTenant())
		require.NoError(t, err)
		assert.NotContains(t, signalTypes(result.Signals), core.SignalExecTitleSpoof)
	})
}

func TestAnalyzeReplyToDiversion(t *testing.T) {
	d := NewDetector(nil, nil)

	t.Run("freemail diversion escalates", func(t *testing.T) {
		msg := email("Accounts", "billing@vendor.example")
		msg.ReplyTo = "payments-update@gmail.com"

		result, err := d.Analyze(context.Background(), msg, acmeTenant())
		require.NoError(t, err)

		require.Contains(t, signalTypes(result.Signals), core.SignalReplyToRedirect)
		for _, sig := range result.Signals {
			if sig.Type == core.SignalReplyToRedirect {
				assert.Equal(t, core.SeverityCritical, sig.Severity)
				assert.Equal(t, 35, sig.Score)
			}
		}
	})

	t.Run("cross-domain diversion warns", func(t *testing.T) {
		msg := email("Accounts", "billing@vendor.example")
		msg.ReplyTo = "billing@other-vendor.example"

		result, err := d.Analyze(context.Background(), msg, acmeTenant())
		require.NoError(t, err)
		for _, sig := range result.Signals {
			if sig.Type == core.SignalReplyToRedirect {
				assert.Equal(t, core.SeverityWarning, sig.Severity)
			}
		}
	})

	t.Run("same domain reply-to is fine", func(t *testing.T) {
		msg := email("Accounts", "billing@vendor.example")
		msg.ReplyTo = "invoices@vendor.example"

		result, err := d.Analyze(context.Background(), msg, acmeTenant())
		require.NoError(t, err)
		assert.NotContains(t, signalTypes(result.Signals), core.SignalReplyToRedirect)
	})
}

func TestAnalyzeCousinOrgDomain(t *testing.T) {
	d := NewDetector(nil, nil)

	result, err := d.Analyze(context.Background(),
		email("Jane", "jane@acrne.example"), acmeTenant())
	require.NoError(t, err)

	// A near-miss of the tenant's own domain is suspicious on its own, but
	// not conclusive without a VIP or reply-to indicator stacked on top.
	require.Contains(t, signalTypes(result.Signals), core.SignalCousinOrgDomain)
	for _, sig := range result.Signals {
		if sig.Type == core.SignalCousinOrgDomain {
			assert.Equal(t, core.SeverityWarning, sig.Severity)
			assert.Equal(t, 40, sig.Score)
		}
	}
	assert.Equal(t, RiskMedium, result.RiskLevel)
	assert.InDelta(t, 0.6, result.Confidence, 0.001)
}

func TestAnalyzeCousinOrgDomainWithDiversion(t *testing.T) {
	d := NewDetector(nil, nil)

	msg := email("Jane", "jane@acrne.example")
	msg.ReplyTo = "jane.urgent@gmail.com"

	result, err := d.Analyze(context.Background(), msg, acmeTenant())
	require.NoError(t, err)

	require.Contains(t, signalTypes(result.Signals), core.SignalCousinOrgDomain)
	require.Contains(t, signalTypes(result.Signals), core.SignalReplyToRedirect)
	assert.Equal(t, RiskCritical, result.RiskLevel)
}

func TestAnalyzeUnicodeSpoof(t *testing.T) {
	d := NewDetector(nil, nil)

	t.Run("non-ASCII sender domain", func(t *testing.T) {
		result, err := d.Analyze(context.Background(),
			email("Support", "help@аcme.example"), acmeTenant())
		require.NoError(t, err)
		assert.Contains(t, signalTypes(result.Signals), core.SignalUnicodeSpoof)
	})

	t.Run("mixed Cyrillic display name", func(t *testing.T) {
		result, err := d.Analyze(context.Background(),
			email("Jаne Riverа", "someone@other.example"), acmeTenant())
		require.NoError(t, err)
		assert.Contains(t, signalTypes(result.Signals), core.SignalUnicodeSpoof)
		assert.Equal(t, RiskCritical, result.RiskLevel)
	})

	t.Run("pure Cyrillic name is legitimate", func(t *testing.T) {
		result, err := d.Analyze(context.Background(),
			email("Иван Петров", "ivan@other.example"), acmeTenant())
		require.NoError(t, err)
		assert.NotContains(t, signalTypes(result.Signals), core.SignalUnicodeSpoof)
	})
}

func TestAnalyzeRiskSummary(t *testing.T) {
	d := NewDetector(testDirectory(), nil)

	// VIP spoof on freemail plus a freemail reply-to diversion stacks two
	// criticals.
	msg := email("Jane Rivera", "jane.rivera@gmail.com")
	msg.ReplyTo = "jane.private@outlook.com"

	result, err := d.Analyze(context.Background(), msg, acmeTenant())
	require.NoError(t, err)

	assert.Equal(t, RiskCritical, result.RiskLevel)
	assert.InDelta(t, 0.95, result.Confidence, 0.001)
	assert.NotEmpty(t, result.Explanation)
}

func TestAnalyzeCancelledContext(t *testing.T) {
	d := NewDetector(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Analyze(ctx, email("x", "x@example.com"), acmeTenant())
	assert.Error(t, err)
}
