package rules

import (
	"strings"

	"github.com/inboxguard/inboxguard/internal/core"
)

// Fixed point contributions for authentication failures.
const (
	scoreSPFFail     = 20
	scoreSPFSoftfail = 10
	scoreDMARCFail   = 30
)

// AuthStrategy detects SPF and DMARC verification failures.
//
// SPF verifies the sending server is authorized by the domain owner; DMARC
// builds on SPF and DKIM to prevent domain spoofing. A hard failure on either
// is a strong spoofing indicator.
type AuthStrategy struct{}

// NewAuthStrategy creates the authentication-failure strategy.
func NewAuthStrategy() *AuthStrategy {
	return &AuthStrategy{}
}

// Name returns the strategy name.
func (s *AuthStrategy) Name() string {
	return "Authentication Failures"
}

// Detect checks Received-SPF and Authentication-Results headers.
func (s *AuthStrategy) Detect(email *core.Email, rctx *Context) []core.Signal {
	var signals []core.Signal

	spf := strings.ToLower(headerValue(email, "Received-SPF"))
	authResults := strings.ToLower(headerValue(email, "Authentication-Results"))

	switch {
	case strings.Contains(spf, "pass") || strings.Contains(authResults, "spf=pass"):
		// Zero-score provenance signal: records that SPF was checked and
		// passed, so a clean verdict is explainable too.
		signals = append(signals, core.NewSignal(core.SignalSPFPass, core.SeverityInfo,
			0, "SPF pass", nil))
	case strings.Contains(spf, "softfail") || strings.Contains(authResults, "spf=softfail"):
		signals = append(signals, core.NewSignal(core.SignalSPFSoftfail, core.SeverityInfo,
			scoreSPFSoftfail, "SPF softfail: sending server only weakly unauthorized", nil))
	case strings.Contains(spf, "fail") || strings.Contains(authResults, "spf=fail"):
		signals = append(signals, core.NewSignal(core.SignalSPFFail, core.SeverityWarning,
			scoreSPFFail, "SPF fail: sending server not authorized for the sender domain", nil))
	}

	if strings.Contains(authResults, "dmarc=fail") {
		signals = append(signals, core.NewSignal(core.SignalDMARCFail, core.SeverityCritical,
			scoreDMARCFail, "DMARC fail: message failed domain alignment policy", nil))
	}

	return signals
}

// headerValue reads a header with a case-insensitive fallback, since parsed
// providers are not consistent about canonical casing.
func headerValue(email *core.Email, name string) string {
	if email.Headers == nil {
		return ""
	}
	if v, ok := email.Headers[name]; ok {
		return v
	}
	for k, v := range email.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
