package rules

import (
	"fmt"

	"github.com/inboxguard/inboxguard/internal/core"
)

const (
	scoreUrgency    = 15
	scoreFinancial  = 35
	scoreCredential = 40
)

// ContentStrategy detects the social-engineering language of BEC and
// credential phishing in the subject and body.
type ContentStrategy struct {
	// urgencyMinMatches is how many distinct urgency patterns must match
	// before the urgency signal fires. One "urgent" in a subject is routine.
	urgencyMinMatches int
}

// NewContentStrategy creates the content-language strategy.
func NewContentStrategy(urgencyMinMatches int) *ContentStrategy {
	if urgencyMinMatches <= 0 {
		urgencyMinMatches = 2
	}
	return &ContentStrategy{urgencyMinMatches: urgencyMinMatches}
}

// Name returns the strategy name.
func (s *ContentStrategy) Name() string {
	return "Content Language"
}

// Detect scans subject plus body text for urgency, financial-request, and
// credential-request phrasing.
func (s *ContentStrategy) Detect(email *core.Email, rctx *Context) []core.Signal {
	text := email.Subject + " " + email.TextBody
	if email.TextBody == "" {
		text = email.Subject + " " + email.HTMLBody
	}

	var signals []core.Signal

	if n := CountUrgencyMatches(text); n >= s.urgencyMinMatches {
		signals = append(signals, core.NewSignal(core.SignalUrgencyLanguage, core.SeverityWarning,
			scoreUrgency, fmt.Sprintf("%d distinct urgency phrases", n),
			map[string]any{"match_count": n}))
	}

	if phrase, ok := MatchFinancialPattern(text); ok {
		signals = append(signals, core.NewSignal(core.SignalFinancialRequest, core.SeverityCritical,
			scoreFinancial, fmt.Sprintf("financial request language: %q", phrase),
			map[string]any{"phrase": phrase}))
	}

	if phrase, ok := MatchCredentialPattern(text); ok {
		signals = append(signals, core.NewSignal(core.SignalCredentialRequest, core.SeverityCritical,
			scoreCredential, fmt.Sprintf("credential request language: %q", phrase),
			map[string]any{"phrase": phrase}))
	}

	return signals
}
