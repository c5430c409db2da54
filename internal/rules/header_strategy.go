package rules

import (
	"fmt"
	"strings"

	"github.com/inboxguard/inboxguard/internal/core"
)

const (
	scoreReplyToMismatch  = 15
	scoreMissingMessageID = 10
)

// HeaderStrategy detects structural header anomalies: a Reply-To that
// redirects responses to a different domain, and a missing Message-ID, which
// legitimate mail servers always set.
type HeaderStrategy struct{}

// NewHeaderStrategy creates the header-anomaly strategy.
func NewHeaderStrategy() *HeaderStrategy {
	return &HeaderStrategy{}
}

// Name returns the strategy name.
func (s *HeaderStrategy) Name() string {
	return "Header Anomalies"
}

// Detect checks Reply-To alignment and Message-ID presence.
func (s *HeaderStrategy) Detect(email *core.Email, rctx *Context) []core.Signal {
	var signals []core.Signal

	replyTo := email.ReplyTo
	if replyTo == "" {
		replyTo = headerValue(email, "Reply-To")
	}
	if replyTo != "" {
		fromDomain := email.FromDomain()
		replyDomain := core.DomainOf(strings.ToLower(replyTo))
		if replyDomain != "" && fromDomain != "" && replyDomain != fromDomain {
			signals = append(signals, core.NewSignal(core.SignalReplyToMismatch, core.SeverityWarning,
				scoreReplyToMismatch,
				fmt.Sprintf("Reply-To domain %q differs from sender domain %q", replyDomain, fromDomain),
				map[string]any{"reply_to": replyTo, "from_domain": fromDomain}))
		}
	}

	if headerValue(email, "Message-ID") == "" {
		signals = append(signals, core.NewSignal(core.SignalMissingMessageID, core.SeverityInfo,
			scoreMissingMessageID, "message has no Message-ID header", nil))
	}

	return signals
}
