package rules

import (
	"fmt"

	"github.com/inboxguard/inboxguard/internal/core"
)

const (
	scoreFreeEmail  = 5
	scoreDisposable = 25
)

// SenderStrategy flags senders on free or disposable email infrastructure.
type SenderStrategy struct{}

// NewSenderStrategy creates the sender-reputation strategy.
func NewSenderStrategy() *SenderStrategy {
	return &SenderStrategy{}
}

// Name returns the strategy name.
func (s *SenderStrategy) Name() string {
	return "Sender Infrastructure"
}

// Detect checks the sender domain against free and disposable provider lists.
func (s *SenderStrategy) Detect(email *core.Email, rctx *Context) []core.Signal {
	domain := email.FromDomain()
	if domain == "" {
		return nil
	}

	if IsDisposableDomain(domain) {
		return []core.Signal{core.NewSignal(core.SignalDisposableDomain, core.SeverityWarning,
			scoreDisposable, fmt.Sprintf("sender uses disposable email domain %q", domain),
			map[string]any{"domain": domain})}
	}
	if IsFreeEmailDomain(domain) {
		return []core.Signal{core.NewSignal(core.SignalFreeEmailSender, core.SeverityInfo,
			scoreFreeEmail, fmt.Sprintf("sender uses free email provider %q", domain),
			map[string]any{"domain": domain})}
	}
	return nil
}
