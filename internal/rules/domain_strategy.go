package rules

import (
	"fmt"

	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/urlintel"
)

const (
	scoreHomoglyphDomain = 40
	scoreCousinDomain    = 20
)

// DomainStrategy detects brand impersonation in the sending domain itself:
// homoglyph substitution against the brand list, and cousin domains that
// embed a brand name without being the brand.
type DomainStrategy struct{}

// NewDomainStrategy creates the sending-domain impersonation strategy.
func NewDomainStrategy() *DomainStrategy {
	return &DomainStrategy{}
}

// Name returns the strategy name.
func (s *DomainStrategy) Name() string {
	return "Domain Impersonation"
}

// Detect runs lookalike analysis on the sender domain. A homoglyph match
// suppresses the weaker cousin-domain signal for the same domain.
func (s *DomainStrategy) Detect(email *core.Email, rctx *Context) []core.Signal {
	domain := email.FromDomain()
	if domain == "" {
		return nil
	}

	lookalike := urlintel.DetectLookalike(domain)
	if !lookalike.IsLookalike {
		return nil
	}

	meta := map[string]any{
		"domain":    domain,
		"target":    lookalike.Target,
		"technique": lookalike.Technique,
	}

	switch lookalike.Technique {
	case urlintel.TechniqueHomoglyph, urlintel.TechniqueCharSub:
		return []core.Signal{core.NewSignal(core.SignalHomoglyphDomain, core.SeverityCritical,
			scoreHomoglyphDomain,
			fmt.Sprintf("sender domain %q imitates %q via %s", domain, lookalike.Target, lookalike.Technique),
			meta)}
	default:
		return []core.Signal{core.NewSignal(core.SignalCousinDomain, core.SeverityWarning,
			scoreCousinDomain,
			fmt.Sprintf("sender domain %q resembles brand %q (%s)", domain, lookalike.Target, lookalike.Technique),
			meta)}
	}
}
