package rules

import (
	"fmt"
	"strings"

	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/urlintel"
)

const scoreDisplayNameSpoof = 25

// DisplayNameStrategy detects display names that claim an identity the
// sending domain does not back up: a brand name over a foreign domain, or an
// authority title over a free email provider.
type DisplayNameStrategy struct{}

// NewDisplayNameStrategy creates the display-name spoofing strategy.
func NewDisplayNameStrategy() *DisplayNameStrategy {
	return &DisplayNameStrategy{}
}

// Name returns the strategy name.
func (s *DisplayNameStrategy) Name() string {
	return "Display Name Spoofing"
}

// Detect compares the display name's claims against the sender domain.
func (s *DisplayNameStrategy) Detect(email *core.Email, rctx *Context) []core.Signal {
	displayName := email.From.DisplayName
	if displayName == "" {
		return nil
	}
	domain := email.FromDomain()
	lower := strings.ToLower(displayName)

	if brand, legit := brandMention(lower, domain); brand != "" && !legit {
		return []core.Signal{core.NewSignal(core.SignalDisplayNameSpoof, core.SeverityWarning,
			scoreDisplayNameSpoof,
			fmt.Sprintf("display name %q mentions %q but the message comes from %q", displayName, brand, domain),
			map[string]any{"brand": brand, "domain": domain})}
	}

	if title := ExecTitleIn(displayName); title != "" && IsFreeEmailDomain(domain) {
		return []core.Signal{core.NewSignal(core.SignalDisplayNameSpoof, core.SeverityWarning,
			scoreDisplayNameSpoof,
			fmt.Sprintf("display name %q claims authority (%q) from free email provider %q", displayName, title, domain),
			map[string]any{"title": title, "domain": domain})}
	}

	return nil
}

// brandMention returns the first brand named in the display name and whether
// the sending domain legitimately belongs to that brand.
func brandMention(displayName, domain string) (brand string, legitimate bool) {
	for _, b := range urlintel.BrandNames() {
		if !strings.Contains(displayName, b) {
			continue
		}
		registrable := urlintel.RegistrableDomain(domain)
		for _, legit := range urlintel.BrandDomains(b) {
			if registrable == legit {
				return b, true
			}
		}
		return b, false
	}
	return "", false
}
