// Package impersonation detects business email compromise attempts against a
// tenant's protected people and org domains.
package impersonation

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/core"
	"github.com/inboxguard/inboxguard/internal/rules"
	"github.com/inboxguard/inboxguard/internal/urlintel"
)

// Risk level labels for the impersonation verdict.
const (
	RiskNone     = "none"
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// Detector checks a sender identity against the VIP directory and the
// tenant's own domains.
type Detector struct {
	directory core.VIPDirectory
	logger    *zap.Logger
}

// NewDetector builds a detector. A nil directory disables VIP matching but
// keeps the domain and unicode checks.
func NewDetector(directory core.VIPDirectory, logger *zap.Logger) *Detector {
	return &Detector{directory: directory, logger: logger}
}

// Analyze evaluates one email's sender identity. Directory failures degrade
// to domain-only checks; they never fail the analysis.
func (d *Detector) Analyze(ctx context.Context, email *core.Email, tenant core.TenantContext) (*core.ImpersonationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &core.ImpersonationResult{RiskLevel: RiskNone}
	displayName := strings.TrimSpace(email.From.DisplayName)
	fromDomain := strings.ToLower(email.FromDomain())
	freemail := rules.IsFreeEmailDomain(fromDomain)

	vip := d.matchVIP(ctx, displayName)
	if vip != nil && !strings.EqualFold(email.From.Address, vip.Email) {
		result.MatchedVIP = vip
		severity, score := core.SeverityWarning, 30
		if freemail {
			// A protected name on a freemail account is the classic BEC shape.
			severity, score = core.SeverityCritical, 45
		}
		result.Signals = append(result.Signals, core.NewSignal(core.SignalBECImpersonation, severity, score,
			fmt.Sprintf("display name matches protected person %q but sender is %s", vip.Name, email.From.Address),
			map[string]any{"vip_name": vip.Name, "vip_email": vip.Email, "sender": email.From.Address}))
	}

	if title := rules.ExecTitleIn(displayName); title != "" && !core.ContainsDomain(fromDomain, tenant.OrgDomains) {
		severity, score := core.SeverityWarning, 20
		sigType := core.SignalExecTitleSpoof
		if freemail {
			severity, score = core.SeverityCritical, 40
			sigType = core.SignalFreemailExec
		}
		result.Signals = append(result.Signals, core.NewSignal(sigType, severity, score,
			fmt.Sprintf("display name claims title %q from outside the organization", title),
			map[string]any{"title": title, "sender_domain": fromDomain}))
	}

	if sig := d.checkReplyTo(email, fromDomain, freemail, vip != nil); sig != nil {
		result.Signals = append(result.Signals, *sig)
	}
	result.Signals = append(result.Signals, d.checkCousinOrgDomain(fromDomain, tenant)...)
	result.Signals = append(result.Signals, checkUnicodeSpoof(displayName, fromDomain)...)

	d.summarize(result)
	return result, nil
}

// matchVIP looks the display name up in the directory, tolerating unicode
// disguises of the name itself.
func (d *Detector) matchVIP(ctx context.Context, displayName string) *core.VIP {
	if d.directory == nil || displayName == "" {
		return nil
	}
	candidates := []string{displayName}
	if folded := urlintel.FoldHomoglyphs(displayName); folded != displayName {
		candidates = append(candidates, folded)
	}
	for _, name := range candidates {
		vips, err := d.directory.FindByDisplayName(ctx, name)
		if err != nil {
			if d.logger != nil {
				d.logger.Warn("VIP directory lookup failed", zap.Error(err))
			}
			return nil
		}
		if len(vips) > 0 {
			return &vips[0]
		}
	}
	return nil
}

// checkReplyTo flags a Reply-To that diverts responses away from the claimed
// sender. Escalated when the diversion target is a freemail account or the
// sender already matched a protected person.
func (d *Detector) checkReplyTo(email *core.Email, fromDomain string, freemailSender, vipMatched bool) *core.Signal {
	replyTo := strings.TrimSpace(email.ReplyTo)
	if replyTo == "" {
		return nil
	}
	replyDomain := core.DomainOf(replyTo)
	if replyDomain == "" || strings.EqualFold(replyDomain, fromDomain) {
		return nil
	}

	severity, score := core.SeverityWarning, 15
	if rules.IsFreeEmailDomain(replyDomain) && (vipMatched || !freemailSender) {
		severity, score = core.SeverityCritical, 35
	}
	sig := core.NewSignal(core.SignalReplyToRedirect, severity, score,
		fmt.Sprintf("replies diverted from %s to %s", fromDomain, replyDomain),
		map[string]any{"from_domain": fromDomain, "reply_to_domain": replyDomain})
	return &sig
}

// checkCousinOrgDomain compares the sender domain against the tenant's own
// domains for near-miss spellings.
func (d *Detector) checkCousinOrgDomain(fromDomain string, tenant core.TenantContext) []core.Signal {
	if fromDomain == "" {
		return nil
	}
	senderReg := urlintel.RegistrableDomain(fromDomain)
	for _, org := range tenant.OrgDomains {
		orgReg := urlintel.RegistrableDomain(strings.ToLower(org))
		if senderReg == orgReg {
			return nil
		}
		distance := urlintel.Levenshtein(
			urlintel.FoldHomoglyphs(senderReg),
			urlintel.FoldHomoglyphs(orgReg),
		)
		if distance > 0 && distance <= 2 {
			return []core.Signal{core.NewSignal(core.SignalCousinOrgDomain, core.SeverityWarning, 40,
				fmt.Sprintf("sender domain %s is %d edit(s) from organization domain %s", senderReg, distance, orgReg),
				map[string]any{"sender_domain": senderReg, "org_domain": orgReg, "distance": distance})}
		}
	}
	return nil
}

// checkUnicodeSpoof flags non-ASCII sender domains and Cyrillic runs inside
// an otherwise Latin display name.
func checkUnicodeSpoof(displayName, fromDomain string) []core.Signal {
	var signals []core.Signal

	if fromDomain != "" && !isASCII(fromDomain) {
		signals = append(signals, core.NewSignal(core.SignalUnicodeSpoof, core.SeverityCritical, 35,
			fmt.Sprintf("sender domain %s contains non-ASCII characters", fromDomain),
			map[string]any{"domain": fromDomain, "folded": urlintel.FoldHomoglyphs(fromDomain)}))
	}

	if hasMixedCyrillic(displayName) {
		signals = append(signals, core.NewSignal(core.SignalUnicodeSpoof, core.SeverityCritical, 30,
			"display name mixes Cyrillic characters into Latin text",
			map[string]any{"display_name": displayName, "folded": urlintel.FoldHomoglyphs(displayName)}))
	}
	return signals
}

// summarize derives the verdict fields from the collected signals.
func (d *Detector) summarize(result *core.ImpersonationResult) {
	if len(result.Signals) == 0 {
		result.Explanation = "no impersonation indicators"
		return
	}

	criticals, warnings := 0, 0
	var reasons []string
	for _, sig := range result.Signals {
		switch sig.Severity {
		case core.SeverityCritical:
			criticals++
		case core.SeverityWarning:
			warnings++
		}
		reasons = append(reasons, sig.Detail)
	}

	result.IsImpersonation = true
	result.Explanation = strings.Join(reasons, "; ")

	switch {
	case criticals >= 2:
		result.RiskLevel = RiskCritical
		result.Confidence = 0.95
	case criticals == 1:
		result.RiskLevel = RiskCritical
		result.Confidence = 0.85
	case warnings >= 2:
		result.RiskLevel = RiskHigh
		result.Confidence = 0.75
	case warnings == 1:
		result.RiskLevel = RiskMedium
		result.Confidence = 0.6
	default:
		result.RiskLevel = RiskLow
		result.Confidence = 0.4
	}
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// hasMixedCyrillic reports whether the string contains both Latin and
// Cyrillic letters. Pure-Cyrillic names are legitimate; the mix is the tell.
func hasMixedCyrillic(s string) bool {
	latin, cyrillic := false, false
	for _, r := range s {
		switch {
		case unicode.In(r, unicode.Latin):
			latin = true
		case unicode.In(r, unicode.Cyrillic):
			cyrillic = true
		}
	}
	return latin && cyrillic
}
