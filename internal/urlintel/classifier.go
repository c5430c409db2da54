package urlintel

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/inboxguard/inboxguard/internal/core"
)

// shortenerHosts are the common public URL shorteners.
var shortenerHosts = map[string]bool{
	"bit.ly": true, "tinyurl.com": true, "goo.gl": true, "t.co": true,
	"ow.ly": true, "is.gd": true, "buff.ly": true, "rebrand.ly": true,
	"cutt.ly": true, "shorturl.at": true, "rb.gy": true, "t.ly": true,
}

// defaultTrackingDomains are widely used ESP click-tracking hosts. Tenant
// configuration extends this list; tenant-known domains get high trust.
var defaultTrackingDomains = []string{
	"click.e.mail.quora.com",
	"links.mailchimp.com",
	"click.sendgrid.net",
	"email.mg.substack.com",
	"trk.klclick.com",
	"clicks.hubspot.com",
}

// redirectParams are query keys that commonly carry a redirect target.
var redirectParams = []string{"url", "redirect", "redirect_uri", "next", "goto", "dest", "destination", "target", "u"}

// Classifier turns raw URLs into URLClassification values.
type Classifier struct {
	obfCfg         ObfuscationConfig
	knownTracking  []string
}

// NewClassifier builds a classifier. knownTracking is the tenant's allow-list
// of tracking domains; links on those hosts classify as high-trust tracking.
func NewClassifier(knownTracking []string, obfCfg ObfuscationConfig) *Classifier {
	merged := append([]string(nil), defaultTrackingDomains...)
	for _, d := range knownTracking {
		merged = append(merged, strings.ToLower(strings.TrimSpace(d)))
	}
	return &Classifier{obfCfg: obfCfg, knownTracking: merged}
}

// IsShortenerHost reports whether the host is a known public URL shortener.
func IsShortenerHost(host string) bool {
	return shortenerHosts[strings.ToLower(host)]
}

// Classify produces a classification for one URL. A malformed URL yields a
// neutral safe classification flagged with parse_error rather than an error.
func (c *Classifier) Classify(raw string, tenantTracking []string) core.URLClassification {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		if u2, err2 := url.Parse("http://" + strings.TrimSpace(raw)); err2 == nil && u2.Host != "" {
			u = u2
		} else {
			return core.URLClassification{
				URL: raw, Type: core.URLSafe, TrustLevel: core.TrustHigh, Score: 0,
				Reason:   "unparseable URL, no contribution",
				Metadata: map[string]any{"parse_error": true},
			}
		}
	}
	host := strings.ToLower(u.Hostname())

	lookalike := DetectLookalike(host)
	obfuscation := DetectObfuscation(raw, c.obfCfg)

	switch {
	case lookalike.IsLookalike:
		return core.URLClassification{
			URL: raw, Type: core.URLMalicious, TrustLevel: core.TrustLow,
			Score:  40,
			Reason: fmt.Sprintf("lookalike of %q via %s", lookalike.Target, lookalike.Technique),
			Metadata: map[string]any{
				"target":        lookalike.Target,
				"technique":     lookalike.Technique,
				"high_risk_tld": lookalike.HighRiskTLD,
			},
		}
	case obfuscation.Score >= 25:
		return core.URLClassification{
			URL: raw, Type: core.URLMalicious, TrustLevel: core.TrustLow,
			Score:  30,
			Reason: "obfuscated URL: " + strings.Join(obfuscation.Techniques, ", "),
			Metadata: map[string]any{
				"techniques":   obfuscation.Techniques,
				"decoded_host": obfuscation.DecodedHost,
			},
		}
	case IsShortenerHost(host):
		return core.URLClassification{
			URL: raw, Type: core.URLShortener, TrustLevel: core.TrustMedium,
			Score:  15,
			Reason: "public URL shortener hides the destination",
		}
	case c.isTrackingHost(host, tenantTracking):
		trust := core.TrustMedium
		if containsHost(tenantTracking, host) {
			trust = core.TrustHigh
		}
		return core.URLClassification{
			URL: raw, Type: core.URLTracking, TrustLevel: trust,
			Score:  10,
			Reason: "email tracking link",
		}
	case hasRedirectParam(u):
		return core.URLClassification{
			URL: raw, Type: core.URLRedirect, TrustLevel: core.TrustMedium,
			Score:  10,
			Reason: "carries a redirect target parameter",
		}
	case lookalike.HighRiskTLD:
		return core.URLClassification{
			URL: raw, Type: core.URLMalicious, TrustLevel: core.TrustMedium,
			Score:  20,
			Reason: "frequently abused TLD",
		}
	default:
		return core.URLClassification{URL: raw, Type: core.URLSafe, TrustLevel: core.TrustHigh, Score: 0, Reason: "no indicators"}
	}
}

func (c *Classifier) isTrackingHost(host string, tenantTracking []string) bool {
	return containsHost(c.knownTracking, host) || containsHost(tenantTracking, host)
}

func containsHost(list []string, host string) bool {
	for _, d := range list {
		if strings.EqualFold(d, host) {
			return true
		}
	}
	return false
}

func hasRedirectParam(u *url.URL) bool {
	q := u.Query()
	for _, key := range redirectParams {
		if v := q.Get(key); strings.HasPrefix(v, "http") || strings.HasPrefix(v, "//") {
			return true
		}
	}
	return false
}
