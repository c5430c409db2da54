package urlintel

import (
	"fmt"
	"net/url"
	"strings"
)

// Hop is one step of a followed redirect chain. Reputation is a 0-100 score
// when known, negative when the follower had none.
type Hop struct {
	URL        string  `json:"url"`
	StatusCode int     `json:"status_code"`
	Reputation float64 `json:"reputation"`
}

// Redirect findings reported by AnalyzeRedirectChain and DetectCloaking.
const (
	FindingLongChain         = "long_chain"
	FindingMultipleShorteners = "multiple_shorteners"
	FindingDomainHopping     = "domain_hopping"
	FindingProtocolDowngrade = "protocol_downgrade"
	FindingTLDTransition     = "suspicious_tld_transition"
	FindingReputationDecline = "reputation_decline"
	FindingUACloaking        = "user_agent_cloaking"
)

// RedirectFinding is one suspicious property of a chain.
type RedirectFinding struct {
	Type   string `json:"type"`
	AtHop  int    `json:"at_hop"`
	Detail string `json:"detail"`
}

// RedirectAnalysis is the result for one chain.
type RedirectAnalysis struct {
	Suspicious    bool              `json:"suspicious"`
	ChainLength   int               `json:"chain_length"`
	UniqueDomains int               `json:"unique_domains"`
	Findings      []RedirectFinding `json:"findings,omitempty"`
	Score         int               `json:"score"`
}

const maxBenignChainLength = 3

// AnalyzeRedirectChain flags structural abuse in an ordered hop list:
// excessive length, stacked shorteners, rapid domain hopping, HTTPS to HTTP
// downgrades (never the reverse), transitions into high-risk TLDs, and a
// reputation collapse relative to the first hop.
func AnalyzeRedirectChain(chain []Hop) RedirectAnalysis {
	analysis := RedirectAnalysis{ChainLength: len(chain)}
	if len(chain) == 0 {
		return analysis
	}

	domains := make(map[string]bool)
	shortenerHops := 0
	var prevScheme, prevHost string
	firstRep := -1.0
	minRep := -1.0

	for i, hop := range chain {
		u, err := url.Parse(hop.URL)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		domains[RegistrableDomain(host)] = true

		if IsShortenerHost(host) {
			shortenerHops++
		}

		if prevScheme == "https" && u.Scheme == "http" {
			analysis.Findings = append(analysis.Findings, RedirectFinding{
				Type:   FindingProtocolDowngrade,
				AtHop:  i,
				Detail: fmt.Sprintf("https://%s redirected to http://%s", prevHost, host),
			})
		}

		if prevHost != "" && IsHighRiskTLD(host) && !IsHighRiskTLD(prevHost) {
			detail := fmt.Sprintf("%s redirected into high-risk TLD host %s", prevHost, host)
			if isBrandHost(prevHost) {
				detail = fmt.Sprintf("brand host %s redirected into high-risk TLD host %s", prevHost, host)
			}
			analysis.Findings = append(analysis.Findings, RedirectFinding{
				Type: FindingTLDTransition, AtHop: i, Detail: detail,
			})
		}

		if hop.Reputation >= 0 {
			if firstRep < 0 {
				firstRep = hop.Reputation
			}
			if minRep < 0 || hop.Reputation < minRep {
				minRep = hop.Reputation
			}
		}

		prevScheme, prevHost = u.Scheme, host
	}

	analysis.UniqueDomains = len(domains)

	if len(chain) > maxBenignChainLength {
		analysis.Findings = append(analysis.Findings, RedirectFinding{
			Type:   FindingLongChain,
			Detail: fmt.Sprintf("%d hops", len(chain)),
		})
	}
	if shortenerHops >= 2 {
		analysis.Findings = append(analysis.Findings, RedirectFinding{
			Type:   FindingMultipleShorteners,
			Detail: fmt.Sprintf("%d shortener hops", shortenerHops),
		})
	}
	// Nearly every hop landing on a fresh domain is hop-laundering.
	if len(chain) >= 4 && len(domains) >= len(chain)-1 {
		analysis.Findings = append(analysis.Findings, RedirectFinding{
			Type:   FindingDomainHopping,
			Detail: fmt.Sprintf("%d unique domains across %d hops", len(domains), len(chain)),
		})
	}
	if firstRep >= 0 && minRep >= 0 && firstRep-minRep >= 40 {
		analysis.Findings = append(analysis.Findings, RedirectFinding{
			Type:   FindingReputationDecline,
			Detail: fmt.Sprintf("reputation fell from %.0f to %.0f along the chain", firstRep, minRep),
		})
	}

	analysis.Suspicious = len(analysis.Findings) > 0
	analysis.Score = redirectScore(analysis.Findings)
	return analysis
}

// DetectCloaking compares the chains observed under different user agents.
// A terminal host that changes with the client identity means the target is
// serving different content to scanners and victims.
func DetectCloaking(chainsByUA map[string][]Hop) *RedirectFinding {
	var firstUA, firstHost string
	for ua, chain := range chainsByUA {
		if len(chain) == 0 {
			continue
		}
		host := terminalHost(chain)
		if host == "" {
			continue
		}
		if firstHost == "" {
			firstUA, firstHost = ua, host
			continue
		}
		if host != firstHost {
			return &RedirectFinding{
				Type:   FindingUACloaking,
				AtHop:  len(chain) - 1,
				Detail: fmt.Sprintf("terminal host %q for %q but %q for %q", firstHost, firstUA, host, ua),
			}
		}
	}
	return nil
}

func terminalHost(chain []Hop) string {
	u, err := url.Parse(chain[len(chain)-1].URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func isBrandHost(host string) bool {
	base := registrableLabel(RegistrableDomain(host))
	_, ok := defaultBrands[base]
	return ok
}

func redirectScore(findings []RedirectFinding) int {
	score := 0
	for _, f := range findings {
		switch f.Type {
		case FindingProtocolDowngrade, FindingReputationDecline, FindingUACloaking:
			score += 25
		case FindingTLDTransition, FindingDomainHopping:
			score += 20
		default:
			score += 10
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}
