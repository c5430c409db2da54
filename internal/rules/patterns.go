package rules

import (
	"regexp"
	"strings"
)

// freeEmailDomains are consumer mail providers. A free-mail sender is a weak
// signal on its own but a strong one combined with an executive display name.
var freeEmailDomains = map[string]bool{
	"gmail.com": true, "yahoo.com": true, "hotmail.com": true,
	"outlook.com": true, "aol.com": true, "icloud.com": true,
	"mail.com": true, "protonmail.com": true, "proton.me": true,
	"gmx.com": true, "yandex.com": true, "zoho.com": true,
}

// disposableDomains are throwaway inbox services.
var disposableDomains = map[string]bool{
	"mailinator.com": true, "guerrillamail.com": true, "10minutemail.com": true,
	"tempmail.com": true, "temp-mail.org": true, "throwawaymail.com": true,
	"yopmail.com": true, "getnada.com": true, "sharklasers.com": true,
	"trashmail.com": true, "dispostable.com": true, "maildrop.cc": true,
}

// execTitles are authority keywords in display names that attackers use to
// pressure recipients.
var execTitles = []string{
	"ceo", "cfo", "coo", "cto", "president", "chairman", "director",
	"chief", "vp", "vice president", "head of", "managing partner",
	"admin", "administrator", "it support", "helpdesk", "payroll",
}

var urgencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\burgent(ly)?\b`),
	regexp.MustCompile(`(?i)\bimmediate(ly)?\b`),
	regexp.MustCompile(`(?i)\basap\b`),
	regexp.MustCompile(`(?i)\bright away\b`),
	regexp.MustCompile(`(?i)\btime.?sensitive\b`),
	regexp.MustCompile(`(?i)\bend of (the )?day\b`),
	regexp.MustCompile(`(?i)\beod\b`),
	regexp.MustCompile(`(?i)\bbefore (it'?s|it is) too late\b`),
	regexp.MustCompile(`(?i)\bact now\b`),
	regexp.MustCompile(`(?i)\bexpires? (today|soon|in \d+)\b`),
	regexp.MustCompile(`(?i)\bfinal (notice|warning|reminder)\b`),
	regexp.MustCompile(`(?i)\bdo(n'?t| not) delay\b`),
}

var financialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwire transfer\b`),
	regexp.MustCompile(`(?i)\bbank (account|details|transfer)\b`),
	regexp.MustCompile(`(?i)\brouting number\b`),
	regexp.MustCompile(`(?i)\bswift code\b`),
	regexp.MustCompile(`(?i)\bgift ?cards?\b`),
	regexp.MustCompile(`(?i)\b(itunes|google play|amazon) (card|voucher)s?\b`),
	regexp.MustCompile(`(?i)\b(bitcoin|btc|crypto(currency)?|ethereum|usdt)\b`),
	regexp.MustCompile(`(?i)\b(outstanding|overdue|unpaid|attached) invoice\b`),
	regexp.MustCompile(`(?i)\bpayment (request|instruction|due|pending)s?\b`),
	regexp.MustCompile(`(?i)\bchange (of|the) (bank|payment|account) details\b`),
}

var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(verify|confirm|validate) your (account|identity|password|email)\b`),
	regexp.MustCompile(`(?i)\b(update|reset|re-?enter) your password\b`),
	regexp.MustCompile(`(?i)\blog ?in (to|here|now|immediately)\b`),
	regexp.MustCompile(`(?i)\bsign ?in (to|here|now) (your|the)\b`),
	regexp.MustCompile(`(?i)\baccount (has been |will be )?(suspended|locked|limited|deactivated)\b`),
	regexp.MustCompile(`(?i)\bunusual (sign.?in|login) activity\b`),
	regexp.MustCompile(`(?i)\bre-?authenticate\b`),
	regexp.MustCompile(`(?i)\bsecurity alert\b.*\bpassword\b`),
}

// CountUrgencyMatches counts how many distinct urgency patterns match.
// Exported for the behavioral content dimension, which scores the same
// vocabulary against a tenant baseline.
func CountUrgencyMatches(text string) int {
	return countMatches(text, urgencyPatterns)
}

// MatchFinancialPattern reports whether any financial-request phrasing is
// present.
func MatchFinancialPattern(text string) (string, bool) {
	return firstMatch(text, financialPatterns)
}

// MatchCredentialPattern reports whether any credential-harvest phrasing is
// present.
func MatchCredentialPattern(text string) (string, bool) {
	return firstMatch(text, credentialPatterns)
}

// IsFreeEmailDomain reports whether the domain is a consumer mail provider.
func IsFreeEmailDomain(domain string) bool {
	return freeEmailDomains[strings.ToLower(domain)]
}

// IsDisposableDomain reports whether the domain is a throwaway inbox service.
func IsDisposableDomain(domain string) bool {
	return disposableDomains[strings.ToLower(domain)]
}

// ExecTitleIn returns the first executive/authority title found in a display
// name, or "" when none is present.
func ExecTitleIn(displayName string) string {
	lower := strings.ToLower(displayName)
	for _, title := range execTitles {
		if strings.Contains(lower, title) {
			return title
		}
	}
	return ""
}

func countMatches(text string, patterns []*regexp.Regexp) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

func firstMatch(text string, patterns []*regexp.Regexp) (string, bool) {
	for _, p := range patterns {
		if m := p.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}
