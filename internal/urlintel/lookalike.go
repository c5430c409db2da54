// Package urlintel classifies URLs and detects the lookalike, obfuscation,
// and redirect-chain tricks phishing campaigns use to smuggle links past a
// quick glance.
package urlintel

import (
	"sort"
	"strings"
)

// Lookalike techniques reported by DetectLookalike.
const (
	TechniqueHomoglyph      = "homoglyph"
	TechniqueCharSub        = "character_substitution"
	TechniqueTypo           = "typosquatting"
	TechniqueHyphenation    = "hyphen_insertion"
	TechniqueTLDSub         = "tld_substitution"
	TechniqueSubdomain      = "subdomain_impersonation"
	TechniqueBrandKeyword   = "brand_keyword"
)

// homoglyphs maps visually confusable characters to their Latin base form.
// Covers Cyrillic/Greek lookalikes plus the leetspeak digit swaps.
var homoglyphs = map[rune]rune{
	// Cyrillic
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'х': 'x', 'у': 'y',
	'і': 'i', 'ѕ': 's', 'ԁ': 'd', 'ɡ': 'g', 'ո': 'n', 'ν': 'v',
	// Greek
	'ο': 'o', 'α': 'a', 'ε': 'e', 'ι': 'i', 'κ': 'k', 'τ': 't',
	// Digit and symbol substitutions
	'0': 'o', '1': 'l', '3': 'e', '4': 'a', '5': 's', '7': 't', '9': 'g',
	'@': 'a', '$': 's',
}

// highRiskTLDs are the TLDs most abused in phishing campaigns.
var highRiskTLDs = map[string]bool{
	"tk": true, "ml": true, "ga": true, "cf": true, "gq": true,
	"xyz": true, "top": true, "work": true, "click": true,
	"loan": true, "stream": true, "gdn": true, "racing": true,
	"country": true, "download": true,
}

// defaultBrands are the brand labels checked for impersonation. Each entry
// maps a brand label to its legitimate registrable domains: a URL whose
// registrable domain is one of those is never flagged.
var defaultBrands = map[string][]string{
	"microsoft":     {"microsoft.com"},
	"office365":     {"office365.com", "office.com"},
	"outlook":       {"outlook.com"},
	"google":        {"google.com"},
	"gmail":         {"gmail.com"},
	"apple":         {"apple.com"},
	"icloud":        {"icloud.com"},
	"amazon":        {"amazon.com"},
	"paypal":        {"paypal.com"},
	"netflix":       {"netflix.com"},
	"facebook":      {"facebook.com"},
	"linkedin":      {"linkedin.com"},
	"dropbox":       {"dropbox.com"},
	"docusign":      {"docusign.com", "docusign.net"},
	"adobe":         {"adobe.com"},
	"chase":         {"chase.com"},
	"wellsfargo":    {"wellsfargo.com"},
	"bankofamerica": {"bankofamerica.com"},
}

var brandNames = sortedBrandNames()

func sortedBrandNames() []string {
	names := make([]string, 0, len(defaultBrands))
	for name := range defaultBrands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BrandNames returns the protected brand labels in deterministic order.
func BrandNames() []string {
	return brandNames
}

// BrandDomains returns the legitimate registrable domains for a brand label.
func BrandDomains(brand string) []string {
	return defaultBrands[brand]
}

// LookalikeResult describes whether a domain imitates a known brand.
type LookalikeResult struct {
	Domain      string `json:"domain"`
	IsLookalike bool   `json:"is_lookalike"`
	Target      string `json:"target,omitempty"`
	Technique   string `json:"technique,omitempty"`
	Distance    int    `json:"distance,omitempty"`
	HighRiskTLD bool   `json:"high_risk_tld"`
}

// DetectLookalike checks a domain against the brand list for homoglyph
// substitution, character substitution, single-edit typos, hyphen insertion,
// TLD substitution, subdomain impersonation, and brand-keyword-in-domain.
// Legitimate brand domains and their subdomains are never flagged.
func DetectLookalike(domain string) LookalikeResult {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	result := LookalikeResult{Domain: domain}
	if domain == "" {
		return result
	}

	labels := strings.Split(domain, ".")
	tld := labels[len(labels)-1]
	result.HighRiskTLD = highRiskTLDs[tld]

	registrable := RegistrableDomain(domain)
	base := registrableLabel(registrable)

	// Deterministic brand order keeps results stable across runs.
	for _, brand := range brandNames {
		legitDomains := defaultBrands[brand]
		// A real brand domain, including login.microsoft.com style
		// subdomains, is legitimate by definition.
		if isLegitimate(registrable, legitDomains) {
			return LookalikeResult{Domain: domain, HighRiskTLD: false}
		}

		// Exact brand label under a wrong TLD (paypal.tk).
		if base == brand {
			result.IsLookalike = true
			result.Target = brand
			result.Technique = TechniqueTLDSub
			return result
		}

		if technique, dist, ok := matchBrandLabel(base, brand); ok {
			result.IsLookalike = true
			result.Target = brand
			result.Technique = technique
			result.Distance = dist
			return result
		}

		// login.brand.attacker.com: the brand shows up as a non-registrable
		// label while the registrable domain belongs to someone else.
		if len(labels) > 2 {
			for _, label := range labels[:len(labels)-2] {
				if label == brand || foldHomoglyphs(label) == brand {
					result.IsLookalike = true
					result.Target = brand
					result.Technique = TechniqueSubdomain
					return result
				}
			}
		}

		// Brand keyword buried in a longer registrable label
		// (paypal-secure-login.com).
		if base != brand && strings.Contains(base, brand) {
			result.IsLookalike = true
			result.Target = brand
			result.Technique = TechniqueBrandKeyword
			return result
		}
	}

	return result
}

// matchBrandLabel compares a registrable label to a brand label with each
// imitation technique in descending order of specificity.
func matchBrandLabel(label, brand string) (technique string, distance int, ok bool) {
	if label == "" || label == brand {
		return "", 0, false
	}

	folded := foldHomoglyphs(label)
	if folded == brand {
		if isASCIILetters(label) {
			// Only digit/symbol swaps were needed (paypa1, micr0soft).
			return TechniqueCharSub, substitutionCount(label, brand), true
		}
		return TechniqueHomoglyph, substitutionCount(label, brand), true
	}

	// Homoglyph matching tolerates up to two substituted characters even
	// when other edits are also present.
	if len(label) == len(brand) {
		if n := substitutionCount(folded, brand); n > 0 && n <= 2 {
			if isASCIILetters(label) && label != folded {
				return TechniqueCharSub, n, true
			}
			if label != folded {
				return TechniqueHomoglyph, n, true
			}
		}
	}

	if strings.ReplaceAll(label, "-", "") == brand {
		return TechniqueHyphenation, 0, true
	}

	// One edit away: insertion, omission, substitution, or transposition.
	if dist := Levenshtein(folded, brand); dist == 1 {
		return TechniqueTypo, dist, true
	}
	if isTransposition(folded, brand) {
		return TechniqueTypo, 1, true
	}

	return "", 0, false
}

// foldHomoglyphs normalizes confusable characters to their Latin base.
func foldHomoglyphs(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if base, ok := homoglyphs[r]; ok {
			b.WriteRune(base)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FoldHomoglyphs is the exported fold used by the rule engine and the
// impersonation detector.
func FoldHomoglyphs(s string) string { return foldHomoglyphs(s) }

// IsHighRiskTLD reports whether the domain ends in a frequently abused TLD.
func IsHighRiskTLD(domain string) bool {
	labels := strings.Split(strings.ToLower(domain), ".")
	return highRiskTLDs[labels[len(labels)-1]]
}

// RegistrableDomain returns the last two labels of a host. A real public
// suffix list is overkill for brand matching; two labels covers the brand
// domains we check against.
func RegistrableDomain(host string) string {
	labels := strings.Split(strings.ToLower(host), ".")
	if len(labels) <= 2 {
		return strings.Join(labels, ".")
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

func registrableLabel(registrable string) string {
	if i := strings.Index(registrable, "."); i > 0 {
		return registrable[:i]
	}
	return registrable
}

func isLegitimate(registrable string, legit []string) bool {
	for _, d := range legit {
		if registrable == d {
			return true
		}
	}
	return false
}

func isASCIILetters(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

// substitutionCount counts positions where equal-length strings differ,
// returning a large value for unequal lengths.
func substitutionCount(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) != len(rb) {
		return len(ra) + len(rb)
	}
	n := 0
	for i := range ra {
		if ra[i] != rb[i] {
			n++
		}
	}
	return n
}

// isTransposition reports whether a equals b with exactly one adjacent pair
// swapped.
func isTransposition(a, b string) bool {
	if len(a) != len(b) || a == b {
		return false
	}
	ra, rb := []rune(a), []rune(b)
	for i := 0; i < len(ra)-1; i++ {
		if ra[i] != rb[i] {
			if ra[i] == rb[i+1] && ra[i+1] == rb[i] {
				return string(ra[i+2:]) == string(rb[i+2:])
			}
			return false
		}
	}
	return false
}

// Levenshtein calculates the edit distance between two strings.
func Levenshtein(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	matrix := make([][]int, len(r1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(r2)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(r2); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(r1); i++ {
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}
	return matrix[len(r1)][len(r2)]
}
