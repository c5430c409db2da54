package urlintel

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// Obfuscation techniques reported by DetectObfuscation.
const (
	ObfPercentEncoding   = "percent_encoding"
	ObfDoubleEncoding    = "double_percent_encoding"
	ObfFullwidth         = "fullwidth_characters"
	ObfCredentialPrefix  = "credential_prefix"
	ObfDecimalIP         = "decimal_ip"
	ObfHexIP             = "hex_ip"
	ObfShortener         = "shortener"
	ObfEmbeddedBase64    = "embedded_base64"
	ObfExcessiveLength   = "excessive_length"
	ObfExcessiveParams   = "excessive_parameters"
)

// ObfuscationConfig bounds the size heuristics.
type ObfuscationConfig struct {
	MaxURLLength   int
	MaxQueryParams int
}

// DefaultObfuscationConfig matches the documented defaults.
func DefaultObfuscationConfig() ObfuscationConfig {
	return ObfuscationConfig{MaxURLLength: 1500, MaxQueryParams: 15}
}

// ObfuscationResult lists the encoding tricks found in one URL.
type ObfuscationResult struct {
	URL         string   `json:"url"`
	Suspicious  bool     `json:"suspicious"`
	Techniques  []string `json:"techniques,omitempty"`
	DecodedHost string   `json:"decoded_host,omitempty"`
	Score       int      `json:"score"`
	ParseError  bool     `json:"parse_error,omitempty"`
}

var (
	doubleEncodedRe = regexp.MustCompile(`%25[0-9a-fA-F]{2}`)
	hexQuadRe       = regexp.MustCompile(`^0x[0-9a-fA-F]{1,2}(\.0x[0-9a-fA-F]{1,2}){3}$`)
	base64ChunkRe   = regexp.MustCompile(`[A-Za-z0-9+/=]{16,}`)
)

// DetectObfuscation inspects a raw URL for encoding tricks that hide the real
// destination. Ordinary percent-encoded spaces in query strings are normal
// and not flagged; encoding in the host portion is.
func DetectObfuscation(raw string, cfg ObfuscationConfig) ObfuscationResult {
	result := ObfuscationResult{URL: raw}
	if cfg.MaxURLLength <= 0 {
		cfg = DefaultObfuscationConfig()
	}

	if len(raw) > cfg.MaxURLLength {
		result.Techniques = append(result.Techniques, ObfExcessiveLength)
	}

	// Fold full-width characters before parsing: ｈｔｔｐ：// style URLs
	// normalize to something parseable.
	folded := width.Narrow.String(raw)
	if folded != raw {
		result.Techniques = append(result.Techniques, ObfFullwidth)
	}

	u, err := url.Parse(folded)
	if err != nil || u.Host == "" {
		// Try once more with an assumed scheme before giving up.
		if u2, err2 := url.Parse("http://" + folded); err2 == nil && u2.Host != "" {
			u = u2
		} else {
			result.ParseError = true
			result.Suspicious = len(result.Techniques) > 0
			result.Score = obfuscationScore(result.Techniques)
			return result
		}
	}

	host := strings.ToLower(u.Hostname())
	result.DecodedHost = host

	// user@host credential-prefix: the part before @ masquerades as the
	// destination while the real host follows it.
	if u.User != nil {
		result.Techniques = append(result.Techniques, ObfCredentialPrefix)
	}

	if isDecimalIP(host) {
		result.Techniques = append(result.Techniques, ObfDecimalIP)
	} else if isHexIP(host) {
		result.Techniques = append(result.Techniques, ObfHexIP)
	}

	// Percent-encoding anywhere outside the query string is a hiding
	// technique; inside a query it is routine.
	beforeQuery := folded
	if i := strings.Index(beforeQuery, "?"); i >= 0 {
		beforeQuery = beforeQuery[:i]
	}
	if doubleEncodedRe.MatchString(folded) {
		result.Techniques = append(result.Techniques, ObfDoubleEncoding)
	} else if strings.Count(beforeQuery, "%") >= 3 {
		result.Techniques = append(result.Techniques, ObfPercentEncoding)
	}

	if IsShortenerHost(host) {
		result.Techniques = append(result.Techniques, ObfShortener)
	}

	if hasEmbeddedBase64(u) {
		result.Techniques = append(result.Techniques, ObfEmbeddedBase64)
	}

	if len(u.Query()) > cfg.MaxQueryParams {
		result.Techniques = append(result.Techniques, ObfExcessiveParams)
	}

	result.Suspicious = len(result.Techniques) > 0
	result.Score = obfuscationScore(result.Techniques)
	return result
}

func obfuscationScore(techniques []string) int {
	score := 0
	for _, t := range techniques {
		switch t {
		case ObfCredentialPrefix, ObfDecimalIP, ObfHexIP, ObfDoubleEncoding:
			score += 25
		case ObfFullwidth, ObfEmbeddedBase64:
			score += 20
		case ObfPercentEncoding, ObfExcessiveLength:
			score += 15
		default:
			score += 10
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// isDecimalIP matches hosts like 3232235777 that decode to an IPv4 address.
func isDecimalIP(host string) bool {
	if host == "" {
		return false
	}
	n, err := strconv.ParseUint(host, 10, 64)
	if err != nil {
		return false
	}
	return n <= 0xFFFFFFFF && n >= 0x01000000
}

// isHexIP matches 0xC0A80101 and dotted hex quads like 0xC0.0xA8.0x01.0x01.
func isHexIP(host string) bool {
	if hexQuadRe.MatchString(host) {
		return true
	}
	if !strings.HasPrefix(host, "0x") {
		return false
	}
	n, err := strconv.ParseUint(host[2:], 16, 64)
	if err != nil {
		return false
	}
	return n <= 0xFFFFFFFF
}

// hasEmbeddedBase64 looks for base64 payloads in the path or query that
// decode to text containing another URL.
func hasEmbeddedBase64(u *url.URL) bool {
	candidates := base64ChunkRe.FindAllString(u.RawQuery, -1)
	candidates = append(candidates, base64ChunkRe.FindAllString(u.EscapedPath(), -1)...)
	for _, c := range candidates {
		decoded, err := base64.StdEncoding.DecodeString(c)
		if err != nil {
			if decoded, err = base64.RawURLEncoding.DecodeString(c); err != nil {
				continue
			}
		}
		s := string(decoded)
		if strings.Contains(s, "http://") || strings.Contains(s, "https://") {
			return true
		}
	}
	return false
}
