package core

import (
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// DomainOf extracts the lowercased domain from an email address, returning ""
// for malformed input.
func DomainOf(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

// ValidEmail performs basic address format validation.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ContainsDomain reports whether domain appears in the list, ignoring case.
func ContainsDomain(domain string, list []string) bool {
	for _, d := range list {
		if strings.EqualFold(domain, d) {
			return true
		}
	}
	return false
}
