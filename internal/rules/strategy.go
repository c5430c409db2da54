// Package rules is the deterministic rule engine: fixed-point, network-free
// checks over a parsed email's authentication results, sender identity,
// headers, and content.
package rules

import (
	"github.com/inboxguard/inboxguard/internal/core"
)

// Strategy is one deterministic check. Strategies are pure functions of the
// email and context; each returns zero or more signals with fixed point
// contributions.
type Strategy interface {
	// Name returns the human-readable name of this detection strategy.
	Name() string

	// Detect scans an email and returns the signals it finds, nil when clean.
	Detect(email *core.Email, rctx *Context) []core.Signal
}

// Context provides shared per-tenant context needed by multiple strategies.
type Context struct {
	// OrgDomains are the tenant's own domains, used to tell internal from
	// external senders.
	OrgDomains []string

	// KnownTrackingDomains are tracking hosts the tenant has vouched for.
	KnownTrackingDomains []string
}

// NewContext creates a rule context from tenant configuration.
func NewContext(tenant core.TenantContext) *Context {
	return &Context{
		OrgDomains:           tenant.OrgDomains,
		KnownTrackingDomains: tenant.KnownTrackingDomains,
	}
}
