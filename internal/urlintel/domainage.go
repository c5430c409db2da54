package urlintel

import (
	"math"

	"github.com/inboxguard/inboxguard/internal/core"
)

// DomainAgeInfo is what the registration-data collaborator knows about a
// domain. Known is false when no registration record was available.
type DomainAgeInfo struct {
	Domain    string `json:"domain"`
	AgeDays   int    `json:"age_days"`
	Known     bool   `json:"known"`
	Lookalike bool   `json:"lookalike"`
}

// AmplifyConfig holds the tuned amplification constants. They are empirically
// chosen; keep them configurable rather than re-deriving.
type AmplifyConfig struct {
	Multiplier            float64 // base amplifier, default 1.5
	NewDomainDays         int     // below this, full amplification (default 30)
	EstablishedDomainDays int     // at or beyond this, none (default 365)
}

// DefaultAmplifyConfig returns the documented defaults.
func DefaultAmplifyConfig() AmplifyConfig {
	return AmplifyConfig{Multiplier: 1.5, NewDomainDays: 30, EstablishedDomainDays: 365}
}

// amplifiable are the signal types that a young or lookalike sending domain
// makes materially worse: social-engineering evidence, not mechanical checks.
var amplifiable = map[core.SignalType]bool{
	core.SignalBECImpersonation:  true,
	core.SignalDisplayNameSpoof:  true,
	core.SignalHomoglyphDomain:   true,
	core.SignalCousinDomain:      true,
	core.SignalCredentialRequest: true,
	core.SignalFinancialRequest:  true,
}

// AmplifySignals returns a new signal list where impersonation and
// credential/financial signals are scaled up when the associated domain is
// newly registered or an explicit lookalike. Established domains pass
// through untouched. Inputs are never mutated.
func AmplifySignals(signals []core.Signal, age DomainAgeInfo, cfg AmplifyConfig) []core.Signal {
	if cfg.Multiplier <= 1 {
		cfg = DefaultAmplifyConfig()
	}
	factor := amplificationFactor(age, cfg)
	if factor <= 1 {
		return append([]core.Signal(nil), signals...)
	}

	out := make([]core.Signal, 0, len(signals))
	for _, s := range signals {
		if !amplifiable[s.Type] {
			out = append(out, s)
			continue
		}
		amplified := s.Clone()
		amplified.Score = core.ClampScore(int(math.Round(float64(s.Score) * factor)))
		if amplified.Metadata == nil {
			amplified.Metadata = make(map[string]any)
		}
		amplified.Metadata["age_amplified"] = true
		amplified.Metadata["amplification_factor"] = factor
		if age.Known {
			amplified.Metadata["domain_age_days"] = age.AgeDays
		}
		out = append(out, amplified)
	}
	return out
}

// amplificationFactor computes the multiplier for a domain: the full
// configured multiplier for brand lookalikes and domains younger than
// NewDomainDays, decaying linearly to 1.0 at EstablishedDomainDays.
func amplificationFactor(age DomainAgeInfo, cfg AmplifyConfig) float64 {
	if age.Lookalike {
		return cfg.Multiplier
	}
	if !age.Known {
		return 1.0
	}
	if age.AgeDays < cfg.NewDomainDays {
		return cfg.Multiplier
	}
	if age.AgeDays >= cfg.EstablishedDomainDays {
		return 1.0
	}
	span := float64(cfg.EstablishedDomainDays - cfg.NewDomainDays)
	progress := float64(age.AgeDays-cfg.NewDomainDays) / span
	return cfg.Multiplier - (cfg.Multiplier-1.0)*progress
}
