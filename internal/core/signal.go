package core

import (
	"fmt"
)

// Severity classifies how alarming a single signal is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SignalType is the closed vocabulary of detection evidence. Each type belongs
// to exactly one analysis layer; LayerForSignal matches exhaustively so that a
// newly added type that is not mapped shows up as "unknown" instead of being
// silently scored.
type SignalType string

const (
	// Deterministic rule engine
	SignalSPFPass          SignalType = "spf_pass"
	SignalSPFFail          SignalType = "spf_fail"
	SignalSPFSoftfail      SignalType = "spf_softfail"
	SignalDMARCFail        SignalType = "dmarc_fail"
	SignalFreeEmailSender  SignalType = "free_email_sender"
	SignalDisposableDomain SignalType = "disposable_domain"
	SignalHomoglyphDomain  SignalType = "homoglyph"
	SignalCousinDomain     SignalType = "cousin_domain"
	SignalDisplayNameSpoof SignalType = "display_name_spoof"
	SignalReplyToMismatch  SignalType = "reply_to_mismatch"
	SignalMissingMessageID SignalType = "missing_message_id"
	SignalUrgencyLanguage  SignalType = "urgency_language"
	SignalFinancialRequest SignalType = "financial_request"
	SignalCredentialRequest SignalType = "credential_request"

	// URL intelligence
	SignalMaliciousURL     SignalType = "malicious_url"
	SignalRedirectURL      SignalType = "redirect_url"
	SignalTrackingURL      SignalType = "tracking_url"
	SignalShortenerURL     SignalType = "shortener_url"
	SignalLookalikeURL     SignalType = "lookalike_url"
	SignalObfuscatedURL    SignalType = "obfuscated_url"
	SignalRedirectChain    SignalType = "suspicious_redirect_chain"

	// Threat intelligence
	SignalThreatIntel             SignalType = "threat_intel_match"
	SignalThreatIntelDisagreement SignalType = "threat_intel_disagreement"
	SignalCheckTimeout            SignalType = "check_timeout"

	// Behavioral anomaly
	SignalVolumeAnomaly    SignalType = "volume_anomaly"
	SignalTimeAnomaly      SignalType = "time_anomaly"
	SignalRecipientAnomaly SignalType = "recipient_anomaly"
	SignalContentAnomaly   SignalType = "content_anomaly"

	// Impersonation (BEC)
	SignalBECImpersonation SignalType = "bec_impersonation"
	SignalExecTitleSpoof   SignalType = "exec_title_spoof"
	SignalFreemailExec     SignalType = "freemail_exec"
	SignalReplyToRedirect  SignalType = "reply_to_redirect"
	SignalCousinOrgDomain  SignalType = "cousin_org_domain"
	SignalUnicodeSpoof     SignalType = "unicode_spoof"

	// Account takeover
	SignalImpossibleTravel SignalType = "impossible_travel"
)

// Analysis layer names shared by LayerResult and LayerForSignal.
const (
	LayerDeterministic = "deterministic"
	LayerURL           = "url_intelligence"
	LayerThreatIntel   = "threat_intel"
	LayerAnomaly       = "anomaly"
	LayerImpersonation = "impersonation"
	LayerATO           = "account_takeover"
	LayerUnknown       = "unknown"
)

// LayerForSignal maps a signal type to the layer that owns it. The switch is
// exhaustive over the declared vocabulary; an unmapped type returns
// LayerUnknown so the caller can log it rather than score it blindly.
func LayerForSignal(t SignalType) string {
	switch t {
	case SignalSPFPass, SignalSPFFail, SignalSPFSoftfail, SignalDMARCFail, SignalFreeEmailSender,
		SignalDisposableDomain, SignalHomoglyphDomain, SignalCousinDomain,
		SignalDisplayNameSpoof, SignalReplyToMismatch, SignalMissingMessageID,
		SignalUrgencyLanguage, SignalFinancialRequest, SignalCredentialRequest:
		return LayerDeterministic
	case SignalMaliciousURL, SignalRedirectURL, SignalTrackingURL, SignalShortenerURL,
		SignalLookalikeURL, SignalObfuscatedURL, SignalRedirectChain:
		return LayerURL
	case SignalThreatIntel, SignalThreatIntelDisagreement, SignalCheckTimeout:
		return LayerThreatIntel
	case SignalVolumeAnomaly, SignalTimeAnomaly, SignalRecipientAnomaly, SignalContentAnomaly:
		return LayerAnomaly
	case SignalBECImpersonation, SignalExecTitleSpoof, SignalFreemailExec,
		SignalReplyToRedirect, SignalCousinOrgDomain, SignalUnicodeSpoof:
		return LayerImpersonation
	case SignalImpossibleTravel:
		return LayerATO
	default:
		return LayerUnknown
	}
}

// IsURLSignal reports whether a signal type refers to a single URL and should
// therefore use the URL-specific deduplication path.
func IsURLSignal(t SignalType) bool {
	return LayerForSignal(t) == LayerURL
}

// Signal is the atomic unit of detection evidence. Signals are immutable once
// created; transformations (deduplication, amplification) return new values.
type Signal struct {
	Type     SignalType     `json:"type"`
	Severity Severity       `json:"severity"`
	Score    int            `json:"score"`
	Detail   string         `json:"detail"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewSignal creates a signal with a defensive copy of the metadata bag.
func NewSignal(t SignalType, sev Severity, score int, detail string, metadata map[string]any) Signal {
	s := Signal{
		Type:     t,
		Severity: sev,
		Score:    score,
		Detail:   detail,
	}
	if len(metadata) > 0 {
		s.Metadata = make(map[string]any, len(metadata))
		for k, v := range metadata {
			s.Metadata[k] = v
		}
	}
	return s
}

// Clone returns a copy whose metadata map is independent of the receiver's.
func (s Signal) Clone() Signal {
	return NewSignal(s.Type, s.Severity, s.Score, s.Detail, s.Metadata)
}

// Meta reads a metadata key, returning nil when the bag is absent.
func (s Signal) Meta(key string) any {
	if s.Metadata == nil {
		return nil
	}
	return s.Metadata[key]
}

// LayerResult is the output of one analysis layer.
type LayerResult struct {
	Layer            string   `json:"layer"`
	Score            int      `json:"score"`
	Confidence       float64  `json:"confidence"`
	Signals          []Signal `json:"signals"`
	ProcessingTimeMs float64  `json:"processing_time_ms"`
}

// SumSignalScores adds up signal scores, saturating at 100.
func SumSignalScores(signals []Signal) int {
	total := 0
	for _, s := range signals {
		total += s.Score
	}
	return ClampScore(total)
}

// ClampScore saturates a score into the documented 0-100 range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ClampRatio saturates a ratio into the 0-1 range.
func ClampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// RiskLevel converts a 0-100 score to a categorical level.
func RiskLevel(score int) string {
	switch {
	case score >= 85:
		return "critical"
	case score >= 70:
		return "high"
	case score >= 50:
		return "medium"
	case score >= 30:
		return "low"
	default:
		return "none"
	}
}

// SeverityForScore maps a 0-100 risk score to severity using the 40/60/80
// cuts shared by the account-takeover and anomaly paths.
func SeverityForScore(score int) Severity {
	switch {
	case score >= 80:
		return SeverityCritical
	case score >= 40:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func (s Signal) String() string {
	return fmt.Sprintf("%s/%s score=%d %s", s.Type, s.Severity, s.Score, s.Detail)
}
