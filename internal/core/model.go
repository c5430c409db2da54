package core

import (
	"time"

	"github.com/google/uuid"
)

// EmailAddress is a structured address as supplied by the parsed-email
// provider. Domain is pre-extracted and lowercased by the provider; when it is
// empty the detection layers fall back to splitting Address.
type EmailAddress struct {
	Address     string `json:"address"`
	Domain      string `json:"domain"`
	DisplayName string `json:"display_name,omitempty"`
}

// Attachment carries the metadata the rule engine needs; content scanning is
// not part of this core.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Email is a parsed inbound message. All fields may be absent; detection
// layers treat missing fields as "nothing to check", never as errors.
type Email struct {
	ID          uuid.UUID         `json:"id"`
	TenantID    string            `json:"tenant_id"`
	Headers     map[string]string `json:"headers"`
	From        EmailAddress      `json:"from"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	TextBody    string            `json:"text_body,omitempty"`
	HTMLBody    string            `json:"html_body,omitempty"`
	Recipients  []string          `json:"recipients,omitempty"`
	URLs        []string          `json:"urls,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	ReceivedAt  time.Time         `json:"received_at"`
}

// FromDomain returns the sender domain, extracting it from the address when
// the provider did not populate it.
func (e *Email) FromDomain() string {
	if e.From.Domain != "" {
		return e.From.Domain
	}
	return DomainOf(e.From.Address)
}

// TenantContext is the per-tenant configuration slice a detection call runs
// under. It is read-only during detection.
type TenantContext struct {
	TenantID             string
	OrgDomains           []string
	KnownTrackingDomains []string
	DisabledAnomalyTypes []AnomalyDimension
}

// URLType classifies what a URL is for.
type URLType string

const (
	URLMalicious URLType = "malicious"
	URLRedirect  URLType = "redirect"
	URLTracking  URLType = "tracking"
	URLShortener URLType = "shortener"
	URLSafe      URLType = "safe"
)

// TrustLevel scales a URL classification's score contribution.
type TrustLevel string

const (
	TrustLow    TrustLevel = "low"
	TrustMedium TrustLevel = "medium"
	TrustHigh   TrustLevel = "high"
)

// URLClassification is the verdict for a single URL. Score is the raw
// pre-multiplier contribution; EffectiveScore applies the trust multiplier.
type URLClassification struct {
	URL        string         `json:"url"`
	Type       URLType        `json:"type"`
	TrustLevel TrustLevel     `json:"trust_level"`
	Score      int            `json:"score"`
	Reason     string         `json:"reason"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EffectiveScore applies the trust multiplier. High-trust tracking links from
// known senders must contribute nothing to the email's score.
func (c URLClassification) EffectiveScore() int {
	switch c.TrustLevel {
	case TrustHigh:
		return 0
	case TrustMedium:
		return c.Score / 2
	default:
		return c.Score
	}
}

// FeedVerdict is one reputation feed's answer for an indicator, or the record
// of its absence when it timed out or errored.
type FeedVerdict struct {
	Feed        string   `json:"feed"`
	Verdict     string   `json:"verdict,omitempty"`
	Score       int      `json:"score"`
	Reliability float64  `json:"reliability"`
	Tags        []string `json:"tags,omitempty"`
	TimedOut    bool     `json:"timed_out,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Usable reports whether the verdict may participate in consensus.
func (v FeedVerdict) Usable() bool {
	return !v.TimedOut && v.Error == ""
}

// ThreatIntelResult aggregates feed verdicts for one indicator.
type ThreatIntelResult struct {
	Indicator      string        `json:"indicator"`
	Sources        []FeedVerdict `json:"sources"`
	ConsensusScore int           `json:"consensus_score"`
	Confidence     float64       `json:"confidence"`
	Disagreement   bool          `json:"disagreement"`
	FromCache      bool          `json:"from_cache"`
	CheckedAt      time.Time     `json:"checked_at"`
}

// VolumeStats is a mean/standard-deviation pair from the baseline computation.
type VolumeStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// TenantBaseline is a tenant's statistical profile, computed out-of-band and
// consumed read-only. It is replaced wholesale on recomputation.
type TenantBaseline struct {
	TenantID              string      `json:"tenant_id"`
	DailyEmailVolume      VolumeStats `json:"daily_email_volume"`
	HourlyDistribution    [24]float64 `json:"hourly_distribution"`
	TopRecipients         []string    `json:"top_recipients"`
	TopSenders            []string    `json:"top_senders"`
	KnownRecipientDomains []string    `json:"known_recipient_domains"`
	SubjectPatterns       []string    `json:"subject_patterns"`
	WeekendActivity       float64     `json:"weekend_activity"`
	CalculatedAt          time.Time   `json:"calculated_at"`
}

// EmailBehaviorData is the observed behavior slice for one email.
type EmailBehaviorData struct {
	Sender            string    `json:"sender"`
	Recipients        []string  `json:"recipients"`
	Subject           string    `json:"subject"`
	SentAt            time.Time `json:"sent_at"`
	SenderDailyVolume float64   `json:"sender_daily_volume"`
	FirstContact      bool      `json:"first_contact"`
}

// AnomalyDimension names one behavioral detection dimension.
type AnomalyDimension string

const (
	DimensionVolume    AnomalyDimension = "volume"
	DimensionTime      AnomalyDimension = "time"
	DimensionRecipient AnomalyDimension = "recipient"
	DimensionContent   AnomalyDimension = "content"
)

// DimensionDetail is the per-dimension record attached to an AnomalyResult.
// Severity uses a low/medium/high scale, unlike signal severities: dimension
// records grade deviation strength, not alarm level.
type DimensionDetail struct {
	ZScore      float64 `json:"z_score,omitempty"`
	Probability float64 `json:"probability,omitempty"`
	Score       int     `json:"score"`
	Severity    string  `json:"severity"`
	Detail      string  `json:"detail"`
}

// AnomalyResult is the behavioral detector's output.
type AnomalyResult struct {
	HasAnomaly         bool                                 `json:"has_anomaly"`
	CompositeScore     int                                  `json:"composite_score"`
	AnomalyTypes       []AnomalyDimension                   `json:"anomaly_types"`
	Details            map[AnomalyDimension]DimensionDetail `json:"details,omitempty"`
	FeedbackAdjustment int                                  `json:"feedback_adjustment"`
	ShouldAlert        bool                                 `json:"should_alert"`
	AlertSeverity      Severity                             `json:"alert_severity"`
}

// FeedbackKind records how a human judged a prior anomaly alert.
type FeedbackKind string

const (
	FeedbackFalsePositive FeedbackKind = "false_positive"
	FeedbackTruePositive  FeedbackKind = "true_positive"
)

// FeedbackRecord is one append-only feedback entry. Records are never
// rewritten; the adjustment table is recomputed from the full log.
type FeedbackRecord struct {
	ID           uuid.UUID          `json:"id"`
	TenantID     string             `json:"tenant_id"`
	EmailID      uuid.UUID          `json:"email_id"`
	Kind         FeedbackKind       `json:"kind"`
	AnomalyTypes []AnomalyDimension `json:"anomaly_types"`
	CreatedAt    time.Time          `json:"created_at"`
}

// GeoPoint is a latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LoginLocation is a single observed login. Lat/Lng are pointers because geo
// data is frequently missing; missing coordinates mean travel cannot be
// evaluated, not that it is impossible.
type LoginLocation struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	IP        string    `json:"ip"`
	City      string    `json:"city,omitempty"`
	Country   string    `json:"country,omitempty"`
}

// Point returns the location's coordinates and whether they are present.
func (l LoginLocation) Point() (GeoPoint, bool) {
	if l.Lat == nil || l.Lng == nil {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: *l.Lat, Lng: *l.Lng}, true
}

// TravelPattern is a whitelisted route for one user. Matching is
// bidirectional within a tolerance radius.
type TravelPattern struct {
	UserID    string    `json:"user_id"`
	From      GeoPoint  `json:"from"`
	To        GeoPoint  `json:"to"`
	Frequency int       `json:"frequency"`
	AddedAt   time.Time `json:"added_at"`
}

// ImpossibleTravelAlert is derived per check and never persisted by this core.
type ImpossibleTravelAlert struct {
	ID             uuid.UUID     `json:"id"`
	UserID         string        `json:"user_id"`
	IsImpossible   bool          `json:"is_impossible"`
	MissingGeoData bool          `json:"missing_geo_data"`
	Severity       Severity      `json:"severity"`
	Level          string        `json:"level"`
	RiskScore      int           `json:"risk_score"`
	DistanceMiles  float64       `json:"distance_miles"`
	SpeedMPH       float64       `json:"speed_mph"`
	VPNSuspected   bool          `json:"vpn_suspected"`
	KnownPattern   bool          `json:"known_pattern"`
	From           LoginLocation `json:"from"`
	To             LoginLocation `json:"to"`
	DetectedAt     time.Time     `json:"detected_at"`
}

// VIP is an entry in the external VIP directory, read-only here.
type VIP struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Title string `json:"title,omitempty"`
}

// ImpersonationResult is the BEC detector's output.
type ImpersonationResult struct {
	IsImpersonation bool     `json:"is_impersonation"`
	Confidence      float64  `json:"confidence"`
	Signals         []Signal `json:"signals"`
	Explanation     string   `json:"explanation"`
	MatchedVIP      *VIP     `json:"matched_vip,omitempty"`
	RiskLevel       string   `json:"risk_level"`
}

// Verdict is the merged output of all layers for one email.
type Verdict struct {
	EmailID    uuid.UUID     `json:"email_id"`
	TenantID   string        `json:"tenant_id"`
	Score      int           `json:"score"`
	RiskLevel  string        `json:"risk_level"`
	Layers     []LayerResult `json:"layers"`
	Signals    []Signal      `json:"signals"`
	AnalyzedAt time.Time     `json:"analyzed_at"`
}
