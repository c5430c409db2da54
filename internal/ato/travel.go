// Package ato detects account-takeover indicators from login telemetry, based
// on the physical impossibility of travel between consecutive logins.
package ato

import (
	"context"
	"fmt"
	"math"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/core"
)

// earthRadiusMiles is the mean Earth radius used by the haversine formula.
const earthRadiusMiles = 3958.8

// Config holds the travel detector's tunables.
type Config struct {
	// SpeedThresholdMPH is the speed above which travel is flagged as
	// impossible (default 500, just under commercial flight speed).
	SpeedThresholdMPH float64
	// PatternToleranceMiles is the match radius for whitelisted routes
	// (default 50).
	PatternToleranceMiles float64
	// VPNMultiplier scales the risk score when the destination looks like a
	// VPN or hosting exit (default 0.6).
	VPNMultiplier float64
	// KnownPatternMultiplier scales the risk score when the trip matches a
	// whitelisted route (default 0.25).
	KnownPatternMultiplier float64
	// VPNCIDRs lists IP prefixes treated as VPN or hosting exits regardless
	// of what the resolved location labels say.
	VPNCIDRs []string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		SpeedThresholdMPH:      500,
		PatternToleranceMiles:  50,
		VPNMultiplier:          0.6,
		KnownPatternMultiplier: 0.25,
	}
}

// Alert levels grade the final risk score on the 40/60/80 cuts. They are
// finer-grained than signal severity, which has only three steps.
const (
	LevelLow      = "low"
	LevelMedium   = "medium"
	LevelHigh     = "high"
	LevelCritical = "critical"
)

// Detector evaluates consecutive logins for impossible travel. The geo
// resolver is optional; without it, logins must arrive with coordinates.
type Detector struct {
	cfg         Config
	vpnPrefixes []netip.Prefix
	resolver    core.GeoResolver
	logger      *zap.Logger
	now         func() time.Time
}

// NewDetector validates configuration and builds a detector.
func NewDetector(cfg Config, resolver core.GeoResolver, logger *zap.Logger) (*Detector, error) {
	if cfg.SpeedThresholdMPH <= 0 {
		return nil, fmt.Errorf("ato: speed threshold must be positive, got %v", cfg.SpeedThresholdMPH)
	}
	if cfg.PatternToleranceMiles <= 0 {
		return nil, fmt.Errorf("ato: pattern tolerance must be positive, got %v", cfg.PatternToleranceMiles)
	}
	if cfg.VPNMultiplier <= 0 || cfg.VPNMultiplier > 1 {
		return nil, fmt.Errorf("ato: VPN multiplier must be in (0,1], got %v", cfg.VPNMultiplier)
	}
	if cfg.KnownPatternMultiplier <= 0 || cfg.KnownPatternMultiplier > 1 {
		return nil, fmt.Errorf("ato: known-pattern multiplier must be in (0,1], got %v", cfg.KnownPatternMultiplier)
	}
	prefixes := make([]netip.Prefix, 0, len(cfg.VPNCIDRs))
	for _, cidr := range cfg.VPNCIDRs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("ato: invalid VPN CIDR %q: %w", cidr, err)
		}
		prefixes = append(prefixes, p)
	}
	return &Detector{cfg: cfg, vpnPrefixes: prefixes, resolver: resolver, logger: logger, now: time.Now}, nil
}

// Check evaluates travel between two consecutive logins for one user. Logins
// missing coordinates are resolved through the geo resolver when available;
// if coordinates still cannot be established the alert carries
// MissingGeoData and is never treated as impossible travel.
func (d *Detector) Check(ctx context.Context, prev, curr core.LoginLocation, patterns []core.TravelPattern) (*core.ImpossibleTravelAlert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prev = d.resolveLocation(prev)
	curr = d.resolveLocation(curr)

	alert := &core.ImpossibleTravelAlert{
		ID:         uuid.New(),
		UserID:     curr.UserID,
		Severity:   core.SeverityInfo,
		Level:      LevelLow,
		From:       prev,
		To:         curr,
		DetectedAt: d.now().UTC(),
	}

	from, okFrom := prev.Point()
	to, okTo := curr.Point()
	if !okFrom || !okTo {
		alert.MissingGeoData = true
		if d.logger != nil {
			d.logger.Debug("Skipping travel check, coordinates unavailable",
				zap.String("user_id", curr.UserID),
				zap.String("from_ip", prev.IP),
				zap.String("to_ip", curr.IP))
		}
		return alert, nil
	}

	alert.DistanceMiles = Haversine(from, to)

	elapsed := curr.Timestamp.Sub(prev.Timestamp).Hours()
	if elapsed <= 0 {
		// Simultaneous logins from distinct places cannot be travel at all.
		if alert.DistanceMiles > 0 {
			alert.SpeedMPH = math.Inf(1)
		}
	} else {
		alert.SpeedMPH = alert.DistanceMiles / elapsed
	}

	if alert.SpeedMPH <= d.cfg.SpeedThresholdMPH {
		return alert, nil
	}

	alert.IsImpossible = true
	score := float64(baseScore(alert.SpeedMPH))

	if d.isLikelyVPN(curr) {
		alert.VPNSuspected = true
		score *= d.cfg.VPNMultiplier
	}
	if matchesPattern(from, to, patterns, d.cfg.PatternToleranceMiles) {
		alert.KnownPattern = true
		score *= d.cfg.KnownPatternMultiplier
	}

	alert.RiskScore = core.ClampScore(int(math.Round(score)))
	alert.Level = alertLevel(alert.RiskScore)
	alert.Severity = alertSeverity(alert.Level)
	return alert, nil
}

// ToSignal converts an alert into the shared signal vocabulary. Nil when the
// travel was possible or could not be evaluated.
func ToSignal(alert *core.ImpossibleTravelAlert) *core.Signal {
	if alert == nil || !alert.IsImpossible {
		return nil
	}
	sig := core.NewSignal(core.SignalImpossibleTravel, alert.Severity, alert.RiskScore,
		fmt.Sprintf("login %s -> %s covers %.0f miles at %.0f mph",
			locationLabel(alert.From), locationLabel(alert.To), alert.DistanceMiles, alert.SpeedMPH),
		map[string]any{
			"user_id":        alert.UserID,
			"level":          alert.Level,
			"distance_miles": alert.DistanceMiles,
			"speed_mph":      alert.SpeedMPH,
			"vpn_suspected":  alert.VPNSuspected,
			"known_pattern":  alert.KnownPattern,
		})
	return &sig
}

// Haversine returns the great-circle distance between two points in miles.
func Haversine(a, b core.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// baseScore maps speed to a pre-mitigation risk score. Faster trips are worth
// more because plausible explanations thin out with speed, and the score never
// decreases as speed grows. Simultaneous distant logins arrive here with an
// infinite speed and land in the top band.
func baseScore(speedMPH float64) int {
	switch {
	case speedMPH < 500:
		return 50
	case speedMPH < 1000:
		return 50 + int(math.Round((speedMPH-500)/500*20))
	case speedMPH < 2000:
		return 70 + int(math.Round((speedMPH-1000)/1000*15))
	case speedMPH < 5000:
		return 85 + int(math.Round((speedMPH-2000)/3000*10))
	default:
		return 95 + int(math.Min(5, math.Round((speedMPH-5000)/2000)))
	}
}

func alertLevel(score int) string {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// alertSeverity folds the four alert levels onto the three-step signal
// severity shared by the other detectors.
func alertSeverity(level string) core.Severity {
	switch level {
	case LevelCritical:
		return core.SeverityCritical
	case LevelHigh, LevelMedium:
		return core.SeverityWarning
	default:
		return core.SeverityInfo
	}
}

// matchesPattern reports whether the trip matches a whitelisted route in
// either direction, with both endpoints inside the tolerance radius.
func matchesPattern(from, to core.GeoPoint, patterns []core.TravelPattern, toleranceMiles float64) bool {
	for _, p := range patterns {
		forward := Haversine(from, p.From) <= toleranceMiles && Haversine(to, p.To) <= toleranceMiles
		reverse := Haversine(from, p.To) <= toleranceMiles && Haversine(to, p.From) <= toleranceMiles
		if forward || reverse {
			return true
		}
	}
	return false
}

// vpnMarkers are substrings of reverse-DNS or org names typical of VPN and
// hosting exits.
var vpnMarkers = []string{"vpn", "proxy", "hosting", "datacenter", "data center", "cloud", "relay"}

// isLikelyVPN combines two heuristics: membership in a configured VPN or
// hosting prefix, and marker words in the resolved location labels.
func (d *Detector) isLikelyVPN(loc core.LoginLocation) bool {
	if addr, err := netip.ParseAddr(loc.IP); err == nil {
		for _, p := range d.vpnPrefixes {
			if p.Contains(addr) {
				return true
			}
		}
	}
	hay := strings.ToLower(loc.City + " " + loc.Country)
	for _, marker := range vpnMarkers {
		if marker != "" && strings.Contains(hay, marker) {
			return true
		}
	}
	return false
}

// resolveLocation fills in missing coordinates through the geo resolver.
func (d *Detector) resolveLocation(loc core.LoginLocation) core.LoginLocation {
	if _, ok := loc.Point(); ok || d.resolver == nil || loc.IP == "" {
		return loc
	}
	data, err := d.resolver.Resolve(loc.IP)
	if err != nil || data == nil {
		return loc
	}
	lat, lng := data.Point.Lat, data.Point.Lng
	loc.Lat, loc.Lng = &lat, &lng
	if loc.City == "" {
		loc.City = data.City
	}
	if loc.Country == "" {
		loc.Country = data.Country
	}
	return loc
}

func locationLabel(loc core.LoginLocation) string {
	switch {
	case loc.City != "" && loc.Country != "":
		return loc.City + ", " + loc.Country
	case loc.Country != "":
		return loc.Country
	case loc.IP != "":
		return loc.IP
	default:
		return "unknown"
	}
}
