// Package geoip resolves login IPs to coordinates with a MaxMind database.
package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/core"
)

// Resolver wraps a GeoIP2 city database. A resolver built without a database
// answers every lookup with nil, letting travel checks degrade to
// missing-geo-data instead of failing.
type Resolver struct {
	db     *geoip2.Reader
	logger *zap.Logger
}

// NewResolver opens the database at dbPath. An empty path yields a disabled
// resolver rather than an error so deployments without the database still
// start.
func NewResolver(dbPath string, logger *zap.Logger) (*Resolver, error) {
	if dbPath == "" {
		if logger != nil {
			logger.Info("GeoIP database not configured, travel checks will run without IP resolution")
		}
		return &Resolver{logger: logger}, nil
	}
	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database at %s: %w", dbPath, err)
	}
	return &Resolver{db: db, logger: logger}, nil
}

// Resolve maps an IP to coordinates. Unknown or private IPs return
// (nil, nil).
func (r *Resolver) Resolve(ipStr string) (*core.GeoData, error) {
	if r.db == nil {
		return nil, nil
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address %q", ipStr)
	}
	if ip.IsPrivate() || ip.IsLoopback() {
		return nil, nil
	}

	record, err := r.db.City(ip)
	if err != nil {
		return nil, fmt.Errorf("GeoIP lookup failed for %s: %w", ipStr, err)
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 && record.Country.IsoCode == "" {
		return nil, nil
	}

	data := &core.GeoData{
		Point:   core.GeoPoint{Lat: record.Location.Latitude, Lng: record.Location.Longitude},
		Country: record.Country.IsoCode,
	}
	if name, ok := record.City.Names["en"]; ok {
		data.City = name
	}
	return data, nil
}

// Close releases the database handle.
func (r *Resolver) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
