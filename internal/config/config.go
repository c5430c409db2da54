package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/inboxguard/")
	v.AddConfigPath("$HOME/.inboxguard")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("INBOXGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.listen_address", "0.0.0.0:8025")
	v.SetDefault("server.metrics_path", "/metrics")

	// Deterministic rule engine defaults
	v.SetDefault("rules.confidence", 0.8)
	v.SetDefault("rules.urgency_min_matches", 2)

	// Signal deduplication defaults
	v.SetDefault("dedup.max_per_group", 1)
	v.SetDefault("dedup.max_sample_urls", 10)

	// URL intelligence defaults
	v.SetDefault("urlintel.known_tracking_domains", []string{})
	v.SetDefault("urlintel.max_url_length", 1500)
	v.SetDefault("urlintel.max_query_params", 15)
	v.SetDefault("urlintel.age_amplifier", 1.5)
	v.SetDefault("urlintel.new_domain_days", 30)
	v.SetDefault("urlintel.established_domain_days", 365)

	// Threat intel defaults
	v.SetDefault("threatintel.feed_timeout", "3s")
	v.SetDefault("threatintel.cache_ttl", "30m")
	v.SetDefault("threatintel.clickcheck_ttl", "5m")
	v.SetDefault("threatintel.clickcheck_rate_limit", 30)
	v.SetDefault("threatintel.clickcheck_rate_window", "1m")
	v.SetDefault("threatintel.disagreement_threshold", 0.7)
	v.SetDefault("threatintel.max_indicators_per_email", 5)
	v.SetDefault("threatintel.feeds", []map[string]any{})

	// Anomaly detection defaults
	v.SetDefault("anomaly.volume_z_threshold", 3.0)
	v.SetDefault("anomaly.hour_probability_threshold", 0.02)
	v.SetDefault("anomaly.weekend_activity_threshold", 0.1)
	v.SetDefault("anomaly.alert_threshold", 75)
	v.SetDefault("anomaly.weights.volume", 0.3)
	v.SetDefault("anomaly.weights.time", 0.2)
	v.SetDefault("anomaly.weights.recipient", 0.25)
	v.SetDefault("anomaly.weights.content", 0.25)
	v.SetDefault("anomaly.disabled_dimensions", []string{})

	// Account takeover defaults
	v.SetDefault("ato.speed_threshold_mph", 500.0)
	v.SetDefault("ato.pattern_tolerance_miles", 50.0)
	v.SetDefault("ato.vpn_score_multiplier", 0.6)
	v.SetDefault("ato.known_pattern_multiplier", 0.25)
	v.SetDefault("ato.vpn_cidrs", []string{})
	v.SetDefault("ato.geoip_db_path", "")

	// Impersonation defaults
	v.SetDefault("impersonation.vip_entries", []map[string]any{})

	// Webhook signing defaults
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.tolerance", "300s")
	v.SetDefault("webhook.future_skew", "30s")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.cleanup_frequency", "0s")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)

	// Baseline store defaults
	v.SetDefault("baseline.store", "memory")
	v.SetDefault("baseline.postgres_dsn", "postgres://localhost:5432/inboxguard?sslmode=disable")
	v.SetDefault("baseline.mysql_dsn", "user:password@tcp(localhost:3306)/inboxguard")

	// Feedback store defaults
	v.SetDefault("feedback.store", "sqlite")
	v.SetDefault("feedback.sqlite_path", "/data/feedback.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// UnmarshalKey decodes a configuration section into a struct
func (c *Config) UnmarshalKey(key string, out any) error {
	return c.v.UnmarshalKey(key, out)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
