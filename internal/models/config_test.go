package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	// Test server defaults
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, config.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, config.Server.IdleTimeout)
	assert.False(t, config.Server.TLSEnabled)

	// Test policy defaults
	assert.True(t, config.RateLimit.Enabled)
	assert.Len(t, config.RateLimit.Policies, 5)
	assert.Equal(t, PolicyConfig{Window: 15 * time.Minute, MaxRequests: 10}, config.RateLimit.Policies[PolicyLogin])
	assert.Equal(t, PolicyConfig{Window: time.Minute, MaxRequests: 200}, config.RateLimit.Policies[PolicyAPI])
	assert.Equal(t, PolicyConfig{Window: 5 * time.Minute, MaxRequests: 3}, config.RateLimit.Policies[PolicyVoting])
	assert.Equal(t, PolicyConfig{Window: time.Minute, MaxRequests: 20}, config.RateLimit.Policies[PolicyBallot])
	assert.Equal(t, PolicyConfig{Window: 30 * time.Second, MaxRequests: 60}, config.RateLimit.Policies[PolicyResults])
	assert.Equal(t, time.Duration(0), config.RateLimit.SweepInterval)

	// Test backend defaults
	assert.Equal(t, BackendMemory, config.Store.Type)
	assert.Equal(t, BackendMemory, config.Stats.Type)
	assert.Equal(t, StorageTypeMemory, config.Storage.Type)
	assert.Equal(t, 1000, config.Storage.MaxEntries)

	// Test logging defaults
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, "stdout", config.Logging.Output)

	// Test metrics defaults
	assert.True(t, config.Metrics.Enabled)
	assert.Equal(t, "/metrics", config.Metrics.Path)
	assert.Equal(t, 9090, config.Metrics.Port)

	require.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "invalid server config"},
		{"tls without cert", func(c *Config) { c.Server.TLSEnabled = true }, "TLS cert file is required"},
		{"empty upstream", func(c *Config) { c.Upstream.URL = "" }, "upstream url cannot be empty"},
		{"upstream scheme", func(c *Config) { c.Upstream.URL = "ftp://backend" }, "http or https"},
		{"upstream host", func(c *Config) { c.Upstream.URL = "http://" }, "must include a host"},
		{"zero window", func(c *Config) {
			c.RateLimit.Policies[PolicyLogin] = PolicyConfig{Window: 0, MaxRequests: 10}
		}, "window must be positive"},
		{"sub-millisecond window", func(c *Config) {
			c.RateLimit.Policies[PolicyAPI] = PolicyConfig{Window: 1500 * time.Microsecond, MaxRequests: 10}
		}, "whole number of milliseconds"},
		{"zero limit", func(c *Config) {
			c.RateLimit.Policies[PolicyVoting] = PolicyConfig{Window: time.Minute}
		}, "max_requests must be positive"},
		{"missing policy", func(c *Config) { delete(c.RateLimit.Policies, PolicyBallot) }, `policy "ballot" is not configured`},
		{"empty user header", func(c *Config) { c.RateLimit.UserIDHeader = "" }, "user id header"},
		{"negative sweep", func(c *Config) { c.RateLimit.SweepInterval = -time.Second }, "sweep interval"},
		{"unknown store", func(c *Config) { c.Store.Type = "memcached" }, "invalid store type"},
		{"redis without addr", func(c *Config) { c.Store.Type = BackendRedis; c.Store.Redis.Addr = "" }, "redis address"},
		{"unknown stats", func(c *Config) { c.Stats.Type = "statsd" }, "invalid stats type"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "mongodb" }, "invalid storage type"},
		{"sqlite without dsn", func(c *Config) { c.Storage.Type = StorageTypeSQLite }, "DSN is required"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid log level"},
		{"file output without path", func(c *Config) { c.Logging.Output = "file" }, "file path is required"},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }, "metrics port"},
		{"otlp without endpoint", func(c *Config) {
			c.Observability.Tracing.Enabled = true
			c.Observability.Tracing.Exporter = "otlp"
		}, "otlp endpoint is required"},
		{"sample rate", func(c *Config) {
			c.Observability.Tracing.Enabled = true
			c.Observability.Tracing.SampleRate = 1.5
		}, "sample rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRateLimitConfig_ValidateDisabled(t *testing.T) {
	rc := RateLimitConfig{Enabled: false}
	assert.NoError(t, rc.Validate(), "disabled rate limiting skips policy checks")
}

func TestDefaultPolicies_IsFreshCopy(t *testing.T) {
	a := DefaultPolicies()
	a[PolicyLogin] = PolicyConfig{Window: time.Second, MaxRequests: 1}

	assert.Equal(t, 10, DefaultPolicies()[PolicyLogin].MaxRequests)
}
