// Package models - Service configuration and operational settings.
// This file defines the configuration tree for the admission gateway.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, rate limiting, storage, etc.)
// - Defaults that reproduce the TrustElect policy table out of the box
// - Validation catches misconfigurations at startup, never per request
package models

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Storage type constants for the rejection audit log.
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Counter store and statistics backend constants.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Policy names of the five guarded route classes.
const (
	PolicyLogin   = "login"
	PolicyAPI     = "api"
	PolicyVoting  = "voting"
	PolicyBallot  = "ballot"
	PolicyResults = "results"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP listener of the public gateway
// - Upstream: TrustElect backend that admitted requests are proxied to
// - RateLimit: policy table and identity extraction
// - Store: counter store backend shared by all policies
// - Stats: decision statistics backend
// - Storage: rejection audit log backend
// - Logging, Metrics, Observability: ambient concerns
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream" json:"upstream"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Store         StoreConfig         `yaml:"store" json:"store"`
	Stats         StatsConfig         `yaml:"stats" json:"stats"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

// UpstreamConfig points at the TrustElect backend.
type UpstreamConfig struct {
	URL           string        `yaml:"url" json:"url"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// PolicyConfig overrides the window and limit of one named policy.
type PolicyConfig struct {
	Window      time.Duration `yaml:"window" json:"window"`
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
}

type RateLimitConfig struct {
	Enabled        bool                    `yaml:"enabled" json:"enabled"`
	Policies       map[string]PolicyConfig `yaml:"policies" json:"policies"`
	TrustedProxies []string                `yaml:"trusted_proxies" json:"trusted_proxies"`
	UserIDHeader   string                  `yaml:"user_id_header" json:"user_id_header"`
	SweepInterval  time.Duration           `yaml:"sweep_interval" json:"sweep_interval"`
}

type StoreConfig struct {
	Type  string      `yaml:"type" json:"type"`
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	PoolSize int           `yaml:"pool_size" json:"pool_size"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

type StatsConfig struct {
	Type      string        `yaml:"type" json:"type"`
	TrackKeys bool          `yaml:"track_keys" json:"track_keys"`
	Prefix    string        `yaml:"prefix" json:"prefix"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
}

type StorageConfig struct {
	Type       string         `yaml:"type" json:"type"`
	Path       string         `yaml:"path" json:"path"`
	Database   DatabaseConfig `yaml:"database" json:"database"`
	MaxEntries int            `yaml:"max_entries" json:"max_entries"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// DefaultPolicies returns the window/limit table of the five guarded route classes.
func DefaultPolicies() map[string]PolicyConfig {
	return map[string]PolicyConfig{
		PolicyLogin:   {Window: 15 * time.Minute, MaxRequests: 10},
		PolicyAPI:     {Window: time.Minute, MaxRequests: 200},
		PolicyVoting:  {Window: 5 * time.Minute, MaxRequests: 3},
		PolicyBallot:  {Window: time.Minute, MaxRequests: 20},
		PolicyResults: {Window: 30 * time.Second, MaxRequests: 60},
	}
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Port 8080 for the gateway, 9090 for metrics and admin endpoints
// - In-memory counters: zero operational dependencies, reset on restart
// - In-memory rejection log bounded to 1000 entries
// - Lazy per-key cleanup only (sweep_interval 0)
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Upstream: UpstreamConfig{
			URL: "http://localhost:5000",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			Policies:       DefaultPolicies(),
			TrustedProxies: []string{},
			UserIDHeader:   "X-User-ID",
		},
		Store: StoreConfig{
			Type: BackendMemory,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "trustguard:rl",
				Timeout:  200 * time.Millisecond,
			},
		},
		Stats: StatsConfig{
			Type:   BackendMemory,
			Prefix: "trustguard:stats",
			TTL:    24 * time.Hour,
		},
		Storage: StorageConfig{
			Type:       StorageTypeMemory,
			Path:       "./data/rejections.jsonl",
			MaxEntries: 1000,
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "trustguard",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("invalid upstream config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("invalid store config: %w", err)
	}

	if err := c.Stats.Validate(); err != nil {
		return fmt.Errorf("invalid stats config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (uc *UpstreamConfig) Validate() error {
	if uc.URL == "" {
		return errors.New("upstream url cannot be empty")
	}
	u, err := url.Parse(uc.URL)
	if err != nil {
		return fmt.Errorf("invalid upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("upstream url must include a host")
	}
	return nil
}

// Validate rejects non-positive windows and limits. Window and limit are the
// only knobs of a policy, so a bad value here must stop the service at startup.
func (rc *RateLimitConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}

	for _, name := range []string{PolicyLogin, PolicyAPI, PolicyVoting, PolicyBallot, PolicyResults} {
		if _, ok := rc.Policies[name]; !ok {
			return fmt.Errorf("policy %q is not configured", name)
		}
	}

	for name, p := range rc.Policies {
		if p.Window <= 0 {
			return fmt.Errorf("policy %q: window must be positive", name)
		}
		if p.Window%time.Millisecond != 0 {
			return fmt.Errorf("policy %q: window must be a whole number of milliseconds", name)
		}
		if p.MaxRequests <= 0 {
			return fmt.Errorf("policy %q: max_requests must be positive", name)
		}
	}

	if rc.UserIDHeader == "" {
		return errors.New("user id header cannot be empty")
	}

	if rc.SweepInterval < 0 {
		return errors.New("sweep interval cannot be negative")
	}

	return nil
}

func (sc *StoreConfig) Validate() error {
	switch sc.Type {
	case BackendMemory:
		return nil
	case BackendRedis:
		if sc.Redis.Addr == "" {
			return errors.New("redis address is required when store type is redis")
		}
		if sc.Redis.Timeout < 0 {
			return errors.New("redis timeout cannot be negative")
		}
		return nil
	default:
		return fmt.Errorf("invalid store type: %s", sc.Type)
	}
}

func (sc *StatsConfig) Validate() error {
	if sc.Type != BackendMemory && sc.Type != BackendRedis {
		return fmt.Errorf("invalid stats type: %s", sc.Type)
	}
	if sc.TTL < 0 {
		return errors.New("stats TTL cannot be negative")
	}
	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		if stc.MaxEntries < 0 {
			return errors.New("max entries cannot be negative")
		}
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if !oc.Tracing.Enabled {
		return nil
	}
	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("otlp endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
