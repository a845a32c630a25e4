package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustguard/internal/models"
)

// isolateDotEnv points DotEnvFile at a path that does not exist unless the
// test writes it.
func isolateDotEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	old := DotEnvFile
	DotEnvFile = path
	t.Cleanup(func() { DotEnvFile = old })
	return path
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolateDotEnv(t)

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "http://localhost:5000", config.Upstream.URL)
	assert.Equal(t, models.BackendMemory, config.Store.Type)
	assert.Equal(t, models.StorageTypeMemory, config.Storage.Type)
	assert.Equal(t, "X-User-ID", config.RateLimit.UserIDHeader)
	assert.Equal(t, models.DefaultPolicies(), config.RateLimit.Policies)
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	isolateDotEnv(t)

	configFile := writeConfig(t, `
server:
  port: 8181
  host: "127.0.0.1"
  read_timeout: 10s

upstream:
  url: "http://trustelect-api:5000"

rate_limit:
  enabled: true
  trusted_proxies: ["10.0.0.0/8"]
  user_id_header: "X-Auth-User"
  sweep_interval: 2m
  policies:
    login:
      max_requests: 5
    results:
      window: 10s
      max_requests: 100

store:
  type: redis
  redis:
    addr: "redis:6379"
    timeout: 150ms

storage:
  type: sqlite
  database:
    dsn: "/var/lib/trustguard/rejections.db"

logging:
  level: debug
  format: text
  output: stderr
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 8181, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, 10*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, config.Server.WriteTimeout, "unset keys keep defaults")

	assert.Equal(t, "http://trustelect-api:5000", config.Upstream.URL)
	assert.Equal(t, []string{"10.0.0.0/8"}, config.RateLimit.TrustedProxies)
	assert.Equal(t, "X-Auth-User", config.RateLimit.UserIDHeader)
	assert.Equal(t, 2*time.Minute, config.RateLimit.SweepInterval)

	login := config.RateLimit.Policies[models.PolicyLogin]
	assert.Equal(t, 5, login.MaxRequests)
	assert.Equal(t, 15*time.Minute, login.Window, "partial override keeps the default window")

	results := config.RateLimit.Policies[models.PolicyResults]
	assert.Equal(t, 10*time.Second, results.Window)
	assert.Equal(t, 100, results.MaxRequests)

	assert.Equal(t, models.DefaultPolicies()[models.PolicyVoting], config.RateLimit.Policies[models.PolicyVoting])

	assert.Equal(t, models.BackendRedis, config.Store.Type)
	assert.Equal(t, "redis:6379", config.Store.Redis.Addr)
	assert.Equal(t, 150*time.Millisecond, config.Store.Redis.Timeout)

	assert.Equal(t, models.StorageTypeSQLite, config.Storage.Type)
	assert.Equal(t, "/var/lib/trustguard/rejections.db", config.Storage.Database.DSN)

	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, "stderr", config.Logging.Output)
}

func TestLoad_FileNotFound(t *testing.T) {
	isolateDotEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolateDotEnv(t)

	_, err := Load(writeConfig(t, "server: [port: 8080"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestLoad_InvalidPolicy(t *testing.T) {
	isolateDotEnv(t)

	_, err := Load(writeConfig(t, `
rate_limit:
  policies:
    voting:
      max_requests: -1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid rate limit config")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	isolateDotEnv(t)

	t.Setenv("TRUSTGUARD_PORT", "9000")
	t.Setenv("TRUSTGUARD_UPSTREAM_URL", "https://api.trustelect.example")
	t.Setenv("TRUSTGUARD_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.0.0/16,")
	t.Setenv("TRUSTGUARD_POLICY_LOGIN_MAX_REQUESTS", "3")
	t.Setenv("TRUSTGUARD_POLICY_RESULTS_WINDOW", "45s")
	t.Setenv("TRUSTGUARD_STORE_TYPE", "redis")
	t.Setenv("TRUSTGUARD_REDIS_ADDR", "cache:6379")
	t.Setenv("TRUSTGUARD_STATS_TRACK_KEYS", "true")
	t.Setenv("TRUSTGUARD_STORAGE_TYPE", "json")
	t.Setenv("TRUSTGUARD_STORAGE_PATH", "/tmp/rejections.jsonl")
	t.Setenv("TRUSTGUARD_LOG_LEVEL", "warn")
	t.Setenv("TRUSTGUARD_METRICS_ENABLED", "false")
	t.Setenv("TRUSTGUARD_TRACING_SAMPLE_RATE", "0.25")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "https://api.trustelect.example", config.Upstream.URL)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, config.RateLimit.TrustedProxies)
	assert.Equal(t, 3, config.RateLimit.Policies[models.PolicyLogin].MaxRequests)
	assert.Equal(t, 45*time.Second, config.RateLimit.Policies[models.PolicyResults].Window)
	assert.Equal(t, models.BackendRedis, config.Store.Type)
	assert.Equal(t, "cache:6379", config.Store.Redis.Addr)
	assert.True(t, config.Stats.TrackKeys)
	assert.Equal(t, models.StorageTypeJSON, config.Storage.Type)
	assert.Equal(t, "/tmp/rejections.jsonl", config.Storage.Path)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.False(t, config.Metrics.Enabled)
	assert.Equal(t, 0.25, config.Observability.Tracing.SampleRate)
}

func TestLoad_EnvironmentParseErrors(t *testing.T) {
	isolateDotEnv(t)

	t.Setenv("TRUSTGUARD_PORT", "eighty")
	t.Setenv("TRUSTGUARD_SWEEP_INTERVAL", "often")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUSTGUARD_PORT")
	assert.Contains(t, err.Error(), "TRUSTGUARD_SWEEP_INTERVAL")
}

func TestLoad_EnvironmentBeatsFile(t *testing.T) {
	isolateDotEnv(t)
	t.Setenv("TRUSTGUARD_LOG_LEVEL", "error")

	config, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "error", config.Logging.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	dotEnv := isolateDotEnv(t)
	require.NoError(t, os.WriteFile(dotEnv, []byte("TRUSTGUARD_METRICS_PORT=9191\nTRUSTGUARD_LOG_FORMAT=text\n"), 0600))

	// godotenv writes into the process environment; clear it afterwards
	t.Setenv("TRUSTGUARD_METRICS_PORT", "")
	os.Unsetenv("TRUSTGUARD_METRICS_PORT")
	t.Setenv("TRUSTGUARD_LOG_FORMAT", "json")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9191, config.Metrics.Port)
	assert.Equal(t, "json", config.Logging.Format, "process environment wins over .env")
}

func TestSaveExample(t *testing.T) {
	isolateDotEnv(t)
	path := filepath.Join(t.TempDir(), "configs", "example.yaml")

	require.NoError(t, SaveExample(path))
	assert.FileExists(t, path)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.0/12"}, config.RateLimit.TrustedProxies)
	assert.Equal(t, 5*time.Minute, config.RateLimit.SweepInterval)
	assert.Equal(t, models.DefaultPolicies(), config.RateLimit.Policies)
}
