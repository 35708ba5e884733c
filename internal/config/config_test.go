package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
environment: DEV
db:
  driver: memory
  name: flows
auth:
  okta_domain: https://example.okta.com/oauth2/default/
engine:
  slug_attempts: 3
  atomic_counters: false
server:
  read_timeout: 5s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, "memory", cfg.DB.Driver)
	assert.Equal(t, "https://example.okta.com/oauth2/default", cfg.Auth.OktaDomain)
	assert.Equal(t, 3, cfg.Engine.SlugAttempts)
	assert.False(t, cfg.Engine.AtomicCounters)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)

	// defaults survive a partial file
	assert.Equal(t, 4, cfg.Engine.SlugSuffixLen)
	assert.Equal(t, 10, cfg.Engine.MaxTags)
	assert.True(t, cfg.Engine.RejectNestedReplies)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "db:\n  driver: postgres\n")
	t.Setenv("PROMPTFLOWS_DB_DRIVER", "memory")
	t.Setenv("PROMPTFLOWS_ENGINE_MAX_TAGS", "4")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DB.Driver)
	assert.Equal(t, 4, cfg.Engine.MaxTags)
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "db:\n  driver: sqlite\n")

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "unknown db.driver")
}

func TestElevatedConnStringFallsBack(t *testing.T) {
	cfg := &Config{}
	cfg.DB.Host = "db"
	cfg.DB.Port = 5432
	cfg.DB.User = "app"
	cfg.DB.Password = "secret"
	cfg.DB.Name = "flows"
	cfg.DB.SSLMode = "disable"
	cfg.DB.MaxConns = 4

	assert.Equal(t, cfg.ConnString(), cfg.ElevatedConnString())

	cfg.DB.Elevated.User = "svc"
	cfg.DB.Elevated.Password = "root"
	assert.Contains(t, cfg.ElevatedConnString(), "user=svc password=root")
}

func TestLoadConfigFromEnvOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PROMPTFLOWS_DB_USER", "flows_app")
	t.Setenv("PROMPTFLOWS_DB_PASSWORD", "s3cret")
	t.Setenv("PROMPTFLOWS_DB_NAME", "flows_prod")
	t.Setenv("PROMPTFLOWS_AUTH_OKTA_DOMAIN", "https://tenant.okta.com/oauth2/default/")
	t.Setenv("PROMPTFLOWS_AUTH_CLIENT_ID", "client-1")
	t.Setenv("PROMPTFLOWS_AUTH_CLIENT_SECRET", "shh")
	t.Setenv("PROMPTFLOWS_AUTH_REDIRECT_URL", "https://flows.example.com/auth/callback")
	t.Setenv("PROMPTFLOWS_AUTH_SWAGGER_CLIENT_ID", "docs-1")
	t.Setenv("PROMPTFLOWS_TELEMETRY_ENABLED", "true")
	t.Setenv("PROMPTFLOWS_TELEMETRY_OTLP_ENDPOINT", "collector:4318")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "flows_app", cfg.DB.User)
	assert.Equal(t, "s3cret", cfg.DB.Password)
	assert.Equal(t, "flows_prod", cfg.DB.Name)
	assert.Contains(t, cfg.ConnString(), "user=flows_app password=s3cret dbname=flows_prod")
	assert.Equal(t, "https://tenant.okta.com/oauth2/default", cfg.Auth.OktaDomain)
	assert.Equal(t, "client-1", cfg.Auth.ClientID)
	assert.Equal(t, "shh", cfg.Auth.ClientSecret)
	assert.Equal(t, "https://flows.example.com/auth/callback", cfg.Auth.RedirectURL)
	assert.Equal(t, "docs-1", cfg.Auth.SwaggerClientID)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "collector:4318", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, 30*time.Second, cfg.Telemetry.ExportInterval)
}

func TestLoadConfigRejectsZeroTelemetryInterval(t *testing.T) {
	path := writeConfig(t, "telemetry:\n  enabled: true\n  export_interval: 0s\n")

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "telemetry.export_interval")
}
