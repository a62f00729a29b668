package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Database.Pool.MaxOpen)
	assert.Equal(t, 100, cfg.Schema.DefaultLimit)
	assert.Equal(t, 1000, cfg.Schema.MaxLimit)
	assert.Equal(t, 30*time.Second, cfg.Runtime.RequestTimeout)
	assert.Equal(t, 16, cfg.Subscriptions.BufferSize)
	assert.Equal(t, "viewql", cfg.Observability.ServiceName)
	assert.Equal(t, "capabilities", cfg.Server.Auth.CapabilitiesClaim)
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "viewql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  dsn: "postgres://localhost/app"
schema:
  schema_file: "schema.json"
  known_capabilities: ["pii:read", "admin"]
runtime:
  request_timeout: 5s
  audit_log: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/app", cfg.Database.DSN)
	assert.Equal(t, []string{"pii:read", "admin"}, cfg.Schema.KnownCapabilities)
	assert.Equal(t, 5*time.Second, cfg.Runtime.RequestTimeout)
	assert.True(t, cfg.Runtime.AuditLog)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("VIEWQL_SERVER_PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "server:\n  bogus_setting: true\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDSNFromFile(t *testing.T) {
	dsnPath := filepath.Join(t.TempDir(), "dsn")
	require.NoError(t, os.WriteFile(dsnPath, []byte("postgres://localhost/app\n"), 0o600))
	path := writeConfig(t, "database:\n  dsn_file: \""+dsnPath+"\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/app", cfg.Database.DSN)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Server.RateLimitEnabled = true
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Server.Admin.ReloadEnabled = true
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Schema.MaxLimit = 1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Observability.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Observability.TraceSampleRatio = 1.5
	assert.Error(t, cfg.Validate())
}
