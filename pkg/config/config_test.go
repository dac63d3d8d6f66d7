package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfig_DefaultValues проверяет загрузку значений по умолчанию
func TestLoadConfig_DefaultValues(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "public", cfg.Tenancy.RegistrySchema)
	assert.Equal(t, "tenant_", cfg.Tenancy.SchemaPrefix)
	assert.Equal(t, 7, cfg.Tenancy.TrialDays)
	assert.Equal(t, "X-Tenant-Slug", cfg.Tenancy.TenantHeader)
	assert.Equal(t, []string{"www", "app"}, cfg.Tenancy.ReservedSubdomains)
	assert.Equal(t, 15*time.Second, Duration(cfg.Tenancy.OperationTimeout, 0))
	assert.Equal(t, 30*time.Second, Duration(cfg.Tenancy.CacheTTL, 0))
}

// TestLoadConfig_FileOverride значения из файла перекрывают значения по умолчанию
func TestLoadConfig_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `server:
  host: "127.0.0.1"
  port: 9090
database:
  host: "prod-db"
  name: "tradedesk"
  user: "svc"
  max_conns: 40
environment: "staging"
tenancy:
  registry_schema: "registry"
  trial_days: 14
  operation_timeout: "5s"
  reserved_subdomains: ["www", "app", "api"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "prod-db", cfg.Database.Host)
	assert.Equal(t, 40, cfg.Database.MaxConns)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "registry", cfg.Tenancy.RegistrySchema)
	assert.Equal(t, 14, cfg.Tenancy.TrialDays)
	assert.Equal(t, []string{"www", "app", "api"}, cfg.Tenancy.ReservedSubdomains)
	// значения, не указанные в файле, остаются по умолчанию
	assert.Equal(t, "X-Tenant-Slug", cfg.Tenancy.TenantHeader)
}

// TestLoadConfig_EnvOverride переменные окружения перекрывают файл
func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("DATABASE_HOST", "env-db")
	t.Setenv("TENANCY_TRIAL_DAYS", "30")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "env-db", cfg.Database.Host)
	assert.Equal(t, 30, cfg.Tenancy.TrialDays)
}

func TestLoadConfig_InvalidEnvInt(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")

	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad environment", func(c *Config) { c.Environment = "qa" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"empty registry schema", func(c *Config) { c.Tenancy.RegistrySchema = "" }},
		{"zero trial days", func(c *Config) { c.Tenancy.TrialDays = 0 }},
		{"bad duration", func(c *Config) { c.Tenancy.OperationTimeout = "soon" }},
		{"negative duration", func(c *Config) { c.Tenancy.CacheTTL = "-1s" }},
		{"default admin secret in prod", func(c *Config) { c.Environment = "prod" }},
		{"no pool", func(c *Config) { c.Database.MaxConns = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}

	assert.NoError(t, validateConfig(Default()))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 2*time.Second, Duration("2s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("garbage", time.Minute))
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Tenancy.TrialDays = 21

	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 21, loaded.Tenancy.TrialDays)
}
