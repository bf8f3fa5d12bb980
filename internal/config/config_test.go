package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"NOTION_API_KEY", "NOTION_DATABASE_ID", "NOTION_VERSION", "NOTION_BASE_URL",
		"SECRET_URL", "LISTEN_ADDR", "CALENDAR_TIMEZONE", "CALENDAR_NAME", "UID_DOMAIN",
		"CACHE_PATH", "REFRESH_CRON", "REFRESH_TIMEOUT", "REQUEST_TIMEOUT",
		"REQUESTS_PER_SECOND", "SYNC_WORKERS", "LOG_LEVEL", "ENVIRONMENT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, defaultSecretPath, cfg.SecretPath)
	assert.Equal(t, "Europe/Amsterdam", cfg.Timezone)
	assert.Equal(t, "@every 30m", cfg.RefreshCron)
	assert.Equal(t, "2022-06-28", cfg.Notion.Version)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 1, cfg.Workers)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := `
listen: 127.0.0.1:9000
secret_path: /from-file/
timezone: Europe/London
workers: 4
request_timeout: 10s
notion:
  api_key: file-key
  database_id: file-db
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("NOTION_API_KEY", "env-key")
	t.Setenv("SECRET_URL", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "from-env", cfg.SecretPath)
	assert.Equal(t, "Europe/London", cfg.Timezone)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "env-key", cfg.Notion.APIKey)
	assert.Equal(t, "file-db", cfg.Notion.DatabaseID)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalize_TrimsSecretPath(t *testing.T) {
	cfg := &Config{SecretPath: "/abc/", Notion: NotionConfig{BaseURL: "https://example.test/v1/"}}
	cfg.Normalize()

	assert.Equal(t, "abc", cfg.SecretPath)
	assert.Equal(t, "https://example.test/v1", cfg.Notion.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "missing api key", mutate: func(c *Config) { c.Notion.APIKey = "" }, wantErr: "NOTION_API_KEY"},
		{name: "missing database", mutate: func(c *Config) { c.Notion.DatabaseID = "" }, wantErr: "NOTION_DATABASE_ID"},
		{name: "nested secret", mutate: func(c *Config) { c.SecretPath = "a/b" }, wantErr: "single path segment"},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: "invalid timezone"},
		{name: "bad schedule", mutate: func(c *Config) { c.RefreshCron = "every half hour" }, wantErr: "invalid refresh schedule"},
		{name: "standard cron", mutate: func(c *Config) { c.RefreshCron = "*/15 * * * *" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Notion.APIKey = "key"
			cfg.Notion.DatabaseID = "db"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Notion.DatabaseID = "db-123"
	cfg.Workers = 3

	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "db-123", loaded.Notion.DatabaseID)
	assert.Equal(t, 3, loaded.Workers)
}

func TestSave_ReplacesWithoutTempFiles(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	first := DefaultConfig()
	first.Workers = 2
	require.NoError(t, Save(path, first))

	second := DefaultConfig()
	second.Workers = 5
	require.NoError(t, Save(path, second))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Workers)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
