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
	for _, key := range []string{
		FileEnvVar, "PORT", "STORE_BACKEND", "SUPABASE_URL", "SUPABASE_PUBLISHABLE_KEY",
		"SUPABASE_ANON_KEY", "SUPABASE_JWT_SECRET", "DATABASE_URL", "SESSION_COOKIE_NAME",
		"LOG_LEVEL", "LOG_FORMAT", "CORS_ALLOWED_ORIGINS", "RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST", "RATE_LIMIT_IP_RPS", "RATE_LIMIT_IP_BURST", "STORE_TIMEOUT", "STORE_MAX_RETRIES",
		"DATABASE_MAX_OPEN_CONNS", "DATABASE_MAX_IDLE_CONNS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, BackendSupabase, cfg.StoreBackend)
	assert.Equal(t, 0, cfg.Store.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000; https://app.example.com")
	t.Setenv("STORE_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_IP_BURST", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "https://abc.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "anon", cfg.Supabase.APIKey())
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.Store.Timeout)
	assert.InDelta(t, 2.5, cfg.RateLimit.RPS, 0.0001)
	assert.InDelta(t, 20, cfg.RateLimit.IPRPS, 0.0001)
	assert.Equal(t, 5, cfg.RateLimit.IPBurst)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "applyflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
store_backend: postgres
database:
  url: postgres://file
supabase:
  jwt_secret: from-file
log:
  level: debug
`), 0o600))

	t.Setenv(FileEnvVar, path)
	t.Setenv("DATABASE_URL", "postgres://env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, "from-file", cfg.Supabase.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromPath_ExplicitFileWinsOverEnvFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	explicit := filepath.Join(dir, "explicit.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("port: 7100\n"), 0o600))
	t.Setenv(FileEnvVar, filepath.Join(dir, "missing.yaml"))
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadFromPath(explicit)
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFromPath_Missing(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSupabaseConfig_PublishableKeyPreferred(t *testing.T) {
	s := SupabaseConfig{PublishableKey: "pub", AnonKey: "anon"}
	assert.Equal(t, "pub", s.APIKey())
}

func TestValidate_FailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"supabase without url", func(c *Config) { c.Supabase.PublishableKey = "k" }},
		{"supabase without key", func(c *Config) { c.Supabase.URL = "https://x.supabase.co" }},
		{"postgres without dsn", func(c *Config) {
			c.StoreBackend = BackendPostgres
			c.Supabase.JWTSecret = "s"
		}},
		{"postgres without secret", func(c *Config) {
			c.StoreBackend = BackendPostgres
			c.Database.URL = "postgres://x"
		}},
		{"unknown backend", func(c *Config) { c.StoreBackend = "sqlite" }},
		{"bad port", func(c *Config) {
			c.Port = 0
			c.Supabase.URL = "https://x.supabase.co"
			c.Supabase.PublishableKey = "k"
		}},
		{"negative retries", func(c *Config) {
			c.Store.MaxRetries = -1
			c.Supabase.URL = "https://x.supabase.co"
			c.Supabase.PublishableKey = "k"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
