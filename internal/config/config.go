// Package config loads ApplyFlow configuration from an optional YAML file
// and the process environment. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// FileEnvVar names the environment variable holding the YAML config path.
const FileEnvVar = "APPLYFLOW_CONFIG"

// Config is the full server configuration.
type Config struct {
	Port         int    `yaml:"port" env:"PORT"`
	StoreBackend string `yaml:"store_backend" env:"STORE_BACKEND"`

	Supabase SupabaseConfig `yaml:"supabase"`
	Database DatabaseConfig `yaml:"database"`

	SessionCookieName string `yaml:"session_cookie_name" env:"SESSION_COOKIE_NAME"`

	Log       LogConfig       `yaml:"log"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Store     StoreConfig     `yaml:"store"`
}

// SupabaseConfig locates the Supabase project.
type SupabaseConfig struct {
	URL            string `yaml:"url" env:"SUPABASE_URL"`
	PublishableKey string `yaml:"publishable_key" env:"SUPABASE_PUBLISHABLE_KEY"`
	AnonKey        string `yaml:"anon_key" env:"SUPABASE_ANON_KEY"`
	JWTSecret      string `yaml:"jwt_secret" env:"SUPABASE_JWT_SECRET"`
}

// APIKey returns the publishable key, falling back to the legacy anon key.
func (s SupabaseConfig) APIKey() string {
	if s.PublishableKey != "" {
		return s.PublishableKey
	}
	return s.AnonKey
}

// DatabaseConfig configures the direct PostgreSQL backend.
type DatabaseConfig struct {
	URL          string `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// RateLimitConfig bounds requests per authenticated user (RPS, Burst) and
// per client IP before authentication (IPRPS, IPBurst). A rate <= 0
// disables that limiter.
type RateLimitConfig struct {
	RPS     float64 `yaml:"rps" env:"RATE_LIMIT_RPS"`
	Burst   int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
	IPRPS   float64 `yaml:"ip_rps" env:"RATE_LIMIT_IP_RPS"`
	IPBurst int     `yaml:"ip_burst" env:"RATE_LIMIT_IP_BURST"`
}

// StoreConfig tunes calls to the persistent store.
type StoreConfig struct {
	Timeout    time.Duration `yaml:"timeout" env:"STORE_TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"STORE_MAX_RETRIES"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:         8080,
		StoreBackend: BackendSupabase,
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			RPS:     10,
			Burst:   20,
			IPRPS:   20,
			IPBurst: 40,
		},
		Store: StoreConfig{
			Timeout: 10 * time.Second,
		},
	}
}

// Load builds the configuration from the YAML file named by
// APPLYFLOW_CONFIG (if set). See LoadFromPath.
func Load() (*Config, error) {
	return LoadFromPath(strings.TrimSpace(os.Getenv(FileEnvVar)))
}

// LoadFromPath builds the configuration: defaults, then the YAML file at
// path (skipped when path is empty), then the environment.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.Supabase.URL = strings.TrimSuffix(strings.TrimSpace(c.Supabase.URL), "/")

	origins := c.CORS.AllowedOrigins[:0]
	for _, o := range c.CORS.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORS.AllowedOrigins = origins
}

// Validate fails closed when the chosen backend is missing what it needs.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Store.MaxRetries < 0 {
		return fmt.Errorf("store max retries must be >= 0")
	}

	switch c.StoreBackend {
	case BackendSupabase:
		if c.Supabase.URL == "" {
			return fmt.Errorf("SUPABASE_URL is required for the supabase backend")
		}
		if c.Supabase.APIKey() == "" {
			return fmt.Errorf("SUPABASE_PUBLISHABLE_KEY (or SUPABASE_ANON_KEY) is required for the supabase backend")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		if c.Supabase.JWTSecret == "" {
			return fmt.Errorf("SUPABASE_JWT_SECRET is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
