// Package config loads application configuration from the environment with
// optional overrides from a YAML file. A .env file is honored when present.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	TMDB      TMDBConfig      `yaml:"tmdb"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host            string `env:"HOST,default=0.0.0.0" yaml:"host"`
	Port            int    `env:"PORT,default=8080" yaml:"port"`
	PublicBaseURL   string `env:"PUBLIC_BASE_URL,default=http://localhost:8080" yaml:"public_base_url"`
	ReadTimeoutSec  int    `env:"READ_TIMEOUT_SEC,default=15" yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `env:"WRITE_TIMEOUT_SEC,default=30" yaml:"write_timeout_sec"`
	AllowedOrigins  string `env:"CORS_ALLOWED_ORIGINS,default=*" yaml:"allowed_origins"`
	AuditLogPath    string `env:"AUDIT_LOG_PATH" yaml:"audit_log_path"`
}

type DatabaseConfig struct {
	Driver          string `env:"DB_DRIVER,default=postgres" yaml:"driver"`
	DSN             string `env:"DATABASE_URL" yaml:"dsn"`
	MaxOpenConns    int    `env:"DB_MAX_OPEN_CONNS,default=10" yaml:"max_open_conns"`
	MaxIdleConns    int    `env:"DB_MAX_IDLE_CONNS,default=5" yaml:"max_idle_conns"`
	ConnMaxLifetime int    `env:"DB_CONN_MAX_LIFETIME_SEC,default=300" yaml:"conn_max_lifetime_sec"`
	MigrationsPath  string `env:"DB_MIGRATIONS_PATH,default=migrations" yaml:"migrations_path"`
}

type AuthConfig struct {
	JWTSecret    string `env:"JWT_SECRET,default=dev-secret-change-me" yaml:"jwt_secret"`
	TokenTTLHour int    `env:"JWT_TTL_HOURS,default=720" yaml:"token_ttl_hours"`
}

type TMDBConfig struct {
	BaseURL string `env:"MOVIEDB_API_V3_URL,default=https://api.themoviedb.org/3" yaml:"base_url"`
	APIKey  string `env:"MOVIEDB_API_V3_KEY" yaml:"api_key"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL" yaml:"url"`
}

type RateLimitConfig struct {
	RPS   float64 `env:"RATE_LIMIT_RPS,default=25" yaml:"rps"`
	Burst int     `env:"RATE_LIMIT_BURST,default=50" yaml:"burst"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=json" yaml:"format"`
	Output string `env:"LOG_OUTPUT,default=stdout" yaml:"output"`
}

// Load reads configuration from the environment, applying config.yaml
// overrides when the file exists.
func Load() (*Config, error) {
	return LoadFromPath("config.yaml")
}

// LoadFromPath is Load with an explicit YAML override path.
func LoadFromPath(path string) (*Config, error) {
	// Best effort; the file is optional in production.
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if _, err := url.Parse(c.Server.PublicBaseURL); err != nil {
		return fmt.Errorf("invalid public base URL: %w", err)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret must not be empty")
	}
	return nil
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Origins returns the allowed CORS origins as a slice.
func (s ServerConfig) Origins() []string {
	parts := strings.Split(s.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// TokenTTL returns the configured token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHour) * time.Hour
}
