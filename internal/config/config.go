package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/validation"
)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Auth        AuthConfig      `yaml:"auth"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	CORS        CORSConfig      `yaml:"cors"`
	Logging     LoggingConfig   `yaml:"logging"`
	Email       EmailConfig     `yaml:"email"`
	Jobs        JobsConfig      `yaml:"jobs"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Environment string          `yaml:"environment"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
	Issuer    string        `yaml:"issuer"`
}

type RateLimitConfig struct {
	PublicPerMinute   int      `yaml:"public_per_minute"`
	LoginPer15Minutes int      `yaml:"login_per_15_minutes"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

type CORSConfig struct {
	AllowAllOrigins bool     `yaml:"allow_all_origins"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type EmailConfig struct {
	Enabled      bool   `yaml:"enabled"`
	From         string `yaml:"from"`
	ResendAPIKey string `yaml:"resend_api_key"`
}

type JobsConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxWorkers  int  `yaml:"max_workers"`
	MaxAttempts int  `yaml:"max_attempts"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Defaults returns the configuration used when neither a config file nor
// environment variables set a value.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    5000,
			BaseURL: "http://localhost:5000",
		},
		Database: DatabaseConfig{
			MaxConnections: 20,
		},
		Auth: AuthConfig{
			JWTExpiry: 24 * time.Hour,
			Issuer:    "rsvp",
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:   100,
			LoginPer15Minutes: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Jobs: JobsConfig{
			Enabled:     true,
			MaxWorkers:  10,
			MaxAttempts: 5,
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "rsvp",
			SampleRate:  1.0,
		},
		Environment: "development",
	}
}

// Load reads configuration from environment variables on top of Defaults.
func Load() (Config, error) {
	return LoadWithBase(Defaults())
}

// LoadWithBase applies environment variables over base and validates the result.
func LoadWithBase(base Config) (Config, error) {
	cfg := base
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("SERVER_BASE_URL", cfg.Server.BaseURL)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	if hours := getEnvInt("JWT_EXPIRY_HOURS", 0); hours > 0 {
		cfg.Auth.JWTExpiry = time.Duration(hours) * time.Hour
	}
	cfg.Auth.Issuer = getEnv("JWT_ISSUER", cfg.Auth.Issuer)

	cfg.RateLimit.PublicPerMinute = getEnvInt("RATE_LIMIT_PUBLIC", cfg.RateLimit.PublicPerMinute)
	cfg.RateLimit.LoginPer15Minutes = getEnvInt("RATE_LIMIT_LOGIN", cfg.RateLimit.LoginPer15Minutes)
	if cidrs := getEnvList("TRUSTED_PROXY_CIDRS"); len(cidrs) > 0 {
		cfg.RateLimit.TrustedProxyCIDRs = cidrs
	}

	if origins := getEnvList("CORS_ALLOWED_ORIGINS"); len(origins) > 0 {
		cfg.CORS.AllowedOrigins = origins
	}
	cfg.CORS.AllowAllOrigins = cfg.Environment == "development" && len(cfg.CORS.AllowedOrigins) == 0

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Email.Enabled = getEnvBool("EMAIL_ENABLED", cfg.Email.Enabled)
	cfg.Email.From = getEnv("EMAIL_FROM", cfg.Email.From)
	cfg.Email.ResendAPIKey = getEnv("RESEND_API_KEY", cfg.Email.ResendAPIKey)

	cfg.Jobs.Enabled = getEnvBool("JOBS_ENABLED", cfg.Jobs.Enabled)
	cfg.Jobs.MaxWorkers = getEnvInt("JOBS_MAX_WORKERS", cfg.Jobs.MaxWorkers)
	cfg.Jobs.MaxAttempts = getEnvInt("JOBS_MAX_ATTEMPTS", cfg.Jobs.MaxAttempts)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if len(c.CORS.AllowedOrigins) == 0 {
			return fmt.Errorf("CORS_ALLOWED_ORIGINS is required in production")
		}
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if err := validation.ValidateOrigin(origin); err != nil {
			return fmt.Errorf("CORS_ALLOWED_ORIGINS: %w", err)
		}
	}
	if c.Email.Enabled {
		if c.Email.From == "" {
			return fmt.Errorf("EMAIL_FROM is required when EMAIL_ENABLED is true")
		}
		if c.Email.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required when EMAIL_ENABLED is true")
		}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
