package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort  int    `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL       string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`

	// RedisURL is optional; without it rate limiting stays in-process.
	RedisURL string `envconfig:"REDIS_URL"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"8h"`

	PaymentSecretKey string `envconfig:"PAYMENT_SECRET_KEY"`

	RegistrationApproval bool          `envconfig:"REGISTRATION_APPROVAL" default:"false"`
	ApprovalTokenTTL     time.Duration `envconfig:"APPROVAL_TOKEN_TTL" default:"72h"`
	OperatorEmail        string        `envconfig:"OPERATOR_EMAIL"`
	PublicBaseURL        string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`

	MailHost     string `envconfig:"MAIL_HOST"`
	MailPort     int    `envconfig:"MAIL_PORT" default:"587"`
	MailUsername string `envconfig:"MAIL_USERNAME"`
	MailPassword string `envconfig:"MAIL_PASSWORD"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"no-reply@kishkumen.local"`

	BootstrapAdminUsername string `envconfig:"BOOTSTRAP_ADMIN_USERNAME"`
	BootstrapAdminEmail    string `envconfig:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`

	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	ReconcileInterval  time.Duration `envconfig:"RECONCILE_INTERVAL" default:"5m"`
	ReportCacheTTL     time.Duration `envconfig:"REPORT_CACHE_TTL" default:"30s"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`

	OtelExporterOtlpEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads configuration from the environment. A .env file is honored
// when present, mainly for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.ServerPort)
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.ReconcileInterval <= 0 {
		return errors.New("RECONCILE_INTERVAL must be positive")
	}
	if c.RegistrationApproval && c.ApprovalTokenTTL <= 0 {
		return errors.New("APPROVAL_TOKEN_TTL must be positive when REGISTRATION_APPROVAL is set")
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// BootstrapAdminEnabled reports whether a global administrator should be
// ensured at startup.
func (c *Config) BootstrapAdminEnabled() bool {
	return c.BootstrapAdminUsername != "" && c.BootstrapAdminPassword != ""
}
