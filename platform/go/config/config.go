// Package config loads process configuration from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/zenGate-Global/seletor-hub/platform/go/apperrors"
)

// TenantDB holds the credentials shared by every physical tenant database.
type TenantDB struct {
	Driver        string `env:"DRIVER" envDefault:"postgres"`
	Host          string `env:"HOST" envDefault:"localhost"`
	Port          int    `env:"PORT" envDefault:"5432"`
	User          string `env:"USER" envDefault:"postgres"`
	Password      string `env:"PASS"`
	AdminDatabase string `env:"ADMIN_DATABASE" envDefault:"postgres"`
	SSLMode       string `env:"SSLMODE"`
}

// Config is the full process configuration shared by the api server and the CLI.
type Config struct {
	Env             string        `env:"ENV" envDefault:"dev"`
	Port            string        `env:"PORT" envDefault:"3000"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`

	DatabaseURL  string        `env:"DATABASE_URL"`
	MasterDBURL  string        `env:"MASTER_DB_URL"`
	HubMaxConns  int32         `env:"HUB_DB_MAX_CONNS" envDefault:"10"`
	StartupRetry int           `env:"HUB_DB_CONNECT_RETRIES" envDefault:"5"`
	StartupWait  time.Duration `env:"HUB_DB_CONNECT_WAIT" envDefault:"2s"`

	TenantDB     TenantDB `envPrefix:"TENANT_DB_"`
	TemplatePath string   `env:"TENANT_TEMPLATE_PATH"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTExpiry     time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
	ServiceAPIKey string        `env:"SERVICE_API_KEY"`

	AggregationConcurrency   int           `env:"AGGREGATION_CONCURRENCY" envDefault:"1"`
	AggregationTenantTimeout time.Duration `env:"AGGREGATION_TENANT_TIMEOUT" envDefault:"0s"`
}

// IsDev reports whether the process runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "dev", "development", "local":
		return true
	}
	return false
}

// HubURL returns the hub connection string, preferring DATABASE_URL over MASTER_DB_URL.
func (c Config) HubURL() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.MasterDBURL
}

// Load reads an optional .env file, parses the environment and validates required keys.
// Missing required values are reported as *apperrors.ConfigurationError.
func Load(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, &apperrors.ConfigurationError{Key: f, Reason: err.Error()}
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, &apperrors.ConfigurationError{Reason: fmt.Sprintf("parse environment: %v", err)}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the startup requirements on an already parsed configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HubURL()) == "" {
		return &apperrors.ConfigurationError{Key: "DATABASE_URL", Reason: "hub connection string is required (DATABASE_URL or MASTER_DB_URL)"}
	}
	if c.TenantDB.Password == "" && !c.IsDev() {
		return &apperrors.ConfigurationError{Key: "TENANT_DB_PASS", Reason: "required outside ENV=dev"}
	}
	if c.AggregationConcurrency < 1 {
		return &apperrors.ConfigurationError{Key: "AGGREGATION_CONCURRENCY", Reason: "must be >= 1"}
	}
	return nil
}
