// Package config loads service configuration from environment variables so
// main stays lean.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration.
type Config struct {
	Addr        string `env:"PAPERROOM_ADDR" envDefault:":8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// DatabaseURL points at the control-plane database. Empty switches the
	// service to in-memory stores (development and tests).
	DatabaseURL string `env:"DATABASE_URL"`

	// VaultSecret is the process-wide key material for encrypting tenant
	// connection strings. At least 16 bytes.
	VaultSecret string `env:"VAULT_SECRET"`

	// InviteSigningKey signs invite acceptance tokens.
	InviteSigningKey string        `env:"INVITE_SIGNING_KEY"`
	InviteTTL        time.Duration `env:"INVITE_TTL" envDefault:"168h"`

	// Provider selects the provisioning strategy: mock, managed, or iac.
	Provider string `env:"PROVISIONING_PROVIDER" envDefault:"mock"`

	Managed   ManagedConfig   `envPrefix:"MANAGED_"`
	IaC       IaCConfig       `envPrefix:"IAC_"`
	Migration MigrationConfig `envPrefix:"MIGRATION_"`
}

// ManagedConfig configures the managed database platform client.
type ManagedConfig struct {
	APIURL string `env:"API_URL" envDefault:"https://api.managed-db.example.com"`
	APIKey string `env:"API_KEY"`
	OrgID  string `env:"ORG_ID"`
	Region string `env:"REGION" envDefault:"us-east-1"`
}

// Configured reports whether the managed provider has what it needs.
func (c ManagedConfig) Configured() bool {
	return c.APIKey != "" && c.OrgID != ""
}

// IaCConfig configures the infrastructure-as-code provider.
type IaCConfig struct {
	APIURL             string `env:"API_URL"`
	Project            string `env:"PROJECT"`
	Region             string `env:"REGION" envDefault:"us-central1"`
	ServiceAccountJSON string `env:"SERVICE_ACCOUNT_JSON"`
	SharedInstance     bool   `env:"SHARED_INSTANCE" envDefault:"true"`
	SharedInstanceRef  string `env:"SHARED_INSTANCE_REF"`
}

// Configured reports whether the IaC provider has what it needs.
func (c IaCConfig) Configured() bool {
	return c.Project != "" && c.ServiceAccountJSON != ""
}

// MigrationConfig surfaces the migration runner knobs.
type MigrationConfig struct {
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" envDefault:"15s"`
	AttemptTimeout time.Duration `env:"ATTEMPT_TIMEOUT" envDefault:"2m"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.VaultSecret == "" {
		if cfg.Environment != "development" {
			return Config{}, fmt.Errorf("VAULT_SECRET is required outside development")
		}
		cfg.VaultSecret = "dev-vault-secret-not-for-production"
	}
	if cfg.InviteSigningKey == "" {
		cfg.InviteSigningKey = cfg.VaultSecret
	}
	return cfg, nil
}
