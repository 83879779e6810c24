// Package config holds the application configuration tree loaded by
// cmd/server via goliatone/go-config.
package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// AppConfig is the root configuration node.
type AppConfig struct {
	Name        string            `json:"name" yaml:"name"`
	Environment string            `json:"environment" yaml:"environment"`
	Server      ServerConfig      `json:"server" yaml:"server"`
	Auth        AuthConfig        `json:"auth" yaml:"auth"`
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`
}

// ServerConfig holds the HTTP listener options.
type ServerConfig struct {
	Addr            string `json:"addr" yaml:"addr"`
	ShutdownTimeout string `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// AuthConfig holds the token options.
type AuthConfig struct {
	SigningKey      string `json:"signing_key" yaml:"signing_key"`
	Issuer          string `json:"issuer" yaml:"issuer"`
	AccessTokenTTL  string `json:"access_token_ttl" yaml:"access_token_ttl"`
	RefreshTokenTTL string `json:"refresh_token_ttl" yaml:"refresh_token_ttl"`
}

// PersistenceConfig holds the database options. Its getters satisfy the
// config surface go-persistence-bun expects.
type PersistenceConfig struct {
	Driver                string `json:"driver" yaml:"driver"`
	DSN                   string `json:"dsn" yaml:"dsn"`
	Debug                 bool   `json:"debug" yaml:"debug"`
	PingTimeoutExpression string `json:"ping_timeout" yaml:"ping_timeout"`
}

// GetDriver returns the database driver name.
func (p PersistenceConfig) GetDriver() string {
	return p.Driver
}

// GetServer returns the database DSN.
func (p PersistenceConfig) GetServer() string {
	return p.DSN
}

// GetDebug reports whether query logging is enabled.
func (p PersistenceConfig) GetDebug() bool {
	return p.Debug
}

// GetPingTimeout returns the startup ping deadline.
func (p PersistenceConfig) GetPingTimeout() time.Duration {
	return parseDurationOr(p.PingTimeoutExpression, 5*time.Second)
}

// GetOtelIdentifier returns the name the database client reports to tracing.
func (p PersistenceConfig) GetOtelIdentifier() string {
	return "content-platform"
}

// Default returns the configuration used when no file or environment
// overrides are present. The signing key has no default on purpose.
func Default() *AppConfig {
	return &AppConfig{
		Name:        "content-platform",
		Environment: "development",
		Server: ServerConfig{
			Addr:            ":9876",
			ShutdownTimeout: "10s",
		},
		Auth: AuthConfig{
			Issuer:          "content-platform",
			AccessTokenTTL:  "168h",
			RefreshTokenTTL: "720h",
		},
		Persistence: PersistenceConfig{
			Driver:                "sqlite",
			DSN:                   "file:content.db",
			PingTimeoutExpression: "5s",
		},
	}
}

// Validate checks the loaded tree. Called by the config loader after every
// merge.
func (c *AppConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Environment, validation.Required, validation.In("development", "staging", "production")),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&c.Auth,
		validation.Field(&c.Auth.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Auth.Issuer, validation.Required),
	); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	for name, expr := range map[string]string{
		"auth.access_token_ttl":   c.Auth.AccessTokenTTL,
		"auth.refresh_token_ttl":  c.Auth.RefreshTokenTTL,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
	} {
		if expr == "" {
			continue
		}
		if _, err := time.ParseDuration(expr); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return validation.ValidateStruct(&c.Persistence,
		validation.Field(&c.Persistence.Driver, validation.Required),
		validation.Field(&c.Persistence.DSN, validation.Required),
	)
}

// IsDevelopment reports whether the app runs in development mode.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// GetSigningKey returns the token signing secret.
func (c *AppConfig) GetSigningKey() string {
	return c.Auth.SigningKey
}

// GetIssuer returns the token issuer.
func (c *AppConfig) GetIssuer() string {
	return c.Auth.Issuer
}

// GetAccessTokenTTL returns the access token lifetime expression.
func (c *AppConfig) GetAccessTokenTTL() string {
	return c.Auth.AccessTokenTTL
}

// GetRefreshTokenTTL returns the refresh token lifetime expression.
func (c *AppConfig) GetRefreshTokenTTL() string {
	return c.Auth.RefreshTokenTTL
}

// AccessTokenTTLDuration parses the access token lifetime, falling back to
// the 7 day default.
func (c *AppConfig) AccessTokenTTLDuration() time.Duration {
	return parseDurationOr(c.Auth.AccessTokenTTL, 168*time.Hour)
}

// RefreshTokenTTLDuration parses the refresh token lifetime, falling back to
// the 30 day default.
func (c *AppConfig) RefreshTokenTTLDuration() time.Duration {
	return parseDurationOr(c.Auth.RefreshTokenTTL, 720*time.Hour)
}

// ShutdownTimeoutDuration parses the shutdown grace period.
func (c *AppConfig) ShutdownTimeoutDuration() time.Duration {
	return parseDurationOr(c.Server.ShutdownTimeout, 10*time.Second)
}

func parseDurationOr(expr string, fallback time.Duration) time.Duration {
	if expr == "" {
		return fallback
	}
	d, err := time.ParseDuration(expr)
	if err != nil {
		return fallback
	}
	return d
}
