// Package config loads process configuration from a TOML file with
// MEMBERSHIP_* environment overrides.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	membership "github.com/goliatone/go-membership"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultTTL        = "60m"
	defaultIssuer     = "go-membership"
	defaultBcryptCost = 12
	defaultBatchSize  = 500
)

type Config struct {
	Token    TokenConfig    `toml:"token"`
	Database DatabaseConfig `toml:"database"`
	Security SecurityConfig `toml:"security"`
	Audit    AuditConfig    `toml:"audit"`
	Log      LogConfig      `toml:"log"`
}

type TokenConfig struct {
	// SigningKey is the HS256 secret. Prefer MEMBERSHIP_SIGNING_KEY over
	// writing it into the file.
	SigningKey string   `toml:"signing_key"`
	TTL        string   `toml:"ttl"`
	Issuer     string   `toml:"issuer"`
	Audience   []string `toml:"audience"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
	Debug  bool   `toml:"debug"`
}

type SecurityConfig struct {
	BcryptCost int `toml:"bcrypt_cost"`
}

type AuditConfig struct {
	ExportBatchSize int `toml:"export_batch_size"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

var _ membership.Config = (*Config)(nil)

// Default returns a configuration that only lacks a signing key.
func Default() *Config {
	return &Config{
		Token: TokenConfig{
			TTL:    defaultTTL,
			Issuer: defaultIssuer,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "file:membership.db?cache=shared",
		},
		Security: SecurityConfig{BcryptCost: defaultBcryptCost},
		Audit:    AuditConfig{ExportBatchSize: defaultBatchSize},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads path (when not empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode TOML config").
				WithMetadata(map[string]any{"path": path})
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides reads MEMBERSHIP_* variables from the process
// environment.
func (c *Config) ApplyEnvOverrides() {
	c.ApplyEnv(os.LookupEnv)
}

// ApplyEnv overrides fields from lookup. Unparseable numbers and booleans
// are ignored.
//   - MEMBERSHIP_SIGNING_KEY: token.signing_key
//   - MEMBERSHIP_TOKEN_TTL: token.ttl
//   - MEMBERSHIP_ISSUER: token.issuer
//   - MEMBERSHIP_AUDIENCE: token.audience, comma separated
//   - MEMBERSHIP_DB_DRIVER: database.driver
//   - MEMBERSHIP_DB_DSN: database.dsn
//   - MEMBERSHIP_DB_DEBUG: database.debug
//   - MEMBERSHIP_BCRYPT_COST: security.bcrypt_cost
//   - MEMBERSHIP_LOG_LEVEL: log.level
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("MEMBERSHIP_SIGNING_KEY", &c.Token.SigningKey)
	str("MEMBERSHIP_TOKEN_TTL", &c.Token.TTL)
	str("MEMBERSHIP_ISSUER", &c.Token.Issuer)
	str("MEMBERSHIP_DB_DRIVER", &c.Database.Driver)
	str("MEMBERSHIP_DB_DSN", &c.Database.DSN)
	str("MEMBERSHIP_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("MEMBERSHIP_AUDIENCE"); ok && v != "" {
		var aud []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				aud = append(aud, part)
			}
		}
		c.Token.Audience = aud
	}

	if v, ok := lookup("MEMBERSHIP_DB_DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Database.Debug = b
		}
	}

	if v, ok := lookup("MEMBERSHIP_BCRYPT_COST"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Security.BcryptCost = n
		}
	}
}

func (c *Config) Validate() error {
	err := validation.Errors{
		"token": validation.ValidateStruct(&c.Token,
			validation.Field(&c.Token.SigningKey,
				validation.Required,
				validation.Length(membership.MinSigningKeyBytes, 0),
			),
			validation.Field(&c.Token.TTL, validation.By(positiveDuration)),
		),
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
			validation.Field(&c.Database.DSN, validation.Required),
		),
		"security": validation.ValidateStruct(&c.Security,
			validation.Field(&c.Security.BcryptCost, validation.Min(4), validation.Max(31)),
		),
		"log": validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
		),
	}.Filter()
	if err == nil {
		return nil
	}

	meta := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for k, v := range verrs {
			meta[k] = v.Error()
		}
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration").
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(meta)
}

func positiveDuration(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.New("must be a duration such as 60m")
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func (c *Config) GetSigningKey() string {
	return c.Token.SigningKey
}

// GetTokenExpiration returns the token TTL, 60 minutes when unset.
func (c *Config) GetTokenExpiration() time.Duration {
	if d, err := time.ParseDuration(c.Token.TTL); err == nil && d > 0 {
		return d
	}
	return membership.DefaultTokenTTL
}

func (c *Config) GetIssuer() string {
	return c.Token.Issuer
}

func (c *Config) GetAudience() []string {
	return c.Token.Audience
}

func (c *Config) GetBcryptCost() int {
	return c.Security.BcryptCost
}

func (c *Config) GetDatabaseDriver() string {
	return c.Database.Driver
}

func (c *Config) GetDatabaseDSN() string {
	return c.Database.DSN
}

func (c *Config) GetDatabaseDebug() bool {
	return c.Database.Debug
}

func (c *Config) GetExportBatchSize() int {
	if c.Audit.ExportBatchSize <= 0 {
		return defaultBatchSize
	}
	return c.Audit.ExportBatchSize
}

func (c *Config) GetLogLevel() string {
	return c.Log.Level
}
