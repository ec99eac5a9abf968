package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-membership/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "membership.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[token]
signing_key = "`+testKey+`"
ttl = "30m"
issuer = "members"
audience = ["web"]

[database]
driver = "postgres"
dsn = "postgres://localhost/members"

[security]
bcrypt_cost = 10
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, testKey, cfg.GetSigningKey())
	assert.Equal(t, 30*time.Minute, cfg.GetTokenExpiration())
	assert.Equal(t, "members", cfg.GetIssuer())
	assert.Equal(t, []string{"web"}, cfg.GetAudience())
	assert.Equal(t, 10, cfg.GetBcryptCost())
	assert.Equal(t, config.DriverPostgres, cfg.GetDatabaseDriver())
	assert.Equal(t, 500, cfg.GetExportBatchSize())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[token]
signing_key = "short"
`)
	t.Setenv("MEMBERSHIP_SIGNING_KEY", testKey)
	t.Setenv("MEMBERSHIP_TOKEN_TTL", "2h")
	t.Setenv("MEMBERSHIP_DB_DEBUG", "true")
	t.Setenv("MEMBERSHIP_AUDIENCE", "web, mobile")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, testKey, cfg.GetSigningKey())
	assert.Equal(t, 2*time.Hour, cfg.GetTokenExpiration())
	assert.True(t, cfg.GetDatabaseDebug())
	assert.Equal(t, []string{"web", "mobile"}, cfg.GetAudience())
}

func TestValidateRejectsMissingSigningKey(t *testing.T) {
	cfg := config.Default()

	err := cfg.Validate()
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	assert.Contains(t, richErr.Metadata, "token")
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Token.SigningKey = testKey
	cfg.Database.Driver = "oracle"

	require.Error(t, cfg.Validate())
}

func TestApplyEnvIgnoresGarbage(t *testing.T) {
	cfg := config.Default()
	cfg.ApplyEnv(func(key string) (string, bool) {
		switch key {
		case "MEMBERSHIP_BCRYPT_COST":
			return "lots", true
		case "MEMBERSHIP_DB_DEBUG":
			return "maybe", true
		}
		return "", false
	})

	assert.Equal(t, 12, cfg.GetBcryptCost())
	assert.False(t, cfg.GetDatabaseDebug())
}

func TestDefaultTTL(t *testing.T) {
	cfg := config.Default()
	cfg.Token.TTL = ""
	assert.Equal(t, 60*time.Minute, cfg.GetTokenExpiration())
}
