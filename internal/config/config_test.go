package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  environment: production
api:
  port: 9000
  request_timeout: 15s
database:
  driver: sqlite3
  dsn: file:fleet.db
jwt:
  secret: from-file
  user_ttl: 12h
lifecycle:
  order_number_prefix: MM
  require_proof_of_delivery: true
rate_limit:
  auth:
    requests: 3
    window: 1m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Server.IsProduction())
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, 15*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, 12*time.Hour, cfg.JWT.UserTTL)
	assert.Equal(t, "MM", cfg.Lifecycle.OrderNumberPrefix)
	assert.True(t, cfg.Lifecycle.RequireProofOfDelivery)
	assert.Equal(t, RateRule{Requests: 3, Window: time.Minute}, cfg.RateLimit.Auth)

	// untouched values keep their defaults
	assert.Equal(t, 30*24*time.Hour, cfg.JWT.DriverTTL)
	assert.Equal(t, Default().RateLimit.API, cfg.RateLimit.API)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite3
  dsn: file:fleet.db
jwt:
  secret: from-file
`)
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://fleet@localhost/fleet?sslmode=disable")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("API_PORT", "8181")
	t.Setenv("APP_ENV", "production")
	t.Setenv("MQTT_BROKER_URL", "tcp://localhost:1883")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://fleet@localhost/fleet?sslmode=disable", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 8181, cfg.API.Port)
	assert.True(t, cfg.Server.IsProduction())
	assert.Equal(t, "tcp://localhost:1883", cfg.Integration.MQTT.BrokerURL)
}

func TestLoadBadPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/fleet")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("API_PORT", "eighty")

	_, err := Load("")
	assert.ErrorContains(t, err, "API_PORT")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Database.DSN = "postgres://localhost/fleet"
		cfg.JWT.Secret = "secret"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }, "jwt.secret"},
		{"zero ttl", func(c *Config) { c.JWT.DriverTTL = 0 }, "lifetimes"},
		{"zero buffer", func(c *Config) { c.Realtime.SubscriberBuffer = 0 }, "subscriber_buffer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
