package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	API         APIConfig         `yaml:"api"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	JWT         JWTConfig         `yaml:"jwt"`
	Log         LogConfig         `yaml:"log"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Realtime    RealtimeConfig    `yaml:"realtime"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Integration IntegrationConfig `yaml:"integration"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// IsProduction reports whether internal error detail must be hidden.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// APIConfig represents API configuration
type APIConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	Issuer    string        `yaml:"issuer"`
	UserTTL   time.Duration `yaml:"user_ttl"`
	DriverTTL time.Duration `yaml:"driver_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LifecycleConfig tunes order lifecycle rules
type LifecycleConfig struct {
	OrderNumberPrefix      string `yaml:"order_number_prefix"`
	RequireProofOfDelivery bool   `yaml:"require_proof_of_delivery"`
}

// RealtimeConfig represents the subscriber stream configuration
type RealtimeConfig struct {
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
}

// RateLimitConfig represents per-client request limits
type RateLimitConfig struct {
	Enabled bool     `yaml:"enabled"`
	API     RateRule `yaml:"api"`
	Auth    RateRule `yaml:"auth"`
	Create  RateRule `yaml:"create"`
}

// RateRule allows Requests per Window for each client address
type RateRule struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// IntegrationConfig represents outbound event forwarding
type IntegrationConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig represents the MQTT forwarder configuration
type MQTTConfig struct {
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:        "fleet-dispatch-server",
			Version:     "1.0.0",
			Environment: "development",
		},
		API: APIConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			AllowedOrigins: []string{"http://localhost:3000"},
			RequestTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		NATS: NATSConfig{
			SubjectPrefix:     "fleet",
			MaxReconnects:     -1,
			ReconnectInterval: 2 * time.Second,
		},
		JWT: JWTConfig{
			Issuer:    "fleet-dispatch",
			UserTTL:   7 * 24 * time.Hour,
			DriverTTL: 30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Lifecycle: LifecycleConfig{
			OrderNumberPrefix: "ORD",
		},
		Realtime: RealtimeConfig{
			SubscriberBuffer: 64,
			WriteTimeout:     5 * time.Second,
			PingInterval:     30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			API:     RateRule{Requests: 100, Window: 15 * time.Minute},
			Auth:    RateRule{Requests: 5, Window: 15 * time.Minute},
			Create:  RateRule{Requests: 10, Window: time.Minute},
		},
		Integration: IntegrationConfig{
			MQTT: MQTTConfig{
				ClientID:    "fleet-dispatch-server",
				TopicPrefix: "fleet",
				QoS:         1,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load loads configuration from file. A missing file is not an error when
// filename is empty; values then come from defaults and the environment.
// A .env file in the working directory is loaded first if present.
func Load(filename string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	// Apply environment overrides
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() error {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		c.Server.Environment = env
	}

	if broker := os.Getenv("MQTT_BROKER_URL"); broker != "" {
		c.Integration.MQTT.BrokerURL = broker
	}

	if port := os.Getenv("API_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("API_PORT: %w", err)
		}
		c.API.Port = p
	}

	return nil
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite3, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.JWT.UserTTL <= 0 || c.JWT.DriverTTL <= 0 {
		return errors.New("jwt token lifetimes must be positive")
	}
	if c.Realtime.SubscriberBuffer <= 0 {
		return errors.New("realtime.subscriber_buffer must be positive")
	}
	return nil
}
