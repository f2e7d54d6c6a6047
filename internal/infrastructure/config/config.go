package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Telegram gateway.
// It is built once by Load and handed to each component at construction.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Topics   TopicsConfig   `yaml:"topics"`
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	Auth           MQTTAuthConfig      `yaml:"auth"`
	QoS            int                 `yaml:"qos"`
	Retain         bool                `yaml:"retain"`
	KeepAlive      int                 `yaml:"keep_alive"`
	ConnectTimeout int                 `yaml:"connect_timeout"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// Delays are in seconds. MaxAttempts of 0 means unlimited.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// TopicsConfig names the three topics the gateway works with.
type TopicsConfig struct {
	// Presence receives the online announcement at startup.
	Presence string `yaml:"presence"`

	// Inbound receives chat-originated messages published by the gateway.
	Inbound string `yaml:"inbound"`

	// Outbound carries broker messages to be forwarded to chat.
	Outbound string `yaml:"outbound"`
}

// TelegramConfig contains Telegram Bot API settings.
type TelegramConfig struct {
	Token          string `yaml:"token"`
	APIEndpoint    string `yaml:"api_endpoint"`
	PollTimeout    int    `yaml:"poll_timeout"`
	RequestTimeout int    `yaml:"request_timeout"`
	Debug          bool   `yaml:"debug"`
}

// DatabaseConfig contains SQLite database settings for the conversation registry.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultTelegramEndpoint is the public Bot API endpoint format.
const DefaultTelegramEndpoint = "https://api.telegram.org/bot%s/%s"

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TGGATEWAY_SECTION_KEY
// For example: TGGATEWAY_TELEGRAM_TOKEN, TGGATEWAY_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "telegram-gateway",
			},
			QoS:            0,
			Retain:         false,
			KeepAlive:      60,
			ConnectTimeout: 10,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Topics: TopicsConfig{
			Presence: "gateway/telegram/status",
			Inbound:  "gateway/telegram/inbound",
			Outbound: "gateway/telegram/outbound",
		},
		Telegram: TelegramConfig{
			APIEndpoint:    DefaultTelegramEndpoint,
			PollTimeout:    30,
			RequestTimeout: 10,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/telegram-gateway.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    5001,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets should normally arrive this way rather than through the file.
func applyEnvOverrides(cfg *Config) {
	// MQTT
	if v := os.Getenv("TGGATEWAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TGGATEWAY_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("TGGATEWAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TGGATEWAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Telegram
	if v := os.Getenv("TGGATEWAY_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}

	// Storage
	if v := os.Getenv("TGGATEWAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TGGATEWAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("TGGATEWAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together in a single error.
func (c *Config) Validate() error {
	var errs []string

	// MQTT
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if !validPort(c.MQTT.Broker.Port) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay < 0 || c.MQTT.Reconnect.MaxDelay < 0 || c.MQTT.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "mqtt.reconnect values must not be negative")
	} else if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must be >= initial_delay")
	}

	errs = append(errs, c.Topics.validate()...)

	// Telegram
	if c.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required (set TGGATEWAY_TELEGRAM_TOKEN environment variable)")
	}

	// Optional components
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.API.Enabled && !validPort(c.API.Port) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate checks the topic set: all present, distinct, and usable as
// publish targets (no wildcards).
func (t TopicsConfig) validate() []string {
	var errs []string

	named := []struct {
		key   string
		value string
	}{
		{"topics.presence", t.Presence},
		{"topics.inbound", t.Inbound},
		{"topics.outbound", t.Outbound},
	}

	seen := make(map[string]string, len(named))
	for _, n := range named {
		if n.value == "" {
			errs = append(errs, n.key+" is required")
			continue
		}
		if strings.ContainsAny(n.value, "+#") {
			errs = append(errs, n.key+" must not contain MQTT wildcards")
		}
		if other, dup := seen[n.value]; dup {
			errs = append(errs, fmt.Sprintf("%s duplicates %s", n.key, other))
		}
		seen[n.value] = n.key
	}

	return errs
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
