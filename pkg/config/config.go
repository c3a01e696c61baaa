// Package config loads service configuration from the environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration of the ingestion service and the CLI.
type Config struct {
	// ServerPort is the HTTP listen port.
	ServerPort string `mapstructure:"SERVER_PORT"`
	// AllowedOrigins is a comma-separated CORS allow list; empty means "*".
	AllowedOrigins string `mapstructure:"SERVER_ALLOWED_ORIGINS"`

	// DatabaseURL is a full Postgres DSN. When empty the DB_* parts are used.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBHost      string `mapstructure:"DB_HOST"`
	DBPort      string `mapstructure:"DB_PORT"`
	DBUser      string `mapstructure:"DB_USER"`
	DBPassword  string `mapstructure:"DB_PASSWORD"`
	DBName      string `mapstructure:"DB_NAME"`
	DBSSLMode   string `mapstructure:"DB_SSLMODE"`

	// CalibrationModelPath is the regressor artifact; a missing file disables calibration.
	CalibrationModelPath string `mapstructure:"CALIBRATION_MODEL_PATH"`
	// PersistInterval is the minimum spacing between persisted readings (e.g. "5m").
	PersistInterval time.Duration `mapstructure:"PERSIST_INTERVAL"`
	// DeviceAPIKeyHeader carries the device credential on the webhook.
	DeviceAPIKeyHeader string `mapstructure:"DEVICE_API_KEY_HEADER"`
	// DefaultDeviceID is used by the ingestion API when a payload names no device.
	DefaultDeviceID string `mapstructure:"DEFAULT_DEVICE_ID"`

	// MQTTBrokerURL enables the MQTT subscriber when set (e.g. tcp://localhost:1883).
	MQTTBrokerURL string `mapstructure:"MQTT_BROKER_URL"`
	MQTTTopic     string `mapstructure:"MQTT_TOPIC"`
	// MQTTClientID defaults to a generated id.
	MQTTClientID string `mapstructure:"MQTT_CLIENT_ID"`

	// NATSURL enables publishing processed readings when set.
	NATSURL           string `mapstructure:"NATS_URL"`
	NATSSubjectPrefix string `mapstructure:"NATS_SUBJECT_PREFIX"`

	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is text or json.
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8059")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "aqi_user")
	v.SetDefault("DB_PASSWORD", "aqi_pass")
	v.SetDefault("DB_NAME", "aqi_db")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("CALIBRATION_MODEL_PATH", "sensor_calibration_model.json")
	v.SetDefault("PERSIST_INTERVAL", "5m")
	v.SetDefault("DEVICE_API_KEY_HEADER", "X-API-Key")
	v.SetDefault("DEFAULT_DEVICE_ID", "ESP32_001")
	v.SetDefault("MQTT_BROKER_URL", "")
	v.SetDefault("MQTT_TOPIC", "aqi/+/data")
	v.SetDefault("MQTT_CLIENT_ID", "")
	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SUBJECT_PREFIX", "aqi.readings")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Validate checks the values Load cannot default away
func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return errors.New("config: SERVER_PORT must be set")
	}
	if c.PersistInterval <= 0 {
		return errors.New("config: PERSIST_INTERVAL must be a positive duration")
	}
	if c.DeviceAPIKeyHeader == "" {
		return errors.New("config: DEVICE_API_KEY_HEADER must be set")
	}
	if c.MQTTBrokerURL != "" {
		if _, err := url.Parse(c.MQTTBrokerURL); err != nil {
			return fmt.Errorf("config: invalid MQTT_BROKER_URL: %w", err)
		}
		if strings.TrimSpace(c.MQTTTopic) == "" {
			return errors.New("config: MQTT_TOPIC must be set when MQTT_BROKER_URL is set")
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// DSN returns DatabaseURL or a key/value connection string built from the DB_* parts
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// AllowedOriginList splits AllowedOrigins; nil means every origin is allowed
func (c *Config) AllowedOriginList() []string {
	if c == nil || c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
