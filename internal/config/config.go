package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Database      DatabaseConfig `yaml:"database"`
	Server        ServerConfig   `yaml:"server,omitempty"`
	Models        ModelsConfig   `yaml:"models"`
	MQTT          MQTTConfig     `yaml:"mqtt,omitempty"`
	HomeAssistant HAConfig       `yaml:"home_assistant,omitempty"`
	Logging       LoggingConfig  `yaml:"logging,omitempty"`
	ForecastDays  int            `yaml:"forecast_days,omitempty"` // Default horizon (fallback: 7)
}

// DatabaseConfig selects the reading store
type DatabaseConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" (default) or "postgres"
	DSN    string `yaml:"dsn,omitempty"`    // file path for sqlite, connection string for postgres
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr         string        `yaml:"addr,omitempty"` // e.g., ":8080"
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
}

// ModelsConfig locates the pre-trained models
type ModelsConfig struct {
	Forecast  ArtifactConfig `yaml:"forecast"`
	Anomaly   ArtifactConfig `yaml:"anomaly"`
	RemoteURL string         `yaml:"remote_url,omitempty"` // model server; overrides local artifacts when set
	APIKey    string         `yaml:"api_key,omitempty"`
}

// ArtifactConfig is a local model file with an optional download URL
type ArtifactConfig struct {
	Path string `yaml:"path"`
	URL  string `yaml:"url,omitempty"`
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`                 // e.g., "localhost:1883"
	TopicPrefix string `yaml:"topic_prefix,omitempty"` // e.g., "homeenergy"
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	ClientID    string `yaml:"client_id,omitempty"`
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`       // e.g., "http://homeassistant.local:8123"
	Token    string `yaml:"token"`     // Long-lived access token
	EntityID string `yaml:"entity_id"` // e.g., "sensor.energy_forecast_tomorrow"
}

// LoggingConfig controls the process logger
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// Load reads the config file and applies HOMEENERGY_* environment overrides
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		// Missing file means defaults plus environment
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"HOMEENERGY_DB_DRIVER":        &c.Database.Driver,
		"HOMEENERGY_DB_DSN":           &c.Database.DSN,
		"HOMEENERGY_SERVER_ADDR":      &c.Server.Addr,
		"HOMEENERGY_FORECAST_MODEL":   &c.Models.Forecast.Path,
		"HOMEENERGY_ANOMALY_MODEL":    &c.Models.Anomaly.Path,
		"HOMEENERGY_MODEL_SERVER_URL": &c.Models.RemoteURL,
		"HOMEENERGY_MODEL_API_KEY":    &c.Models.APIKey,
		"HOMEENERGY_MQTT_BROKER":      &c.MQTT.Broker,
		"HOMEENERGY_MQTT_USERNAME":    &c.MQTT.Username,
		"HOMEENERGY_MQTT_PASSWORD":    &c.MQTT.Password,
		"HOMEENERGY_HA_TOKEN":         &c.HomeAssistant.Token,
		"HOMEENERGY_LOG_LEVEL":        &c.Logging.Level,
		"HOMEENERGY_LOG_FORMAT":       &c.Logging.Format,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("HOMEENERGY_FORECAST_DAYS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing HOMEENERGY_FORECAST_DAYS: %w", err)
		}
		c.ForecastDays = n
	}
	return nil
}

// Validate checks settings that would otherwise fail deep inside a command
func (c *Config) Validate() error {
	switch c.GetDatabaseDriver() {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q (want sqlite or postgres)", c.Database.Driver)
	}
	if c.GetDatabaseDriver() == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for postgres")
	}
	if c.ForecastDays < 0 {
		return fmt.Errorf("forecast_days must not be negative, got %d", c.ForecastDays)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("MQTT broker address is required when enabled")
	}
	if c.HomeAssistant.Enabled {
		if c.HomeAssistant.URL == "" {
			return fmt.Errorf("Home Assistant URL is required when enabled")
		}
		if c.HomeAssistant.Token == "" {
			return fmt.Errorf("Home Assistant token is required when enabled")
		}
		if c.HomeAssistant.EntityID == "" {
			return fmt.Errorf("Home Assistant entity_id is required when enabled")
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q (want text or json)", c.Logging.Format)
	}
	return nil
}

// GetDatabaseDriver returns the configured driver with a default of sqlite
func (c *Config) GetDatabaseDriver() string {
	if c.Database.Driver == "" {
		return "sqlite"
	}
	return strings.ToLower(c.Database.Driver)
}

// GetDatabaseDSN returns the DSN, defaulting to a local sqlite file
func (c *Config) GetDatabaseDSN() string {
	if c.Database.DSN == "" && c.GetDatabaseDriver() == "sqlite" {
		return "data.db"
	}
	return c.Database.DSN
}

// GetForecastDays returns the default forecast horizon with a fallback of 7
func (c *Config) GetForecastDays() int {
	if c.ForecastDays <= 0 {
		return 7
	}
	return c.ForecastDays
}

// GetServerAddr returns the listen address with a default of ":8080"
func (c *Config) GetServerAddr() string {
	if c.Server.Addr == "" {
		return ":8080"
	}
	return c.Server.Addr
}

// GetReadTimeout returns the server read timeout (fallback: 15s)
func (c *Config) GetReadTimeout() time.Duration {
	if c.Server.ReadTimeout <= 0 {
		return 15 * time.Second
	}
	return c.Server.ReadTimeout
}

// GetWriteTimeout returns the server write timeout (fallback: 60s)
func (c *Config) GetWriteTimeout() time.Duration {
	if c.Server.WriteTimeout <= 0 {
		return 60 * time.Second
	}
	return c.Server.WriteTimeout
}

// GetForecastModelPath returns the forecast artifact path
func (c *Config) GetForecastModelPath() string {
	if c.Models.Forecast.Path == "" {
		return filepath.Join("models", "forecast_trend.json")
	}
	return c.Models.Forecast.Path
}

// GetAnomalyModelPath returns the anomaly artifact path
func (c *Config) GetAnomalyModelPath() string {
	if c.Models.Anomaly.Path == "" {
		return filepath.Join("models", "anomaly_isoforest.json")
	}
	return c.Models.Anomaly.Path
}

// GetTopicPrefix returns the MQTT topic prefix with a default of "homeenergy"
func (c *Config) GetTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "homeenergy"
	}
	return strings.TrimRight(c.MQTT.TopicPrefix, "/")
}

// GetClientID returns the MQTT client id with a default of "homeenergy"
func (c *Config) GetClientID() string {
	if c.MQTT.ClientID == "" {
		return "homeenergy"
	}
	return c.MQTT.ClientID
}
