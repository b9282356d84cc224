package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid")

// Config is the root configuration structure for ringbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Ring      RingConfig      `yaml:"ring"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Engine    EngineConfig    `yaml:"engine"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RingConfig contains remote account settings.
type RingConfig struct {
	// Token is the account refresh token. Unused by the simulated backend.
	Token string `yaml:"token"`
	// LocationIDs restricts the bridge to these locations; empty means all.
	LocationIDs   []string `yaml:"location_ids"`
	EnableCameras bool     `yaml:"enable_cameras"`
	// Simulate runs against the in-process simulated account.
	Simulate bool `yaml:"simulate"`
	// SimulateInterval is the seconds between simulated activity bursts.
	SimulateInterval int `yaml:"simulate_interval"`
	// CameraPollInterval is the seconds between camera light/siren polls.
	CameraPollInterval int `yaml:"camera_poll_interval"`
	// DingWatchdogInterval is the seconds between ding subscription checks.
	DingWatchdogInterval int `yaml:"ding_watchdog_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	// TopicPrefix is the root of every device topic.
	TopicPrefix string `yaml:"topic_prefix"`
	// DiscoveryPrefix is the root of discovery config topics.
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	// StatusTopic carries the consumer's liveness ("online"/"offline").
	StatusTopic string `yaml:"status_topic"`
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
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// EngineConfig contains the timing of the synchronisation engine.
// All values are seconds.
type EngineConfig struct {
	RepublishCount     int `yaml:"republish_count"`
	RepublishInterval  int `yaml:"republish_interval"`
	RestartDelay       int `yaml:"restart_delay"`
	ConnectDelay       int `yaml:"connect_delay"`
	DiscoverySettle    int `yaml:"discovery_settle"`
	AvailabilitySettle int `yaml:"availability_settle"`
	CommandRetries     int `yaml:"command_retries"`
	CommandRetryDelay  int `yaml:"command_retry_delay"`
	CommandSettle      int `yaml:"command_settle"`
}

// DatabaseConfig contains SQLite command journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	// RetentionDays drops journal records older than this; 0 keeps them forever.
	RetentionDays int `yaml:"retention_days"`
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

// APIConfig contains HTTP monitoring server settings.
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

// WebSocketConfig contains live event feed settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RINGBRIDGE_SECTION_KEY
// For example: RINGBRIDGE_MQTT_HOST, RINGBRIDGE_RING_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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
		Ring: RingConfig{
			EnableCameras:        true,
			SimulateInterval:     15,
			CameraPollInterval:   20,
			DingWatchdogInterval: 60,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ringbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix:     "ring",
			DiscoveryPrefix: "homeassistant",
			StatusTopic:     "homeassistant/status",
		},
		Engine: EngineConfig{
			RepublishCount:     10,
			RepublishInterval:  30,
			RestartDelay:       35,
			ConnectDelay:       5,
			DiscoverySettle:    2,
			AvailabilitySettle: 3,
			CommandRetries:     12,
			CommandRetryDelay:  10,
			CommandSettle:      1,
		},
		Database: DatabaseConfig{
			Enabled:       true,
			Path:          "./data/ringbridge.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "ringbridge",
			Bucket:        "ring",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// envOverride binds one RINGBRIDGE_* variable to a config field. Values
// that fail to parse are ignored and the file value stands.
type envOverride struct {
	name  string
	apply func(cfg *Config, v string)
}

func envOverrides(cfg *Config) []envOverride {
	str := func(dst *string) func(*Config, string) {
		return func(_ *Config, v string) { *dst = v }
	}
	num := func(dst *int) func(*Config, string) {
		return func(_ *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	return []envOverride{
		{"RINGBRIDGE_RING_TOKEN", str(&cfg.Ring.Token)},
		{"RINGBRIDGE_RING_LOCATION_IDS", func(c *Config, v string) { c.Ring.LocationIDs = splitList(v) }},
		{"RINGBRIDGE_ENABLE_CAMERAS", func(c *Config, v string) {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Ring.EnableCameras = b
			}
		}},
		{"RINGBRIDGE_MQTT_HOST", str(&cfg.MQTT.Broker.Host)},
		{"RINGBRIDGE_MQTT_PORT", num(&cfg.MQTT.Broker.Port)},
		{"RINGBRIDGE_MQTT_USERNAME", str(&cfg.MQTT.Auth.Username)},
		{"RINGBRIDGE_MQTT_PASSWORD", str(&cfg.MQTT.Auth.Password)},
		{"RINGBRIDGE_MQTT_TOPIC_PREFIX", str(&cfg.MQTT.TopicPrefix)},
		{"RINGBRIDGE_MQTT_STATUS_TOPIC", str(&cfg.MQTT.StatusTopic)},
		{"RINGBRIDGE_DB_PATH", str(&cfg.Database.Path)},
		{"RINGBRIDGE_INFLUXDB_URL", str(&cfg.InfluxDB.URL)},
		{"RINGBRIDGE_INFLUXDB_TOKEN", str(&cfg.InfluxDB.Token)},
		{"RINGBRIDGE_API_PORT", num(&cfg.API.Port)},
		{"RINGBRIDGE_LOG_LEVEL", str(&cfg.Logging.Level)},
	}
}

// applyEnvOverrides copies every set, non-empty RINGBRIDGE_* variable into cfg.
func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides(cfg) {
		if v := os.Getenv(o.name); v != "" {
			o.apply(cfg, v)
		}
	}
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure wrapping ErrInvalidConfig, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Remote account
	if !c.Ring.Simulate && c.Ring.Token == "" {
		errs = append(errs, "ring.token is required (set RINGBRIDGE_RING_TOKEN) unless ring.simulate is true")
	}

	// MQTT
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}
	if c.MQTT.DiscoveryPrefix == "" {
		errs = append(errs, "mqtt.discovery_prefix is required")
	}

	// Engine
	if c.Engine.RepublishCount < 1 {
		errs = append(errs, "engine.republish_count must be at least 1")
	}
	if c.Engine.RepublishInterval < 1 {
		errs = append(errs, "engine.republish_interval must be at least 1")
	}
	if c.Engine.CommandRetries < 1 {
		errs = append(errs, "engine.command_retries must be at least 1")
	}
	if c.Engine.CommandRetryDelay < 1 {
		errs = append(errs, "engine.command_retry_delay must be at least 1")
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days cannot be negative")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// Seconds converts a seconds setting to a Duration.
func Seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return Seconds(c.API.Timeouts.Read)
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return Seconds(c.API.Timeouts.Write)
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return Seconds(c.API.Timeouts.Idle)
}

// AllowsLocation reports whether the bridge should handle locationID.
func (r RingConfig) AllowsLocation(locationID string) bool {
	if len(r.LocationIDs) == 0 {
		return true
	}
	for _, id := range r.LocationIDs {
		if id == locationID {
			return true
		}
	}
	return false
}
