package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for liftgate.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Cloud     CloudConfig             `yaml:"cloud"`
	Polling   PollingConfig           `yaml:"polling"`
	Devices   map[string]DeviceConfig `yaml:"devices"`
	API       APIConfig               `yaml:"api"`
	WebSocket WebSocketConfig         `yaml:"websocket"`
	MQTT      MQTTConfig              `yaml:"mqtt"`
	Logging   LoggingConfig           `yaml:"logging"`
}

// CloudConfig contains the vendor cloud credentials and token settings.
type CloudConfig struct {
	// Email and Password are the vendor account credentials. One credential
	// set per process; there is no multi-tenant session handling.
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// Region selects the vendor host set. Empty or "east" is the default
	// deployment; "west" selects the western host set.
	Region string `yaml:"region"`

	// TokenFreshness is how old (in seconds) an access token may be before a
	// refresh-token grant is attempted ahead of the next API call.
	// Default: 3300 (55 minutes).
	TokenFreshness int `yaml:"token_freshness"`
}

// PollingConfig contains the adaptive poll scheduler cadences.
// All values are in seconds.
type PollingConfig struct {
	// RefreshInterval is the idle polling cadence. Default: 12.
	RefreshInterval int `yaml:"refresh_interval"`

	// ActiveRefreshInterval is the burst polling cadence used after a command
	// or an observed state transition. Default: 3.
	ActiveRefreshInterval int `yaml:"active_refresh_interval"`

	// ActiveRefreshDuration is how long burst polling lasts before the
	// scheduler returns to the idle cadence. Default: 300.
	ActiveRefreshDuration int `yaml:"active_refresh_duration"`
}

// DeviceConfig contains per-device feature toggles, keyed by serial number.
type DeviceConfig struct {
	// ReadOnly rejects all commands for this device.
	ReadOnly bool `yaml:"read_only"`

	// ShowBatteryStatus exposes the DC battery state in API/MQTT payloads.
	ShowBatteryStatus bool `yaml:"show_battery_status"`

	// OccupancySensor enables the door-open occupancy timer.
	OccupancySensor bool `yaml:"occupancy_sensor"`

	// OccupancyDuration is how long (in seconds) a door must remain open
	// before it is considered occupied. Default: 300.
	OccupancyDuration int `yaml:"occupancy_duration"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT bridge settings. The bridge is optional; when
// disabled, no broker connection is attempted.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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
// Environment variables follow the pattern: LIFTGATE_SECTION_KEY
// For example: LIFTGATE_CLOUD_EMAIL, LIFTGATE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Cloud: CloudConfig{
			Region:         "east",
			TokenFreshness: 3300,
		},
		Polling: PollingConfig{
			RefreshInterval:       12,
			ActiveRefreshInterval: 3,
			ActiveRefreshDuration: 300,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8123,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "liftgate",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
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
// Environment variables follow the pattern: LIFTGATE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Cloud credentials (preferred over writing secrets into config.yaml)
	if v := os.Getenv("LIFTGATE_CLOUD_EMAIL"); v != "" {
		cfg.Cloud.Email = v
	}
	if v := os.Getenv("LIFTGATE_CLOUD_PASSWORD"); v != "" {
		cfg.Cloud.Password = v
	}
	if v := os.Getenv("LIFTGATE_CLOUD_REGION"); v != "" {
		cfg.Cloud.Region = v
	}

	// MQTT
	if v := os.Getenv("LIFTGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LIFTGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LIFTGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LIFTGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Cloud validation
	if c.Cloud.Email == "" {
		errs = append(errs, "cloud.email is required (set LIFTGATE_CLOUD_EMAIL environment variable)")
	}
	if c.Cloud.Password == "" {
		errs = append(errs, "cloud.password is required (set LIFTGATE_CLOUD_PASSWORD environment variable)")
	}
	switch c.Cloud.Region {
	case "", "east", "west":
	default:
		errs = append(errs, fmt.Sprintf("cloud.region %q is not recognised (valid: east, west)", c.Cloud.Region))
	}
	if c.Cloud.TokenFreshness < 60 {
		errs = append(errs, "cloud.token_freshness must be at least 60 seconds")
	}

	// Polling validation
	if c.Polling.RefreshInterval < 1 {
		errs = append(errs, "polling.refresh_interval must be positive")
	}
	if c.Polling.ActiveRefreshInterval < 1 {
		errs = append(errs, "polling.active_refresh_interval must be positive")
	}
	if c.Polling.ActiveRefreshDuration < c.Polling.ActiveRefreshInterval {
		errs = append(errs, "polling.active_refresh_duration must be at least active_refresh_interval")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// MQTT validation (only when the bridge is enabled)
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when the MQTT bridge is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// IdleInterval returns the idle polling cadence as a Duration.
func (c *Config) IdleInterval() time.Duration {
	return c.Polling.IdleInterval()
}

// BurstInterval returns the burst polling cadence as a Duration.
func (c *Config) BurstInterval() time.Duration {
	return c.Polling.BurstInterval()
}

// BurstDuration returns how long burst polling lasts as a Duration.
func (c *Config) BurstDuration() time.Duration {
	return c.Polling.BurstDuration()
}

// IdleInterval returns the idle polling cadence as a Duration.
func (p PollingConfig) IdleInterval() time.Duration {
	return time.Duration(p.RefreshInterval) * time.Second
}

// BurstInterval returns the burst polling cadence as a Duration.
func (p PollingConfig) BurstInterval() time.Duration {
	return time.Duration(p.ActiveRefreshInterval) * time.Second
}

// BurstDuration returns how long burst polling lasts as a Duration.
func (p PollingConfig) BurstDuration() time.Duration {
	return time.Duration(p.ActiveRefreshDuration) * time.Second
}

// Freshness returns the token freshness window as a Duration.
func (c *CloudConfig) Freshness() time.Duration {
	return time.Duration(c.TokenFreshness) * time.Second
}

// Device returns the per-device configuration for a serial number, falling
// back to defaults when the device has no entry.
func (c *Config) Device(serial string) DeviceConfig {
	if dc, ok := c.Devices[serial]; ok {
		if dc.OccupancyDuration <= 0 {
			dc.OccupancyDuration = 300
		}
		return dc
	}
	return DeviceConfig{OccupancyDuration: 300}
}
