package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the EnOcean bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	EnOcean    EnOceanConfig    `yaml:"enocean"`
	KNX        KNXConfig        `yaml:"knx"`
	Translator TranslatorConfig `yaml:"translator"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// MQTT only carries button events out of the bridge; it is optional.
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Used when Output is "file"; sizes are in megabytes, age in days.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// EnOceanConfig contains the radio link settings.
type EnOceanConfig struct {
	// Port is the serial device of the USB gateway stick (e.g. "/dev/ttyUSB0").
	Port string `yaml:"port"`

	// BaudRate of the ESP3 serial interface. Default: 57600
	BaudRate int `yaml:"baud_rate"`

	// DirectoryFile is the YAML file describing devices, buttons and toggle commands.
	DirectoryFile string `yaml:"directory_file"`

	// ListPorts logs every serial port found at startup.
	// Useful when the configured port is wrong.
	ListPorts bool `yaml:"list_ports"`
}

// KNXConfig contains the knxd connection used for toggle commands.
type KNXConfig struct {
	// Connection is the knxd URL: "unix:///run/knxd" or "tcp://host:6720".
	Connection string `yaml:"connection"`

	// ReadTimeout bounds the wait for a GroupValue_Response.
	// Default: 2s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds a single group write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// TranslatorConfig tunes the rocker event translator.
type TranslatorConfig struct {
	// SerializeToggles holds a per-address lock across the read and the write
	// of a toggle. Off by default: concurrent toggles of one address may lose an update.
	SerializeToggles bool `yaml:"serialize_toggles"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_ENOCEAN_PORT
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
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic EnOcean",
		},
		Database: DatabaseConfig{
			Path:        "./data/enocean.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-enocean",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/enocean-bridge.log",
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     30,
			},
		},
		EnOcean: EnOceanConfig{
			Port:          "/dev/ttyUSB0",
			BaudRate:      57600,
			DirectoryFile: "configs/directory.yaml",
		},
		KNX: KNXConfig{
			Connection:   "unix:///run/knxd",
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_ENOCEAN_PORT"); v != "" {
		cfg.EnOcean.Port = v
	}
	if v := os.Getenv("GRAYLOGIC_ENOCEAN_DIRECTORY_FILE"); v != "" {
		cfg.EnOcean.DirectoryFile = v
	}

	if v := os.Getenv("GRAYLOGIC_KNX_CONNECTION"); v != "" {
		cfg.KNX.Connection = v
	}

	if v := os.Getenv("GRAYLOGIC_TRANSLATOR_SERIALIZE_TOGGLES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Translator.SerializeToggles = b
		}
	}
}

// Validate checks the configuration for errors.
// All problems are collected so a broken file is fixed in one pass.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if c.EnOcean.Port == "" {
		errs = append(errs, "enocean.port is required")
	}
	if c.EnOcean.BaudRate <= 0 {
		errs = append(errs, "enocean.baud_rate must be positive")
	}
	if c.EnOcean.DirectoryFile == "" {
		errs = append(errs, "enocean.directory_file is required")
	}

	if c.KNX.Connection == "" {
		errs = append(errs, "knx.connection is required")
	}
	if c.KNX.ReadTimeout <= 0 {
		errs = append(errs, "knx.read_timeout must be positive")
	}
	if c.KNX.WriteTimeout <= 0 {
		errs = append(errs, "knx.write_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
