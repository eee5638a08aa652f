package shared

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	envAPIKey  = "RULEMIG_API_KEY"
	envBaseURL = "RULEMIG_BASE_URL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	LogLevel     string             `toml:"log_level"`
	API          APIConfig          `toml:"api"`
	Database     DatabaseConfig     `toml:"database"`
	Migrations   MigrationsConfig   `toml:"migrations"`
	Capabilities CapabilitiesConfig `toml:"capabilities"`
	Server       ServerConfig       `toml:"server"`
}

// APIConfig contains connection settings for the remote rule migration service.
type APIConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	SpaceID        string  `toml:"space_id"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RateLimit      float64 `toml:"rate_limit"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// MigrationsConfig tunes batching and polling.
type MigrationsConfig struct {
	BatchSize           int `toml:"batch_size"`
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// CapabilitiesConfig lists the capabilities required to start migrations and those granted to the caller.
type CapabilitiesConfig struct {
	Required []string `toml:"required"`
	Granted  []string `toml:"granted"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Timeout returns the HTTP request timeout, zero meaning none.
func (c APIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the delay between two polls of the stats endpoint.
func (c MigrationsConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Addr returns the host:port pair the status server listens on.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ApplyEnv overrides credentials and endpoint with RULEMIG_* environment variables when set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(envAPIKey); v != "" {
		c.API.APIKey = v
	}
	if v := os.Getenv(envBaseURL); v != "" {
		c.API.BaseURL = v
	}
}

// Validate reports configuration values the client cannot work with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is required", ErrInvalidConfig)
	}
	if c.Migrations.BatchSize <= 0 {
		return fmt.Errorf("%w: migrations.batch_size must be positive, got %d", ErrInvalidConfig, c.Migrations.BatchSize)
	}
	if c.Migrations.PollIntervalSeconds <= 0 {
		return fmt.Errorf("%w: migrations.poll_interval_seconds must be positive, got %d", ErrInvalidConfig, c.Migrations.PollIntervalSeconds)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
