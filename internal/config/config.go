// Package config loads the connection tunables the demo CLI hands to
// wsconn.NewConnection, following the donor's internal/config/config.go
// wiring (godotenv + viper, env-prefixed, defaults-then-validate) but
// adapted to this module's Options (spec.md §6) instead of the donor's
// server/database/plugin configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lumenmarkets/streamconn/pkg/wsconn"
)

// Config is the top-level configuration for the demo binary: where to
// dial, and the Options the core reconnect/dispatch machinery reads.
type Config struct {
	Connection ConnectionConfig `mapstructure:"connection"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ConnectionConfig carries both the transport dial settings and the
// wsconn.Options fields, flattened for env-var ergonomics
// (STREAMCONN_CONNECTION_RECONNECT_INTERVAL, etc.).
type ConnectionConfig struct {
	URL                          string        `mapstructure:"url"`
	ConnectTimeout               time.Duration `mapstructure:"connect_timeout"`
	SocketNoDataTimeout          time.Duration `mapstructure:"socket_no_data_timeout"`
	AutoReconnect                bool          `mapstructure:"auto_reconnect"`
	ReconnectInterval            time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectTries            int           `mapstructure:"max_reconnect_tries"`
	MaxResubscribeTries          int           `mapstructure:"max_resubscribe_tries"`
	MaxConcurrentResubscriptions int           `mapstructure:"max_concurrent_resubscriptions"`
	OutputOriginalData           bool          `mapstructure:"output_original_data"`
	ContinueOnQueryResponse      bool          `mapstructure:"continue_on_query_response"`
	UnhandledMessageExpected     bool          `mapstructure:"unhandled_message_expected"`
	RateLimitCapacity            int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefill              time.Duration `mapstructure:"rate_limit_refill"`
}

// LoggingConfig represents logging configuration, unchanged from the
// donor's internal/config/config.go.
type LoggingConfig struct {
	Level      string `mapstructure:"level"` // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, console
	OutputPath string `mapstructure:"output_path"`
}

// LoadConfig loads configuration from a .env file (if present) and the
// environment, following the donor's LoadConfig exactly: godotenv.Load,
// viper defaults, STREAMCONN_-prefixed env vars with "." replaced by
// "_", Unmarshal, then Validate.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STREAMCONN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	defaults := wsconn.DefaultOptions()

	v.SetDefault("connection.url", "")
	v.SetDefault("connection.connect_timeout", 30*time.Second)
	v.SetDefault("connection.socket_no_data_timeout", defaults.SocketNoDataTimeout)
	v.SetDefault("connection.auto_reconnect", defaults.AutoReconnect)
	v.SetDefault("connection.reconnect_interval", defaults.ReconnectInterval)
	v.SetDefault("connection.max_reconnect_tries", 0)
	v.SetDefault("connection.max_resubscribe_tries", 0)
	v.SetDefault("connection.max_concurrent_resubscriptions", defaults.MaxConcurrentResubscriptions)
	v.SetDefault("connection.output_original_data", defaults.OutputOriginalData)
	v.SetDefault("connection.continue_on_query_response", defaults.ContinueOnQueryResponse)
	v.SetDefault("connection.unhandled_message_expected", defaults.UnhandledMessageExpected)
	v.SetDefault("connection.rate_limit_capacity", defaults.RateLimitCapacity)
	v.SetDefault("connection.rate_limit_refill", defaults.RateLimitRefill)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output_path", "stderr")
}

// validateConfig checks everything except URL, which callers may still
// supply after LoadConfig returns (e.g. a CLI flag); callers that don't
// offer such an override should check Connection.URL themselves.
func validateConfig(config *Config) error {
	if config.Connection.ReconnectInterval <= 0 {
		return fmt.Errorf("connection.reconnect_interval must be positive")
	}
	if config.Connection.MaxConcurrentResubscriptions <= 0 {
		return fmt.Errorf("connection.max_concurrent_resubscriptions must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[config.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", config.Logging.Level)
	}

	return nil
}

// ToOptions projects the loaded connection config into wsconn.Options,
// filling anything left unset via ApplyDefaults.
func (c *ConnectionConfig) ToOptions() wsconn.Options {
	opts := wsconn.Options{
		SocketNoDataTimeout:          c.SocketNoDataTimeout,
		AutoReconnect:                c.AutoReconnect,
		ReconnectInterval:            c.ReconnectInterval,
		MaxConcurrentResubscriptions: c.MaxConcurrentResubscriptions,
		OutputOriginalData:           c.OutputOriginalData,
		ContinueOnQueryResponse:      c.ContinueOnQueryResponse,
		UnhandledMessageExpected:     c.UnhandledMessageExpected,
		RateLimitCapacity:            c.RateLimitCapacity,
		RateLimitRefill:              c.RateLimitRefill,
	}
	if c.MaxReconnectTries > 0 {
		opts.MaxReconnectTries = c.MaxReconnectTries
		opts.MaxReconnectTriesSet = true
	}
	if c.MaxResubscribeTries > 0 {
		opts.MaxResubscribeTries = c.MaxResubscribeTries
		opts.MaxResubscribeTriesSet = true
	}
	opts.ApplyDefaults()
	return opts
}
