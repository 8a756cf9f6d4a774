// Package config provides YAML-based configuration loading for the calc
// servers, with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root application configuration shared by the UDP and TCP
// server binaries.
type Config struct {
	// UDPAddr is the bind address for the UDP engine ("host:port").
	UDPAddr string `mapstructure:"udp_addr"`
	// TCPAddr is the listen address for the TCP engine ("host:port").
	TCPAddr string `mapstructure:"tcp_addr"`

	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
}

// ServerConfig holds the timing constants and operator toggles common to
// both engines. Durations are expressed in milliseconds so they round-trip
// cleanly through YAML and environment variables.
type ServerConfig struct {
	TaskLifetimeMS       int   `mapstructure:"task_lifetime_ms"`
	FinalizeGraceMS      int   `mapstructure:"finalize_grace_ms"`
	SelectTickMS         int   `mapstructure:"select_tick_ms"`
	OpTimeoutMS          int   `mapstructure:"op_timeout_ms"`
	RetransmitScheduleMS []int `mapstructure:"retransmit_schedule_ms"`
	MaxSessions          int   `mapstructure:"max_sessions"`
	RetransmitRatePerSec int64 `mapstructure:"retransmit_rate_per_sec"`

	// Text enables the text dialect on both engines (the UDP text handshake
	// and the TCP text offer); binary is always available.
	Text bool `mapstructure:"text"`
	// Quiet suppresses the once-per-second diagnostic counter line.
	Quiet bool `mapstructure:"quiet"`
	// ExitOnComplete stops the server after TargetComplete sessions have
	// finalized, for scripted test runs. TargetComplete is also overridable
	// by the TARGET_COMPLETE environment variable (unprefixed, matching the
	// reference test harness's own env var name).
	ExitOnComplete bool `mapstructure:"exit_on_complete"`
	TargetComplete int  `mapstructure:"target_complete"`

	Debug bool `mapstructure:"debug"`
	Trace bool `mapstructure:"trace"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with spec.md §4.2/§4.3's default
// timing parameters.
func Default() *Config {
	return &Config{
		UDPAddr: "localhost:9000",
		TCPAddr: "localhost:9001",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/calcserver.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Server: ServerConfig{
			TaskLifetimeMS:  10_000,
			FinalizeGraceMS: 2_000,
			SelectTickMS:    10,
			OpTimeoutMS:     5_000,
			RetransmitScheduleMS: []int{
				120, 200, 300, 400, 500, 650, 800, 1000, 1200, 1500,
			},
			MaxSessions:          500,
			RetransmitRatePerSec: 200,
			Text:                 true,
		},
	}
}

// Load reads configuration from the provided path (if non-empty), otherwise
// it searches common locations and supports environment overrides.
// Environment variables use the prefix CALC and `.`/`-` are replaced with
// `_`. Example: CALC_LOG_LEVEL=debug. The single unprefixed variable
// TARGET_COMPLETE also overrides server.target_complete, matching the
// reference test harness.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CALC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("udp_addr", cfg.UDPAddr)
	v.SetDefault("tcp_addr", cfg.TCPAddr)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("server.task_lifetime_ms", cfg.Server.TaskLifetimeMS)
	v.SetDefault("server.finalize_grace_ms", cfg.Server.FinalizeGraceMS)
	v.SetDefault("server.select_tick_ms", cfg.Server.SelectTickMS)
	v.SetDefault("server.op_timeout_ms", cfg.Server.OpTimeoutMS)
	v.SetDefault("server.retransmit_schedule_ms", cfg.Server.RetransmitScheduleMS)
	v.SetDefault("server.max_sessions", cfg.Server.MaxSessions)
	v.SetDefault("server.retransmit_rate_per_sec", cfg.Server.RetransmitRatePerSec)
	v.SetDefault("server.text", cfg.Server.Text)
	v.SetDefault("server.quiet", cfg.Server.Quiet)
	v.SetDefault("server.exit_on_complete", cfg.Server.ExitOnComplete)
	v.SetDefault("server.target_complete", cfg.Server.TargetComplete)
	v.SetDefault("server.debug", cfg.Server.Debug)
	v.SetDefault("server.trace", cfg.Server.Trace)

	if path == "" {
		if envPath := os.Getenv("CALC_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("calcserver")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".calcserver"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if raw := os.Getenv("TARGET_COMPLETE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("TARGET_COMPLETE: %w", err)
		}
		cfg.Server.TargetComplete = n
		cfg.Server.ExitOnComplete = true
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.Server.TaskLifetimeMS <= 0 {
		return fmt.Errorf("server.task_lifetime_ms must be positive")
	}
	if c.Server.FinalizeGraceMS <= 0 {
		return fmt.Errorf("server.finalize_grace_ms must be positive")
	}
	if c.Server.SelectTickMS <= 0 {
		return fmt.Errorf("server.select_tick_ms must be positive")
	}
	if c.Server.OpTimeoutMS <= 0 {
		return fmt.Errorf("server.op_timeout_ms must be positive")
	}
	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("server.max_sessions must be positive")
	}
	if len(c.Server.RetransmitScheduleMS) == 0 {
		return fmt.Errorf("server.retransmit_schedule_ms must not be empty")
	}
	return nil
}

// MustLoad is a convenience that panics on error. Reserved for startup;
// request paths never panic.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
