package main

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Zereker/framesock"
)

// EnvLogLevel overrides the configured log level.
const EnvLogLevel = "FRAMESOCK_LOG_LEVEL"

type config struct {
	Addr            string
	MaxMessageSize  int
	Workers         int
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        zerolog.Level
}

type fileConfig struct {
	Addr            string `toml:"addr"`
	MaxMessageSize  int    `toml:"max_message_size"`
	Workers         int    `toml:"workers"`
	PollInterval    string `toml:"poll_interval"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	LogLevel        string `toml:"log_level"`
}

func defaultConfig() config {
	return config{
		Addr:            "127.0.0.1:12345",
		MaxMessageSize:  framesock.DefaultMaxMessageSize,
		Workers:         4,
		PollInterval:    10 * time.Millisecond,
		ShutdownTimeout: 0,
		LogLevel:        zerolog.InfoLevel,
	}
}

// loadConfig reads path over the defaults. An empty path yields the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return config{}, errors.Wrap(err, "load echo config")
		}
		if err := applyFile(&cfg, raw, meta); err != nil {
			return config{}, err
		}
	}

	if lvl := strings.TrimSpace(os.Getenv(EnvLogLevel)); lvl != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(lvl))
		if err != nil {
			return config{}, errors.Wrapf(err, "parse %s", EnvLogLevel)
		}
		cfg.LogLevel = parsed
	}

	if err := validateConfig(cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *config, raw fileConfig, meta toml.MetaData) error {
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return errors.Wrap(err, "parse poll_interval")
		}
		cfg.PollInterval = d
	}
	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return errors.Wrap(err, "parse shutdown_timeout")
		}
		cfg.ShutdownTimeout = d
	}
	if meta.IsDefined("log_level") {
		lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw.LogLevel)))
		if err != nil {
			return errors.Wrap(err, "parse log_level")
		}
		cfg.LogLevel = lvl
	}
	return nil
}

func validateConfig(cfg config) error {
	if cfg.Addr == "" {
		return errors.New("addr is required")
	}
	if cfg.MaxMessageSize <= 0 {
		return errors.Errorf("max_message_size must be positive, got %d", cfg.MaxMessageSize)
	}
	if cfg.Workers <= 0 {
		return errors.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.PollInterval <= 0 {
		return errors.Errorf("poll_interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.ShutdownTimeout < 0 {
		return errors.Errorf("shutdown_timeout must not be negative, got %s", cfg.ShutdownTimeout)
	}
	return nil
}
