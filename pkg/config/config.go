package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config - root configuration of the lsmview server
type Config struct {
	Logger   LoggerConfig   `yaml:"logger"`
	Server   ServerConfig   `yaml:"http-server"`
	Data     DataConfig     `yaml:"data"`
	Playback PlaybackConfig `yaml:"playback"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// DataConfig points at the manifest dump opened as the default session.
type DataConfig struct {
	Path   string `yaml:"path"`
	Strict bool   `yaml:"strict"`
}

type PlaybackConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Increment int           `yaml:"increment"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Data: DataConfig{
			Path: "./data/edits.json",
		},
		Playback: PlaybackConfig{
			Interval:  100 * time.Millisecond,
			Increment: 1,
		},
	}
}

// Load reads the YAML config at path on top of Default. A missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, err := c.Logger.SlogLevel(); err != nil {
		return err
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: http-server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Playback.Interval <= 0 {
		return fmt.Errorf("%w: playback.interval must be positive", ErrInvalidConfig)
	}
	if c.Playback.Increment == 0 {
		return fmt.Errorf("%w: playback.increment must not be zero", ErrInvalidConfig)
	}
	return nil
}

// SlogLevel parses Level (DEBUG, INFO, WARN, ERROR, any case).
func (c LoggerConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToUpper(c.Level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: logger.level %q", ErrInvalidConfig, c.Level)
	}
}
