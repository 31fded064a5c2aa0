package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the client settings read from config.toml.
type Config struct {
	APIBase           string
	PageSize          int
	ManagerPageSize   int
	PollInterval      time.Duration
	DisarmTimeout     time.Duration
	RequestsPerSecond float64
	LogLevel          string
	LogFile           string
}

const (
	defaultConfigPath        = "~/.config/deckhand/config.toml"
	defaultAPIBase           = "http://127.0.0.1:8000"
	defaultPageSize          = 15
	defaultManagerPageSize   = 1000
	defaultPollInterval      = time.Second
	defaultDisarmTimeout     = 4 * time.Second
	defaultRequestsPerSecond = 10
	defaultLogLevel          = "info"
	defaultLogFile           = "~/.local/state/deckhand/deckhand.log"
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		APIBase:           defaultAPIBase,
		PageSize:          defaultPageSize,
		ManagerPageSize:   defaultManagerPageSize,
		PollInterval:      defaultPollInterval,
		DisarmTimeout:     defaultDisarmTimeout,
		RequestsPerSecond: defaultRequestsPerSecond,
		LogLevel:          defaultLogLevel,
		LogFile:           mustExpand(defaultLogFile),
	}
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return defaultConfigPath
}

// Load locates and parses the config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIBase           string   `toml:"api_base"`
		PageSize          int      `toml:"page_size"`
		ManagerPageSize   int      `toml:"manager_page_size"`
		PollInterval      string   `toml:"poll_interval"`
		DisarmTimeout     string   `toml:"disarm_timeout"`
		RequestsPerSecond *float64 `toml:"requests_per_second"`
		LogLevel          string   `toml:"log_level"`
		LogFile           string   `toml:"log_file"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIBase); v != "" {
		cfg.APIBase = v
	}
	if raw.PageSize > 0 {
		cfg.PageSize = raw.PageSize
	}
	if raw.ManagerPageSize > 0 {
		cfg.ManagerPageSize = raw.ManagerPageSize
	}
	if cfg.PollInterval, err = parseDuration("poll_interval", raw.PollInterval, cfg.PollInterval); err != nil {
		return Config{}, err
	}
	if cfg.DisarmTimeout, err = parseDuration("disarm_timeout", raw.DisarmTimeout, cfg.DisarmTimeout); err != nil {
		return Config{}, err
	}
	if raw.RequestsPerSecond != nil {
		if *raw.RequestsPerSecond < 0 {
			return Config{}, fmt.Errorf("parse config: requests_per_second must not be negative")
		}
		cfg.RequestsPerSecond = *raw.RequestsPerSecond
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		cfg.LogFile = mustExpand(v)
	}

	return cfg, nil
}

// ParseDuration parses a duration flag or config value.
func ParseDuration(value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", value)
	}
	return d, nil
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse config: %s: %w", field, err)
	}
	return d, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
