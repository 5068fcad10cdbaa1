package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// AppConfig is the client process configuration. Values come from the
// environment, optionally overlaid by a YAML file named in DUOCHESS_CONFIG.
type AppConfig struct {
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	// UserID is the stable opaque identity supplied by the auth provider.
	UserID string `yaml:"user_id"`

	// NotifyFunctionURL is the turn-notification endpoint; empty disables
	// notifications.
	NotifyFunctionURL string `yaml:"notify_function_url"`

	HistoryLimit int `yaml:"history_limit"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HistoryLimit: 50,
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.UserID = strings.TrimSpace(os.Getenv("USER_ID"))
	cfg.NotifyFunctionURL = strings.TrimSpace(os.Getenv("NOTIFY_FUNCTION_URL"))

	if v := strings.TrimSpace(os.Getenv("HISTORY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryLimit = n
		}
	}

	if path := strings.TrimSpace(os.Getenv("DUOCHESS_CONFIG")); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.UserID == "" {
		return nil, errors.New("USER_ID is required")
	}
	return cfg, nil
}

// overlayFile merges non-zero values from a YAML file over the config.
func (c *AppConfig) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var over AppConfig
	if err := yaml.Unmarshal(raw, &over); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if strings.TrimSpace(over.RedisURL) != "" {
		c.RedisURL = strings.TrimSpace(over.RedisURL)
	}
	if strings.TrimSpace(over.DatabaseURL) != "" {
		c.DatabaseURL = strings.TrimSpace(over.DatabaseURL)
	}
	if strings.TrimSpace(over.UserID) != "" {
		c.UserID = strings.TrimSpace(over.UserID)
	}
	if strings.TrimSpace(over.NotifyFunctionURL) != "" {
		c.NotifyFunctionURL = strings.TrimSpace(over.NotifyFunctionURL)
	}
	if over.HistoryLimit > 0 {
		c.HistoryLimit = over.HistoryLimit
	}
	return nil
}
