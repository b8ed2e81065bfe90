package config

import (
	"encoding/base64"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is the runtime configuration, loaded from environment variables.
type Config struct {
	DatabasePath   string `env:"LODGEKIT_DB" envDefault:"lodgekit.db" validate:"required"`
	PluginRoot     string `env:"LODGEKIT_PLUGIN_ROOT" envDefault:"plugins" validate:"required"`
	CapabilityFile string `env:"LODGEKIT_CAPABILITIES" envDefault:"capabilities.yaml" validate:"required"`
	// SettingsKey is the base64-encoded AES key for settings encryption.
	// Empty disables encrypted settings.
	SettingsKey string `env:"LODGEKIT_SETTINGS_KEY"`
	LogLevel    string `env:"LODGEKIT_LOG_LEVEL" envDefault:"info"`
	HumanLogs   bool   `env:"LODGEKIT_LOG_PRETTY" envDefault:"false"`
}

// Parse loads and validates configuration from the environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// SettingsKeyBytes decodes the configured settings key. Returns nil when no
// key is configured.
func (c Config) SettingsKeyBytes() ([]byte, error) {
	if c.SettingsKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.SettingsKey)
	if err != nil {
		return nil, fmt.Errorf("decode settings key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("settings key must be 16, 24 or 32 bytes, got %d", len(key))
	}
}
