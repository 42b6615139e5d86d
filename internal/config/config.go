// Package config loads application configuration from file, environment,
// and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ProviderConfig selects a model and credentials for one provider.
type ProviderConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

// StorageConfig controls session persistence.
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Config is the full application configuration. The provider-facing subset
// (provider, model, key, token limit) is what the hot-swap queue defers while
// a stream is active.
type Config struct {
	Provider        string         `mapstructure:"provider" yaml:"provider"`
	Anthropic       ProviderConfig `mapstructure:"anthropic" yaml:"anthropic"`
	OpenAI          ProviderConfig `mapstructure:"openai" yaml:"openai"`
	Follow          bool           `mapstructure:"follow" yaml:"follow"`
	MaxOutputTokens int            `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	Storage         StorageConfig  `mapstructure:"storage" yaml:"storage"`
}

// Active returns the configured provider's name, key, and model. An
// unrecognized provider name passes through unchanged so provider
// construction rejects it instead of silently running a different model.
func (c Config) Active() (name, apiKey, model string) {
	switch c.Provider {
	case "openai":
		return c.Provider, c.OpenAI.APIKey, c.OpenAI.Model
	case "", "anthropic":
		return "anthropic", c.Anthropic.APIKey, c.Anthropic.Model
	default:
		return c.Provider, "", ""
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "anthropic")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("follow", true)
	v.SetDefault("max_output_tokens", 8192)
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.path", "")
}

// Load reads configuration from the config file (if present) and the
// environment. Environment variables use the SHEETWISE_ prefix with
// underscores for nesting, e.g. SHEETWISE_ANTHROPIC_API_KEY.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "sheetwise"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("SHEETWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
