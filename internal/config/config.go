// Package config loads railchat's application configuration: a TOML file
// with env-var overrides under the RAILCHAT_ prefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Backend BackendConfig
	Data    DataConfig
	Log     LogConfig
}

// BackendConfig points at the guardrails backend.
type BackendConfig struct {
	URL            string
	AgentProfile   string `mapstructure:"agent_profile"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DataConfig holds local persistence settings.
type DataConfig struct {
	Dir string
}

// LogConfig controls the file logger.
type LogConfig struct {
	Enabled bool
	Level   string
}

// Load reads configuration from file and env. Env var overrides use
// prefix RAILCHAT_; RAILCHAT_CONFIG points at an explicit config file.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.agent_profile", "default")
	v.SetDefault("backend.timeout_seconds", 0) // no client-side deadline; esc cancels
	v.SetDefault("data.dir", filepath.Join(os.Getenv("HOME"), ".local", "share", "railchat"))
	v.SetDefault("log.enabled", true)
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("RAILCHAT_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "railchat"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("RAILCHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
