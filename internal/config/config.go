// Package config loads mdindex settings from a config file, the environment
// and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables, e.g. MDINDEX_LOG_LEVEL.
const EnvPrefix = "MDINDEX"

// Config stores all configuration of the application.
type Config struct {
	Catalog string        `mapstructure:"catalog"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type MetricsConfig struct {
	// Textfile is written after every command when set.
	Textfile string `mapstructure:"textfile"`
}

type SQLiteConfig struct {
	Synchronous string `mapstructure:"synchronous"`
}

// New returns a viper instance with defaults and environment lookup set up.
// Flags may be bound to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("catalog", "mdindex.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("sqlite.synchronous", "NORMAL")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configPath, or mdindex.yaml from the working directory or the
// user config directory when configPath is empty. A missing default config
// file is not an error.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("mdindex")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "mdindex"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	switch strings.ToUpper(cfg.SQLite.Synchronous) {
	case "OFF", "NORMAL", "FULL", "EXTRA":
		cfg.SQLite.Synchronous = strings.ToUpper(cfg.SQLite.Synchronous)
	default:
		return nil, fmt.Errorf("sqlite.synchronous: unsupported mode %q", cfg.SQLite.Synchronous)
	}
	return &cfg, nil
}
