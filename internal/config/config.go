// Package config loads duo's runtime configuration.
//
// Configuration is resolved once at process startup and handed to each
// component as an explicit value. Sources, lowest precedence first:
//
//   - built-in defaults (see Default)
//   - a config file (duo.toml, duo.yaml or duo.json) found via --config,
//     ./.duo/ or $HOME/.config/duo/
//   - environment variables prefixed with DUO_ (DUO_DATABASE_DSN, ...)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Supported database drivers.
const (
	DriverSQLite    = "sqlite"
	DriverSQLServer = "sqlserver"
	DriverPostgres  = "postgres"
	DriverMySQL     = "mysql"
)

// Config is the root configuration value.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database" yaml:"database"`
	Log      LogConfig      `mapstructure:"log" toml:"log" yaml:"log"`
	Server   ServerConfig   `mapstructure:"server" toml:"server" yaml:"server"`
}

// DatabaseConfig selects the backing store.
type DatabaseConfig struct {
	// Driver is one of sqlite, sqlserver, postgres, mysql.
	Driver string `mapstructure:"driver" toml:"driver" yaml:"driver" validate:"required,oneof=sqlite sqlserver postgres mysql"`

	// DSN is the driver-specific connection string. For sqlite this is a
	// file path.
	DSN string `mapstructure:"dsn" toml:"dsn" yaml:"dsn" validate:"required"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level" toml:"level" yaml:"level" validate:"oneof=debug info warn error"`

	// File enables a rotated JSON log file in addition to stderr.
	File       string `mapstructure:"file" toml:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days" yaml:"max_age_days" validate:"gte=0"`
}

// ServerConfig configures `duo serve`.
type ServerConfig struct {
	Port int `mapstructure:"port" toml:"port" yaml:"port" validate:"gte=0,lte=65535"`
}

// Default returns the built-in configuration: a local sqlite file under
// .duo/ and a dashboard on port 8080.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    filepath.Join(".duo", "duo.db"),
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// Load resolves the configuration. An empty path searches the default
// locations; a missing file there is not an error. An explicit path that
// cannot be read is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("DUO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("duo")
		v.AddConfigPath(".duo")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "duo"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("server.port", d.Server.Port)
}
