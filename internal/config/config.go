// Package config loads kiplm settings from kiplm.toml, KIPLM_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the working directory.
const FileName = "kiplm.toml"

// EnvPrefix prefixes every environment override, e.g. KIPLM_SERVER_PORT.
const EnvPrefix = "KIPLM"

// ServerConfig holds API server settings
type ServerConfig struct {
	Address     string `mapstructure:"address" toml:"address" validate:"required"`
	Port        int    `mapstructure:"port" toml:"port" validate:"min=1,max=65535"`
	Prefix      string `mapstructure:"prefix" toml:"prefix" validate:"required,startswith=/"`
	FrontendDir string `mapstructure:"frontend_dir" toml:"frontend_dir"`
	HandleCORS  bool   `mapstructure:"handle_cors" toml:"handle_cors"` // Whether to answer CORS preflight requests
}

// Addr is the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// LogConfig holds logging settings
type LogConfig struct {
	Level      string `mapstructure:"level" toml:"level" validate:"oneof=debug info warn error"`
	File       string `mapstructure:"file" toml:"file"` // Optional JSON log file, rotated
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days" validate:"min=0"`
}

// Config holds all kiplm settings
type Config struct {
	DBDir          string `mapstructure:"db_dir" toml:"db_dir" validate:"required"`                   // Directory of <CAT>.csv tables
	MirrorPath     string `mapstructure:"mirror_path" toml:"mirror_path" validate:"required"`         // SQLite mirror file
	DescriptorPath string `mapstructure:"descriptor_path" toml:"descriptor_path" validate:"required"` // .kicad_dbl file
	LibraryName    string `mapstructure:"library_name" toml:"library_name" validate:"required"`

	Server ServerConfig `mapstructure:"server" toml:"server"`
	Log    LogConfig    `mapstructure:"log" toml:"log"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		DBDir:          "db",
		MirrorPath:     "kicad_libs/parts.sqlite",
		DescriptorPath: "kicad_libs/KiPLM.kicad_dbl",
		LibraryName:    "KiPLM components database",
		Server: ServerConfig{
			Address: "localhost",
			Port:    5000,
			Prefix:  "/monkey-api",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// setDefaults registers every default with v so env overrides of keys that
// are absent from the file still apply.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("db_dir", d.DBDir)
	v.SetDefault("mirror_path", d.MirrorPath)
	v.SetDefault("descriptor_path", d.DescriptorPath)
	v.SetDefault("library_name", d.LibraryName)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.prefix", d.Server.Prefix)
	v.SetDefault("server.frontend_dir", d.Server.FrontendDir)
	v.SetDefault("server.handle_cors", d.Server.HandleCORS)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Load reads configuration into v and decodes it.
//
// If path is empty, kiplm.toml is looked up in the working directory and a
// missing file is not an error. An explicit path must exist. Flags bound to v
// by the caller take precedence over both file and environment.
func Load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, ".toml"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Encode renders cfg as TOML.
func Encode(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("error encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path. An existing file is
// only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	data, err := Encode(Default())
	if err != nil {
		return err
	}
	// #nosec G306 - config file is not secret
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
