// Package config loads the application configuration from a YAML file,
// PYFREEZE_* environment variables and command-line flags.
package config

import (
	"fmt"
	"time"
)

// AppSlug names the config directory, the env prefix and the data directory.
const AppSlug = "pyfreeze"

// Config is the resolved application configuration.
type Config struct {
	// Debug enables debug logging with source locations.
	Debug bool `mapstructure:"debug"`

	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"log_format"`

	// LogFile, when set, receives a copy of the application log.
	LogFile string `mapstructure:"log_file"`

	// Conda is the environment-manager executable.
	Conda string `mapstructure:"conda"`

	// ShutdownTimeout bounds how long a cancelled build may take to exit
	// before it is killed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// OutputEncoding is the WHATWG label of the packaging tool's output
	// encoding, e.g. "utf-8" or "gbk".
	OutputEncoding string `mapstructure:"output_encoding"`

	// HistoryFile is the bbolt database of finished builds.
	HistoryFile string `mapstructure:"history_file"`

	// AutoInstall installs PyInstaller without asking when it is missing.
	AutoInstall bool `mapstructure:"auto_install"`

	Console Console `mapstructure:"console"`

	// ConfigFileUsed is the file the configuration was read from, if any.
	ConfigFileUsed string `mapstructure:"-"`
}

// Console configures the build console.
type Console struct {
	FullScreen bool   `mapstructure:"full_screen"`
	Timestamps bool   `mapstructure:"timestamps"`
	Summary    bool   `mapstructure:"summary"`
	Prefix     string `mapstructure:"prefix"`
	MaxLines   int    `mapstructure:"max_lines"`
	Color      bool   `mapstructure:"color"`
}

func (c *Config) validate() error {
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.Console.MaxLines < 0 {
		return fmt.Errorf("console.max_lines must not be negative, got %d", c.Console.MaxLines)
	}
	if c.Conda == "" {
		return fmt.Errorf("conda must not be empty")
	}
	return nil
}
