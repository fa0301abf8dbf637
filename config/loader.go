package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/a2y-d5l/pyfreeze/engine"
	"github.com/a2y-d5l/pyfreeze/logger"
)

// Loader resolves a Config. Flags bound to its viper instance take
// precedence over environment variables, which take precedence over the file.
type Loader struct {
	v          *viper.Viper
	configFile string
	configHome string
	dataHome   string
	homeDir    string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigFile uses path instead of searching for a config file.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) {
		l.configFile = path
	}
}

// WithConfigHome overrides $XDG_CONFIG_HOME.
func WithConfigHome(dir string) LoaderOption {
	return func(l *Loader) {
		l.configHome = dir
	}
}

// WithDataHome overrides $XDG_DATA_HOME.
func WithDataHome(dir string) LoaderOption {
	return func(l *Loader) {
		l.dataHome = dir
	}
}

// WithHomeDir overrides the user's home directory.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = dir
	}
}

// NewLoader creates a Loader around v.
func NewLoader(v *viper.Viper, opts ...LoaderOption) *Loader {
	l := &Loader{
		v:          v,
		configHome: xdg.ConfigHome,
		dataHome:   xdg.DataHome,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.homeDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			l.homeDir = home
		}
	}
	return l
}

// Load is a shorthand for NewLoader(viper.New(), opts...).Load().
func Load(opts ...LoaderOption) (*Config, error) {
	return NewLoader(viper.New(), opts...).Load()
}

// Load reads the configuration file (if any), applies defaults and
// environment overrides, and returns a validated Config.
//
// Search order when no file is given:
//  1. $XDG_CONFIG_HOME/pyfreeze/config.yaml
//  2. $HOME/.pyfreeze.yaml
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()
	l.configureViper()

	if l.v.ConfigFileUsed() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) || l.configFile != "" {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ConfigFileUsed = l.v.ConfigFileUsed()

	if err := logger.ValidateFormat(cfg.LogFormat); err != nil {
		return nil, err
	}
	if _, err := engine.LookupEncoding(cfg.OutputEncoding); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("debug", false)
	l.v.SetDefault("log_format", logger.FormatText)
	l.v.SetDefault("log_file", "")
	l.v.SetDefault("conda", "conda")
	l.v.SetDefault("shutdown_timeout", 5*time.Second)
	l.v.SetDefault("output_encoding", "utf-8")
	l.v.SetDefault("history_file", filepath.Join(l.dataHome, AppSlug, "history.db"))
	l.v.SetDefault("auto_install", false)
	l.v.SetDefault("console.full_screen", false)
	l.v.SetDefault("console.timestamps", false)
	l.v.SetDefault("console.summary", true)
	l.v.SetDefault("console.prefix", "")
	l.v.SetDefault("console.max_lines", 1000)
	l.v.SetDefault("console.color", true)
}

func (l *Loader) configureViper() {
	l.v.SetConfigType("yaml")
	l.v.SetEnvPrefix(strings.ToUpper(AppSlug))
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
		return
	}
	candidates := []string{filepath.Join(l.configHome, AppSlug, "config.yaml")}
	if l.homeDir != "" {
		candidates = append(candidates, filepath.Join(l.homeDir, "."+AppSlug+".yaml"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			l.v.SetConfigFile(c)
			return
		}
	}
}
