// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package config loads plugctl settings from defaults, an optional YAML file
// and PLUGCTL_ environment variables, in increasing precedence.
package config

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	plugerr "github.com/sigil-dev/plugctl/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PLUGCTL_STORE_DIR.
const EnvPrefix = "PLUGCTL"

// Config is the top-level plugctl configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Registry RegistryConfig `mapstructure:"registry"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// StoreConfig locates the plugin store and its status backend.
type StoreConfig struct {
	Dir           string `mapstructure:"dir"`
	StatusBackend string `mapstructure:"status_backend"`
	// StatusPath overrides the backend's default location inside Dir.
	StatusPath string `mapstructure:"status_path"`
}

// RegistryConfig configures the npm-compatible catalog.
type RegistryConfig struct {
	URL     string        `mapstructure:"url"`
	Scope   string        `mapstructure:"scope"`
	Keyword string        `mapstructure:"keyword"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Token is a publish token, literal or a keyring://service/key reference.
	Token string `mapstructure:"token"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.dir", DefaultStoreDir())
	v.SetDefault("store.status_backend", "json")
	v.SetDefault("store.status_path", "")
	v.SetDefault("registry.url", "https://registry.npmjs.org")
	v.SetDefault("registry.scope", "@plugctl")
	v.SetDefault("registry.keyword", "plugctl-plugin")
	v.SetDefault("registry.timeout", 30*time.Second)
	v.SetDefault("registry.token", "")
	v.SetDefault("server.listen", "127.0.0.1:18790")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// SetupEnv maps PLUGCTL_SECTION_KEY variables onto section.key.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// DefaultStoreDir returns ~/.plugctl/plugins, or ./plugins when the home
// directory is unknown.
func DefaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "plugins"
	}
	return filepath.Join(home, ".plugctl", "plugins")
}

// Load reads configuration from path. With an empty path it looks for
// plugctl.yaml in the working directory, ~/.config/plugctl and /etc/plugctl
// and falls back to defaults when none exists.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, plugerr.Errorf(plugerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("plugctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "plugctl"))
		}
		v.AddConfigPath("/etc/plugctl")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, plugerr.Errorf(plugerr.CodeConfigParseInvalidFormat, "reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, plugerr.Errorf(plugerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, plugerr.Errorf(plugerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate checks the configuration for logical errors, collecting every
// issue rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateRegistry()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateStore() []error {
	var errs []error
	if strings.TrimSpace(c.Store.Dir) == "" {
		errs = append(errs, plugerr.Errorf(plugerr.CodeConfigValidateInvalidValue, "config: store.dir must not be empty"))
	}
	validBackends := map[string]bool{"json": true, "sqlite": true}
	if !validBackends[c.Store.StatusBackend] {
		errs = append(errs, plugerr.Errorf(plugerr.CodeConfigValidateInvalidValue,
			"config: store.status_backend must be one of [json, sqlite], got %q", c.Store.StatusBackend))
	}
	return errs
}

func (c *Config) validateRegistry() []error {
	var errs []error
	u, err := url.Parse(c.Registry.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, plugerr.Errorf(plugerr.CodeConfigValidateInvalidValue,
			"config: registry.url must be an absolute http(s) URL, got %q", c.Registry.URL))
	}
	if c.Registry.Scope != "" && (!strings.HasPrefix(c.Registry.Scope, "@") || strings.Contains(c.Registry.Scope, "/")) {
		errs = append(errs, plugerr.Errorf(plugerr.CodeConfigValidateInvalidValue,
			"config: registry.scope must look like @name, got %q", c.Registry.Scope))
	}
	if c.Registry.Timeout <= 0 {
		errs = append(errs, plugerr.Errorf(plugerr.CodeConfigValidateInvalidValue,
			"config: registry.timeout must be greater than 0, got %s", c.Registry.Timeout))
	}
	return errs
}

func (c *Config) validateServer() []error {
	if c.Server.Listen == "" {
		return []error{plugerr.Errorf(plugerr.CodeConfigValidateInvalidValue, "config: server.listen must not be empty")}
	}
	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return []error{plugerr.Errorf(plugerr.CodeConfigValidateInvalidValue,
			"config: server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err)}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return []error{plugerr.Errorf(plugerr.CodeConfigValidateInvalidValue,
			"config: server.listen port must be a number between 0 and 65535, got %q", portStr)}
	}
	return nil
}

func (c *Config) validateLogging() []error {
	var errs []error
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, plugerr.Errorf(plugerr.CodeConfigValidateInvalidValue,
			"config: logging.format must be one of [text, json], got %q", c.Logging.Format))
	}
	return errs
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, plugerr.Errorf(plugerr.CodeConfigValidateInvalidValue,
			"config: logging.level must be one of [debug, info, warn, error], got %q", s)
	}
	return level, nil
}

// NewLogger builds the slog logger described by c, writing to w.
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
