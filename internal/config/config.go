// Package config provides configuration management for devsync.
//
// Configuration is loaded from three sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (DEVSYNC_ prefix)
//  3. Config file (.devsync.yaml)
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// FileName is the base name of the auto-discovered config file.
const FileName = ".devsync.yaml"

// Config represents the global configuration for devsync.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet"`

	// Project holds the source/build layout shared by build and dev.
	Project `mapstructure:",squash"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load(), never read from the config itself.
	ConfigFile string `mapstructure:"-" json:"-"`
}

// Project describes where sources live, where artifacts go, and how the
// dev server rebuilds and serves them.
type Project struct {
	// Src is the source root watched by the dev server.
	Src string `mapstructure:"src" json:"src" yaml:"src"`

	// Entry is the bundler entry point.
	Entry string `mapstructure:"entry" json:"entry" yaml:"entry"`

	// BuildDir is the build output root served by the dev server.
	BuildDir string `mapstructure:"build-dir" json:"buildDir" yaml:"build-dir"`

	// Command is the shell command the dev server runs to rebuild.
	Command string `mapstructure:"command" json:"command" yaml:"command"`

	// Addr is the dev server listen address.
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr"`

	// Open launches the system browser once the dev server is up.
	Open bool `mapstructure:"open" json:"open" yaml:"open"`

	// Debounce coalesces bursts of source events. Zero disables it.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce" yaml:"debounce"`

	// JSGlobs match built scripts relative to BuildDir.
	JSGlobs []string `mapstructure:"js-globs" json:"jsGlobs" yaml:"js-globs"`

	// CSSGlobs match built stylesheets relative to BuildDir.
	CSSGlobs []string `mapstructure:"css-globs" json:"cssGlobs" yaml:"css-globs"`

	// Elm enables the Elm compiler plugin for *.elm imports.
	Elm bool `mapstructure:"elm" json:"elm" yaml:"elm"`
}

// DefaultProject returns the conventional ./src -> ./build layout.
func DefaultProject() Project {
	return Project{
		Src:      "./src",
		Entry:    "./src/index.js",
		BuildDir: "./build",
		Command:  "bin/build.sh",
		Addr:     "localhost:3000",
		Open:     false,
		Debounce: 0,
		JSGlobs:  []string{"static/js/*.js"},
		CSSGlobs: []string{"static/css/*.css"},
		Elm:      false,
	}
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:  LogLevelInfo,
		LogFormat: LogFormatText,
		NoColor:   false,
		Quiet:     false,
		Project:   DefaultProject(),
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	return c.Project.Validate()
}

// Validate checks the project layout.
func (p *Project) Validate() error {
	var errs []error

	if p.Src == "" {
		errs = append(errs, errors.New("src must not be empty"))
	}

	if p.Entry == "" {
		errs = append(errs, errors.New("entry must not be empty"))
	}

	if p.BuildDir == "" {
		errs = append(errs, errors.New("build-dir must not be empty"))
	}

	if p.Debounce < 0 {
		errs = append(errs, fmt.Errorf("invalid debounce %s: must not be negative", p.Debounce))
	}

	return errors.Join(errs...)
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", LogLevelInfo)
	v.SetDefault("log-format", LogFormatText)
	v.SetDefault("no-color", false)
	v.SetDefault("quiet", false)

	p := DefaultProject()
	v.SetDefault("src", p.Src)
	v.SetDefault("entry", p.Entry)
	v.SetDefault("build-dir", p.BuildDir)
	v.SetDefault("command", p.Command)
	v.SetDefault("addr", p.Addr)
	v.SetDefault("open", p.Open)
	v.SetDefault("debounce", p.Debounce)
	v.SetDefault("js-globs", p.JSGlobs)
	v.SetDefault("css-globs", p.CSSGlobs)
	v.SetDefault("elm", p.Elm)
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("DEVSYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "devsync"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
