// Copyright 2021 The reqx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads client settings from a YAML or TOML file and
// from REQX_* environment variables, and builds a wired reqx.Client
// from them.
//
// Environment variables override file values, which override the
// values from Default.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of a client.
type Config struct {
	// BaseURL is the absolute URL relative request URLs are resolved
	// against, for example "https://admin.example.com/api".
	BaseURL string `yaml:"base_url" toml:"base_url" env:"REQX_BASE_URL"`

	// Timeout is the timeout of each request attempt.
	Timeout Duration `yaml:"timeout" toml:"timeout" env:"REQX_TIMEOUT"`

	// Headers are sent with every request that does not set them.
	Headers map[string]string `yaml:"headers" toml:"headers"`

	Retry RetryConfig `yaml:"retry" toml:"retry"`
	Auth  AuthConfig  `yaml:"auth" toml:"auth"`
	Log   LogConfig   `yaml:"log" toml:"log"`
}

// RetryConfig holds the retry settings. Retries are off when Times is
// zero.
type RetryConfig struct {
	Times       int      `yaml:"times" toml:"times" env:"REQX_RETRY_TIMES"`
	StatusCodes []int    `yaml:"status_codes" toml:"status_codes" env:"REQX_RETRY_STATUS_CODES"`
	Wait        Duration `yaml:"wait" toml:"wait" env:"REQX_RETRY_WAIT"`
	MaxWait     Duration `yaml:"max_wait" toml:"max_wait" env:"REQX_RETRY_MAX_WAIT"`
	// IdempotentOnly restricts retries to idempotent methods.
	IdempotentOnly bool `yaml:"idempotent_only" toml:"idempotent_only" env:"REQX_RETRY_IDEMPOTENT_ONLY"`
}

// AuthConfig holds the bearer token settings. At most one of Token and
// TokenFile may be set.
type AuthConfig struct {
	Token     string `yaml:"token" toml:"token" env:"REQX_TOKEN"`
	TokenFile string `yaml:"token_file" toml:"token_file" env:"REQX_TOKEN_FILE"`
	// TokenQueryParam carries the token of event streams.
	TokenQueryParam string `yaml:"token_query_param" toml:"token_query_param" env:"REQX_TOKEN_QUERY_PARAM"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level       string `yaml:"level" toml:"level" env:"REQX_LOG_LEVEL"`
	Development bool   `yaml:"development" toml:"development" env:"REQX_LOG_DEVELOPMENT"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Timeout: Duration(5 * time.Second),
		Retry: RetryConfig{
			StatusCodes:    []int{502, 503, 504},
			Wait:           Duration(100 * time.Millisecond),
			MaxWait:        Duration(2 * time.Second),
			IdempotentOnly: true,
		},
		Auth: AuthConfig{
			TokenQueryParam: "token",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load returns the default configuration overlaid with the file at
// path, if path is not empty, and then with the environment. The file
// type is chosen by extension: .yaml, .yml or .toml.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.FromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reqx/config: reading %s: %w", path, err)
		}
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("reqx/config: parsing %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("reqx/config: reading %s: %w", path, err)
			}
			return fmt.Errorf("reqx/config: parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("reqx/config: unsupported file type %q", ext)
	}
	return nil
}

// FromEnv overlays the REQX_* environment variables onto c. Variables
// which are not set leave c unchanged. List values are separated by
// semicolons, as in REQX_RETRY_STATUS_CODES="502;503".
func (c *Config) FromEnv() error {
	err := envdecode.Decode(c)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("reqx/config: environment: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("reqx/config: base_url: %w", err)
		}
		if !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("reqx/config: base_url %q is not an absolute URL", c.BaseURL)
		}
	}
	if c.Timeout < 0 {
		return errors.New("reqx/config: timeout must not be negative")
	}
	if c.Retry.Times < 0 {
		return errors.New("reqx/config: retry.times must not be negative")
	}
	if c.Retry.Times > 0 {
		if c.Retry.Wait <= 0 {
			return errors.New("reqx/config: retry.wait must be positive")
		}
		if c.Retry.MaxWait < c.Retry.Wait {
			return errors.New("reqx/config: retry.max_wait must be at least retry.wait")
		}
	}
	if c.Auth.Token != "" && c.Auth.TokenFile != "" {
		return errors.New("reqx/config: auth.token and auth.token_file are mutually exclusive")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("reqx/config: log.level: %w", err)
	}
	return nil
}

// NewLogger builds a zap logger from the log settings.
func (c *Config) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("reqx/config: log.level: %w", err)
	}
	zc.Level = level
	return zc.Build()
}

// A Duration is a time.Duration written as a string such as "1.5s" in
// files and environment variables.
type Duration time.Duration

// UnmarshalText parses a duration string. It serves TOML and the
// environment.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats d as a duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML parses a duration string node.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
