package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"

	AuthModePassword    = "password"
	AuthModeInteractive = "interactive"
)

type Config struct {
	Version        string    `yaml:"version"`
	CurrentContext string    `yaml:"current-context,omitempty"`
	Contexts       []Context `yaml:"contexts,omitempty"`
	Settings       Settings  `yaml:"settings,omitempty"`
}

// Settings durations are Go duration strings such as "10s".
type Settings struct {
	OutputFormat    string `yaml:"output-format,omitempty"`
	Timeout         string `yaml:"timeout,omitempty"`
	CacheDir        string `yaml:"cache-dir,omitempty"`
	CallbackTimeout string `yaml:"callback-timeout,omitempty"`
	// RateLimit is the maximum number of API requests per second; zero
	// means unlimited.
	RateLimit float64 `yaml:"rate-limit,omitempty"`
}

type Context struct {
	Name                  string `yaml:"name"`
	Server                string `yaml:"server"`
	Email                 string `yaml:"email,omitempty"`
	AuthMode              string `yaml:"auth-mode,omitempty"`
	RedirectHost          string `yaml:"redirect-host,omitempty"`
	RedirectPort          int    `yaml:"redirect-port,omitempty"`
	CAFile                string `yaml:"ca-file,omitempty"`
	InsecureSkipTLSVerify bool   `yaml:"insecure-skip-tls-verify,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Settings: Settings{
			OutputFormat:    "json",
			Timeout:         "10s",
			CallbackTimeout: "60s",
		},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) FindContext(name string) (*Context, error) {
	for i := range c.Contexts {
		if c.Contexts[i].Name == name {
			return &c.Contexts[i], nil
		}
	}
	return nil, fmt.Errorf("context not found: %s", name)
}

func (c *Config) CurrentContextOrDefault() string {
	if c.CurrentContext != "" {
		return c.CurrentContext
	}
	if len(c.Contexts) > 0 {
		return c.Contexts[0].Name
	}
	return ""
}

// Interactive reports whether the context asks for browser login.
func (ctx *Context) Interactive() bool {
	return ctx != nil && ctx.AuthMode == AuthModeInteractive
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	seen := map[string]bool{}
	for _, ctx := range c.Contexts {
		if strings.TrimSpace(ctx.Name) == "" {
			return errors.New("context name cannot be empty")
		}
		if seen[ctx.Name] {
			return fmt.Errorf("context %s defined twice", ctx.Name)
		}
		seen[ctx.Name] = true
		if strings.TrimSpace(ctx.Server) == "" {
			return fmt.Errorf("context %s server is required", ctx.Name)
		}
		switch ctx.AuthMode {
		case "", AuthModePassword, AuthModeInteractive:
		default:
			return fmt.Errorf("context %s: unknown auth-mode %q", ctx.Name, ctx.AuthMode)
		}
		if ctx.RedirectPort < 0 || ctx.RedirectPort > 65535 {
			return fmt.Errorf("context %s: redirect-port %d out of range", ctx.Name, ctx.RedirectPort)
		}
	}
	if c.Settings.RateLimit < 0 {
		return fmt.Errorf("invalid rate-limit %v: must not be negative", c.Settings.RateLimit)
	}
	if _, err := ParseDuration("timeout", c.Settings.Timeout, 0); err != nil {
		return err
	}
	if _, err := ParseDuration("callback-timeout", c.Settings.CallbackTimeout, 0); err != nil {
		return err
	}
	return nil
}

// ParseDuration parses a settings value, returning fallback when it is empty.
func ParseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", field, value)
	}
	return d, nil
}
