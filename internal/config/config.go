// Package config handles sprintexport configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth modes for the Jira client.
const (
	AuthNone    = "none"
	AuthBasic   = "basic"
	AuthBearer  = "bearer"
	AuthConnect = "connect"
)

// Config is the root configuration.
type Config struct {
	Jira   JiraConfig   `yaml:"jira"`
	Export ExportConfig `yaml:"export"`
	Daemon DaemonConfig `yaml:"daemon"`

	path string
}

// JiraConfig defines the Jira site and how requests are made.
type JiraConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Auth       AuthConfig    `yaml:"auth"`
	MaxResults int           `yaml:"max_results"` // Result cap per read, 1..100
	Timeout    time.Duration `yaml:"timeout"`
	RateLimit  float64       `yaml:"rate_limit"` // Requests per second
	RateBurst  int           `yaml:"rate_burst"`
	MaxRetries int           `yaml:"max_retries"` // Retries for 429/5xx, 0 disables
}

// AuthConfig selects and configures Jira authentication.
type AuthConfig struct {
	Mode         string `yaml:"mode"` // none, basic, bearer, connect
	Email        string `yaml:"email"`
	APIToken     string `yaml:"api_token"`
	Token        string `yaml:"token"`
	AppKey       string `yaml:"app_key"`
	SharedSecret string `yaml:"shared_secret"`
}

// ExportConfig defines CSV output settings.
type ExportConfig struct {
	Quote string `yaml:"quote"` // all, text
}

// DaemonConfig defines sprintexportd settings.
type DaemonConfig struct {
	Socket    string `yaml:"socket"`
	HTTPAddr  string `yaml:"http_addr"` // Empty disables the HTTP listener
	LogFile   string `yaml:"log_file"`
	LogLevel  string `yaml:"log_level"`
	SentryDSN string `yaml:"sentry_dsn"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Jira: JiraConfig{
			Auth:       AuthConfig{Mode: AuthBasic},
			MaxResults: 100,
			Timeout:    30 * time.Second,
			RateLimit:  10,
			RateBurst:  5,
			MaxRetries: 0,
		},
		Export: ExportConfig{
			Quote: "all",
		},
		Daemon: DaemonConfig{
			Socket:   "/tmp/sprintexport.sock",
			HTTPAddr: "127.0.0.1:8787",
			LogLevel: "info",
		},
	}
}

// Load reads configuration from the default path or returns the defaults.
func Load() (*Config, error) {
	return LoadFile(DefaultConfigPath())
}

// LoadFile reads configuration from path. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.path = path
		cfg.expandEnvVars()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.path = path
	cfg.expandEnvVars()
	return cfg, nil
}

// Path is the file the config was loaded from, empty for an in-memory config.
func (c *Config) Path() string {
	return c.path
}

// Reload reads the file the config came from again, or the default path when
// it was built in memory.
func (c *Config) Reload() (*Config, error) {
	if c.path == "" {
		return Load()
	}
	return LoadFile(c.path)
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	if p := os.Getenv("SPRINTEXPORT_CONFIG"); p != "" {
		return p
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config/sprintexport/config.yaml")
}

// expandEnvVars resolves ${VAR} references in secrets and applies the
// JIRA_* environment overrides when the file leaves a value unset.
func (c *Config) expandEnvVars() {
	c.Jira.BaseURL = os.ExpandEnv(c.Jira.BaseURL)
	c.Jira.Auth.Email = os.ExpandEnv(c.Jira.Auth.Email)
	c.Jira.Auth.APIToken = os.ExpandEnv(c.Jira.Auth.APIToken)
	c.Jira.Auth.Token = os.ExpandEnv(c.Jira.Auth.Token)
	c.Jira.Auth.SharedSecret = os.ExpandEnv(c.Jira.Auth.SharedSecret)
	c.Daemon.SentryDSN = os.ExpandEnv(c.Daemon.SentryDSN)

	if c.Jira.BaseURL == "" {
		c.Jira.BaseURL = os.Getenv("JIRA_BASE_URL")
	}
	if c.Jira.Auth.Email == "" {
		c.Jira.Auth.Email = os.Getenv("JIRA_EMAIL")
	}
	if c.Jira.Auth.APIToken == "" {
		c.Jira.Auth.APIToken = os.Getenv("JIRA_API_TOKEN")
	}
}

// Validate checks the settings an export needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Jira.BaseURL) == "" {
		return fmt.Errorf("jira.base_url is required")
	}
	if c.Jira.MaxResults < 0 || c.Jira.MaxResults > 100 {
		return fmt.Errorf("jira.max_results must be between 1 and 100 (0 uses the default), got %d", c.Jira.MaxResults)
	}
	if c.Jira.MaxRetries < 0 {
		return fmt.Errorf("jira.max_retries cannot be negative")
	}

	a := c.Jira.Auth
	switch strings.ToLower(a.Mode) {
	case "", AuthBasic:
		if a.Email == "" || a.APIToken == "" {
			return fmt.Errorf("jira.auth: basic mode requires email and api_token")
		}
	case AuthBearer:
		if a.Token == "" {
			return fmt.Errorf("jira.auth: bearer mode requires token")
		}
	case AuthConnect:
		if a.AppKey == "" || a.SharedSecret == "" {
			return fmt.Errorf("jira.auth: connect mode requires app_key and shared_secret")
		}
	case AuthNone:
	default:
		return fmt.Errorf("jira.auth: invalid mode %q: must be one of none, basic, bearer, connect", a.Mode)
	}

	switch strings.ToLower(c.Export.Quote) {
	case "", "all", "text":
	default:
		return fmt.Errorf("export.quote: invalid value %q: must be one of all, text", c.Export.Quote)
	}
	return nil
}
