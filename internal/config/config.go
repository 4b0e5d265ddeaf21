// Package config handles Tick configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/tick/config.yaml, /etc/tick/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tick", "config.yaml"))
	}

	paths = append(paths, "/etc/tick/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Tick configuration.
type Config struct {
	Listen    ListenConfig   `yaml:"listen"`
	Database  DatabaseConfig `yaml:"database"`
	Model     ModelConfig    `yaml:"model"`
	Agent     AgentConfig    `yaml:"agent"`
	Auth      AuthConfig     `yaml:"auth"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// DatabaseConfig selects the SQLite driver and file.
type DatabaseConfig struct {
	// Driver is "sqlite3" (cgo, mattn/go-sqlite3) or "sqlite" (pure Go,
	// modernc.org/sqlite).
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// ModelConfig defines the model exchange endpoint.
type ModelConfig struct {
	Provider string        `yaml:"provider"` // openai or ollama
	Name     string        `yaml:"name"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	// HistoryLimit is the number of persisted messages replayed to the
	// model on each request.
	HistoryLimit int `yaml:"history_limit"`
	// Apology is returned to the caller when a request cannot complete.
	Apology string `yaml:"apology"`
	// SecondPassTools offers the tool catalog again on the follow-up
	// exchange. Requested calls on that exchange are not executed; the
	// loop only uses the text reply.
	SecondPassTools bool `yaml:"second_pass_tools"`
}

// AuthConfig defines bearer-token settings.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// DefaultApology is the fixed reply for requests that could not complete.
const DefaultApology = "I encountered an error processing your request. Please try again."

// Load reads configuration from a YAML file. Environment variables in the
// file are expanded before parsing, and unset fields take their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a configuration suitable for local development against
// an Ollama instance.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Path == "" {
		c.Database.Path = "tick.db"
	}
	if c.Model.Provider == "" {
		c.Model.Provider = "ollama"
	}
	if c.Model.Name == "" {
		switch c.Model.Provider {
		case "openai":
			c.Model.Name = "gpt-4o-mini"
		default:
			c.Model.Name = "qwen3:4b"
		}
	}
	if c.Model.Timeout == 0 {
		c.Model.Timeout = 5 * time.Minute
	}
	if c.Agent.HistoryLimit <= 0 {
		c.Agent.HistoryLimit = 20
	}
	if c.Agent.Apology == "" {
		c.Agent.Apology = DefaultApology
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 7 * 24 * time.Hour
	}
}

// Validate reports configuration that cannot produce a working server.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q (valid: sqlite3, sqlite)", c.Database.Driver))
	}

	switch c.Model.Provider {
	case "openai":
		if c.Model.APIKey == "" {
			errs = append(errs, errors.New("model.api_key is required for the openai provider"))
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("model.provider %q (valid: openai, ollama)", c.Model.Provider))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q (valid: text, json)", c.LogFormat))
	}

	return errors.Join(errs...)
}
