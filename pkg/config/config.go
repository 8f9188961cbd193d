// Package config loads the engine's settings from a YAML file with
// environment overrides. Configuration is read once at startup; nothing in
// the engine mutates it afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Provider identifiers accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Strategy identifiers accepted in configuration.
const (
	StrategySingleModel = "single-model"
	StrategyHybrid      = "hybrid"
)

// Storage backend identifiers accepted in configuration.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Config is the full engine configuration.
type Config struct {
	// Provider selects the model backend: openai or anthropic.
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// PlannerModel is the reasoning-capable model used by the hybrid
	// strategy's planning call. Empty falls back to Model.
	PlannerModel string `yaml:"planner_model"`

	// Strategy selects the iteration strategy: single-model or hybrid.
	Strategy string `yaml:"strategy"`

	// MaxIterations caps loop passes per run.
	MaxIterations int `yaml:"max_iterations"`

	// WindowSize is the number of most-recent messages loaded per run.
	WindowSize int `yaml:"window_size"`

	// SystemPrompt is prepended to every model call.
	SystemPrompt string `yaml:"system_prompt"`

	// Temperature, when non-nil, overrides the sampling temperature.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens caps completion length; zero means provider default.
	MaxTokens int `yaml:"max_tokens"`

	// ReasoningBudget caps reasoning tokens for backends with a
	// reasoning channel.
	ReasoningBudget int `yaml:"reasoning_budget"`

	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
}

// StorageConfig selects and locates the conversation store.
type StorageConfig struct {
	// Backend is memory or sqlite.
	Backend string `yaml:"backend"`

	// Path is the database file for the sqlite backend.
	Path string `yaml:"path"`
}

// ServerConfig holds the daemon's listen settings.
type ServerConfig struct {
	// Addr is the host:port the daemon binds to.
	Addr string `yaml:"addr"`
}

// DefaultPath returns the conventional config location, ~/.loom/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".loom", "config.yaml"), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Provider:      ProviderOpenAI,
		Strategy:      StrategySingleModel,
		MaxIterations: 10,
		WindowSize:    50,
		Storage: StorageConfig{
			Backend: StorageMemory,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// Load reads the configuration file at path, falling back to defaults when
// the file does not exist, then applies environment overrides and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file settings from LOOM_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("LOOM_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("LOOM_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("LOOM_PLANNER_MODEL"); v != "" {
		c.PlannerModel = v
	}
	if v := os.Getenv("LOOM_STRATEGY"); v != "" {
		c.Strategy = v
	}
	if v := os.Getenv("LOOM_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIterations = n
		}
	}
	if v := os.Getenv("LOOM_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WindowSize = n
		}
	}
	if v := os.Getenv("LOOM_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("LOOM_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("LOOM_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	switch c.Strategy {
	case StrategySingleModel, StrategyHybrid:
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}

	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d", c.WindowSize)
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}
	return nil
}
