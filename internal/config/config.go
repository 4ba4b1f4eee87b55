// Package config handles configuration loading for taskwright.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for taskwright.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Client    ClientConfig    `mapstructure:"client"`
	Endpoints []EndpointEntry `mapstructure:"endpoints"`
	TUI       TUIConfig       `mapstructure:"tui"`
	State     StateConfig     `mapstructure:"state"`
}

// AnthropicConfig holds oracle API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// EngineConfig holds execution engine settings.
type EngineConfig struct {
	// MaxConcurrency is the worker pool size.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// MaxAttempts is the per-task attempt budget.
	MaxAttempts int `mapstructure:"max_attempts"`
	// TaskTimeout bounds a single attempt; 0 disables it.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// ClientConfig holds resilient service client settings.
type ClientConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a
	// circuit breaker.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// RecoveryTimeout is how long an open breaker waits before probing.
	RecoveryTimeout time.Duration `mapstructure:"recovery_timeout"`
	// RetryAttempts is the per-call attempt budget for idempotent requests.
	RetryAttempts int `mapstructure:"retry_attempts"`
	// RetryBaseDelay seeds the exponential backoff.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	// HealthTTL is how long a cached health result stays fresh.
	HealthTTL time.Duration `mapstructure:"health_ttl"`
	// ProbeTimeout bounds a single health probe.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// EndpointEntry describes one remote service endpoint.
type EndpointEntry struct {
	Name       string `mapstructure:"name"`
	Address    string `mapstructure:"address"`
	Idempotent bool   `mapstructure:"idempotent"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// StateConfig holds checkpoint database settings.
type StateConfig struct {
	// DBPath overrides the default database location.
	DBPath string `mapstructure:"db_path"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.taskwright.yaml in current directory or parent)
// 3. User config (~/.config/taskwright/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("engine.max_concurrency", cfg.Engine.MaxConcurrency)
	v.Set("engine.max_attempts", cfg.Engine.MaxAttempts)
	v.Set("engine.task_timeout", cfg.Engine.TaskTimeout.String())
	v.Set("client.failure_threshold", cfg.Client.FailureThreshold)
	v.Set("client.recovery_timeout", cfg.Client.RecoveryTimeout.String())
	v.Set("client.retry_attempts", cfg.Client.RetryAttempts)
	v.Set("client.retry_base_delay", cfg.Client.RetryBaseDelay.String())
	v.Set("client.health_ttl", cfg.Client.HealthTTL.String())
	v.Set("client.probe_timeout", cfg.Client.ProbeTimeout.String())
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("engine.max_concurrency", 4)
	v.SetDefault("engine.max_attempts", 3)
	v.SetDefault("engine.task_timeout", "0s")

	v.SetDefault("client.failure_threshold", 5)
	v.SetDefault("client.recovery_timeout", "30s")
	v.SetDefault("client.retry_attempts", 3)
	v.SetDefault("client.retry_base_delay", "1s")
	v.SetDefault("client.health_ttl", "30s")
	v.SetDefault("client.probe_timeout", "2s")

	v.SetDefault("tui.refresh_rate", "100ms")

	v.SetDefault("state.db_path", "")
}

// getUserConfigDir returns the XDG config directory for taskwright.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "taskwright")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "taskwright")
	}
	return filepath.Join(home, ".config", "taskwright")
}

// findProjectConfig searches for .taskwright.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".taskwright.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxConcurrency: 4,
			MaxAttempts:    3,
		},
		Client: ClientConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			RetryAttempts:    3,
			RetryBaseDelay:   time.Second,
			HealthTTL:        30 * time.Second,
			ProbeTimeout:     2 * time.Second,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
