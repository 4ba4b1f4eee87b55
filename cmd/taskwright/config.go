package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mseverin/taskwright/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show configuration",
	Long: `Display the effective configuration after merging defaults, the user
config, any project .taskwright.yaml, and environment variables.

Configuration is stored at ~/.config/taskwright/config.yaml.
Project-specific overrides can be placed in .taskwright.yaml.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 1 {
			displayConfigKey(cfg, args[0])
			return
		}
		displayAllConfig(cfg)
	},
}

func displayAllConfig(cfg *config.Config) {
	fmt.Printf("config file: %s\n", config.GetUserConfigPath())
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Printf("project override: %s\n", p)
	}
	fmt.Println()

	fmt.Println("anthropic:")
	fmt.Printf("  api_key: %s\n", maskKey(cfg.Anthropic.APIKey))
	fmt.Printf("  model: %s\n", orDefault(cfg.Anthropic.Model, "(sdk default)"))
	fmt.Printf("  use_bedrock: %t\n", cfg.Anthropic.UseBedrock)

	fmt.Println("engine:")
	fmt.Printf("  max_concurrency: %d\n", cfg.Engine.MaxConcurrency)
	fmt.Printf("  max_attempts: %d\n", cfg.Engine.MaxAttempts)
	fmt.Printf("  task_timeout: %s\n", cfg.Engine.TaskTimeout)

	fmt.Println("client:")
	fmt.Printf("  failure_threshold: %d\n", cfg.Client.FailureThreshold)
	fmt.Printf("  recovery_timeout: %s\n", cfg.Client.RecoveryTimeout)
	fmt.Printf("  retry_attempts: %d\n", cfg.Client.RetryAttempts)
	fmt.Printf("  retry_base_delay: %s\n", cfg.Client.RetryBaseDelay)
	fmt.Printf("  health_ttl: %s\n", cfg.Client.HealthTTL)
	fmt.Printf("  probe_timeout: %s\n", cfg.Client.ProbeTimeout)

	if len(cfg.Endpoints) > 0 {
		fmt.Println("endpoints:")
		for _, ep := range cfg.Endpoints {
			fmt.Printf("  - %s %s (idempotent: %t)\n", ep.Name, ep.Address, ep.Idempotent)
		}
	}
}

func displayConfigKey(cfg *config.Config, key string) {
	switch key {
	case "anthropic.api_key":
		fmt.Println(maskKey(cfg.Anthropic.APIKey))
	case "anthropic.model":
		fmt.Println(cfg.Anthropic.Model)
	case "engine.max_concurrency":
		fmt.Println(cfg.Engine.MaxConcurrency)
	case "engine.max_attempts":
		fmt.Println(cfg.Engine.MaxAttempts)
	case "engine.task_timeout":
		fmt.Println(cfg.Engine.TaskTimeout)
	case "client.failure_threshold":
		fmt.Println(cfg.Client.FailureThreshold)
	case "client.recovery_timeout":
		fmt.Println(cfg.Client.RecoveryTimeout)
	case "client.health_ttl":
		fmt.Println(cfg.Client.HealthTTL)
	default:
		fmt.Fprintf(os.Stderr, "unknown config key: %s\n", key)
		os.Exit(1)
	}
}

func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
