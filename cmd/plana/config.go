package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/plana/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify plana configuration.

Without arguments, displays current configuration.
With one argument (key or number), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/plana/config.yaml
Project-specific overrides can be placed in .plana.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
			return nil
		case 1:
			return displayConfigKey(cfg, args[0])
		default:
			return setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	key, source, _ := config.ResolveAPIKey(cfg)
	fmt.Printf("    %-34s %s (%s)\n", "anthropic.api_key", config.MaskAPIKey(key), source)
	for i, s := range config.Settings() {
		fmt.Printf("%2d) %-34s %s\n", i+1, s.Key, s.Value(cfg))
	}
	fmt.Printf("\nConfig file: %s\n", config.GetUserConfigPath())
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) error {
	if key == "anthropic.api_key" {
		fmt.Println(config.MaskAPIKey(cfg.Anthropic.APIKey))
		return nil
	}
	s, ok := config.Lookup(key)
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	fmt.Println(s.Value(cfg))
	return nil
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) error {
	if key == "anthropic.api_key" {
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	} else {
		s, ok := config.Lookup(key)
		if !ok {
			return fmt.Errorf("unknown configuration key: %s", key)
		}
		if err := cfg.Apply(s.Key, value); err != nil {
			return err
		}
		key = s.Key
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if key == "anthropic.api_key" {
		value = config.MaskAPIKey(value)
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}
