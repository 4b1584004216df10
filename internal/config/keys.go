package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

const (
	apiKeyEnv    = "ANTHROPIC_API_KEY"
	apiKeyPrefix = "sk-ant-"
	minAPIKeyLen = 20
)

// KeySource says where the credentials for backend requests come from.
type KeySource string

const (
	KeySourceEnv     KeySource = "environment"
	KeySourceConfig  KeySource = "config_file"
	KeySourceBedrock KeySource = "aws_bedrock"
	KeySourceNone    KeySource = "none"
)

// RequiresAPIKey reports whether cfg talks to the Anthropic API directly.
// Bedrock requests authenticate with AWS credentials instead.
func RequiresAPIKey(cfg *Config) bool {
	return cfg == nil || !cfg.Anthropic.UseBedrock
}

// ResolveAPIKey returns the key expand sends with each request and where it
// was found. ANTHROPIC_API_KEY wins over anthropic.api_key. With Bedrock
// enabled no key is needed and the source is KeySourceBedrock.
func ResolveAPIKey(cfg *Config) (string, KeySource, error) {
	if !RequiresAPIKey(cfg) {
		return "", KeySourceBedrock, nil
	}
	if key := os.Getenv(apiKeyEnv); key != "" {
		return key, KeySourceEnv, nil
	}
	if key := configuredKey(cfg); key != "" {
		return key, KeySourceConfig, nil
	}
	return "", KeySourceNone, ErrNoAPIKey
}

// configuredKey expands anthropic.api_key. A reference to an unset variable
// counts as no key.
func configuredKey(cfg *Config) string {
	if cfg == nil || cfg.Anthropic.APIKey == "" {
		return ""
	}
	key := os.ExpandEnv(cfg.Anthropic.APIKey)
	if strings.Contains(key, "${") {
		return ""
	}
	return key
}

// ValidateAPIKey checks the shape of a key before 'plana config' stores it.
// The key is not sent anywhere.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return ErrNoAPIKey
	case !strings.HasPrefix(key, apiKeyPrefix):
		return fmt.Errorf("invalid API key: expected %q prefix", apiKeyPrefix)
	case len(key) < minAPIKeyLen:
		return fmt.Errorf("invalid API key: shorter than %d characters", minAPIKeyLen)
	}
	return nil
}

// MaskAPIKey keeps the prefix and last four characters of key for display.
func MaskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= len(apiKeyPrefix)+8:
		return "***"
	}
	return key[:len(apiKeyPrefix)] + "..." + key[len(key)-4:]
}
