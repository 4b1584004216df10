// Package config handles configuration loading and management for plana.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Expansion strategies.
const (
	ModeOneByOne = "one_by_one"
	ModeAsAList  = "as_a_list"
)

// Best-candidate choosers.
const (
	ChooserBackend = "backend"
	ChooserHuman   = "human"
)

// Config holds all configuration for plana.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Expand    ExpandConfig    `mapstructure:"expand"`
	Display   DisplayConfig   `mapstructure:"display"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// ExpandConfig controls how plans are expanded.
type ExpandConfig struct {
	// MaxDepth is the deepest level that is still expanded; deeper nodes become leaves.
	MaxDepth int `mapstructure:"max_depth"`
	// Mode is ModeOneByOne or ModeAsAList.
	Mode string `mapstructure:"mode"`
	// MaxConcurrentRequests bounds in-flight backend calls process-wide.
	MaxConcurrentRequests int     `mapstructure:"max_concurrent_requests"`
	CandidateCount        int     `mapstructure:"candidate_count"`
	Temperature           float64 `mapstructure:"temperature"`
	MaxTokens             int     `mapstructure:"max_tokens"`
	// SubtaskCount is spliced into prompts as written ("four", "3 to 5").
	SubtaskCount string `mapstructure:"subtask_count"`
	UseCache     bool   `mapstructure:"use_cache"`
	UseExamples  bool   `mapstructure:"use_examples"`
	// Chooser is ChooserBackend or ChooserHuman.
	Chooser             string `mapstructure:"chooser"`
	UseGrounding        bool   `mapstructure:"use_grounding"`
	GroundingMaxWords   int    `mapstructure:"grounding_max_words"`
	GroundingMaxResults int    `mapstructure:"grounding_max_results"`
	PostProcess         bool   `mapstructure:"post_process"`
}

// DisplayConfig holds console display toggles.
type DisplayConfig struct {
	ShowPrompts   bool `mapstructure:"show_prompts"`
	ShowResults   bool `mapstructure:"show_results"`
	ShowGrounding bool `mapstructure:"show_grounding"`
	ShowProgress  bool `mapstructure:"show_progress"`
}

// PathsConfig holds storage locations. Empty values resolve to XDG defaults.
type PathsConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	OutputDir string `mapstructure:"output_dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.plana.yaml in current directory or parent)
// 3. User config (~/.config/plana/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
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

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Paths.DataDir = expandEnv(cfg.Paths.DataDir)
	cfg.Paths.OutputDir = expandEnv(cfg.Paths.OutputDir)
	return cfg, nil
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	return SaveTo(GetUserConfigPath(), cfg)
}

// SaveTo writes cfg to path.
func SaveTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	for _, s := range Settings() {
		v.Set(s.Key, s.Get(cfg))
	}
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)

	return v.WriteConfigAs(path)
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", d.Anthropic.AWSRegion)
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("expand.max_depth", d.Expand.MaxDepth)
	v.SetDefault("expand.mode", d.Expand.Mode)
	v.SetDefault("expand.max_concurrent_requests", d.Expand.MaxConcurrentRequests)
	v.SetDefault("expand.candidate_count", d.Expand.CandidateCount)
	v.SetDefault("expand.temperature", d.Expand.Temperature)
	v.SetDefault("expand.max_tokens", d.Expand.MaxTokens)
	v.SetDefault("expand.subtask_count", d.Expand.SubtaskCount)
	v.SetDefault("expand.use_cache", d.Expand.UseCache)
	v.SetDefault("expand.use_examples", d.Expand.UseExamples)
	v.SetDefault("expand.chooser", d.Expand.Chooser)
	v.SetDefault("expand.use_grounding", d.Expand.UseGrounding)
	v.SetDefault("expand.grounding_max_words", d.Expand.GroundingMaxWords)
	v.SetDefault("expand.grounding_max_results", d.Expand.GroundingMaxResults)
	v.SetDefault("expand.post_process", d.Expand.PostProcess)

	v.SetDefault("display.show_prompts", false)
	v.SetDefault("display.show_results", false)
	v.SetDefault("display.show_grounding", false)
	v.SetDefault("display.show_progress", false)

	v.SetDefault("paths.data_dir", "")
	v.SetDefault("paths.output_dir", "")
}

// getUserConfigDir returns the XDG config directory for plana.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "plana")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "plana")
	}
	return filepath.Join(home, ".config", "plana")
}

// findProjectConfig searches for .plana.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".plana.yaml")
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

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			AWSRegion: "us-west-2",
		},
		Expand: ExpandConfig{
			MaxDepth:              2,
			Mode:                  ModeOneByOne,
			MaxConcurrentRequests: 1,
			CandidateCount:        3,
			Temperature:           0.3,
			MaxTokens:             500,
			SubtaskCount:          "four",
			UseCache:              true,
			UseExamples:           true,
			Chooser:               ChooserBackend,
			GroundingMaxWords:     2000,
			GroundingMaxResults:   5,
		},
	}
}

// DataDir returns the directory holding the cache, examples, index and logs.
func (c *Config) DataDir() string {
	if c.Paths.DataDir != "" {
		return c.Paths.DataDir
	}
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "plana")
}

// OutputDir returns the directory plans are written to.
func (c *Config) OutputDir() string {
	if c.Paths.OutputDir != "" {
		return c.Paths.OutputDir
	}
	return filepath.Join(c.DataDir(), "plans")
}

// CachePath returns the decomposition cache file.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir(), "cache.yaml")
}

// ExamplesPath returns the worked example file.
func (c *Config) ExamplesPath() string {
	return filepath.Join(c.DataDir(), "examples.yaml")
}

// IndexPath returns the grounding index database.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir(), "grounding.db")
}

// HistoryPath returns the run history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir(), "history.db")
}

// LogPath returns the debug log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir(), "logs", "expand-debug.log")
}

// SignalsDir returns the directory watched for stop requests.
func (c *Config) SignalsDir() string {
	return filepath.Join(c.DataDir(), "signals")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	e := c.Expand
	switch {
	case e.MaxDepth < 0:
		return fmt.Errorf("expand.max_depth must be >= 0, got %d", e.MaxDepth)
	case e.Mode != ModeOneByOne && e.Mode != ModeAsAList:
		return fmt.Errorf("expand.mode must be %q or %q, got %q", ModeOneByOne, ModeAsAList, e.Mode)
	case e.MaxConcurrentRequests < 1:
		return fmt.Errorf("expand.max_concurrent_requests must be >= 1, got %d", e.MaxConcurrentRequests)
	case e.CandidateCount < 1:
		return fmt.Errorf("expand.candidate_count must be >= 1, got %d", e.CandidateCount)
	case e.Temperature < 0 || e.Temperature > 1:
		return fmt.Errorf("expand.temperature must be in 0..1, got %g", e.Temperature)
	case e.MaxTokens < 1:
		return fmt.Errorf("expand.max_tokens must be >= 1, got %d", e.MaxTokens)
	case e.Chooser != ChooserBackend && e.Chooser != ChooserHuman:
		return fmt.Errorf("expand.chooser must be %q or %q, got %q", ChooserBackend, ChooserHuman, e.Chooser)
	case e.GroundingMaxWords < 0:
		return fmt.Errorf("expand.grounding_max_words must be >= 0, got %d", e.GroundingMaxWords)
	}
	return nil
}
