package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Expand.MaxDepth != 2 {
		t.Errorf("expected default max_depth 2, got %d", cfg.Expand.MaxDepth)
	}
	if cfg.Expand.Mode != ModeOneByOne {
		t.Errorf("expected default mode %q, got %q", ModeOneByOne, cfg.Expand.Mode)
	}
	if cfg.Expand.MaxConcurrentRequests != 1 {
		t.Errorf("expected default concurrency 1, got %d", cfg.Expand.MaxConcurrentRequests)
	}
	if cfg.Expand.CandidateCount != 3 {
		t.Errorf("expected default candidate_count 3, got %d", cfg.Expand.CandidateCount)
	}
	if cfg.Expand.Temperature != 0.3 {
		t.Errorf("expected default temperature 0.3, got %g", cfg.Expand.Temperature)
	}
	if cfg.Expand.SubtaskCount != "four" {
		t.Errorf("expected default subtask_count 'four', got %q", cfg.Expand.SubtaskCount)
	}
	if cfg.Expand.Chooser != ChooserBackend {
		t.Errorf("expected default chooser %q, got %q", ChooserBackend, cfg.Expand.Chooser)
	}
	if !cfg.Expand.UseCache {
		t.Error("expected use_cache to default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
  model: claude-haiku-4-5-20251001
expand:
  max_depth: 4
  mode: as_a_list
  max_concurrent_requests: 3
  chooser: human
display:
  show_prompts: true
paths:
  data_dir: ${TEST_PLANA_HOME}/data
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	os.Setenv("TEST_PLANA_HOME", "/tmp/plana-home")
	defer os.Unsetenv("TEST_PLANA_HOME")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Expand.MaxDepth != 4 {
		t.Errorf("expected max_depth 4, got %d", cfg.Expand.MaxDepth)
	}
	if cfg.Expand.Mode != ModeAsAList {
		t.Errorf("expected mode %q, got %q", ModeAsAList, cfg.Expand.Mode)
	}
	if cfg.Expand.MaxConcurrentRequests != 3 {
		t.Errorf("expected concurrency 3, got %d", cfg.Expand.MaxConcurrentRequests)
	}
	// Unset values keep their defaults.
	if cfg.Expand.CandidateCount != 3 {
		t.Errorf("expected candidate_count default 3, got %d", cfg.Expand.CandidateCount)
	}
	if !cfg.Display.ShowPrompts {
		t.Error("expected show_prompts to be true")
	}
	if cfg.DataDir() != "/tmp/plana-home/data" {
		t.Errorf("expected data dir '/tmp/plana-home/data', got %q", cfg.DataDir())
	}
	if cfg.CachePath() != "/tmp/plana-home/data/cache.yaml" {
		t.Errorf("unexpected cache path %q", cfg.CachePath())
	}
}

func TestSaveToThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Expand.MaxDepth = 5
	cfg.Expand.Temperature = 0.7
	cfg.Display.ShowResults = true
	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Expand.MaxDepth != 5 {
		t.Errorf("expected max_depth 5, got %d", loaded.Expand.MaxDepth)
	}
	if loaded.Expand.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %g", loaded.Expand.Temperature)
	}
	if !loaded.Display.ShowResults {
		t.Error("expected show_results to be true")
	}
}

func TestExpandEnv(t *testing.T) {
	os.Setenv("TEST_VAR", "expanded-value")
	defer os.Unsetenv("TEST_VAR")

	if result := expandEnv("prefix-${TEST_VAR}-suffix"); result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	defer os.Unsetenv("XDG_CONFIG_HOME")

	if dir := getUserConfigDir(); dir != "/custom/config/plana" {
		t.Errorf("expected %q, got %q", "/custom/config/plana", dir)
	}
}

func TestDataDir_XDG(t *testing.T) {
	os.Setenv("XDG_DATA_HOME", "/custom/data")
	defer os.Unsetenv("XDG_DATA_HOME")

	cfg := Default()
	if got := cfg.DataDir(); got != "/custom/data/plana" {
		t.Errorf("DataDir = %q, want %q", got, "/custom/data/plana")
	}
	if got := cfg.OutputDir(); got != "/custom/data/plana/plans" {
		t.Errorf("OutputDir = %q, want %q", got, "/custom/data/plana/plans")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative depth", func(c *Config) { c.Expand.MaxDepth = -1 }},
		{"unknown mode", func(c *Config) { c.Expand.Mode = "sideways" }},
		{"no concurrency", func(c *Config) { c.Expand.MaxConcurrentRequests = 0 }},
		{"no candidates", func(c *Config) { c.Expand.CandidateCount = 0 }},
		{"hot", func(c *Config) { c.Expand.Temperature = 2 }},
		{"unknown chooser", func(c *Config) { c.Expand.Chooser = "dice" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLookup(t *testing.T) {
	s, ok := Lookup("expand.max_depth")
	if !ok || s.Key != "expand.max_depth" {
		t.Fatalf("Lookup by key = (%q, %v)", s.Key, ok)
	}

	first, ok := Lookup("1")
	if !ok || first.Key != Settings()[0].Key {
		t.Errorf("Lookup(\"1\") = (%q, %v)", first.Key, ok)
	}

	if _, ok := Lookup("0"); ok {
		t.Error("Lookup(\"0\") should fail")
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("Lookup(\"nope\") should fail")
	}
}

func TestApply(t *testing.T) {
	cfg := Default()

	if err := cfg.Apply("expand.max_depth", "3"); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if cfg.Expand.MaxDepth != 3 {
		t.Errorf("max_depth = %d, want 3", cfg.Expand.MaxDepth)
	}

	if err := cfg.Apply("expand.mode", "diagonal"); err == nil {
		t.Error("Apply should reject an unknown mode")
	}
	if err := cfg.Apply("expand.temperature", "1.5"); err == nil {
		t.Error("Apply should reject an out-of-range temperature")
	}
	if cfg.Expand.Temperature != 0.3 {
		t.Errorf("temperature changed to %g after failed Apply", cfg.Expand.Temperature)
	}
	if err := cfg.Apply("display.show_results", "yes"); err == nil {
		t.Error("Apply should reject a non-boolean")
	}
}

func TestSettingsCoverEveryKeyOnce(t *testing.T) {
	seen := map[string]bool{}
	cfg := Default()
	for _, s := range Settings() {
		if seen[s.Key] {
			t.Errorf("duplicate setting %q", s.Key)
		}
		seen[s.Key] = true
		if s.Description == "" {
			t.Errorf("setting %q has no description", s.Key)
		}
		// Round-trip the current value through Set.
		if err := s.Set(cfg, s.Value(cfg)); err != nil {
			t.Errorf("setting %q does not accept its own value: %v", s.Key, err)
		}
	}
}
