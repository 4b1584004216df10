package config

import (
	"errors"
	"testing"
)

func TestResolveAPIKey(t *testing.T) {
	bedrock := Default()
	bedrock.Anthropic.UseBedrock = true
	bedrock.Anthropic.APIKey = "sk-ant-ignored-for-bedrock"

	fromFile := Default()
	fromFile.Anthropic.APIKey = "sk-ant-from-plana-yaml"

	fromVar := Default()
	fromVar.Anthropic.APIKey = "${PLANA_TEST_KEY}"

	tests := []struct {
		name       string
		env        string
		varValue   string
		cfg        *Config
		wantKey    string
		wantSource KeySource
		wantErr    error
	}{
		{"env wins over file", "sk-ant-from-env", "", fromFile, "sk-ant-from-env", KeySourceEnv, nil},
		{"config file", "", "", fromFile, "sk-ant-from-plana-yaml", KeySourceConfig, nil},
		{"expanded reference", "", "sk-ant-from-var", fromVar, "sk-ant-from-var", KeySourceConfig, nil},
		{"unset reference", "", "", fromVar, "", KeySourceNone, ErrNoAPIKey},
		{"nothing configured", "", "", Default(), "", KeySourceNone, ErrNoAPIKey},
		{"nil config", "", "", nil, "", KeySourceNone, ErrNoAPIKey},
		{"bedrock needs no key", "sk-ant-from-env", "", bedrock, "", KeySourceBedrock, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ANTHROPIC_API_KEY", tt.env)
			t.Setenv("PLANA_TEST_KEY", tt.varValue)

			key, source, err := ResolveAPIKey(tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
			if source != tt.wantSource {
				t.Errorf("source = %q, want %q", source, tt.wantSource)
			}
		})
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"sk-ant-REDACTED", false},
		{"", true},
		{"sk-proj-abcdefghijklmnopqrstuvwxyz", true},
		{"sk-ant-short", true},
	}
	for _, tt := range tests {
		if err := ValidateAPIKey(tt.key); (err != nil) != tt.wantErr {
			t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := map[string]string{
		"sk-ant-REDACTED": "sk-ant-...wxyz",
		"":                                  "(not set)",
		"sk-ant-1234":                       "***",
	}
	for key, want := range tests {
		if got := MaskAPIKey(key); got != want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestRequiresAPIKey(t *testing.T) {
	if !RequiresAPIKey(nil) {
		t.Error("RequiresAPIKey(nil) = false, want true")
	}
	if !RequiresAPIKey(Default()) {
		t.Error("RequiresAPIKey(Default()) = false, want true")
	}
	cfg := Default()
	cfg.Anthropic.UseBedrock = true
	if RequiresAPIKey(cfg) {
		t.Error("RequiresAPIKey with Bedrock = true, want false")
	}
}
