package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", cfg.Provider)
	}
	if !cfg.Follow {
		t.Error("follow should default on")
	}
	if cfg.MaxOutputTokens != 8192 {
		t.Errorf("max_output_tokens = %d", cfg.MaxOutputTokens)
	}
	if !cfg.Storage.Enabled {
		t.Error("storage should default on")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SHEETWISE_PROVIDER", "openai")
	t.Setenv("SHEETWISE_OPENAI_API_KEY", "sk-test")
	t.Setenv("SHEETWISE_OPENAI_MODEL", "gpt-4.1-mini")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	name, key, model := cfg.Active()
	if name != "openai" || key != "sk-test" || model != "gpt-4.1-mini" {
		t.Errorf("Active = (%q, %q, %q)", name, key, model)
	}
}

func TestActiveFallsBackToAnthropic(t *testing.T) {
	cfg := Config{Provider: "", Anthropic: ProviderConfig{APIKey: "ak", Model: "claude"}}
	name, key, model := cfg.Active()
	if name != "anthropic" || key != "ak" || model != "claude" {
		t.Errorf("Active = (%q, %q, %q)", name, key, model)
	}
}

func TestActivePassesUnknownProviderThrough(t *testing.T) {
	cfg := Config{Provider: "anthropc", Anthropic: ProviderConfig{APIKey: "ak", Model: "claude"}}
	name, _, _ := cfg.Active()
	if name != "anthropc" {
		t.Errorf("Active name = %q, want the misspelling preserved for rejection", name)
	}
}
