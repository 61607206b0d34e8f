package llm

import (
	"testing"

	"github.com/ppiankov/freightaudit/internal/model"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{})
	if err != nil || p != nil {
		t.Errorf("expected disabled provider, got %v %v", p, err)
	}

	if _, err := NewProvider(Config{Provider: "gemini"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	tests := []struct {
		config Config
		name   string
	}{
		{Config{Provider: "openai", APIKey: "k"}, "openai"},
		{Config{Provider: "Claude", APIKey: "k"}, "anthropic"},
		{Config{Provider: "ollama"}, "ollama"},
	}
	for _, tt := range tests {
		p, err := NewProvider(tt.config)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.config.Provider, err)
			continue
		}
		if p.Name() != tt.name {
			t.Errorf("%s: expected %s, got %s", tt.config.Provider, tt.name, p.Name())
		}
	}
}

func TestConfigFromModel_Env(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434")

	cfg := ConfigFromModel(model.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", MaxTokens: 120})
	if cfg.APIKey != "env-key" || cfg.Model != "gpt-4o-mini" || cfg.MaxTokens != 120 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	cfg = ConfigFromModel(model.LLMConfig{Provider: "openai", APIKey: "explicit"})
	if cfg.APIKey != "explicit" {
		t.Errorf("explicit key must win, got %s", cfg.APIKey)
	}

	cfg = ConfigFromModel(model.LLMConfig{Provider: "ollama"})
	if cfg.BaseURL != "http://gpu-box:11434" {
		t.Errorf("expected base URL from env, got %s", cfg.BaseURL)
	}
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("  Flags: UNDERBILLED.\n")
	want := "Rewrite this as a short professional logistics audit explanation:\n\nFlags: UNDERBILLED."
	if got != want {
		t.Errorf("BuildPrompt = %q, want %q", got, want)
	}
}
