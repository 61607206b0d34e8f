// Package llm produces human-readable explanations for flagged shipments.
//
// Every explanation starts as deterministic rule text. A configured provider
// may rewrite that text into prose; the rewrite never feeds back into flags
// or amounts, and any provider failure falls back to the rule text.
package llm

import (
	"context"
	"strings"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Rewrite turns rule text into a short explanation
	Rewrite(ctx context.Context, req RewriteRequest) (*RewriteResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// RewriteRequest is the input for a rewrite
type RewriteRequest struct {
	// Text is the rule-based explanation to rewrite
	Text string

	// Prompt overrides BuildPrompt when set
	Prompt string

	// Model is the provider-specific model, empty for the configured one
	Model string

	MaxTokens int
}

// RewriteResponse is a provider's rewrite
type RewriteResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	Model   string
	APIKey  string
	BaseURL string

	Timeout   int // seconds
	MaxTokens int

	HTTPProxy  string
	HTTPSProxy string
}

// DefaultMaxTokens bounds a rewrite; explanations are a few sentences
const DefaultMaxTokens = 120

// DefaultConfig returns a disabled configuration
func DefaultConfig() Config {
	return Config{
		Timeout:   30,
		MaxTokens: DefaultMaxTokens,
	}
}

const systemPrompt = "You are a freight audit analyst. Keep every amount, flag and carrier name exactly as given. Do not add facts."

// BuildPrompt wraps rule text in the rewrite instruction
func BuildPrompt(text string) string {
	return "Rewrite this as a short professional logistics audit explanation:\n\n" + strings.TrimSpace(text)
}

func promptFor(req RewriteRequest) string {
	if req.Prompt != "" {
		return req.Prompt
	}
	return BuildPrompt(req.Text)
}

func maxTokensFor(req RewriteRequest, cfg Config) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return DefaultMaxTokens
}
