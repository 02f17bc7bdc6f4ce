// Package generation provides text generation for summarization via a
// pluggable provider. The provider is optional: callers must tolerate
// its absence and fall back to deterministic behavior.
package generation

import (
	"context"
	"errors"
)

var (
	// ErrProviderUnavailable indicates no generation provider is configured.
	ErrProviderUnavailable = errors.New("generation provider unavailable")

	// ErrGenerationFailed indicates a provider call failed.
	ErrGenerationFailed = errors.New("text generation failed")

	// ErrEmptyInput indicates empty prompt text.
	ErrEmptyInput = errors.New("empty input text")
)

// Provider produces text from instructions and a prompt.
type Provider interface {
	// Complete generates text following the system instructions.
	Complete(ctx context.Context, instructions, prompt string) (string, error)

	// Close releases resources held by the provider.
	Close() error
}

// Config holds generation provider configuration.
type Config struct {
	// Enabled toggles the provider; when false NewProvider returns nil.
	Enabled bool

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// Model is the generation model name.
	Model string

	// APIKey authenticates against the provider.
	APIKey string

	// MaxTokens bounds the response length.
	MaxTokens int
}

// NewProvider creates the configured provider, or nil when generation is
// disabled or unconfigured. A nil provider is valid: the summary builder
// degrades to extractive summaries.
func NewProvider(cfg Config) (Provider, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, ErrProviderUnavailable
	}
	return newOpenAIProvider(cfg), nil
}
