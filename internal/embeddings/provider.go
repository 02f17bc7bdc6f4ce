// Package embeddings provides embedding generation via pluggable providers.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Result holds embeddings for a batch of texts plus provider-reported
// token usage.
type Result struct {
	// Vectors holds one embedding per input text, in order.
	Vectors [][]float32

	// TokensUsed is the provider-reported token consumption for the batch.
	TokensUsed int
}

// Provider generates fixed-dimension embeddings from text.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) (*Result, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding dimension for the configured model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// Config holds configuration for creating an embedding provider.
type Config struct {
	// Provider is "openai" or "tei".
	Provider string

	// Model is the embedding model name.
	Model string

	// BaseURL overrides the provider endpoint (required for tei).
	BaseURL string

	// APIKey authenticates against the provider (openai).
	APIKey string

	// Dimension is the embedding dimension.
	Dimension int
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIProvider(cfg)
	case "tei":
		return NewTEIProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
