package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/casefile-labs/lexrag/internal/logging"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration for lexragd.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Generation GenerationConfig `koanf:"generation"`
	Storage    StorageConfig    `koanf:"storage"`
	Vector     VectorConfig     `koanf:"vector"`
	Encryption EncryptionConfig `koanf:"encryption"`
	Chunking   ChunkingConfig   `koanf:"chunking"`
	Summary    SummaryConfig    `koanf:"summary"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// TelemetryConfig configures OpenTelemetry export. When disabled the
// instruments throughout the code still record against no-op providers.
type TelemetryConfig struct {
	// Enabled toggles OTLP export.
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP collector address (host:port).
	Endpoint string `koanf:"endpoint"`

	// Protocol is "grpc" or "http/protobuf".
	Protocol string `koanf:"protocol"`

	// Insecure disables TLS on the exporter connection.
	Insecure bool `koanf:"insecure"`

	// SamplingRate is the trace sampling ratio in [0, 1].
	SamplingRate float64 `koanf:"sampling_rate"`

	// MetricsInterval is the metric export period.
	MetricsInterval time.Duration `koanf:"metrics_interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Port is the HTTP listen port.
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "openai" or "tei".
	Provider string `koanf:"provider"`

	// BaseURL overrides the provider endpoint (required for tei).
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// APIKey authenticates against the provider (openai).
	APIKey string `koanf:"api_key"`

	// Dimension is the embedding vector dimension.
	Dimension int `koanf:"dimension"`
}

// GenerationConfig configures the optional text-generation provider used
// for summary tree construction. When disabled or misconfigured the
// summary builder falls back to extractive summaries.
type GenerationConfig struct {
	Enabled   bool   `koanf:"enabled"`
	BaseURL   string `koanf:"base_url"`
	Model     string `koanf:"model"`
	APIKey    string `koanf:"api_key"`
	MaxTokens int    `koanf:"max_tokens"`
}

// StorageConfig holds the SQLite storage settings.
type StorageConfig struct {
	// Path is the data directory holding the database file.
	Path string `koanf:"path"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	// Provider is "sqlite" (exact search over stored rows, default)
	// or "chromem" (embedded chromem-go index).
	Provider string `koanf:"provider"`

	// ChromemPath is the chromem persistence directory.
	ChromemPath string `koanf:"chromem_path"`
}

// EncryptionConfig configures the per-tenant encryption layer.
type EncryptionConfig struct {
	// Enabled toggles at-rest vector encryption. Search is never blocked
	// by encryption; it only controls whether ciphertext is persisted.
	Enabled bool `koanf:"enabled"`

	// MasterSecret is the root secret for per-tenant key derivation.
	MasterSecret string `koanf:"master_secret"`

	// KeyTTL bounds how long derived tenant keys stay cached.
	KeyTTL time.Duration `koanf:"key_ttl"`

	// VectorCacheSize is the decrypted-vector LRU capacity.
	VectorCacheSize int `koanf:"vector_cache_size"`

	// VectorCacheTTL bounds decrypted-vector cache entries.
	VectorCacheTTL time.Duration `koanf:"vector_cache_ttl"`
}

// ChunkingConfig holds chunk size bounds in characters.
type ChunkingConfig struct {
	TargetSize    int `koanf:"target_size"`
	MaxSize       int `koanf:"max_size"`
	MinSize       int `koanf:"min_size"`
	Overlap       int `koanf:"overlap"`
	MergeDistance int `koanf:"merge_distance"`
}

// SummaryConfig holds summary tree tuning.
type SummaryConfig struct {
	// GroupSize caps how many consecutive chunks form a section group.
	GroupSize int `koanf:"group_size"`

	// SectionWordCap bounds section (level-1) summaries.
	SectionWordCap int `koanf:"section_word_cap"`

	// DocumentWordCap bounds document (level-2) summaries.
	DocumentWordCap int `koanf:"document_word_cap"`

	// LeafStorageCap truncates level-0 node text for storage.
	LeafStorageCap int `koanf:"leaf_storage_cap"`
}

// RetrievalConfig holds ranking tunables. The defaults are empirical, not
// semantic contracts; they are preserved for behavioral compatibility.
type RetrievalConfig struct {
	// RRFK is the reciprocal rank fusion constant.
	RRFK int `koanf:"rrf_k"`

	// HopDecay is the per-hop confidence decay for graph traversal.
	HopDecay float64 `koanf:"hop_decay"`

	// MultiSourceBonus multiplies candidates confirmed by >=2 sources.
	MultiSourceBonus float64 `koanf:"multi_source_bonus"`

	// RecencyBaselineYear anchors the per-year recency bonus.
	RecencyBaselineYear int `koanf:"recency_baseline_year"`

	// RecencyPerYearBonus is the additive bonus per year past baseline.
	RecencyPerYearBonus float64 `koanf:"recency_per_year_bonus"`

	// JurisdictionBonus multiplies results matching the caller's
	// jurisdiction hint.
	JurisdictionBonus float64 `koanf:"jurisdiction_bonus"`

	// MaxPerDocument caps results contributed by a single document.
	MaxPerDocument int `koanf:"max_per_document"`

	// DefaultLimit is the result limit when the caller specifies none.
	DefaultLimit int `koanf:"default_limit"`

	// SimilarityThreshold filters vector hits below this cosine similarity.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// GraphDepth bounds relationship traversal hops.
	GraphDepth int `koanf:"graph_depth"`

	// PrecedentChainDepth bounds traversal for precedent_chain intent.
	PrecedentChainDepth int `koanf:"precedent_chain_depth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.Embeddings.Provider {
	case "openai", "tei":
	default:
		return fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	switch c.Vector.Provider {
	case "sqlite", "chromem":
	default:
		return fmt.Errorf("%w: unknown vector index provider %q", ErrInvalidConfig, c.Vector.Provider)
	}
	if c.Encryption.Enabled && c.Encryption.MasterSecret == "" {
		return fmt.Errorf("%w: encryption enabled without master secret", ErrInvalidConfig)
	}
	if c.Chunking.MinSize <= 0 || c.Chunking.TargetSize < c.Chunking.MinSize || c.Chunking.MaxSize < c.Chunking.TargetSize {
		return fmt.Errorf("%w: chunk size bounds must satisfy 0 < min <= target <= max", ErrInvalidConfig)
	}
	if c.Summary.GroupSize < 2 {
		return fmt.Errorf("%w: summary group size must be >= 2", ErrInvalidConfig)
	}
	if c.Retrieval.RRFK <= 0 {
		return fmt.Errorf("%w: rrf_k must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.HopDecay <= 0 || c.Retrieval.HopDecay > 1 {
		return fmt.Errorf("%w: hop_decay must be in (0, 1]", ErrInvalidConfig)
	}
	if c.Retrieval.MaxPerDocument <= 0 {
		return fmt.Errorf("%w: max_per_document must be positive", ErrInvalidConfig)
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Protocol {
		case "grpc", "http/protobuf":
		default:
			return fmt.Errorf("%w: unknown telemetry protocol %q", ErrInvalidConfig, c.Telemetry.Protocol)
		}
		if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
			return fmt.Errorf("%w: telemetry sampling_rate must be in [0, 1]", ErrInvalidConfig)
		}
	}
	return nil
}
