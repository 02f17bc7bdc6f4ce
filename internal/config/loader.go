// Package config provides configuration loading for lexragd.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Load loads configuration from a YAML file, then overrides with
// environment variables, then applies defaults and validates.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, EMBEDDINGS_API_KEY, ...)
//  2. YAML config file (optional; missing file is not an error)
//  3. Hardcoded defaults
//
// Environment variables map to config keys by splitting on the first
// underscore: SECTION_FIELD_NAME -> section.field_name.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		} else if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		// SECTION_FIELD_NAME -> section.field_name
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration with all defaults applied and no file
// or environment input. Useful for tests.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8620
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "openai"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 1536
	}
	if cfg.Embeddings.Provider == "tei" && cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}

	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-4o-mini"
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 1024
	}

	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultDataDir()
	}

	if cfg.Vector.Provider == "" {
		cfg.Vector.Provider = "sqlite"
	}
	if cfg.Vector.ChromemPath == "" {
		cfg.Vector.ChromemPath = cfg.Storage.Path + "/chromem"
	}

	if cfg.Encryption.KeyTTL == 0 {
		cfg.Encryption.KeyTTL = time.Hour
	}
	if cfg.Encryption.VectorCacheSize == 0 {
		cfg.Encryption.VectorCacheSize = 4096
	}
	if cfg.Encryption.VectorCacheTTL == 0 {
		cfg.Encryption.VectorCacheTTL = 15 * time.Minute
	}

	if cfg.Chunking.TargetSize == 0 {
		cfg.Chunking.TargetSize = 800
	}
	if cfg.Chunking.MaxSize == 0 {
		cfg.Chunking.MaxSize = 1200
	}
	if cfg.Chunking.MinSize == 0 {
		cfg.Chunking.MinSize = 100
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 100
	}
	if cfg.Chunking.MergeDistance == 0 {
		cfg.Chunking.MergeDistance = 50
	}

	if cfg.Summary.GroupSize == 0 {
		cfg.Summary.GroupSize = 8
	}
	if cfg.Summary.SectionWordCap == 0 {
		cfg.Summary.SectionWordCap = 250
	}
	if cfg.Summary.DocumentWordCap == 0 {
		cfg.Summary.DocumentWordCap = 500
	}
	if cfg.Summary.LeafStorageCap == 0 {
		cfg.Summary.LeafStorageCap = 1500
	}

	if cfg.Retrieval.RRFK == 0 {
		cfg.Retrieval.RRFK = 60
	}
	if cfg.Retrieval.HopDecay == 0 {
		cfg.Retrieval.HopDecay = 0.7
	}
	if cfg.Retrieval.MultiSourceBonus == 0 {
		cfg.Retrieval.MultiSourceBonus = 1.15
	}
	if cfg.Retrieval.RecencyBaselineYear == 0 {
		cfg.Retrieval.RecencyBaselineYear = 2018
	}
	if cfg.Retrieval.RecencyPerYearBonus == 0 {
		cfg.Retrieval.RecencyPerYearBonus = 0.01
	}
	if cfg.Retrieval.JurisdictionBonus == 0 {
		cfg.Retrieval.JurisdictionBonus = 1.1
	}
	if cfg.Retrieval.MaxPerDocument == 0 {
		cfg.Retrieval.MaxPerDocument = 3
	}
	if cfg.Retrieval.DefaultLimit == 0 {
		cfg.Retrieval.DefaultLimit = 10
	}
	if cfg.Retrieval.SimilarityThreshold == 0 {
		cfg.Retrieval.SimilarityThreshold = 0.25
	}
	if cfg.Retrieval.GraphDepth == 0 {
		cfg.Retrieval.GraphDepth = 2
	}
	if cfg.Retrieval.PrecedentChainDepth == 0 {
		cfg.Retrieval.PrecedentChainDepth = 3
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return home + "/.config/lexrag/data"
}
