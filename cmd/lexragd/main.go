// Lexragd is the legal document retrieval daemon.
//
// This binary starts the lexrag HTTP server with full service
// initialization: SQLite storage, the vector index, embedding and
// generation providers, per-tenant encryption, and the ingest and
// retrieval pipelines.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	lexragd
//
//	# Configure via file and environment
//	lexragd --config /etc/lexrag/config.yaml
//	SERVER_PORT=9090 EMBEDDINGS_API_KEY=sk-... lexragd
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/casefile-labs/lexrag/internal/chunker"
	"github.com/casefile-labs/lexrag/internal/config"
	"github.com/casefile-labs/lexrag/internal/crypto"
	"github.com/casefile-labs/lexrag/internal/embeddings"
	"github.com/casefile-labs/lexrag/internal/generation"
	"github.com/casefile-labs/lexrag/internal/ingest"
	"github.com/casefile-labs/lexrag/internal/logging"
	"github.com/casefile-labs/lexrag/internal/retrieval"
	"github.com/casefile-labs/lexrag/internal/server"
	"github.com/casefile-labs/lexrag/internal/store"
	"github.com/casefile-labs/lexrag/internal/summary"
	"github.com/casefile-labs/lexrag/internal/telemetry"
	"github.com/casefile-labs/lexrag/internal/vectorindex"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "lexragd",
	Short:        "Legal document retrieval daemon",
	Long:         "lexragd indexes legal documents into a tenant-isolated hybrid search index and serves retrieval queries over HTTP.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("lexragd by Casefile Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// run initializes every dependency, starts the HTTP server, and blocks
// until the context is cancelled, then shuts down gracefully.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	tel := telemetry.New(ctx, cfg.Telemetry, version, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	st, err := store.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close() //nolint:errcheck

	idx, err := vectorindex.New(cfg.Vector, st, logger)
	if err != nil {
		return fmt.Errorf("creating vector index: %w", err)
	}
	defer idx.Close() //nolint:errcheck

	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey,
		Dimension: cfg.Embeddings.Dimension,
	})
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	defer embedder.Close() //nolint:errcheck

	generator, err := generation.NewProvider(generation.Config{
		Enabled:   cfg.Generation.Enabled,
		BaseURL:   cfg.Generation.BaseURL,
		Model:     cfg.Generation.Model,
		APIKey:    cfg.Generation.APIKey,
		MaxTokens: cfg.Generation.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("creating generation provider: %w", err)
	}
	if generator != nil {
		defer generator.Close() //nolint:errcheck
	} else {
		logger.Info("generation disabled, summary trees use extractive summaries")
	}

	enc, err := crypto.NewService(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryption service: %w", err)
	}
	if enc == nil {
		logger.Info("vector encryption disabled")
	}

	ing := ingest.NewService(ingest.Deps{
		Store:    st,
		Index:    idx,
		Embedder: embedder,
		Chunker: chunker.New(chunker.Config{
			TargetSize:    cfg.Chunking.TargetSize,
			MaxSize:       cfg.Chunking.MaxSize,
			MinSize:       cfg.Chunking.MinSize,
			Overlap:       cfg.Chunking.Overlap,
			MergeDistance: cfg.Chunking.MergeDistance,
		}, nil, logger),
		Summary: summary.NewBuilder(summary.Config{
			GroupSize:       cfg.Summary.GroupSize,
			SectionWordCap:  cfg.Summary.SectionWordCap,
			DocumentWordCap: cfg.Summary.DocumentWordCap,
			LeafStorageCap:  cfg.Summary.LeafStorageCap,
		}, generator, embedder, logger),
		Crypto: enc,
		Logger: logger,
	})
	ret := retrieval.NewService(cfg.Retrieval, st, idx, embedder, enc, logger)

	srv, err := server.NewServer(cfg.Server, ing, ret, enc, logger)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("lexragd started",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("data_dir", cfg.Storage.Path),
		zap.String("vector_provider", cfg.Vector.Provider))

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
