// Package vectorindex provides pluggable nearest-neighbor search over
// chunk embeddings.
//
// Two backends are supported: "sqlite" (exact cosine search over rows in
// the relational store, the default) and "chromem" (embedded chromem-go
// persistent index). Both are tenant-scoped; a search never returns
// another tenant's chunks.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/casefile-labs/lexrag/internal/config"
	"github.com/casefile-labs/lexrag/internal/store"
)

var (
	// ErrInvalidQuery indicates an empty or zero-length query vector.
	ErrInvalidQuery = errors.New("invalid query vector")
)

// Hit is one nearest-neighbor match with its cosine similarity.
type Hit struct {
	Record     store.EmbeddingRecord
	Similarity float64
}

// Index is a tenant-scoped nearest-neighbor index over chunk
// embeddings.
type Index interface {
	// IndexChunks makes a batch of freshly embedded chunks searchable.
	IndexChunks(ctx context.Context, records []store.EmbeddingRecord) error

	// Search returns up to k chunks above the similarity threshold,
	// most similar first.
	Search(ctx context.Context, tenantID string, query []float32, k int, threshold float64, filter store.CandidateFilter) ([]Hit, error)

	// DeleteDocument removes a document's chunks from the index.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error

	// Close releases backend resources.
	Close() error
}

// New creates an Index based on the configured provider.
func New(cfg config.VectorConfig, st *store.Store, logger *zap.Logger) (Index, error) {
	switch cfg.Provider {
	case "sqlite", "":
		return NewSQLiteIndex(st), nil
	case "chromem":
		return NewChromemIndex(cfg.ChromemPath, logger)
	default:
		return nil, fmt.Errorf("unsupported vector provider: %s (supported: sqlite, chromem)", cfg.Provider)
	}
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// or 0 when either has no magnitude or the dimensions differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
