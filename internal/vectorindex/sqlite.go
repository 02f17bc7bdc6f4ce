package vectorindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/casefile-labs/lexrag/internal/store"
)

// SQLiteIndex performs exact cosine search over embedding rows already
// persisted in the relational store. There is no separate index state,
// so IndexChunks and DeleteDocument are no-ops: the store upsert and
// cascade keep it current.
type SQLiteIndex struct {
	store *store.Store
}

// NewSQLiteIndex creates an exact-search index backed by the store.
func NewSQLiteIndex(st *store.Store) *SQLiteIndex {
	return &SQLiteIndex{store: st}
}

// IndexChunks is a no-op; rows are searchable as soon as they are
// upserted.
func (i *SQLiteIndex) IndexChunks(_ context.Context, _ []store.EmbeddingRecord) error {
	return nil
}

// Search scans every matching row of the tenant and ranks by cosine
// similarity. Exact, not approximate.
func (i *SQLiteIndex) Search(ctx context.Context, tenantID string, query []float32, k int, threshold float64, filter store.CandidateFilter) ([]Hit, error) {
	if len(query) == 0 {
		return nil, ErrInvalidQuery
	}
	if k <= 0 {
		return nil, nil
	}

	candidates, err := i.store.VectorCandidates(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}

	hits := make([]Hit, 0, len(candidates))
	for _, rec := range candidates {
		sim := cosineSimilarity(query, rec.Vector)
		if sim < threshold {
			continue
		}
		hits = append(hits, Hit{Record: rec, Similarity: sim})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Similarity > hits[b].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteDocument is a no-op; the store cascade removes the rows.
func (i *SQLiteIndex) DeleteDocument(_ context.Context, _, _ string) error {
	return nil
}

// Close is a no-op; the store owns the database connection.
func (i *SQLiteIndex) Close() error {
	return nil
}
