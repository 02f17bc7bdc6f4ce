package vectorindex

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/casefile-labs/lexrag/internal/store"
)

// ChromemIndex is an embedded chromem-go index with one collection per
// tenant. Embeddings are computed upstream and passed in, so the
// collection never calls out to an embedding function.
type ChromemIndex struct {
	db     *chromem.DB
	logger *zap.Logger
}

// NewChromemIndex opens (or creates) a persistent chromem database at
// path.
func NewChromemIndex(path string, logger *zap.Logger) (*ChromemIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("chromem path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("chromem index initialized", zap.String("path", path))
	return &ChromemIndex{db: db, logger: logger}, nil
}

// noEmbed rejects any attempt to embed inside chromem; vectors always
// arrive precomputed.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding inside the index is not supported")
}

func collectionName(tenantID string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, tenantID)
	return "tenant-" + sanitized
}

func chunkDocumentID(documentID string, position int) string {
	return fmt.Sprintf("chunk:%s:%d", documentID, position)
}

func (i *ChromemIndex) collection(tenantID string) (*chromem.Collection, error) {
	col, err := i.db.GetOrCreateCollection(collectionName(tenantID), nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection: %w", err)
	}
	return col, nil
}

// IndexChunks upserts a batch of embedded chunks into the tenant's
// collection.
func (i *ChromemIndex) IndexChunks(ctx context.Context, records []store.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	byTenant := make(map[string][]chromem.Document)
	for _, rec := range records {
		if rec.TenantID == "" {
			return fmt.Errorf("%w: record requires a tenant id", store.ErrInvalidInput)
		}
		byTenant[rec.TenantID] = append(byTenant[rec.TenantID], chromem.Document{
			ID:        chunkDocumentID(rec.DocumentID, rec.Position),
			Content:   rec.RawText,
			Embedding: rec.Vector,
			Metadata: map[string]string{
				"document_id":    rec.DocumentID,
				"position":       strconv.Itoa(rec.Position),
				"document_type":  rec.Metadata.DocumentType,
				"matter_id":      rec.Metadata.MatterID,
				"jurisdiction":   rec.Metadata.Jurisdiction,
				"year":           strconv.Itoa(rec.Metadata.Year),
				"section_marker": rec.Metadata.SectionMarker,
				"semantic_type":  rec.Metadata.SemanticType,
			},
		})
	}

	for tenantID, docs := range byTenant {
		col, err := i.collection(tenantID)
		if err != nil {
			return err
		}
		if err := col.AddDocuments(ctx, docs, 1); err != nil {
			return fmt.Errorf("adding documents: %w", err)
		}
	}
	return nil
}

// Search queries the tenant's collection by embedding, post-filtering
// on metadata the chromem where clause cannot express.
func (i *ChromemIndex) Search(ctx context.Context, tenantID string, query []float32, k int, threshold float64, filter store.CandidateFilter) ([]Hit, error) {
	if len(query) == 0 {
		return nil, ErrInvalidQuery
	}
	if k <= 0 {
		return nil, nil
	}

	col, err := i.collection(tenantID)
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	var where map[string]string
	if filter.MatterID != "" {
		where = map[string]string{"matter_id": filter.MatterID}
	}

	// Over-fetch so post-filtering still fills k where possible.
	n := k * 4
	if n > count {
		n = count
	}

	results, err := col.QueryEmbedding(ctx, query, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		sim := float64(res.Similarity)
		if sim < threshold {
			continue
		}
		rec := resultToRecord(tenantID, res)
		if !matchesFilter(rec, filter) {
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

// DeleteDocument removes every chunk of a document from the tenant's
// collection.
func (i *ChromemIndex) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	col, err := i.collection(tenantID)
	if err != nil {
		return err
	}
	if col.Count() == 0 {
		return nil
	}
	if err := col.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// Close is a no-op; chromem persists on write.
func (i *ChromemIndex) Close() error {
	return nil
}

func resultToRecord(tenantID string, res chromem.Result) store.EmbeddingRecord {
	position, _ := strconv.Atoi(res.Metadata["position"])
	year, _ := strconv.Atoi(res.Metadata["year"])
	return store.EmbeddingRecord{
		ID:         res.ID,
		TenantID:   tenantID,
		DocumentID: res.Metadata["document_id"],
		Position:   position,
		RawText:    res.Content,
		Vector:     res.Embedding,
		Metadata: store.ChunkMetadata{
			DocumentType:  res.Metadata["document_type"],
			MatterID:      res.Metadata["matter_id"],
			Jurisdiction:  res.Metadata["jurisdiction"],
			Year:          year,
			SectionMarker: res.Metadata["section_marker"],
			SemanticType:  res.Metadata["semantic_type"],
		},
	}
}

func matchesFilter(rec store.EmbeddingRecord, filter store.CandidateFilter) bool {
	if len(filter.DocumentTypes) > 0 {
		found := false
		for _, t := range filter.DocumentTypes {
			if rec.Metadata.DocumentType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(filter.DocumentIDs) > 0 {
		found := false
		for _, id := range filter.DocumentIDs {
			if rec.DocumentID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
