// Package ingest drives the per-document indexing pipeline: chunk,
// embed, optionally encrypt, persist, rebuild the summary tree, and
// extract relationship edges.
//
// Within one document the pipeline is sequential because the summary
// tree depends on completed chunks; distinct documents may ingest
// concurrently. All writes are idempotent upserts keyed by stable
// positional identifiers, so retries after partial failure are safe.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/casefile-labs/lexrag/internal/chunker"
	"github.com/casefile-labs/lexrag/internal/crypto"
	"github.com/casefile-labs/lexrag/internal/embeddings"
	"github.com/casefile-labs/lexrag/internal/store"
	"github.com/casefile-labs/lexrag/internal/summary"
	"github.com/casefile-labs/lexrag/internal/tenant"
	"github.com/casefile-labs/lexrag/internal/vectorindex"
)

var (
	// ErrEmptyDocument indicates the document has no id or text.
	ErrEmptyDocument = errors.New("document id and text are required")
)

// embedBatchSize bounds texts per embedding request.
const embedBatchSize = 32

// embedConcurrency bounds concurrent embedding batches per document.
const embedConcurrency = 4

// citationEdgeConfidence is assigned to edges extracted from chunk
// cross-references; extraction is heuristic, not verified.
const citationEdgeConfidence = 0.6

// Document is the unit of ingestion.
type Document struct {
	ID        string
	Name      string
	Type      string
	Text      string
	CreatedAt time.Time
	Author    string
	MatterID  string
}

// Matter describes the case or matter a document belongs to.
type Matter struct {
	ID           string
	Name         string
	Type         string
	PracticeArea string
	Jurisdiction string
}

// MatterSource resolves matter descriptors from an upstream system.
type MatterSource interface {
	Matter(ctx context.Context, tenantID, matterID string) (*Matter, error)
}

// Result reports what one ingest actually stored. Partial success is
// normal: chunks whose embedding failed are skipped and counted, never
// fatal to the batch.
type Result struct {
	ChunkCount     int               `json:"chunk_count"`
	EmbeddedChunks int               `json:"embedded_chunks"`
	SkippedChunks  int               `json:"skipped_chunks"`
	FailedChunks   int               `json:"failed_chunks"`
	TokensUsed     int               `json:"tokens_used"`
	EdgeCount      int               `json:"edge_count"`
	Category       string            `json:"category"`
	Tree           summary.TreeStats `json:"tree"`
}

// Deps are the collaborators the ingest service is built from. Crypto,
// Generator-backed summary building, and Matters are optional.
type Deps struct {
	Store    *store.Store
	Index    vectorindex.Index
	Embedder embeddings.Provider
	Chunker  *chunker.Chunker
	Summary  *summary.Builder
	Crypto   *crypto.Service
	Matters  MatterSource
	Logger   *zap.Logger
}

// Service runs the ingest pipeline.
type Service struct {
	store    *store.Store
	index    vectorindex.Index
	embedder embeddings.Provider
	chunker  *chunker.Chunker
	summary  *summary.Builder
	crypto   *crypto.Service
	matters  MatterSource
	logger   *zap.Logger
	metrics  *Metrics
}

// NewService creates the ingest service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    deps.Store,
		index:    deps.Index,
		embedder: deps.Embedder,
		chunker:  deps.Chunker,
		summary:  deps.Summary,
		crypto:   deps.Crypto,
		matters:  deps.Matters,
		logger:   logger.Named("ingest"),
		metrics:  NewMetrics(),
	}
}

// IndexDocument chunks, embeds, and persists one document, then
// rebuilds its summary tree and refreshes relationship edges. Text
// below the minimum chunk size yields a zero-chunk result, not an
// error. Re-indexing unchanged text is idempotent.
func (s *Service) IndexDocument(ctx context.Context, doc Document, matter *Matter) (*Result, error) {
	info, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if doc.ID == "" || doc.Text == "" {
		return nil, ErrEmptyDocument
	}

	start := time.Now()
	result := &Result{}

	if matter == nil && doc.MatterID != "" && s.matters != nil {
		matter, err = s.matters.Matter(ctx, info.TenantID, doc.MatterID)
		if err != nil {
			s.logger.Warn("resolving matter failed, indexing without matter context",
				zap.String("tenant_id", info.TenantID),
				zap.String("matter_id", doc.MatterID), zap.Error(err))
			matter = nil
		}
	}

	chunkRes := s.chunker.Chunk(chunkerDocument(doc), chunkerMatter(matter), doc.Text)
	result.ChunkCount = len(chunkRes.Chunks)
	result.Category = string(chunkRes.Category)
	if len(chunkRes.Chunks) == 0 {
		return result, nil
	}

	existing, err := s.store.ContentHashes(ctx, info.TenantID, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("loading content hashes: %w", err)
	}

	var changed []chunker.Chunk
	hashes := make(map[int]string, len(chunkRes.Chunks))
	for _, chunk := range chunkRes.Chunks {
		hash := contentHash(chunk.Text)
		hashes[chunk.Position] = hash
		if existing[chunk.Position] == hash {
			result.SkippedChunks++
			continue
		}
		changed = append(changed, chunk)
	}

	records, tokens, failed := s.embedChunks(ctx, info.TenantID, doc, matter, chunkRes, changed, hashes)
	result.TokensUsed = tokens
	result.FailedChunks = failed
	result.EmbeddedChunks = len(records)

	if len(records) > 0 {
		if s.crypto != nil {
			for i := range records {
				sealed, err := s.crypto.SealVector(info.TenantID, records[i].Vector)
				if err != nil {
					return nil, fmt.Errorf("sealing vector: %w", err)
				}
				records[i].Ciphertext = sealed
			}
		}
		if err := s.store.UpsertEmbeddings(ctx, records); err != nil {
			return nil, fmt.Errorf("persisting embeddings: %w", err)
		}
		if err := s.index.IndexChunks(ctx, records); err != nil {
			return nil, fmt.Errorf("indexing embeddings: %w", err)
		}
	}

	nodes, stats, err := s.summary.Build(ctx, info.TenantID, doc.ID, chunkRes.Chunks)
	if err != nil {
		return nil, fmt.Errorf("building summary tree: %w", err)
	}
	if err := s.store.ReplaceSummaryNodes(ctx, info.TenantID, doc.ID, nodes); err != nil {
		return nil, fmt.Errorf("persisting summary tree: %w", err)
	}
	result.Tree = stats

	// Relationship extraction is a best-effort side write: failures are
	// logged with an explicit result, never surfaced to the caller.
	edges, err := s.extractEdges(ctx, info.TenantID, doc.ID, chunkRes.Chunks)
	if err != nil {
		s.logger.Warn("relationship extraction failed",
			zap.String("tenant_id", info.TenantID), zap.String("document_id", doc.ID), zap.Error(err))
	} else {
		result.EdgeCount = edges
	}

	s.metrics.RecordIngest(ctx, result.Category, time.Since(start), result.ChunkCount, result.FailedChunks)
	s.logger.Info("document indexed",
		zap.String("tenant_id", info.TenantID),
		zap.String("document_id", doc.ID),
		zap.String("category", result.Category),
		zap.Int("chunks", result.ChunkCount),
		zap.Int("embedded", result.EmbeddedChunks),
		zap.Int("skipped", result.SkippedChunks),
		zap.Int("failed", result.FailedChunks),
		zap.Int("edges", result.EdgeCount))

	return result, nil
}

// DeleteDocumentIndex removes every trace of a document: embeddings,
// full-text rows, summary nodes, relationship edges, and vector index
// entries.
func (s *Service) DeleteDocumentIndex(ctx context.Context, documentID string) error {
	info, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	if documentID == "" {
		return ErrEmptyDocument
	}

	if err := s.store.DeleteDocument(ctx, info.TenantID, documentID); err != nil {
		return fmt.Errorf("deleting document rows: %w", err)
	}
	if err := s.index.DeleteDocument(ctx, info.TenantID, documentID); err != nil {
		return fmt.Errorf("deleting index entries: %w", err)
	}

	s.logger.Info("document index deleted",
		zap.String("tenant_id", info.TenantID), zap.String("document_id", documentID))
	return nil
}

// embedChunks embeds changed chunks in bounded concurrent batches. A
// failing batch is logged and its chunks skipped; the rest of the
// document still indexes.
func (s *Service) embedChunks(ctx context.Context, tenantID string, doc Document, matter *Matter, chunkRes chunker.Result, changed []chunker.Chunk, hashes map[int]string) ([]store.EmbeddingRecord, int, int) {
	if len(changed) == 0 {
		return nil, 0, 0
	}

	type batchResult struct {
		vectors [][]float32
		tokens  int
		err     error
	}

	batches := make([][]chunker.Chunk, 0, (len(changed)+embedBatchSize-1)/embedBatchSize)
	for i := 0; i < len(changed); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(changed) {
			end = len(changed)
		}
		batches = append(batches, changed[i:end])
	}

	results := make([]batchResult, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, batch := range batches {
		g.Go(func() error {
			texts := make([]string, len(batch))
			for j, chunk := range batch {
				texts[j] = chunk.ContextText
			}
			res, err := s.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				results[i] = batchResult{err: err}
				return nil
			}
			if len(res.Vectors) != len(batch) {
				results[i] = batchResult{err: fmt.Errorf("%w: got %d vectors for %d texts",
					embeddings.ErrEmbeddingFailed, len(res.Vectors), len(batch))}
				return nil
			}
			results[i] = batchResult{vectors: res.Vectors, tokens: res.TokensUsed}
			return nil
		})
	}
	_ = g.Wait()

	var records []store.EmbeddingRecord
	var tokens, failed int
	for i, batch := range batches {
		res := results[i]
		if res.err != nil {
			failed += len(batch)
			s.logger.Warn("embedding batch failed, skipping chunks",
				zap.String("tenant_id", tenantID),
				zap.String("document_id", doc.ID),
				zap.Int("batch_size", len(batch)), zap.Error(res.err))
			continue
		}
		tokens += res.tokens
		perChunkTokens := res.tokens / len(batch)
		for j, chunk := range batch {
			records = append(records, store.EmbeddingRecord{
				ID:          uuid.NewString(),
				TenantID:    tenantID,
				DocumentID:  doc.ID,
				Position:    chunk.Position,
				RawText:     chunk.Text,
				Vector:      res.vectors[j],
				ContentHash: hashes[chunk.Position],
				Metadata:    chunkMetadata(doc, matter, chunkRes, chunk, perChunkTokens),
			})
		}
	}
	return records, tokens, failed
}

// extractEdges turns chunk cross-references into relationship edges by
// resolving each referenced citation or term to another document of
// the tenant via full-text search. Section references stay inside
// their own document and are skipped.
func (s *Service) extractEdges(ctx context.Context, tenantID, documentID string, chunks []chunker.Chunk) (int, error) {
	var edges []store.Edge
	seen := map[string]bool{}

	for _, chunk := range chunks {
		for _, ref := range chunk.CrossRefs {
			if ref.Kind == chunker.RefSection {
				continue
			}

			hits, err := s.store.KeywordSearch(ctx, tenantID, ref.Target, 1)
			if err != nil {
				return 0, fmt.Errorf("resolving reference %q: %w", ref.Target, err)
			}
			if len(hits) == 0 || hits[0].DocumentID == documentID {
				continue
			}

			edgeType := store.EdgeReferences
			if ref.Kind == chunker.RefCase || ref.Kind == chunker.RefStatute {
				edgeType = store.EdgeCites
			}

			key := hits[0].DocumentID + "|" + edgeType
			if seen[key] {
				continue
			}
			seen[key] = true

			edges = append(edges, store.Edge{
				ID:               uuid.NewString(),
				TenantID:         tenantID,
				SourceDocumentID: documentID,
				TargetDocumentID: hits[0].DocumentID,
				Type:             edgeType,
				Confidence:       citationEdgeConfidence,
				ContextSnippet:   ref.Context,
			})
		}
	}

	if err := s.store.UpsertEdges(ctx, edges); err != nil {
		return 0, fmt.Errorf("persisting edges: %w", err)
	}
	return len(edges), nil
}

func chunkerDocument(doc Document) chunker.DocumentInfo {
	return chunker.DocumentInfo{
		ID:        doc.ID,
		Name:      doc.Name,
		Type:      doc.Type,
		CreatedAt: doc.CreatedAt,
		Author:    doc.Author,
	}
}

func chunkerMatter(matter *Matter) *chunker.MatterInfo {
	if matter == nil {
		return nil
	}
	return &chunker.MatterInfo{
		Name:         matter.Name,
		Type:         matter.Type,
		PracticeArea: matter.PracticeArea,
		Jurisdiction: matter.Jurisdiction,
	}
}

func chunkMetadata(doc Document, matter *Matter, chunkRes chunker.Result, chunk chunker.Chunk, tokens int) store.ChunkMetadata {
	md := store.ChunkMetadata{
		DocumentType:  string(chunkRes.Category),
		DocumentName:  doc.Name,
		MatterID:      doc.MatterID,
		Jurisdiction:  chunkRes.Jurisdiction,
		SectionMarker: chunk.SectionMarker,
		SemanticType:  string(chunk.SemanticType),
		CrossRefCount: len(chunk.CrossRefs),
		TokensUsed:    tokens,
	}
	if !doc.CreatedAt.IsZero() {
		md.Year = doc.CreatedAt.Year()
	}
	if md.Jurisdiction == "" && matter != nil {
		md.Jurisdiction = matter.Jurisdiction
	}
	return md
}

// contentHash hashes raw chunk text for idempotent upserts.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
