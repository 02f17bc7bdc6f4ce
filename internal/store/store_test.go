package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(tenant, doc string, position int, text string) EmbeddingRecord {
	return EmbeddingRecord{
		ID:          uuid.NewString(),
		TenantID:    tenant,
		DocumentID:  doc,
		Position:    position,
		RawText:     text,
		Vector:      []float32{0.1, 0.2, 0.3},
		ContentHash: fmt.Sprintf("hash-%s-%d", doc, position),
		Metadata: ChunkMetadata{
			DocumentType: "contract",
			MatterID:     "matter-1",
		},
	}
}

func TestNewReopens(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir)
	require.NoError(t, err)
	path := s.Path()
	require.NoError(t, s.Close())

	// Reopening must re-run migration bookkeeping without error.
	s, err = New(dir)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	require.NoError(t, s.Close())
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New("")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpsertEmbeddingsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []EmbeddingRecord{
		testRecord("tenant-a", "doc-1", 0, "indemnification obligations of the supplier"),
		testRecord("tenant-a", "doc-1", 1, "governing law of the state of Delaware"),
	}
	require.NoError(t, s.UpsertEmbeddings(ctx, records))

	first, err := s.Embedding(ctx, "tenant-a", "doc-1", 0)
	require.NoError(t, err)

	// Re-ingest with new ids for the same positions.
	again := []EmbeddingRecord{
		testRecord("tenant-a", "doc-1", 0, "indemnification obligations of the supplier"),
		testRecord("tenant-a", "doc-1", 1, "governing law of the state of Delaware"),
	}
	require.NoError(t, s.UpsertEmbeddings(ctx, again))

	hashes, err := s.ContentHashes(ctx, "tenant-a", "doc-1")
	require.NoError(t, err)
	assert.Len(t, hashes, 2)

	// Conflicting rows keep their original id.
	after, err := s.Embedding(ctx, "tenant-a", "doc-1", 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, after.ID)

	// The full-text index holds exactly one row per position.
	hits, err := s.KeywordSearch(ctx, "tenant-a", "indemnification", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocumentID)
}

func TestVectorCandidatesTenantScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEmbeddings(ctx, []EmbeddingRecord{
		testRecord("tenant-a", "doc-1", 0, "alpha"),
		testRecord("tenant-b", "doc-2", 0, "beta"),
	}))

	records, err := s.VectorCandidates(ctx, "tenant-a", CandidateFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "doc-1", records[0].DocumentID)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, records[0].Vector)
}

func TestVectorCandidatesFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	contract := testRecord("tenant-a", "doc-1", 0, "contract text")
	caseLaw := testRecord("tenant-a", "doc-2", 0, "opinion text")
	caseLaw.Metadata.DocumentType = "case_law"
	caseLaw.Metadata.MatterID = "matter-2"
	require.NoError(t, s.UpsertEmbeddings(ctx, []EmbeddingRecord{contract, caseLaw}))

	records, err := s.VectorCandidates(ctx, "tenant-a", CandidateFilter{
		DocumentTypes: []string{"case_law"},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "doc-2", records[0].DocumentID)

	records, err = s.VectorCandidates(ctx, "tenant-a", CandidateFilter{MatterID: "matter-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "doc-1", records[0].DocumentID)

	records, err = s.VectorCandidates(ctx, "tenant-a", CandidateFilter{DocumentIDs: []string{"doc-2"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "doc-2", records[0].DocumentID)
}

func TestKeywordSearchPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEmbeddings(ctx, []EmbeddingRecord{
		testRecord("tenant-a", "doc-1", 0, "the indemnification cap shall not exceed the fees paid"),
		testRecord("tenant-a", "doc-1", 1, "this section covers termination for convenience"),
	}))

	// Final term matches as a prefix.
	hits, err := s.KeywordSearch(ctx, "tenant-a", "indemnif", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Position)
	assert.Greater(t, hits[0].Score, 0.0)

	hits, err = s.KeywordSearch(ctx, "tenant-a", "", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestReplaceSummaryNodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []SummaryNode{
		{ID: uuid.NewString(), Level: 0, Summary: "leaf", ChunkStart: 0, ChunkEnd: 0},
		{ID: uuid.NewString(), Level: 1, Summary: "section summary", Vector: []float32{1, 0}, ChunkStart: 0, ChunkEnd: 7},
	}
	require.NoError(t, s.ReplaceSummaryNodes(ctx, "tenant-a", "doc-1", first))

	second := []SummaryNode{
		{ID: uuid.NewString(), Level: 1, Summary: "rebuilt summary", Vector: []float32{0, 1}, ChunkStart: 0, ChunkEnd: 3},
	}
	require.NoError(t, s.ReplaceSummaryNodes(ctx, "tenant-a", "doc-1", second))

	nodes, err := s.SummaryNodes(ctx, "tenant-a", "doc-1")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "rebuilt summary", nodes[0].Summary)
}

func TestSummaryCandidatesSkipLeaves(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	nodes := []SummaryNode{
		{ID: uuid.NewString(), Level: 0, Summary: "leaf without vector"},
		{ID: uuid.NewString(), Level: 1, Summary: "section", Vector: []float32{1, 0}, ChildIDs: []string{"a", "b"}},
		{ID: uuid.NewString(), Level: 2, Summary: "document", Vector: []float32{0, 1}},
	}
	require.NoError(t, s.ReplaceSummaryNodes(ctx, "tenant-a", "doc-1", nodes))

	candidates, err := s.SummaryCandidates(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		assert.GreaterOrEqual(t, c.Level, 1)
		assert.NotEmpty(t, c.Vector)
	}

	candidates, err = s.SummaryCandidates(ctx, "tenant-b")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestUpsertEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	edge := Edge{
		ID:               uuid.NewString(),
		TenantID:         "tenant-a",
		SourceDocumentID: "doc-1",
		TargetDocumentID: "doc-2",
		Type:             EdgeCites,
		Confidence:       0.5,
		ContextSnippet:   "see Smith v. Jones",
	}
	require.NoError(t, s.UpsertEdges(ctx, []Edge{edge}))

	// Same key with higher confidence refreshes in place.
	edge.ID = uuid.NewString()
	edge.Confidence = 0.9
	require.NoError(t, s.UpsertEdges(ctx, []Edge{edge}))

	edges, err := s.OutgoingEdges(ctx, "tenant-a", "doc-1")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.InDelta(t, 0.9, edges[0].Confidence, 1e-9)

	edges, err = s.OutgoingEdges(ctx, "tenant-b", "doc-1")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEmbeddings(ctx, []EmbeddingRecord{
		testRecord("tenant-a", "doc-1", 0, "target text"),
		testRecord("tenant-a", "doc-2", 0, "survivor text"),
	}))
	require.NoError(t, s.ReplaceSummaryNodes(ctx, "tenant-a", "doc-1", []SummaryNode{
		{ID: uuid.NewString(), Level: 1, Summary: "s", Vector: []float32{1}},
	}))
	require.NoError(t, s.UpsertEdges(ctx, []Edge{
		{ID: uuid.NewString(), TenantID: "tenant-a", SourceDocumentID: "doc-1", TargetDocumentID: "doc-2", Type: EdgeCites},
		{ID: uuid.NewString(), TenantID: "tenant-a", SourceDocumentID: "doc-2", TargetDocumentID: "doc-1", Type: EdgeReferences},
	}))

	require.NoError(t, s.DeleteDocument(ctx, "tenant-a", "doc-1"))

	hashes, err := s.ContentHashes(ctx, "tenant-a", "doc-1")
	require.NoError(t, err)
	assert.Empty(t, hashes)

	nodes, err := s.SummaryNodes(ctx, "tenant-a", "doc-1")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	hits, err := s.KeywordSearch(ctx, "tenant-a", "target", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Edges where the document is source or target are both gone.
	edges, err := s.OutgoingEdges(ctx, "tenant-a", "doc-1")
	require.NoError(t, err)
	assert.Empty(t, edges)
	edges, err = s.OutgoingEdges(ctx, "tenant-a", "doc-2")
	require.NoError(t, err)
	assert.Empty(t, edges)

	// Unrelated document survives.
	hashes, err = s.ContentHashes(ctx, "tenant-a", "doc-2")
	require.NoError(t, err)
	assert.Len(t, hashes, 1)
}

func TestAffinities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := Affinity{
		TenantID:   "tenant-a",
		UserID:     "user-1",
		Kind:       AffinityDocumentType,
		Value:      "contract",
		Confidence: 0.4,
	}
	require.NoError(t, s.UpsertAffinity(ctx, a))

	a.Confidence = 0.8
	require.NoError(t, s.UpsertAffinity(ctx, a))

	got, err := s.Affinities(ctx, "tenant-a", "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.8, got[0].Confidence, 1e-9)

	a.Confidence = 1.7
	require.NoError(t, s.UpsertAffinity(ctx, a))
	got, err = s.Affinities(ctx, "tenant-a", "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Confidence, 1e-9)

	got, err = s.Affinities(ctx, "tenant-a", "user-2")
	require.NoError(t, err)
	assert.Empty(t, got)

	err = s.UpsertAffinity(ctx, Affinity{TenantID: "tenant-a"})
	require.ErrorIs(t, err, ErrInvalidInput)
}
