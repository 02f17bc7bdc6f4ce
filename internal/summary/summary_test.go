package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casefile-labs/lexrag/internal/chunker"
	"github.com/casefile-labs/lexrag/internal/embeddings"
	"github.com/casefile-labs/lexrag/internal/store"
)

type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) (*embeddings.Result, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, float32(len(texts[i]) % 7)}
	}
	return &embeddings.Result{Vectors: vectors, TokensUsed: len(texts)}, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	return []float32{1, float32(len(text) % 7)}, nil
}

func (f *fakeEmbedder) Dimension() int { return 2 }
func (f *fakeEmbedder) Close() error   { return nil }

type fakeGenerator struct {
	err   error
	calls int
}

func (f *fakeGenerator) Complete(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("generated summary %d", f.calls), nil
}

func (f *fakeGenerator) Close() error { return nil }

// makeChunks produces n chunks whose section markers follow the given
// run lengths.
func makeChunks(runs map[string]int, order []string) []chunker.Chunk {
	var chunks []chunker.Chunk
	position := 0
	for _, marker := range order {
		for i := 0; i < runs[marker]; i++ {
			chunks = append(chunks, chunker.Chunk{
				DocumentID:    "doc-1",
				Position:      position,
				Text:          fmt.Sprintf("The parties shall perform clause %d of %s.", position, marker),
				SectionMarker: marker,
			})
			position++
		}
	}
	return chunks
}

func TestBuildSkipsShortDocuments(t *testing.T) {
	b := NewBuilder(DefaultConfig(), nil, &fakeEmbedder{}, zap.NewNop())

	chunks := makeChunks(map[string]int{"ARTICLE I": 15}, []string{"ARTICLE I"})
	nodes, stats, err := b.Build(context.Background(), "tenant-a", "doc-1", chunks)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.Zero(t, stats.Levels)
}

func TestBuildThreeMarkerContract(t *testing.T) {
	gen := &fakeGenerator{}
	b := NewBuilder(DefaultConfig(), gen, &fakeEmbedder{}, zap.NewNop())

	order := []string{"ARTICLE I", "ARTICLE II", "ARTICLE III"}
	chunks := makeChunks(map[string]int{"ARTICLE I": 7, "ARTICLE II": 7, "ARTICLE III": 6}, order)
	require.Len(t, chunks, 20)

	nodes, stats, err := b.Build(context.Background(), "tenant-a", "doc-1", chunks)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Levels)
	assert.Equal(t, 20, stats.NodesPerLevel[0])
	assert.Equal(t, 3, stats.NodesPerLevel[1])
	assert.Equal(t, 1, stats.NodesPerLevel[2])
	require.Len(t, nodes, 24)

	byLevel := map[int][]store.SummaryNode{}
	for _, n := range nodes {
		byLevel[n.Level] = append(byLevel[n.Level], n)
	}

	// Leaves carry no vector and mirror chunk positions.
	for i, leaf := range byLevel[0] {
		assert.Empty(t, leaf.Vector)
		assert.Equal(t, i, leaf.ChunkStart)
		assert.Equal(t, i, leaf.ChunkEnd)
	}

	// One level-1 node per marker-aligned group, each with a vector and
	// its children.
	markers := make([]string, 0, 3)
	for _, section := range byLevel[1] {
		markers = append(markers, section.SectionMarker)
		assert.NotEmpty(t, section.Vector)
		assert.NotEmpty(t, section.ChildIDs)
		assert.LessOrEqual(t, section.ChunkEnd-section.ChunkStart+1, 8)
	}
	assert.ElementsMatch(t, order, markers)

	// The level-2 node references every level-1 node.
	root := byLevel[2][0]
	assert.NotEmpty(t, root.Vector)
	assert.Equal(t, 0, root.ChunkStart)
	assert.Equal(t, 19, root.ChunkEnd)
	require.Len(t, root.ChildIDs, 3)
	for _, section := range byLevel[1] {
		assert.Contains(t, root.ChildIDs, section.ID)
	}
}

func TestBuildSplitsOversizedMarkerRuns(t *testing.T) {
	b := NewBuilder(DefaultConfig(), nil, &fakeEmbedder{}, zap.NewNop())

	chunks := makeChunks(map[string]int{"ARTICLE I": 20}, []string{"ARTICLE I"})
	_, stats, err := b.Build(context.Background(), "tenant-a", "doc-1", chunks)
	require.NoError(t, err)

	// 20 chunks under one marker split at the group cap: 8 + 8 + 4.
	assert.Equal(t, 3, stats.NodesPerLevel[1])
}

func TestBuildFallsBackWhenGeneratorFails(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model overloaded")}
	b := NewBuilder(DefaultConfig(), gen, &fakeEmbedder{}, zap.NewNop())

	chunks := makeChunks(map[string]int{"ARTICLE I": 10, "ARTICLE II": 10}, []string{"ARTICLE I", "ARTICLE II"})
	nodes, _, err := b.Build(context.Background(), "tenant-a", "doc-1", chunks)
	require.NoError(t, err)

	for _, n := range nodes {
		if n.Level >= 1 {
			// Extractive fallback keeps obligation language.
			assert.Contains(t, n.Summary, "shall")
		}
	}
}

func TestBuildSurvivesEmbeddingFailure(t *testing.T) {
	b := NewBuilder(DefaultConfig(), nil, &fakeEmbedder{fail: true}, zap.NewNop())

	chunks := makeChunks(map[string]int{"ARTICLE I": 10, "ARTICLE II": 10}, []string{"ARTICLE I", "ARTICLE II"})
	nodes, stats, err := b.Build(context.Background(), "tenant-a", "doc-1", chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Levels)

	for _, n := range nodes {
		assert.Empty(t, n.Vector)
	}
}

func TestExtractiveSummary(t *testing.T) {
	text := "This agreement is made between Acme Corp and Widget LLC.\n\n" +
		"Background recitals follow here with general narrative.\n\n" +
		"The supplier shall indemnify the customer for third-party claims. " +
		"Deliveries happen on Tuesdays. " +
		"This agreement is governed by the laws of Delaware. " +
		"Either party must provide thirty days notice. " +
		"The term liability is capped at fees paid."

	got := extractiveSummary(text)

	assert.True(t, strings.HasPrefix(got, "This agreement is made between Acme Corp and Widget LLC."))
	assert.Contains(t, got, "shall indemnify")
	assert.Contains(t, got, "governed by the laws of Delaware")
	assert.Contains(t, got, "must provide thirty days notice")
	// Cap of three obligation sentences excludes the fourth.
	assert.NotContains(t, got, "capped at fees paid")
	assert.NotContains(t, got, "Tuesdays")
}

func TestExtractiveSummaryNoObligations(t *testing.T) {
	got := extractiveSummary("Plain narrative paragraph.\n\nMore narrative follows.")
	assert.Equal(t, "Plain narrative paragraph.", got)

	assert.Empty(t, extractiveSummary("   "))
}

func TestCapWords(t *testing.T) {
	assert.Equal(t, "one two three", capWords("one two three", 5))
	assert.Equal(t, "one two", capWords("one two three", 2))
	assert.Equal(t, "one two three", capWords("one two three", 0))
}
