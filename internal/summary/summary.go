// Package summary builds hierarchical summary trees over document
// chunks for multi-granularity retrieval: level 0 mirrors the chunks, level 1
// summarizes marker-aligned groups of chunks, and a single level-2 node
// summarizes the whole document.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casefile-labs/lexrag/internal/chunker"
	"github.com/casefile-labs/lexrag/internal/embeddings"
	"github.com/casefile-labs/lexrag/internal/generation"
	"github.com/casefile-labs/lexrag/internal/store"
)

// Config holds summary tree tuning.
type Config struct {
	// GroupSize caps how many consecutive chunks form a section group.
	GroupSize int

	// SectionWordCap bounds level-1 summaries.
	SectionWordCap int

	// DocumentWordCap bounds the level-2 summary.
	DocumentWordCap int

	// LeafStorageCap truncates level-0 node text for storage.
	LeafStorageCap int
}

// DefaultConfig returns the default summary tree tuning.
func DefaultConfig() Config {
	return Config{
		GroupSize:       8,
		SectionWordCap:  250,
		DocumentWordCap: 500,
		LeafStorageCap:  1500,
	}
}

// TreeStats reports the shape of a built tree.
type TreeStats struct {
	Levels        int         `json:"levels"`
	NodesPerLevel map[int]int `json:"nodes_per_level,omitempty"`
}

// Builder constructs summary trees. The generation provider may be nil;
// summaries then fall back to deterministic extraction.
type Builder struct {
	config    Config
	generator generation.Provider
	embedder  embeddings.Provider
	logger    *zap.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(config Config, generator generation.Provider, embedder embeddings.Provider, logger *zap.Logger) *Builder {
	if config.GroupSize < 2 {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		config:    config,
		generator: generator,
		embedder:  embedder,
		logger:    logger.Named("summary"),
	}
}

// Build constructs the full tree for a document's chunks. Documents
// shorter than twice the group size gain nothing from a tree and yield
// no nodes. The returned nodes replace any previous tree wholesale.
func (b *Builder) Build(ctx context.Context, tenantID, documentID string, chunks []chunker.Chunk) ([]store.SummaryNode, TreeStats, error) {
	if len(chunks) < 2*b.config.GroupSize {
		return nil, TreeStats{}, nil
	}

	nodes := make([]store.SummaryNode, 0, len(chunks)+len(chunks)/b.config.GroupSize+2)

	// Level 0: one leaf per chunk; searched via the embedding row, so
	// no vector here.
	leafIDs := make([]string, len(chunks))
	for i, chunk := range chunks {
		id := uuid.NewString()
		leafIDs[i] = id
		nodes = append(nodes, store.SummaryNode{
			ID:            id,
			TenantID:      tenantID,
			DocumentID:    documentID,
			Level:         0,
			Summary:       truncateRunes(chunk.Text, b.config.LeafStorageCap),
			SectionMarker: chunk.SectionMarker,
			ChunkStart:    chunk.Position,
			ChunkEnd:      chunk.Position,
		})
	}

	// Level 1: summarize each marker-aligned group.
	groups := b.groupChunks(chunks)
	sectionNodes := make([]store.SummaryNode, 0, len(groups))
	sectionTexts := make([]string, 0, len(groups))
	for _, g := range groups {
		var sb strings.Builder
		for _, chunk := range chunks[g.start : g.end+1] {
			sb.WriteString(chunk.Text)
			sb.WriteString("\n\n")
		}
		text := b.summarize(ctx, sb.String(), sectionInstructions(b.config.SectionWordCap), b.config.SectionWordCap)
		sectionTexts = append(sectionTexts, text)
		sectionNodes = append(sectionNodes, store.SummaryNode{
			ID:            uuid.NewString(),
			TenantID:      tenantID,
			DocumentID:    documentID,
			Level:         1,
			Summary:       text,
			ChildIDs:      append([]string(nil), leafIDs[g.start:g.end+1]...),
			SectionMarker: g.marker,
			ChunkStart:    chunks[g.start].Position,
			ChunkEnd:      chunks[g.end].Position,
		})
	}

	b.embedSections(ctx, sectionNodes, sectionTexts)
	nodes = append(nodes, sectionNodes...)

	stats := TreeStats{
		Levels: 2,
		NodesPerLevel: map[int]int{
			0: len(chunks),
			1: len(sectionNodes),
		},
	}

	// Level 2: one document summary when there is more than one group.
	if len(sectionNodes) > 1 {
		docText := b.summarize(ctx, strings.Join(sectionTexts, "\n\n"),
			documentInstructions(b.config.DocumentWordCap), b.config.DocumentWordCap)

		docNode := store.SummaryNode{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			DocumentID: documentID,
			Level:      2,
			Summary:    docText,
			ChunkStart: chunks[0].Position,
			ChunkEnd:   chunks[len(chunks)-1].Position,
		}
		for _, n := range sectionNodes {
			docNode.ChildIDs = append(docNode.ChildIDs, n.ID)
		}
		if vec, err := b.embedder.EmbedQuery(ctx, docText); err != nil {
			b.logger.Warn("embedding document summary failed", zap.Error(err))
		} else {
			docNode.Vector = vec
		}

		nodes = append(nodes, docNode)
		stats.Levels = 3
		stats.NodesPerLevel[2] = 1
	}

	return nodes, stats, nil
}

// group is an inclusive chunk index range sharing a section marker.
type group struct {
	start, end int
	marker     string
}

// groupChunks splits chunks into consecutive groups, starting a new
// group when the group is full or the section marker changes.
func (b *Builder) groupChunks(chunks []chunker.Chunk) []group {
	var groups []group
	current := group{start: 0, marker: chunks[0].SectionMarker}
	for i := 1; i < len(chunks); i++ {
		size := i - current.start
		if size >= b.config.GroupSize || chunks[i].SectionMarker != current.marker {
			current.end = i - 1
			groups = append(groups, current)
			current = group{start: i, marker: chunks[i].SectionMarker}
		}
	}
	current.end = len(chunks) - 1
	return append(groups, current)
}

// summarize delegates to the generation provider and falls back to
// deterministic extraction when the provider is absent or errors.
func (b *Builder) summarize(ctx context.Context, text, instructions string, wordCap int) string {
	if b.generator != nil {
		out, err := b.generator.Complete(ctx, instructions, text)
		if err == nil && strings.TrimSpace(out) != "" {
			return capWords(out, wordCap)
		}
		if err != nil {
			b.logger.Warn("generation provider failed, using extractive summary", zap.Error(err))
		}
	}
	return capWords(extractiveSummary(text), wordCap)
}

// embedSections embeds all section summaries in one batch. Failure
// leaves the nodes without vectors; they are then invisible to summary
// search but the tree still builds.
func (b *Builder) embedSections(ctx context.Context, nodes []store.SummaryNode, texts []string) {
	if len(nodes) == 0 {
		return
	}
	result, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		b.logger.Warn("embedding section summaries failed", zap.Error(err), zap.Int("sections", len(nodes)))
		return
	}
	if len(result.Vectors) != len(nodes) {
		b.logger.Warn("embedding count mismatch for section summaries",
			zap.Int("expected", len(nodes)), zap.Int("got", len(result.Vectors)))
		return
	}
	for i := range nodes {
		nodes[i].Vector = result.Vectors[i]
	}
}

func sectionInstructions(wordCap int) string {
	return fmt.Sprintf("Summarize this section of a legal document. "+
		"Preserve key concepts, defined terms, and cross-references to other sections or documents. "+
		"Use at most %d words.", wordCap)
}

func documentInstructions(wordCap int) string {
	return fmt.Sprintf("Summarize this legal document. "+
		"Preserve the parties, their obligations, key dates and amounts, governing law, and notable provisions. "+
		"Use at most %d words.", wordCap)
}

// truncateRunes caps text at n runes.
func truncateRunes(text string, n int) string {
	if n <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// capWords keeps at most n words of text.
func capWords(text string, n int) string {
	if n <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:n], " ")
}
