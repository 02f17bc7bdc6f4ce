package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/casefile-labs/lexrag/internal/crypto"
	"github.com/casefile-labs/lexrag/internal/store"
)

// graphSeedLimit is how many top vector documents seed graph traversal.
const graphSeedLimit = 5

// sourceFetchMultiple over-fetches per source so fusion and the
// per-document cap still fill the caller's limit.
const sourceFetchMultiple = 3

func (s *Service) fetchSize(opts Options) int {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	n := limit * sourceFetchMultiple
	if n < 20 {
		n = 20
	}
	return n
}

func (s *Service) threshold(opts Options) float64 {
	if opts.SimilarityThreshold > 0 {
		return opts.SimilarityThreshold
	}
	return s.config.SimilarityThreshold
}

func candidateFilter(opts Options) store.CandidateFilter {
	return store.CandidateFilter{
		DocumentTypes: opts.DocumentTypes,
		MatterID:      opts.MatterID,
	}
}

// vectorSource ranks chunks by embedding similarity. Rows carrying
// ciphertext must authenticate under the tenant key; a row that fails
// decryption is dropped rather than served.
func (s *Service) vectorSource(ctx context.Context, tenantID string, queryVec []float32, opts Options) ([]candidate, error) {
	hits, err := s.index.Search(ctx, tenantID, queryVec, s.fetchSize(opts), s.threshold(opts), candidateFilter(opts))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]candidate, 0, len(hits))
	for _, hit := range hits {
		rec := hit.Record
		if s.crypto != nil && rec.Ciphertext != "" {
			if _, err := s.crypto.OpenVector(tenantID, rec.ID, rec.Ciphertext); err != nil {
				if errors.Is(err, crypto.ErrDecryptFailed) {
					s.logger.Warn("dropping chunk with unverifiable ciphertext",
						zap.String("tenant_id", tenantID),
						zap.String("document_id", rec.DocumentID),
						zap.Int("position", rec.Position))
					continue
				}
				return nil, err
			}
		}

		candidates = append(candidates, candidate{
			key:           chunkKey(rec.DocumentID, rec.Position),
			documentID:    rec.DocumentID,
			position:      rec.Position,
			text:          rec.RawText,
			similarity:    hit.Similarity,
			docType:       rec.Metadata.DocumentType,
			sectionMarker: rec.Metadata.SectionMarker,
			jurisdiction:  rec.Metadata.Jurisdiction,
			matterID:      rec.Metadata.MatterID,
			year:          rec.Metadata.Year,
			provenance:    fmt.Sprintf("vector similarity %.0f%%", hit.Similarity*100),
		})
	}
	return candidates, nil
}

// keywordSource runs full-text search over raw chunk text. It uses the
// caller's exact words; synonym expansion stays on the vector side so
// lexical precision is preserved.
func (s *Service) keywordSource(ctx context.Context, tenantID, query string, opts Options) ([]candidate, error) {
	hits, err := s.store.KeywordSearch(ctx, tenantID, query, s.fetchSize(opts))
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	candidates := make([]candidate, 0, len(hits))
	for _, hit := range hits {
		c := candidate{
			key:        chunkKey(hit.DocumentID, hit.Position),
			documentID: hit.DocumentID,
			position:   hit.Position,
			text:       hit.RawText,
			provenance: "keyword match",
		}
		// Pull chunk metadata so filters and weighting apply to
		// keyword-only hits too.
		if rec, err := s.store.Embedding(ctx, tenantID, hit.DocumentID, hit.Position); err == nil {
			c.docType = rec.Metadata.DocumentType
			c.sectionMarker = rec.Metadata.SectionMarker
			c.jurisdiction = rec.Metadata.Jurisdiction
			c.matterID = rec.Metadata.MatterID
			c.year = rec.Metadata.Year
		}
		if !matchesOptions(c, opts) {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// graphSource seeds from the top vector documents and walks the
// relationship graph outward, decaying confidence per hop. When the
// query embedding is unavailable it seeds from keyword hits instead, so
// the graph still contributes during an embedding outage.
func (s *Service) graphSource(ctx context.Context, tenantID, query string, queryVec []float32, intent Intent, opts Options) ([]candidate, error) {
	seeds, err := s.graphSeeds(ctx, tenantID, query, queryVec, opts)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	maxDepth := s.config.GraphDepth
	if intent == IntentPrecedentChain {
		maxDepth = s.config.PrecedentChainDepth
	}

	type walkNode struct {
		doc   string
		score float64
		depth int
		path  map[string]bool
		via   string
	}

	seedSet := make(map[string]bool, len(seeds))
	for _, seed := range seeds {
		seedSet[seed] = true
	}

	queue := make([]walkNode, 0, len(seeds))
	for _, seed := range seeds {
		queue = append(queue, walkNode{doc: seed, score: 1, path: map[string]bool{seed: true}})
	}

	type reached struct {
		score float64
		depth int
		via   string
	}
	best := map[string]reached{}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node.depth >= maxDepth {
			continue
		}

		edges, err := s.store.OutgoingEdges(ctx, tenantID, node.doc)
		if err != nil {
			return nil, fmt.Errorf("graph traversal: %w", err)
		}

		for _, edge := range edges {
			target := edge.TargetDocumentID
			// Never revisit a node already on the current path.
			if node.path[target] {
				continue
			}

			score := node.score * edge.Confidence * s.config.HopDecay
			depth := node.depth + 1

			if !seedSet[target] {
				if prev, ok := best[target]; !ok || score > prev.score {
					best[target] = reached{score: score, depth: depth, via: edge.Type}
				}
			}

			path := make(map[string]bool, len(node.path)+1)
			for doc := range node.path {
				path[doc] = true
			}
			path[target] = true
			queue = append(queue, walkNode{doc: target, score: score, depth: depth, path: path, via: edge.Type})
		}
	}

	candidates := make([]candidate, 0, len(best))
	for doc, r := range best {
		c := candidate{
			key:        documentKey(doc),
			documentID: doc,
			score:      r.score,
			hopDepth:   r.depth,
			edgeType:   r.via,
			provenance: fmt.Sprintf("related via %s (%s)", r.via, hopLabel(r.depth)),
		}
		// Representative text from the document's first chunk,
		// best effort.
		if rec, err := s.store.Embedding(ctx, tenantID, doc, 0); err == nil {
			c.text = rec.RawText
			c.docType = rec.Metadata.DocumentType
			c.jurisdiction = rec.Metadata.Jurisdiction
			c.matterID = rec.Metadata.MatterID
			c.year = rec.Metadata.Year
		}
		if !matchesOptions(c, opts) {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if n := s.fetchSize(opts); len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

// graphSeeds picks the documents traversal starts from.
func (s *Service) graphSeeds(ctx context.Context, tenantID, query string, queryVec []float32, opts Options) ([]string, error) {
	var docs []string
	seen := map[string]bool{}

	if len(queryVec) > 0 {
		hits, err := s.index.Search(ctx, tenantID, queryVec, graphSeedLimit, s.threshold(opts), candidateFilter(opts))
		if err != nil {
			return nil, fmt.Errorf("seeding graph traversal: %w", err)
		}
		for _, hit := range hits {
			if !seen[hit.Record.DocumentID] {
				seen[hit.Record.DocumentID] = true
				docs = append(docs, hit.Record.DocumentID)
			}
		}
		return docs, nil
	}

	hits, err := s.store.KeywordSearch(ctx, tenantID, query, graphSeedLimit)
	if err != nil {
		return nil, fmt.Errorf("seeding graph traversal: %w", err)
	}
	for _, hit := range hits {
		if !seen[hit.DocumentID] {
			seen[hit.DocumentID] = true
			docs = append(docs, hit.DocumentID)
		}
	}
	return docs, nil
}

// summarySource searches level-1 and level-2 summary vectors for
// section- and document-granularity hits.
func (s *Service) summarySource(ctx context.Context, tenantID string, queryVec []float32, opts Options) ([]candidate, error) {
	nodes, err := s.store.SummaryCandidates(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("summary search: %w", err)
	}

	threshold := s.threshold(opts)
	candidates := make([]candidate, 0, len(nodes))
	for _, node := range nodes {
		sim := cosine(queryVec, node.Vector)
		if sim < threshold {
			continue
		}
		c := candidate{
			key:           summaryKey(node.ID),
			documentID:    node.DocumentID,
			position:      node.ChunkStart,
			text:          node.Summary,
			similarity:    sim,
			sectionMarker: node.SectionMarker,
			summaryLevel:  node.Level,
			provenance:    summaryProvenance(node.Level),
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].similarity > candidates[b].similarity
	})
	if n := s.fetchSize(opts); len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates, nil
}

// matchesOptions applies document-type and matter filters to candidates
// from sources that cannot filter in their backing query.
func matchesOptions(c candidate, opts Options) bool {
	if len(opts.DocumentTypes) > 0 {
		found := false
		for _, t := range opts.DocumentTypes {
			if c.docType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if opts.MatterID != "" && c.matterID != opts.MatterID {
		return false
	}
	return true
}

func chunkKey(documentID string, position int) string {
	return fmt.Sprintf("chunk:%s:%d", documentID, position)
}

func documentKey(documentID string) string {
	return "doc:" + documentID
}

func summaryKey(nodeID string) string {
	return "summary:" + nodeID
}

func hopLabel(depth int) string {
	if depth == 1 {
		return "1 hop"
	}
	return fmt.Sprintf("%d hops", depth)
}

func summaryProvenance(level int) string {
	if level >= 2 {
		return "document summary match"
	}
	return "section summary match"
}

// cosine mirrors the vector index similarity so summary ranking is
// comparable.
func cosine(a, b []float32) float64 {
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
