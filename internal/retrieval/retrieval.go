// Package retrieval implements hybrid multi-source retrieval: vector,
// keyword, relationship-graph, and hierarchical-summary sources run
// concurrently and their ranked lists are fused with reciprocal rank
// fusion before domain weighting and personalization.
//
// Failure semantics are best-effort throughout. A failing source
// contributes an empty list; an embedding-provider outage disables the
// vector and summary sources while keyword and graph still run. The
// orchestrator always returns a (possibly empty) result set.
package retrieval

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/casefile-labs/lexrag/internal/config"
	"github.com/casefile-labs/lexrag/internal/crypto"
	"github.com/casefile-labs/lexrag/internal/embeddings"
	"github.com/casefile-labs/lexrag/internal/store"
	"github.com/casefile-labs/lexrag/internal/tenant"
	"github.com/casefile-labs/lexrag/internal/vectorindex"
)

// Source names as reported in result provenance and query metadata.
const (
	SourceVector  = "vector"
	SourceKeyword = "keyword"
	SourceGraph   = "graph"
	SourceSummary = "summary"
)

// SourceFlags enables individual retrieval sources. The zero value
// disables everything; Options carries a nil pointer to mean
// "all sources".
type SourceFlags struct {
	Vector  bool
	Keyword bool
	Graph   bool
	Summary bool
}

// Options tunes one retrieval call. Zero values fall back to the
// service configuration.
type Options struct {
	// Limit caps the returned results.
	Limit int

	// SimilarityThreshold overrides the configured vector threshold
	// when positive.
	SimilarityThreshold float64

	// DocumentTypes restricts results to these document types.
	DocumentTypes []string

	// MatterID restricts results to one matter.
	MatterID string

	// UserID enables personalization from stored affinities.
	UserID string

	// Jurisdiction is the caller's jurisdiction hint.
	Jurisdiction string

	// Sources selects which sources run; nil enables all.
	Sources *SourceFlags
}

// Result is one ranked retrieval hit.
type Result struct {
	Key           string   `json:"key"`
	DocumentID    string   `json:"document_id"`
	Position      int      `json:"position"`
	Text          string   `json:"text"`
	Score         float64  `json:"score"`
	Similarity    float64  `json:"similarity,omitempty"`
	Sources       []string `json:"sources"`
	Provenance    []string `json:"provenance"`
	DocumentType  string   `json:"document_type,omitempty"`
	SectionMarker string   `json:"section_marker,omitempty"`
	SummaryLevel  int      `json:"summary_level,omitempty"`
}

// QueryMetadata describes how a query was processed.
type QueryMetadata struct {
	Intent        Intent         `json:"intent"`
	ExpandedTerms []string       `json:"expanded_terms,omitempty"`
	SourceCounts  map[string]int `json:"source_counts"`
	Latency       time.Duration  `json:"latency"`
}

// Response is the full retrieval answer.
type Response struct {
	Results  []Result      `json:"results"`
	Metadata QueryMetadata `json:"metadata"`
}

// Service orchestrates multi-source retrieval.
type Service struct {
	config   config.RetrievalConfig
	store    *store.Store
	index    vectorindex.Index
	embedder embeddings.Provider
	crypto   *crypto.Service
	logger   *zap.Logger
	metrics  *Metrics
}

// NewService creates the retrieval orchestrator. The crypto service may
// be nil when encryption is disabled.
func NewService(cfg config.RetrievalConfig, st *store.Store, idx vectorindex.Index, embedder embeddings.Provider, enc *crypto.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		config:   cfg,
		store:    st,
		index:    idx,
		embedder: embedder,
		crypto:   enc,
		logger:   logger.Named("retrieval"),
		metrics:  NewMetrics(),
	}
}

// Retrieve runs the full pipeline for one query. Tenant identity comes
// from the context and is required.
func (s *Service) Retrieve(ctx context.Context, query string, opts Options) (*Response, error) {
	info, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	intent := classifyIntent(query)
	expanded := expandQuery(query)

	resp := &Response{
		Results: []Result{},
		Metadata: QueryMetadata{
			Intent:        intent,
			ExpandedTerms: expanded,
			SourceCounts:  map[string]int{},
		},
	}

	if strings.TrimSpace(query) == "" {
		resp.Metadata.Latency = time.Since(start)
		return resp, nil
	}

	// Embed once over the expanded text; the vector encodes synonyms
	// while keyword search keeps the caller's exact words.
	embedText := query
	if len(expanded) > 0 {
		embedText += " " + strings.Join(expanded, " ")
	}
	queryVec, embErr := s.embedder.EmbedQuery(ctx, embedText)
	if embErr != nil {
		s.logger.Warn("query embedding failed, vector and summary sources disabled",
			zap.String("tenant_id", info.TenantID), zap.Error(embErr))
	}

	flags := SourceFlags{Vector: true, Keyword: true, Graph: true, Summary: true}
	if opts.Sources != nil {
		flags = *opts.Sources
	}
	if embErr != nil {
		flags.Vector = false
		flags.Summary = false
	}

	lists := s.gather(ctx, info.TenantID, query, queryVec, intent, opts, flags)

	for _, list := range lists {
		resp.Metadata.SourceCounts[list.name] = len(list.candidates)
	}

	fusedResults := fuse(lists, s.config.RRFK)

	var affinities []store.Affinity
	if opts.UserID != "" {
		affinities, err = s.store.Affinities(ctx, info.TenantID, opts.UserID)
		if err != nil {
			s.logger.Warn("loading user affinities failed",
				zap.String("tenant_id", info.TenantID), zap.String("user_id", opts.UserID), zap.Error(err))
			affinities = nil
		}
	}

	for _, f := range fusedResults {
		s.weigh(f, intent, opts, affinities)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	resp.Results = s.finalize(fusedResults, limit)
	resp.Metadata.Latency = time.Since(start)

	s.metrics.RecordQuery(ctx, intent, resp.Metadata.Latency, resp.Metadata.SourceCounts)
	return resp, nil
}

// gather fans the enabled sources out concurrently and collects their
// ranked candidate lists. A source error is logged and contributes an
// empty list; it never aborts the query.
func (s *Service) gather(ctx context.Context, tenantID, query string, queryVec []float32, intent Intent, opts Options, flags SourceFlags) []sourceList {
	type runner struct {
		name string
		fn   func(context.Context) ([]candidate, error)
	}

	var runners []runner
	if flags.Vector {
		runners = append(runners, runner{SourceVector, func(ctx context.Context) ([]candidate, error) {
			return s.vectorSource(ctx, tenantID, queryVec, opts)
		}})
	}
	if flags.Keyword {
		runners = append(runners, runner{SourceKeyword, func(ctx context.Context) ([]candidate, error) {
			return s.keywordSource(ctx, tenantID, query, opts)
		}})
	}
	if flags.Graph {
		runners = append(runners, runner{SourceGraph, func(ctx context.Context) ([]candidate, error) {
			return s.graphSource(ctx, tenantID, query, queryVec, intent, opts)
		}})
	}
	if flags.Summary {
		runners = append(runners, runner{SourceSummary, func(ctx context.Context) ([]candidate, error) {
			return s.summarySource(ctx, tenantID, queryVec, opts)
		}})
	}

	lists := make([]sourceList, len(runners))
	var wg sync.WaitGroup
	for i, r := range runners {
		wg.Add(1)
		go func(i int, r runner) {
			defer wg.Done()
			candidates, err := r.fn(ctx)
			if err != nil {
				s.logger.Warn("retrieval source failed",
					zap.String("source", r.name), zap.String("tenant_id", tenantID), zap.Error(err))
				candidates = nil
			}
			lists[i] = sourceList{name: r.name, candidates: candidates}
		}(i, r)
	}
	wg.Wait()
	return lists
}

// weigh applies domain weighting and personalization on top of the
// fused rank score.
func (s *Service) weigh(f *fused, intent Intent, opts Options, affinities []store.Affinity) {
	score := f.rrf

	if affinity, ok := intentTypeAffinity[intent][f.docType]; ok {
		score *= affinity
	}
	if f.multiSource {
		score *= s.config.MultiSourceBonus
	}
	if f.year > s.config.RecencyBaselineYear {
		score *= 1 + s.config.RecencyPerYearBonus*float64(f.year-s.config.RecencyBaselineYear)
	}
	if opts.Jurisdiction != "" && strings.EqualFold(f.jurisdiction, opts.Jurisdiction) {
		score *= s.config.JurisdictionBonus
	}
	for _, a := range affinities {
		matched := (a.Kind == store.AffinityDocumentType && a.Value == f.docType) ||
			(a.Kind == store.AffinityMatter && a.Value == f.matterID)
		if matched && a.Confidence > 0 {
			score *= 1 + affinityBoost*a.Confidence
		}
	}

	f.score = score
}

// finalize sorts by weighted score, caps per-document contributions,
// truncates to the limit, and renders provenance.
func (s *Service) finalize(fusedResults []*fused, limit int) []Result {
	sortFused(fusedResults)

	maxPerDoc := s.config.MaxPerDocument
	perDoc := map[string]int{}
	results := make([]Result, 0, limit)

	for _, f := range fusedResults {
		if len(results) >= limit {
			break
		}
		if perDoc[f.documentID] >= maxPerDoc {
			continue
		}
		perDoc[f.documentID]++

		provenance := append([]string(nil), f.provenance...)
		if f.multiSource {
			provenance = append(provenance, confirmedNote(len(f.sources)))
		}

		results = append(results, Result{
			Key:           f.key,
			DocumentID:    f.documentID,
			Position:      f.position,
			Text:          f.text,
			Score:         f.score,
			Similarity:    f.similarity,
			Sources:       f.sources,
			Provenance:    provenance,
			DocumentType:  f.docType,
			SectionMarker: f.sectionMarker,
			SummaryLevel:  f.summaryLevel,
		})
	}
	return results
}

// affinityBoost scales how strongly a full-confidence user affinity
// lifts a matching result.
const affinityBoost = 0.2
