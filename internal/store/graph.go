package store

import (
	"context"
	"fmt"
	"time"
)

// Edge types recognized by the relationship graph.
const (
	EdgeCites      = "cites"
	EdgeReferences = "references"
	EdgeDependsOn  = "depends_on"
	EdgeSimilarTo  = "similar_to"
)

// Edge is a directed relationship between two documents. Edges may form
// cycles; traversal is responsible for cycle defense.
type Edge struct {
	ID               string
	TenantID         string
	SourceDocumentID string
	TargetDocumentID string
	Type             string
	Confidence       float64
	ContextSnippet   string
}

// UpsertEdges writes a batch of edges, keyed by
// (tenant, source, target, type). Re-extraction refreshes confidence
// and context on existing edges.
func (s *Store) UpsertEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relationship_edges
			(id, tenant_id, source_document_id, target_document_id, edge_type, confidence, context_snippet, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, source_document_id, target_document_id, edge_type) DO UPDATE SET
			confidence = excluded.confidence,
			context_snippet = excluded.context_snippet
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, edge := range edges {
		if edge.TenantID == "" || edge.SourceDocumentID == "" || edge.TargetDocumentID == "" {
			return fmt.Errorf("%w: edge requires tenant, source, and target ids", ErrInvalidInput)
		}
		if _, err := stmt.ExecContext(ctx, edge.ID, edge.TenantID, edge.SourceDocumentID,
			edge.TargetDocumentID, edge.Type, edge.Confidence, edge.ContextSnippet, now); err != nil {
			return fmt.Errorf("upserting edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// OutgoingEdges returns every edge leaving a document, highest
// confidence first.
func (s *Store) OutgoingEdges(ctx context.Context, tenantID, sourceDocumentID string) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, source_document_id, target_document_id, edge_type, confidence, context_snippet
		FROM relationship_edges
		WHERE tenant_id = ? AND source_document_id = ?
		ORDER BY confidence DESC
	`, tenantID, sourceDocumentID)
	if err != nil {
		return nil, fmt.Errorf("querying outgoing edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge //nolint:prealloc // size unknown from query
	for rows.Next() {
		var edge Edge
		if err := rows.Scan(&edge.ID, &edge.TenantID, &edge.SourceDocumentID,
			&edge.TargetDocumentID, &edge.Type, &edge.Confidence, &edge.ContextSnippet); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating edges: %w", err)
	}
	return edges, nil
}
