package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SummaryNode is one node of a document's summary tree. Level 0 nodes
// map 1:1 to chunks and carry no vector; level 1 nodes summarize a
// bounded run of level-0 children; at most one level-2 node per
// document parents all level-1 nodes.
type SummaryNode struct {
	ID            string
	TenantID      string
	DocumentID    string
	Level         int
	Summary       string
	Vector        []float32
	ChildIDs      []string
	SectionMarker string
	ChunkStart    int
	ChunkEnd      int
}

// ReplaceSummaryNodes deletes every existing node for the document and
// inserts the new set in one transaction. Trees are never patched
// incrementally.
func (s *Store) ReplaceSummaryNodes(ctx context.Context, tenantID, documentID string, nodes []SummaryNode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM summary_nodes WHERE tenant_id = ? AND document_id = ?",
		tenantID, documentID); err != nil {
		return fmt.Errorf("deleting summary nodes: %w", err)
	}

	if len(nodes) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO summary_nodes
				(id, tenant_id, document_id, level, summary, vector, child_ids, section_marker, chunk_start, chunk_end)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for _, node := range nodes {
			childJSON, err := json.Marshal(node.ChildIDs)
			if err != nil {
				return fmt.Errorf("marshalling child ids: %w", err)
			}

			var vector []byte
			if len(node.Vector) > 0 {
				vector = encodeVector(node.Vector)
			}

			if _, err := stmt.ExecContext(ctx, node.ID, tenantID, documentID, node.Level,
				node.Summary, vector, string(childJSON), node.SectionMarker,
				node.ChunkStart, node.ChunkEnd); err != nil {
				return fmt.Errorf("inserting summary node: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SummaryCandidates returns every level >= 1 node of a tenant that
// carries a vector. The caller ranks them by vector similarity.
func (s *Store) SummaryCandidates(ctx context.Context, tenantID string) ([]SummaryNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, document_id, level, summary, vector, child_ids, section_marker, chunk_start, chunk_end
		FROM summary_nodes
		WHERE tenant_id = ? AND level >= 1 AND vector IS NOT NULL
		ORDER BY document_id, level, chunk_start
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying summary candidates: %w", err)
	}
	defer rows.Close()

	return scanSummaryNodes(rows)
}

// SummaryNodes returns every node of a document's tree ordered by level
// then chunk range.
func (s *Store) SummaryNodes(ctx context.Context, tenantID, documentID string) ([]SummaryNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, document_id, level, summary, vector, child_ids, section_marker, chunk_start, chunk_end
		FROM summary_nodes
		WHERE tenant_id = ? AND document_id = ?
		ORDER BY level, chunk_start
	`, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying summary nodes: %w", err)
	}
	defer rows.Close()

	return scanSummaryNodes(rows)
}

func scanSummaryNodes(rows *sql.Rows) ([]SummaryNode, error) {
	var nodes []SummaryNode //nolint:prealloc // size unknown from query
	for rows.Next() {
		var node SummaryNode
		var vectorBlob []byte
		var childJSON string

		if err := rows.Scan(&node.ID, &node.TenantID, &node.DocumentID, &node.Level,
			&node.Summary, &vectorBlob, &childJSON, &node.SectionMarker,
			&node.ChunkStart, &node.ChunkEnd); err != nil {
			return nil, fmt.Errorf("scanning summary node: %w", err)
		}

		node.Vector = decodeVector(vectorBlob)
		if childJSON != "" {
			if err := json.Unmarshal([]byte(childJSON), &node.ChildIDs); err != nil {
				return nil, fmt.Errorf("unmarshaling child ids: %w", err)
			}
		}
		nodes = append(nodes, node)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summary nodes: %w", err)
	}
	return nodes, nil
}
