package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ChunkMetadata is the queryable metadata stored alongside each
// embedding row. Document-level fields are denormalized onto every
// chunk so retrieval filters and weighting never need a join.
type ChunkMetadata struct {
	DocumentType  string `json:"document_type,omitempty"`
	DocumentName  string `json:"document_name,omitempty"`
	MatterID      string `json:"matter_id,omitempty"`
	Jurisdiction  string `json:"jurisdiction,omitempty"`
	Year          int    `json:"year,omitempty"`
	SectionMarker string `json:"section_marker,omitempty"`
	SemanticType  string `json:"semantic_type,omitempty"`
	CrossRefCount int    `json:"cross_ref_count,omitempty"`
	TokensUsed    int    `json:"tokens_used,omitempty"`
}

// EmbeddingRecord is one embedded chunk. The plaintext vector is always
// stored so similarity search never depends on decryption; Ciphertext
// additionally holds the sealed vector when tenant encryption is on.
type EmbeddingRecord struct {
	ID          string
	TenantID    string
	DocumentID  string
	Position    int
	RawText     string
	Vector      []float32
	Ciphertext  string
	ContentHash string
	Metadata    ChunkMetadata
	CreatedAt   time.Time
}

// CandidateFilter scopes candidate queries. Zero value matches
// everything within the tenant.
type CandidateFilter struct {
	DocumentTypes []string
	MatterID      string
	DocumentIDs   []string
}

// KeywordHit is one full-text match with its relevance score
// (higher is better).
type KeywordHit struct {
	DocumentID string
	Position   int
	RawText    string
	Score      float64
}

// UpsertEmbeddings writes a batch of embedding rows in one transaction,
// keyed by (tenant, document, position). Existing rows keep their
// original id. The full-text index is kept in sync row by row.
func (s *Store) UpsertEmbeddings(ctx context.Context, records []EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings
			(id, tenant_id, document_id, position, raw_text, vector, ciphertext, content_hash, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, document_id, position) DO UPDATE SET
			raw_text = excluded.raw_text,
			vector = excluded.vector,
			ciphertext = excluded.ciphertext,
			content_hash = excluded.content_hash,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	ftsDelete, err := tx.PrepareContext(ctx, `
		DELETE FROM chunk_fts WHERE tenant_id = ? AND document_id = ? AND position = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing fts delete: %w", err)
	}
	defer ftsDelete.Close()

	ftsInsert, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_fts (raw_text, tenant_id, document_id, position)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing fts insert: %w", err)
	}
	defer ftsInsert.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		if rec.TenantID == "" || rec.DocumentID == "" {
			return fmt.Errorf("%w: embedding record requires tenant and document ids", ErrInvalidInput)
		}

		metadataJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}

		var ciphertext sql.NullString
		if rec.Ciphertext != "" {
			ciphertext = sql.NullString{String: rec.Ciphertext, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx, rec.ID, rec.TenantID, rec.DocumentID, rec.Position,
			rec.RawText, encodeVector(rec.Vector), ciphertext, rec.ContentHash,
			string(metadataJSON), now, now); err != nil {
			return fmt.Errorf("upserting embedding: %w", err)
		}

		if _, err := ftsDelete.ExecContext(ctx, rec.TenantID, rec.DocumentID, rec.Position); err != nil {
			return fmt.Errorf("clearing fts row: %w", err)
		}
		if _, err := ftsInsert.ExecContext(ctx, rec.RawText, rec.TenantID, rec.DocumentID, rec.Position); err != nil {
			return fmt.Errorf("indexing fts row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ContentHashes returns position -> content hash for every stored chunk
// of a document. Ingest uses it to skip unchanged chunks.
func (s *Store) ContentHashes(ctx context.Context, tenantID, documentID string) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, content_hash
		FROM embeddings
		WHERE tenant_id = ? AND document_id = ?
	`, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying content hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[int]string)
	for rows.Next() {
		var position int
		var hash string
		if err := rows.Scan(&position, &hash); err != nil {
			return nil, fmt.Errorf("scanning content hash: %w", err)
		}
		hashes[position] = hash
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating content hashes: %w", err)
	}
	return hashes, nil
}

// VectorCandidates returns every embedding row of a tenant matching the
// filter. The caller ranks them by vector similarity.
func (s *Store) VectorCandidates(ctx context.Context, tenantID string, filter CandidateFilter) ([]EmbeddingRecord, error) {
	query := `
		SELECT id, tenant_id, document_id, position, raw_text, vector, ciphertext, content_hash, metadata, created_at
		FROM embeddings
		WHERE tenant_id = ?
	`
	args := []any{tenantID}
	query, args = applyFilter(query, args, filter)
	query += " ORDER BY document_id, position"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vector candidates: %w", err)
	}
	defer rows.Close()

	var records []EmbeddingRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector candidates: %w", err)
	}
	return records, nil
}

// Embedding returns a single chunk row by (tenant, document, position).
func (s *Store) Embedding(ctx context.Context, tenantID, documentID string, position int) (*EmbeddingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, document_id, position, raw_text, vector, ciphertext, content_hash, metadata, created_at
		FROM embeddings
		WHERE tenant_id = ? AND document_id = ? AND position = ?
	`, tenantID, documentID, position)
	if err != nil {
		return nil, fmt.Errorf("querying embedding: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying embedding: %w", err)
		}
		return nil, ErrNotFound
	}
	return scanEmbedding(rows)
}

// KeywordSearch runs a full-text query over raw chunk text, ranked by
// bm25. The final term is matched as a prefix so partial citations and
// defined terms still hit.
func (s *Store) KeywordSearch(ctx context.Context, tenantID, query string, limit int) ([]KeywordHit, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, position, raw_text, bm25(chunk_fts)
		FROM chunk_fts
		WHERE chunk_fts MATCH ? AND tenant_id = ?
		ORDER BY bm25(chunk_fts)
		LIMIT ?
	`, match, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying full-text index: %w", err)
	}
	defer rows.Close()

	var hits []KeywordHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit KeywordHit
		var rank float64
		if err := rows.Scan(&hit.DocumentID, &hit.Position, &hit.RawText, &rank); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		// bm25() returns lower-is-better negative ranks; flip so
		// higher is better for downstream fusion.
		hit.Score = -rank
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keyword hits: %w", err)
	}
	return hits, nil
}

// DeleteDocument removes every row referencing a document: embeddings,
// full-text entries, summary nodes, and relationship edges where the
// document is source or target.
func (s *Store) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	statements := []string{
		"DELETE FROM chunk_fts WHERE tenant_id = ? AND document_id = ?",
		"DELETE FROM embeddings WHERE tenant_id = ? AND document_id = ?",
		"DELETE FROM summary_nodes WHERE tenant_id = ? AND document_id = ?",
		"DELETE FROM relationship_edges WHERE tenant_id = ? AND (source_document_id = ? OR target_document_id = ?)",
	}
	for _, stmt := range statements {
		args := []any{tenantID, documentID}
		if strings.Contains(stmt, "target_document_id") {
			args = append(args, documentID)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("deleting document rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// applyFilter appends filter predicates to a tenant-scoped query.
func applyFilter(query string, args []any, filter CandidateFilter) (string, []any) {
	if len(filter.DocumentTypes) > 0 {
		placeholders := strings.Repeat("?, ", len(filter.DocumentTypes))
		query += " AND json_extract(metadata, '$.document_type') IN (" + placeholders[:len(placeholders)-2] + ")"
		for _, t := range filter.DocumentTypes {
			args = append(args, t)
		}
	}
	if filter.MatterID != "" {
		query += " AND json_extract(metadata, '$.matter_id') = ?"
		args = append(args, filter.MatterID)
	}
	if len(filter.DocumentIDs) > 0 {
		placeholders := strings.Repeat("?, ", len(filter.DocumentIDs))
		query += " AND document_id IN (" + placeholders[:len(placeholders)-2] + ")"
		for _, id := range filter.DocumentIDs {
			args = append(args, id)
		}
	}
	return query, args
}

// buildMatchQuery converts free text into an FTS5 match expression:
// each term quoted, the final term with prefix tolerance.
func buildMatchQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		cleaned := strings.Map(func(r rune) rune {
			if r == '"' || r == '\'' {
				return -1
			}
			return r
		}, field)
		if cleaned == "" {
			continue
		}
		terms = append(terms, `"`+cleaned+`"`)
	}
	if len(terms) == 0 {
		return ""
	}
	terms[len(terms)-1] += "*"
	return strings.Join(terms, " ")
}

// scanEmbedding scans an embedding row from *sql.Rows.
func scanEmbedding(rows *sql.Rows) (*EmbeddingRecord, error) {
	var rec EmbeddingRecord
	var vectorBlob []byte
	var ciphertext sql.NullString
	var metadataJSON string
	var createdAt sql.NullTime

	if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.DocumentID, &rec.Position,
		&rec.RawText, &vectorBlob, &ciphertext, &rec.ContentHash, &metadataJSON, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning embedding: %w", err)
	}

	rec.Vector = decodeVector(vectorBlob)
	rec.Ciphertext = ciphertext.String
	if createdAt.Valid {
		rec.CreatedAt = createdAt.Time
	}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	return &rec, nil
}
