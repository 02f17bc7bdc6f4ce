package store

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Affinity kinds tracked per user.
const (
	AffinityDocumentType = "document_type"
	AffinityMatter       = "matter"
)

// Affinity is a confidence-weighted preference of a user for a
// document type or matter, used for personalization at retrieval time.
type Affinity struct {
	TenantID   string
	UserID     string
	Kind       string
	Value      string
	Confidence float64
}

// UpsertAffinity writes or refreshes one affinity row.
func (s *Store) UpsertAffinity(ctx context.Context, a Affinity) error {
	if a.TenantID == "" || a.UserID == "" || a.Kind == "" || a.Value == "" {
		return fmt.Errorf("%w: affinity requires tenant, user, kind, and value", ErrInvalidInput)
	}
	a.Confidence = math.Max(0, math.Min(1, a.Confidence))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_affinities (tenant_id, user_id, kind, value, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id, kind, value) DO UPDATE SET
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`, a.TenantID, a.UserID, a.Kind, a.Value, a.Confidence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upserting affinity: %w", err)
	}
	return nil
}

// Affinities returns every affinity of a user within the tenant.
func (s *Store) Affinities(ctx context.Context, tenantID, userID string) ([]Affinity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, user_id, kind, value, confidence
		FROM user_affinities
		WHERE tenant_id = ? AND user_id = ?
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying affinities: %w", err)
	}
	defer rows.Close()

	var affinities []Affinity //nolint:prealloc // size unknown from query
	for rows.Next() {
		var a Affinity
		if err := rows.Scan(&a.TenantID, &a.UserID, &a.Kind, &a.Value, &a.Confidence); err != nil {
			return nil, fmt.Errorf("scanning affinity: %w", err)
		}
		affinities = append(affinities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating affinities: %w", err)
	}
	return affinities, nil
}
