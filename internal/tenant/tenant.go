// Package tenant carries the tenant isolation boundary through request contexts.
//
// Every storage, crypto, and retrieval operation is tenant-scoped. Missing
// tenant context is an error, never an empty result - fail closed.
package tenant

import (
	"context"
	"errors"
)

var (
	// ErrMissingTenant is returned when tenant info is missing from context.
	ErrMissingTenant = errors.New("tenant info missing from context")

	// ErrInvalidTenant is returned when the tenant identifier is invalid.
	ErrInvalidTenant = errors.New("invalid tenant identifier")
)

// contextKey is the context key for Info.
type contextKey struct{}

// Info holds the tenant scope for a request.
//
// TenantID is the firm/organization identifier (required). UserID identifies
// the requesting user within the tenant and is optional; when present it
// enables personalized ranking.
type Info struct {
	// TenantID is the isolation boundary identifier (required).
	TenantID string

	// UserID is the requesting user within the tenant (optional).
	UserID string
}

// Validate checks that required fields are present.
func (t *Info) Validate() error {
	if t.TenantID == "" {
		return ErrInvalidTenant
	}
	return nil
}

// NewContext adds tenant Info to a context.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, contextKey{}, info)
}

// FromContext extracts tenant Info from a context.
// Returns ErrMissingTenant if not present - fail closed.
func FromContext(ctx context.Context) (*Info, error) {
	val := ctx.Value(contextKey{})
	if val == nil {
		return nil, ErrMissingTenant
	}
	info, ok := val.(*Info)
	if !ok || info == nil {
		return nil, ErrMissingTenant
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

// Has reports whether valid tenant Info is present in the context.
func Has(ctx context.Context) bool {
	_, err := FromContext(ctx)
	return err == nil
}
