// Package catalog talks to the remote product catalog service.
package catalog

import (
	"context"

	"storefront/internal/model"
)

// Service is the catalog collaborator used by the storefront view.
//
// Search returns an error satisfying model.IsNotFound when nothing matches;
// callers treat that as an empty result, not a failure.
type Service interface {
	// FetchAll returns the full catalog snapshot.
	FetchAll(ctx context.Context) ([]model.Product, error)

	// Search returns products whose name or category matches query.
	Search(ctx context.Context, query string) ([]model.Product, error)
}

// Mock implements Service for testing.
// Each method can be configured via function fields.
type Mock struct {
	FetchAllFunc func(ctx context.Context) ([]model.Product, error)
	SearchFunc   func(ctx context.Context, query string) ([]model.Product, error)
}

// FetchAll calls the configured FetchAllFunc or returns an empty catalog.
func (m *Mock) FetchAll(ctx context.Context) ([]model.Product, error) {
	if m.FetchAllFunc != nil {
		return m.FetchAllFunc(ctx)
	}
	return []model.Product{}, nil
}

// Search calls the configured SearchFunc or reports no matches.
func (m *Mock) Search(ctx context.Context, query string) ([]model.Product, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query)
	}
	return nil, model.NewNotFoundError("products")
}

// Verify implementations satisfy Service at compile time.
var (
	_ Service = (*Mock)(nil)
	_ Service = (*Client)(nil)
	_ Service = (*CachedService)(nil)
)
