package ports

import (
	"context"

	"bibdata/domain/core/entities"
)

// CatalogAPI reads records from the public HTTP API of the upstream catalog.
// It backs the external provider variant used outside the datacenter.
type CatalogAPI interface {
	// GetDocument fetches one record. Absent keys yield a NotFound error
	// (pkg/errors), which callers translate to a tombstone.
	GetDocument(ctx context.Context, key string) (*entities.Record, error)

	// EditionsOfWork lists the editions of a work, up to the API page
	// limit. The boolean reports whether the listing was truncated.
	EditionsOfWork(ctx context.Context, workKey string) ([]*entities.Record, bool, error)
}
