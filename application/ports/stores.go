// Package ports defines the boundary contracts between the preloading engine
// and its backing collaborators. The collaborators are black boxes: retry and
// timeout policy live behind these interfaces, not in front of them.
package ports

import (
	"context"

	"bibdata/domain/core/entities"
)

// DocumentStore is the batch get-by-key lookup service for catalog records.
type DocumentStore interface {
	// FetchMany returns whatever subset of the requested keys exist.
	// Order is unspecified and empty input must be tolerated.
	FetchMany(ctx context.Context, keys []string) ([]*entities.Record, error)
}

// MetadataStore returns external metadata rows by identifier.
// Absent identifiers simply produce no row.
type MetadataStore interface {
	FetchMetadataRows(ctx context.Context, identifiers []string) ([]entities.MetadataRow, error)
}

// EditionJoiner executes the relational work-edition join for a full key set
// at once. No pagination contract is assumed.
type EditionJoiner interface {
	FetchWorkEditionPairs(ctx context.Context, workKeys []string) ([]entities.WorkEditionPair, error)
}

// RedirectStore finds all redirect records whose location is in the target
// key set (reverse lookup).
type RedirectStore interface {
	FetchRedirectMatches(ctx context.Context, targetKeys []string) ([]entities.RedirectEdge, error)
}
