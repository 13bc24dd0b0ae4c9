package ports

import (
	"context"

	"bibdata/domain/core/entities"
)

// DataProvider is the contract this engine exposes to the indexing pipeline.
// Implementations differ in how much they cache; all of them honor the same
// operation set. The Preload* operations are pure prefetch: callers use them
// as a latency optimization before the corresponding Get*/Find* calls.
type DataProvider interface {
	// GetDocument resolves a single record. Not-found is never an error:
	// an unresolvable key yields a tombstone record (type /type/delete)
	// carrying the requested key. Errors only report backing failures.
	GetDocument(ctx context.Context, key string) (*entities.Record, error)

	// GetMetadata returns decoded external metadata for an identifier, or
	// (nil, nil) when the identifier is known to be absent.
	GetMetadata(ctx context.Context, identifier string) (*entities.Metadata, error)

	// FindRedirects returns the keys of all records which redirect to key.
	FindRedirects(ctx context.Context, key string) ([]string, error)

	// GetEditionsOfWork returns the edition records belonging to a work.
	GetEditionsOfWork(ctx context.Context, work *entities.Record) ([]*entities.Record, error)

	PreloadDocuments(ctx context.Context, keys []string) error
	PreloadMetadata(ctx context.Context, identifiers []string) error
	PreloadEditionsOfWorks(ctx context.Context, workKeys []string) error

	// ClearCache atomically empties all caches the implementation holds.
	ClearCache()
}
