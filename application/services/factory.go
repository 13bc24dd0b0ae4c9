package services

import (
	"fmt"

	"go.uber.org/zap"

	"bibdata/application/ports"
	"bibdata/infrastructure/observability"
)

// ProviderKind selects a provider variant at construction time
type ProviderKind string

const (
	ProviderCached   ProviderKind = "cached"
	ProviderLegacy   ProviderKind = "legacy"
	ProviderExternal ProviderKind = "external"
)

// Collaborators bundles the backing stores a provider is built from.
// All dependencies are passed explicitly; there are no process-wide handles.
type Collaborators struct {
	Documents ports.DocumentStore
	Metadata  ports.MetadataStore
	Joiner    ports.EditionJoiner
	Redirects ports.RedirectStore

	// Catalog is only required for the external variant
	Catalog ports.CatalogAPI
}

// NewDataProvider constructs the requested provider variant. Each variant
// implements the full ports.DataProvider operation set; variant-specific
// no-ops (external redirect lookup, uncached preloads) are part of the
// documented contract, never silent capability loss.
func NewDataProvider(
	kind ProviderKind,
	collab Collaborators,
	chunkSize int,
	metrics *observability.Collector,
	logger *zap.Logger,
) (ports.DataProvider, error) {
	switch kind {
	case ProviderCached, "":
		return NewCachedProvider(collab.Documents, collab.Metadata, collab.Joiner, collab.Redirects, chunkSize, metrics, logger), nil
	case ProviderLegacy:
		return NewLegacyProvider(collab.Documents, collab.Metadata, collab.Joiner, collab.Redirects, logger), nil
	case ProviderExternal:
		if collab.Catalog == nil {
			return nil, fmt.Errorf("external provider requires a catalog API client")
		}
		return NewExternalProvider(collab.Catalog, collab.Metadata, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}
