package services

import (
	"context"

	"go.uber.org/zap"

	"bibdata/application/ports"
	"bibdata/domain/core/entities"
	pkgerrors "bibdata/pkg/errors"
)

// ExternalProvider reads through the public catalog API instead of the
// backing stores. Meant for environments without direct store access.
//
// Contract notes: redirect lookup is a documented no-op (the public API has
// no reverse-redirect query) and the Preload* operations do nothing.
type ExternalProvider struct {
	api      ports.CatalogAPI
	metadata ports.MetadataStore
	logger   *zap.Logger
}

// NewExternalProvider creates a provider over the public catalog API
func NewExternalProvider(api ports.CatalogAPI, metadata ports.MetadataStore, logger *zap.Logger) *ExternalProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExternalProvider{
		api:      api,
		metadata: metadata,
		logger:   logger,
	}
}

// GetDocument fetches one record from the API, synthesizing a tombstone for
// absent keys.
func (p *ExternalProvider) GetDocument(ctx context.Context, key string) (*entities.Record, error) {
	doc, err := p.api.GetDocument(ctx, key)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return entities.NewTombstone(key), nil
		}
		return nil, err
	}
	return doc, nil
}

// GetMetadata fetches and decodes one metadata row
func (p *ExternalProvider) GetMetadata(ctx context.Context, identifier string) (*entities.Metadata, error) {
	rows, err := p.metadata.FetchMetadataRows(ctx, []string{identifier})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "fetch metadata row")
	}
	for i := range rows {
		if rows[i].Identifier == identifier {
			return rows[i].Decode(), nil
		}
	}
	return nil, nil
}

// FindRedirects always returns an empty slice; the public API exposes no
// reverse-redirect query. This is part of the variant's contract, not an
// oversight.
func (p *ExternalProvider) FindRedirects(ctx context.Context, key string) ([]string, error) {
	return []string{}, nil
}

// GetEditionsOfWork lists the work's editions via the API
func (p *ExternalProvider) GetEditionsOfWork(ctx context.Context, work *entities.Record) ([]*entities.Record, error) {
	if work == nil {
		return nil, pkgerrors.NewValidation("nil work record")
	}

	editions, truncated, err := p.api.EditionsOfWork(ctx, work.Key)
	if err != nil {
		return nil, err
	}
	if truncated {
		p.logger.Warn("Too many editions for work, listing truncated",
			zap.String("key", work.Key))
	}
	return editions, nil
}

// PreloadDocuments is a no-op: this variant does not cache
func (p *ExternalProvider) PreloadDocuments(ctx context.Context, keys []string) error {
	return nil
}

// PreloadMetadata is a no-op: this variant does not cache
func (p *ExternalProvider) PreloadMetadata(ctx context.Context, identifiers []string) error {
	return nil
}

// PreloadEditionsOfWorks is a no-op: this variant does not cache
func (p *ExternalProvider) PreloadEditionsOfWorks(ctx context.Context, workKeys []string) error {
	return nil
}

// ClearCache is a no-op: nothing is cached, so nothing to clear
func (p *ExternalProvider) ClearCache() {}
