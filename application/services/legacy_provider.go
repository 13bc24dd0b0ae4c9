package services

import (
	"context"

	"go.uber.org/zap"

	"bibdata/application/ports"
	"bibdata/domain/core/entities"
	pkgerrors "bibdata/pkg/errors"
)

// LegacyProvider is the thin pass-through variant: every call goes straight
// to the backing collaborators and nothing is cached. It exists for
// pipelines that process too few records for preloading to pay off.
type LegacyProvider struct {
	documents ports.DocumentStore
	metadata  ports.MetadataStore
	joiner    ports.EditionJoiner
	redirects ports.RedirectStore
	logger    *zap.Logger
}

// NewLegacyProvider creates an uncached provider over the collaborators
func NewLegacyProvider(
	documents ports.DocumentStore,
	metadata ports.MetadataStore,
	joiner ports.EditionJoiner,
	redirects ports.RedirectStore,
	logger *zap.Logger,
) *LegacyProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LegacyProvider{
		documents: documents,
		metadata:  metadata,
		joiner:    joiner,
		redirects: redirects,
		logger:    logger,
	}
}

// GetDocument fetches one record, synthesizing a tombstone when absent
func (p *LegacyProvider) GetDocument(ctx context.Context, key string) (*entities.Record, error) {
	p.logger.Debug("get_document", zap.String("key", key))

	docs, err := p.documents.FetchMany(ctx, []string{key})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "fetch document")
	}
	for _, doc := range docs {
		if doc != nil && doc.Key == key {
			return doc, nil
		}
	}
	return entities.NewTombstone(key), nil
}

// GetMetadata fetches and decodes one metadata row, or (nil, nil) when the
// identifier has no row.
func (p *LegacyProvider) GetMetadata(ctx context.Context, identifier string) (*entities.Metadata, error) {
	p.logger.Debug("get_metadata", zap.String("identifier", identifier))

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

// FindRedirects queries the backing store on every call
func (p *LegacyProvider) FindRedirects(ctx context.Context, key string) ([]string, error) {
	p.logger.Debug("find_redirects", zap.String("key", key))

	edges, err := p.redirects.FetchRedirectMatches(ctx, []string{key})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "fetch redirect matches")
	}
	froms := make([]string, 0, len(edges))
	for _, edge := range edges {
		if edge.ToKey == key {
			froms = append(froms, edge.FromKey)
		}
	}
	return froms, nil
}

// GetEditionsOfWork runs the join and fetches the edition bodies
func (p *LegacyProvider) GetEditionsOfWork(ctx context.Context, work *entities.Record) ([]*entities.Record, error) {
	if work == nil {
		return nil, pkgerrors.NewValidation("nil work record")
	}
	p.logger.Debug("get_editions_of_work", zap.String("key", work.Key))

	pairs, err := p.joiner.FetchWorkEditionPairs(ctx, []string{work.Key})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "fetch work-edition pairs")
	}
	editionKeys := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair.WorkKey == work.Key {
			editionKeys = append(editionKeys, pair.EditionKey)
		}
	}
	if len(editionKeys) == 0 {
		return []*entities.Record{}, nil
	}

	docs, err := p.documents.FetchMany(ctx, editionKeys)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "fetch editions")
	}

	// Callers read editions in join order; the store does not guarantee it
	byKey := make(map[string]*entities.Record, len(docs))
	for _, doc := range docs {
		if doc != nil {
			byKey[doc.Key] = doc
		}
	}
	editions := make([]*entities.Record, 0, len(editionKeys))
	for _, key := range editionKeys {
		if doc, ok := byKey[key]; ok {
			editions = append(editions, doc)
		}
	}
	return editions, nil
}

// PreloadDocuments is a no-op: this variant does not cache
func (p *LegacyProvider) PreloadDocuments(ctx context.Context, keys []string) error {
	return nil
}

// PreloadMetadata is a no-op: this variant does not cache
func (p *LegacyProvider) PreloadMetadata(ctx context.Context, identifiers []string) error {
	return nil
}

// PreloadEditionsOfWorks is a no-op: this variant does not cache
func (p *LegacyProvider) PreloadEditionsOfWorks(ctx context.Context, workKeys []string) error {
	return nil
}

// ClearCache is a no-op: nothing is cached, so nothing to clear
func (p *LegacyProvider) ClearCache() {}
