// Package services contains the data-provider variants the indexing pipeline
// chooses between at construction time. All variants implement
// ports.DataProvider; they differ only in how much they cache.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"bibdata/application/loaders"
	"bibdata/application/ports"
	"bibdata/domain/core/entities"
	"bibdata/domain/core/valueobjects"
	"bibdata/infrastructure/cache"
	"bibdata/infrastructure/observability"
	pkgerrors "bibdata/pkg/errors"
)

// Cache labels used in metrics
const (
	cacheDocuments    = "documents"
	cacheMetadata     = "metadata"
	cacheRedirects    = "redirects"
	cacheEditionIndex = "edition_index"
)

// Backing-store labels used in metrics
const (
	storeDocuments = "documents"
	storeMetadata  = "metadata"
	storeJoin      = "edition_join"
	storeRedirects = "redirects"
)

// CachedProvider is the read-through, batch-oriented provider. It owns one
// session cache and populates it through fixed-order dependency-expansion
// passes, so that records related to the requested ones are fetched in bulk
// before they are individually asked for.
//
// A CachedProvider instance is driven by a single request pipeline; it is
// not safe for concurrent use. Run independent instances against the shared
// collaborators instead.
type CachedProvider struct {
	// Dependencies are injected, not created
	documents ports.DocumentStore
	metadata  ports.MetadataStore
	joiner    ports.EditionJoiner
	redirects ports.RedirectStore

	cache   *cache.SessionCache
	batcher *loaders.Batcher[string]
	metrics *observability.Collector
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewCachedProvider creates a cached provider over the four backing
// collaborators. chunkSize bounds backing batch calls; zero selects the
// default. metrics may be nil.
func NewCachedProvider(
	documents ports.DocumentStore,
	metadata ports.MetadataStore,
	joiner ports.EditionJoiner,
	redirects ports.RedirectStore,
	chunkSize int,
	metrics *observability.Collector,
	logger *zap.Logger,
) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	// One cache instance per session; tag its logs so interleaved sessions
	// can be told apart.
	logger = logger.With(zap.String("session_id", uuid.New().String()))

	return &CachedProvider{
		documents: documents,
		metadata:  metadata,
		joiner:    joiner,
		redirects: redirects,
		cache:     cache.NewSessionCache(logger),
		batcher:   loaders.NewBatcher[string](chunkSize, logger),
		metrics:   metrics,
		tracer:    otel.Tracer("bibdata/application/services"),
		logger:    logger,
	}
}

// GetDocument returns the record for key, triggering a preload when the key
// is not yet cached. A key the backing store cannot resolve yields a
// tombstone record, never an error.
func (p *CachedProvider) GetDocument(ctx context.Context, key string) (*entities.Record, error) {
	ctx, span := p.tracer.Start(ctx, "CachedProvider.GetDocument",
		trace.WithAttributes(attribute.String("record.key", key)))
	defer span.End()

	if p.cache.HasDocument(key) {
		p.metrics.RecordCacheHit(cacheDocuments)
	} else {
		p.metrics.RecordCacheMiss(cacheDocuments)
		if err := p.PreloadDocuments(ctx, []string{key}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "preload failed")
			return nil, err
		}
	}

	if doc, ok := p.cache.Document(key); ok {
		return doc, nil
	}

	p.logger.Warn("Document not found, serving tombstone", zap.String("key", key))
	p.metrics.RecordTombstone()
	return entities.NewTombstone(key), nil
}

// GetMetadata returns decoded metadata for an identifier, or (nil, nil) when
// the identifier is confirmed absent. Multi-valued fields are split from the
// stored encoding on every read; the cache holds the canonical row.
func (p *CachedProvider) GetMetadata(ctx context.Context, identifier string) (*entities.Metadata, error) {
	ctx, span := p.tracer.Start(ctx, "CachedProvider.GetMetadata",
		trace.WithAttributes(attribute.String("metadata.identifier", identifier)))
	defer span.End()

	if p.cache.HasMetadata(identifier) {
		p.metrics.RecordCacheHit(cacheMetadata)
	} else {
		p.metrics.RecordCacheMiss(cacheMetadata)
	}

	if err := p.PreloadMetadata(ctx, []string{identifier}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	row, _ := p.cache.Metadata(identifier)
	if row == nil {
		return nil, nil
	}
	return row.Decode(), nil
}

// FindRedirects returns the keys of all records redirecting to key,
// populating the redirect cache for it when absent.
func (p *CachedProvider) FindRedirects(ctx context.Context, key string) ([]string, error) {
	ctx, span := p.tracer.Start(ctx, "CachedProvider.FindRedirects",
		trace.WithAttributes(attribute.String("record.key", key)))
	defer span.End()

	if p.cache.HasRedirects(key) {
		p.metrics.RecordCacheHit(cacheRedirects)
	} else {
		p.metrics.RecordCacheMiss(cacheRedirects)
	}

	if err := p.preloadRedirects(ctx, []string{key}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	froms, _ := p.cache.Redirects(key)
	return froms, nil
}

// GetEditionsOfWork returns the edition records of a work in join order,
// warming the edition index and the document cache as needed.
func (p *CachedProvider) GetEditionsOfWork(ctx context.Context, work *entities.Record) ([]*entities.Record, error) {
	ctx, span := p.tracer.Start(ctx, "CachedProvider.GetEditionsOfWork")
	defer span.End()

	if work == nil {
		return nil, pkgerrors.NewValidation("nil work record")
	}

	if p.cache.HasEditionIndex(work.Key) {
		p.metrics.RecordCacheHit(cacheEditionIndex)
	} else {
		p.metrics.RecordCacheMiss(cacheEditionIndex)
	}

	if err := p.PreloadEditionsOfWorks(ctx, []string{work.Key}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	editionKeys, _ := p.cache.EditionKeysOfWork(work.Key)
	editions := make([]*entities.Record, 0, len(editionKeys))
	for _, key := range editionKeys {
		// Guaranteed cached by the index pass; GetDocument keeps the
		// never-fails contract if a body went missing anyway.
		doc, err := p.GetDocument(ctx, key)
		if err != nil {
			return nil, err
		}
		editions = append(editions, doc)
	}
	return editions, nil
}

// PreloadDocuments fetches the requested keys and then runs one
// dependency-expansion pass per relation, in fixed order. Each pass operates
// over the entire current cache contents, so the order matters: editions must
// be resident before work expansion can discover their work keys, works
// before author expansion, and so on.
//
// This is a single sweep, not a fixed-point loop: relations of records
// discovered during a later pass are not chased further.
func (p *CachedProvider) PreloadDocuments(ctx context.Context, keys []string) error {
	ctx, span := p.tracer.Start(ctx, "CachedProvider.PreloadDocuments",
		trace.WithAttributes(attribute.Int("keys.requested", len(keys))))
	defer span.End()

	// Pass 0: the requested keys themselves. Keys outside the recognized
	// shape are dropped here; preload is best-effort.
	resolvable := make([]string, 0, len(keys))
	for _, raw := range keys {
		if key := valueobjects.ParseKey(raw); key.IsResolvable() {
			resolvable = append(resolvable, raw)
		}
	}
	if err := p.fetchMissingDocuments(ctx, resolvable); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "document fetch failed")
		return err
	}

	passes := []struct {
		name string
		run  func(context.Context) error
	}{
		{"works", p.expandWorks},
		{"authors", p.expandAuthors},
		{"editions", p.expandEditions},
		{"metadata", p.expandMetadataOfEditions},
		{"redirects", p.primeRedirects},
	}
	for _, pass := range passes {
		if err := pass.run(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, pass.name+" expansion failed")
			return err
		}
		p.metrics.RecordPreloadPass(pass.name)
	}
	return nil
}

// PreloadMetadata looks up the given identifiers, skipping any already
// cached (present or confirmed absent). Identifiers with no returned row are
// explicitly marked absent so future lookups short-circuit.
func (p *CachedProvider) PreloadMetadata(ctx context.Context, identifiers []string) error {
	missing := p.cache.MissingMetadataIdentifiers(uniqueStrings(identifiers))
	if len(missing) == 0 {
		return nil
	}
	p.logger.Info("Preloading metadata", zap.Int("identifiers", len(missing)))

	return p.batcher.Run(ctx, missing, func(ctx context.Context, chunk []string) error {
		rows, err := p.timedMetadataFetch(ctx, chunk)
		if err != nil {
			return pkgerrors.Wrap(err, "fetch metadata rows")
		}
		for _, row := range rows {
			p.cache.PutMetadataRow(row)
		}
		for _, id := range chunk {
			p.cache.MarkMetadataAbsent(id)
		}
		return nil
	})
}

// PreloadEditionsOfWorks builds the edition index for the given works with
// one relational join over the whole missing key set, then guarantees every
// edition key discovered is present in the document cache.
func (p *CachedProvider) PreloadEditionsOfWorks(ctx context.Context, workKeys []string) error {
	missing := p.cache.MissingWorkIndexes(uniqueStrings(workKeys))
	if len(missing) == 0 {
		return nil
	}
	p.logger.Info("Preloading editions of works", zap.Int("works", len(missing)))

	start := nowFunc()
	pairs, err := p.joiner.FetchWorkEditionPairs(ctx, missing)
	p.metrics.RecordBackingBatch(storeJoin, nowFunc().Sub(start))
	if err != nil {
		return pkgerrors.Wrap(err, "fetch work-edition pairs")
	}

	// Join order is the index order; no additional sort.
	for _, pair := range pairs {
		p.cache.AppendEditionKey(pair.WorkKey, pair.EditionKey)
	}

	return p.fetchMissingDocuments(ctx, p.cache.AllEditionKeys())
}

// ClearCache atomically empties all four caches
func (p *CachedProvider) ClearCache() {
	stats := p.cache.GetStats()
	p.logger.Info("Clearing caches",
		zap.Int("documents", stats.Documents),
		zap.Int("metadata_entries", stats.MetadataEntries),
		zap.Int("redirect_targets", stats.RedirectTargets),
		zap.Int("indexed_works", stats.IndexedWorks))
	p.cache.Clear()
}

// Stats returns the current cache statistics
func (p *CachedProvider) Stats() cache.CacheStats {
	return p.cache.GetStats()
}

// BatcherMetrics returns metrics for the underlying key batcher
func (p *CachedProvider) BatcherMetrics() loaders.BatcherMetrics {
	return p.batcher.GetMetrics()
}

// fetchMissingDocuments fetches whichever of the given keys are not yet
// cached, merging each chunk's records into the cache as soon as the chunk
// completes. Re-fetching an already-cached key never happens.
func (p *CachedProvider) fetchMissingDocuments(ctx context.Context, keys []string) error {
	missing := p.cache.MissingDocumentKeys(uniqueStrings(keys))
	if len(missing) == 0 {
		return nil
	}
	p.logger.Info("Fetching documents", zap.Int("keys", len(missing)))

	return p.batcher.Run(ctx, missing, func(ctx context.Context, chunk []string) error {
		start := nowFunc()
		docs, err := p.documents.FetchMany(ctx, chunk)
		p.metrics.RecordBackingBatch(storeDocuments, nowFunc().Sub(start))
		if err != nil {
			return pkgerrors.Wrap(err, "fetch documents")
		}
		// Keys absent from the result simply never enter the cache.
		for _, doc := range docs {
			p.cache.PutDocument(doc)
		}
		return nil
	})
}

// expandWorks fetches the first referenced work of every cached edition
func (p *CachedProvider) expandWorks(ctx context.Context) error {
	keys := make([]string, 0)
	for _, doc := range p.cache.Documents() {
		if !doc.IsEdition() {
			continue
		}
		if workKey, ok := doc.FirstWorkKey(); ok {
			keys = append(keys, workKey)
		}
	}
	return p.fetchMissingDocuments(ctx, keys)
}

// expandAuthors fetches the authors referenced by cached works and editions.
// Work references nest the author pointer one level deeper than edition
// references; both shapes are handled by the record itself.
func (p *CachedProvider) expandAuthors(ctx context.Context) error {
	keys := make([]string, 0)
	for _, doc := range p.cache.Documents() {
		if doc.IsWork() || doc.IsEdition() {
			keys = append(keys, doc.AuthorKeys()...)
		}
	}
	return p.fetchMissingDocuments(ctx, keys)
}

// expandEditions warms the edition index for every cached work so later
// "editions of this work" calls are already answered.
func (p *CachedProvider) expandEditions(ctx context.Context) error {
	workKeys := make([]string, 0)
	for _, doc := range p.cache.Documents() {
		if doc.IsWork() {
			workKeys = append(workKeys, doc.Key)
		}
	}
	if len(workKeys) == 0 {
		return nil
	}
	return p.PreloadEditionsOfWorks(ctx, workKeys)
}

// expandMetadataOfEditions looks up external metadata for every cached
// edition that carries an archive identifier.
func (p *CachedProvider) expandMetadataOfEditions(ctx context.Context) error {
	identifiers := make([]string, 0)
	for _, doc := range p.cache.Documents() {
		if doc.IsEdition() && doc.OCAID != "" {
			identifiers = append(identifiers, doc.OCAID)
		}
	}
	if len(identifiers) == 0 {
		return nil
	}
	return p.PreloadMetadata(ctx, identifiers)
}

// primeRedirects pre-populates the redirect cache for every cached work and
// author, anticipating later redirect lookups.
func (p *CachedProvider) primeRedirects(ctx context.Context) error {
	targets := make([]string, 0)
	for _, key := range p.cache.DocumentKeys() {
		switch valueobjects.ParseKey(key).Kind() {
		case valueobjects.KindWork, valueobjects.KindAuthor:
			targets = append(targets, key)
		}
	}
	return p.preloadRedirects(ctx, targets)
}

// preloadRedirects runs the reverse-redirect lookup for targets not yet
// indexed. Every requested target ends up with at least an empty entry, so
// "no redirects" is cached distinctly from "not yet queried".
func (p *CachedProvider) preloadRedirects(ctx context.Context, targets []string) error {
	missing := p.cache.MissingRedirectTargets(uniqueStrings(targets))
	if len(missing) == 0 {
		return nil
	}
	p.logger.Info("Preloading redirects", zap.Int("targets", len(missing)))

	return p.batcher.Run(ctx, missing, func(ctx context.Context, chunk []string) error {
		// Targets are marked queried before the fetch. A chunk that fails
		// leaves its targets marked with empty entries for the rest of the
		// session; they are not retried.
		for _, target := range chunk {
			p.cache.EnsureRedirectTarget(target)
		}

		start := nowFunc()
		edges, err := p.redirects.FetchRedirectMatches(ctx, chunk)
		p.metrics.RecordBackingBatch(storeRedirects, nowFunc().Sub(start))
		if err != nil {
			return pkgerrors.Wrap(err, "fetch redirect matches")
		}
		for _, edge := range edges {
			p.cache.AddRedirect(edge.ToKey, edge.FromKey)
		}
		return nil
	})
}

func (p *CachedProvider) timedMetadataFetch(ctx context.Context, chunk []string) ([]entities.MetadataRow, error) {
	start := nowFunc()
	rows, err := p.metadata.FetchMetadataRows(ctx, chunk)
	p.metrics.RecordBackingBatch(storeMetadata, nowFunc().Sub(start))
	return rows, err
}

// nowFunc is swappable in tests
var nowFunc = time.Now

// uniqueStrings removes duplicates while preserving first-seen order
func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	return unique
}
