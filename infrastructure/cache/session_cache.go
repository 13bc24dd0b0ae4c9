// Package cache implements the session-scoped caches behind the cached data
// provider: record bodies, external metadata, reverse redirects and the
// work-to-edition index.
//
// Entries live for the lifetime of one logical request/session and are
// cleared together; there is no eviction, no TTL and no per-key
// invalidation. A cache instance has a single logical owner, so no internal
// locking is provided — run one instance per concurrent pipeline instead.
package cache

import (
	"go.uber.org/zap"

	"bibdata/domain/core/entities"
)

// SessionCache is the single source of truth for "is this already fetched".
type SessionCache struct {
	documents map[string]*entities.Record

	// metadata holds one entry per looked-up identifier; a nil row means
	// "looked up, confirmed absent" as opposed to "not yet looked up".
	metadata map[string]*entities.MetadataRow

	// redirects is a reverse index: target key to the keys redirecting to
	// it. A present empty slice means "queried, no redirects".
	redirects map[string][]string

	// editionIndex maps a work key to the ordered keys of its editions
	editionIndex map[string][]string

	// Statistics
	hits   int64
	misses int64

	logger *zap.Logger
}

// NewSessionCache creates an empty cache set
func NewSessionCache(logger *zap.Logger) *SessionCache {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &SessionCache{logger: logger}
	c.reset()
	return c
}

func (c *SessionCache) reset() {
	c.documents = make(map[string]*entities.Record)
	c.metadata = make(map[string]*entities.MetadataRow)
	c.redirects = make(map[string][]string)
	c.editionIndex = make(map[string][]string)
}

// Clear atomically empties all four caches. There is no partial clear.
func (c *SessionCache) Clear() {
	c.logger.Debug("Clearing session cache",
		zap.Int("documents", len(c.documents)),
		zap.Int("metadata_entries", len(c.metadata)),
		zap.Int("redirect_targets", len(c.redirects)),
		zap.Int("indexed_works", len(c.editionIndex)))
	c.reset()
}

// Document operations

// Document returns the cached record for key, if present
func (c *SessionCache) Document(key string) (*entities.Record, bool) {
	doc, ok := c.documents[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return doc, ok
}

// HasDocument reports presence without touching hit statistics
func (c *SessionCache) HasDocument(key string) bool {
	_, ok := c.documents[key]
	return ok
}

// PutDocument inserts a fetched record. Records are immutable once inserted.
func (c *SessionCache) PutDocument(doc *entities.Record) {
	if doc == nil || doc.Key == "" {
		return
	}
	c.documents[doc.Key] = doc
}

// MissingDocumentKeys filters out keys that are already cached
func (c *SessionCache) MissingDocumentKeys(keys []string) []string {
	missing := make([]string, 0, len(keys))
	for _, key := range keys {
		if !c.HasDocument(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

// Documents returns a snapshot of all cached records. Expansion passes
// operate over the entire current cache contents, not just newly requested
// keys.
func (c *SessionCache) Documents() []*entities.Record {
	docs := make([]*entities.Record, 0, len(c.documents))
	for _, doc := range c.documents {
		docs = append(docs, doc)
	}
	return docs
}

// DocumentKeys returns the keys of all cached records
func (c *SessionCache) DocumentKeys() []string {
	keys := make([]string, 0, len(c.documents))
	for key := range c.documents {
		keys = append(keys, key)
	}
	return keys
}

// Metadata operations

// Metadata returns the cached row for an identifier. A (nil, true) result
// means the identifier was looked up and confirmed absent.
func (c *SessionCache) Metadata(identifier string) (*entities.MetadataRow, bool) {
	row, ok := c.metadata[identifier]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return row, ok
}

// HasMetadata reports whether an identifier has been looked up
func (c *SessionCache) HasMetadata(identifier string) bool {
	_, ok := c.metadata[identifier]
	return ok
}

// PutMetadataRow caches a returned metadata row
func (c *SessionCache) PutMetadataRow(row entities.MetadataRow) {
	if row.Identifier == "" {
		return
	}
	stored := row
	c.metadata[row.Identifier] = &stored
}

// MarkMetadataAbsent records "looked up, no row" for an identifier, unless a
// row is already cached.
func (c *SessionCache) MarkMetadataAbsent(identifier string) {
	if _, ok := c.metadata[identifier]; !ok {
		c.metadata[identifier] = nil
	}
}

// MissingMetadataIdentifiers filters out identifiers already looked up,
// including those confirmed absent.
func (c *SessionCache) MissingMetadataIdentifiers(identifiers []string) []string {
	missing := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if !c.HasMetadata(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

// Redirect operations

// Redirects returns the keys redirecting to target, and whether the target
// has been queried at all.
func (c *SessionCache) Redirects(target string) ([]string, bool) {
	froms, ok := c.redirects[target]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return froms, ok
}

// HasRedirects reports whether a target key has been queried
func (c *SessionCache) HasRedirects(target string) bool {
	_, ok := c.redirects[target]
	return ok
}

// EnsureRedirectTarget guarantees target has an entry, empty if nothing has
// been recorded yet. This distinguishes "no redirects" from "not yet queried".
func (c *SessionCache) EnsureRedirectTarget(target string) {
	if _, ok := c.redirects[target]; !ok {
		c.redirects[target] = []string{}
	}
}

// AddRedirect records that from redirects to target
func (c *SessionCache) AddRedirect(target, from string) {
	c.redirects[target] = append(c.redirects[target], from)
}

// MissingRedirectTargets filters out targets already queried
func (c *SessionCache) MissingRedirectTargets(targets []string) []string {
	missing := make([]string, 0, len(targets))
	for _, target := range targets {
		if !c.HasRedirects(target) {
			missing = append(missing, target)
		}
	}
	return missing
}

// Edition-index operations

// EditionKeysOfWork returns the ordered edition keys indexed for a work
func (c *SessionCache) EditionKeysOfWork(workKey string) ([]string, bool) {
	editions, ok := c.editionIndex[workKey]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return editions, ok
}

// HasEditionIndex reports whether a work has been indexed
func (c *SessionCache) HasEditionIndex(workKey string) bool {
	_, ok := c.editionIndex[workKey]
	return ok
}

// AppendEditionKey adds an edition to a work's index, preserving join order
func (c *SessionCache) AppendEditionKey(workKey, editionKey string) {
	c.editionIndex[workKey] = append(c.editionIndex[workKey], editionKey)
}

// MissingWorkIndexes filters out works already indexed
func (c *SessionCache) MissingWorkIndexes(workKeys []string) []string {
	missing := make([]string, 0, len(workKeys))
	for _, key := range workKeys {
		if !c.HasEditionIndex(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

// AllEditionKeys returns every edition key across all indexed works
func (c *SessionCache) AllEditionKeys() []string {
	keys := make([]string, 0)
	for _, editions := range c.editionIndex {
		keys = append(keys, editions...)
	}
	return keys
}

// GetStats returns cache statistics
func (c *SessionCache) GetStats() CacheStats {
	hitRate := float64(0)
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Documents:       len(c.documents),
		MetadataEntries: len(c.metadata),
		RedirectTargets: len(c.redirects),
		IndexedWorks:    len(c.editionIndex),
		Hits:            c.hits,
		Misses:          c.misses,
		HitRate:         hitRate,
	}
}

// CacheStats holds cache statistics
type CacheStats struct {
	Documents       int
	MetadataEntries int
	RedirectTargets int
	IndexedWorks    int
	Hits            int64
	Misses          int64
	HitRate         float64
}
