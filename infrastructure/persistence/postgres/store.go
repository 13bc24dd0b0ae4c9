// Package postgres implements the relational backing collaborators: the
// work-edition join, the reverse-redirect lookup and the external metadata
// rows. Queries always take the full key set at once; per-key round trips
// are exactly what this engine exists to avoid.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"bibdata/domain/core/entities"
	pkgerrors "bibdata/pkg/errors"
)

// metadataQuery selects the canonical metadata columns; multi-valued fields
// stay in their semicolon-joined storage encoding.
const metadataQuery = `
SELECT identifier,
       COALESCE(boxid, ''),
       COALESCE(isbn, ''),
       COALESCE(title, ''),
       COALESCE(description, ''),
       COALESCE(publisher, ''),
       COALESCE(creator, ''),
       COALESCE(date, ''),
       COALESCE(collection, ''),
       COALESCE(repub_state, 0),
       COALESCE(mediatype, ''),
       COALESCE(noindex, FALSE)
  FROM metadata
 WHERE identifier = ANY($1)`

// editionJoinQuery resolves which editions belong to which works in one
// statement. The property subquery pins the join to the works reference of
// edition records.
const editionJoinQuery = `
SELECT edition.key AS edition_key, work.key AS work_key
  FROM thing AS edition, thing AS work, edition_ref
 WHERE edition_ref.thing_id = edition.id
   AND edition_ref.value = work.id
   AND edition_ref.key_id = (SELECT id FROM property
                              WHERE name = 'works'
                                AND type = (SELECT id FROM thing WHERE key = '/type/edition'))
   AND work.key = ANY($1)`

// redirectQuery finds redirect records whose location is one of the targets
const redirectQuery = `
SELECT redirect.key AS from_key, datum.value AS to_key
  FROM thing AS redirect, datum_str AS datum
 WHERE redirect.type = (SELECT id FROM thing WHERE key = '/type/redirect')
   AND datum.thing_id = redirect.id
   AND datum.key_id = (SELECT id FROM property
                        WHERE name = 'location'
                          AND type = (SELECT id FROM thing WHERE key = '/type/redirect'))
   AND datum.value = ANY($1)`

// Store executes the relational queries against one or two databases: the
// catalog database (things, redirects, join) and the archive database
// (metadata). Passing the same pool twice is fine for colocated schemas.
type Store struct {
	catalog *pgxpool.Pool
	archive *pgxpool.Pool
	logger  *zap.Logger
}

// NewStore creates a store over the given connection pools
func NewStore(catalog, archive *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		catalog: catalog,
		archive: archive,
		logger:  logger,
	}
}

// Connect builds a connection pool for a DSN
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, pkgerrors.NewUnavailable("connect to postgres", err)
	}
	return pool, nil
}

// FetchMetadataRows returns the metadata rows for the given identifiers.
// Absent identifiers produce no row.
func (s *Store) FetchMetadataRows(ctx context.Context, identifiers []string) ([]entities.MetadataRow, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}

	rows, err := s.archive.Query(ctx, metadataQuery, identifiers)
	if err != nil {
		return nil, pkgerrors.NewUnavailable("query metadata rows", err)
	}
	defer rows.Close()

	result := make([]entities.MetadataRow, 0, len(identifiers))
	for rows.Next() {
		var row entities.MetadataRow
		if err := rows.Scan(
			&row.Identifier, &row.BoxID, &row.ISBN, &row.Title, &row.Description,
			&row.Publisher, &row.Creator, &row.Date, &row.Collection,
			&row.RepubState, &row.MediaType, &row.NoIndex,
		); err != nil {
			return nil, pkgerrors.NewInternal("scan metadata row", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewUnavailable("read metadata rows", err)
	}

	s.logger.Debug("Fetched metadata rows",
		zap.Int("requested", len(identifiers)),
		zap.Int("returned", len(result)))
	return result, nil
}

// FetchWorkEditionPairs runs the work-edition join for the full key set
func (s *Store) FetchWorkEditionPairs(ctx context.Context, workKeys []string) ([]entities.WorkEditionPair, error) {
	if len(workKeys) == 0 {
		return nil, nil
	}

	rows, err := s.catalog.Query(ctx, editionJoinQuery, workKeys)
	if err != nil {
		return nil, pkgerrors.NewUnavailable("query work-edition pairs", err)
	}
	defer rows.Close()

	result := make([]entities.WorkEditionPair, 0)
	for rows.Next() {
		var pair entities.WorkEditionPair
		if err := rows.Scan(&pair.EditionKey, &pair.WorkKey); err != nil {
			return nil, pkgerrors.NewInternal("scan work-edition pair", err)
		}
		result = append(result, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewUnavailable("read work-edition pairs", err)
	}

	s.logger.Debug("Fetched work-edition pairs",
		zap.Int("works", len(workKeys)),
		zap.Int("pairs", len(result)))
	return result, nil
}

// FetchRedirectMatches finds all redirect records pointing at the targets
func (s *Store) FetchRedirectMatches(ctx context.Context, targetKeys []string) ([]entities.RedirectEdge, error) {
	if len(targetKeys) == 0 {
		return nil, nil
	}

	rows, err := s.catalog.Query(ctx, redirectQuery, targetKeys)
	if err != nil {
		return nil, pkgerrors.NewUnavailable("query redirects", err)
	}
	defer rows.Close()

	result := make([]entities.RedirectEdge, 0)
	for rows.Next() {
		var edge entities.RedirectEdge
		if err := rows.Scan(&edge.FromKey, &edge.ToKey); err != nil {
			return nil, pkgerrors.NewInternal("scan redirect edge", err)
		}
		result = append(result, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewUnavailable("read redirects", err)
	}

	s.logger.Debug("Fetched redirect matches",
		zap.Int("targets", len(targetKeys)),
		zap.Int("edges", len(result)))
	return result, nil
}
