package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibdata/domain/core/entities"
	pkgerrors "bibdata/pkg/errors"
)

func newLegacyFixture() (*LegacyProvider, *fakeDocumentStore, *fakeMetadataStore, *fakeJoiner, *fakeRedirectStore) {
	documents := &fakeDocumentStore{records: make(map[string]*entities.Record)}
	metadata := &fakeMetadataStore{rows: make(map[string]entities.MetadataRow)}
	joiner := &fakeJoiner{editionsOfWork: make(map[string][]string)}
	redirects := &fakeRedirectStore{redirectsTo: make(map[string][]string)}
	provider := NewLegacyProvider(documents, metadata, joiner, redirects, nil)
	return provider, documents, metadata, joiner, redirects
}

func TestLegacyProvider_GetDocument_HitsStoreEveryTime(t *testing.T) {
	provider, documents, _, _, _ := newLegacyFixture()
	documents.records["/books/OL1M"] = editionRecord("/books/OL1M", "/works/OL1W", "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		doc, err := provider.GetDocument(ctx, "/books/OL1M")
		require.NoError(t, err)
		assert.Equal(t, "/books/OL1M", doc.Key)
	}

	// No caching: one backing call per lookup
	assert.Len(t, documents.calls, 3)
}

func TestLegacyProvider_GetDocument_TombstoneForUnknownKey(t *testing.T) {
	provider, _, _, _, _ := newLegacyFixture()

	doc, err := provider.GetDocument(context.Background(), "/books/OL999M")

	require.NoError(t, err)
	assert.True(t, doc.IsDeleted())
	assert.Equal(t, "/books/OL999M", doc.Key)
}

func TestLegacyProvider_GetMetadata(t *testing.T) {
	provider, _, metadata, _, _ := newLegacyFixture()
	metadata.rows["item123"] = entities.MetadataRow{Identifier: "item123", Collection: "texts;opensource"}
	ctx := context.Background()

	meta, err := provider.GetMetadata(ctx, "item123")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, []string{"texts", "opensource"}, meta.Collection)

	absent, err := provider.GetMetadata(ctx, "missing-item")
	require.NoError(t, err)
	assert.Nil(t, absent)
	assert.Len(t, metadata.calls, 2, "every lookup reaches the store")
}

func TestLegacyProvider_FindRedirects(t *testing.T) {
	provider, _, _, _, redirects := newLegacyFixture()
	redirects.redirectsTo["/works/OL1W"] = []string{"/works/OL8W"}
	ctx := context.Background()

	froms, err := provider.FindRedirects(ctx, "/works/OL1W")
	require.NoError(t, err)
	assert.Equal(t, []string{"/works/OL8W"}, froms)

	froms, err = provider.FindRedirects(ctx, "/works/OL2W")
	require.NoError(t, err)
	assert.Empty(t, froms)
	assert.Len(t, redirects.calls, 2)
}

func TestLegacyProvider_GetEditionsOfWork(t *testing.T) {
	provider, documents, _, joiner, _ := newLegacyFixture()
	documents.records["/books/OL1M"] = editionRecord("/books/OL1M", "/works/OL1W", "")
	documents.records["/books/OL2M"] = editionRecord("/books/OL2M", "/works/OL1W", "")
	joiner.editionsOfWork["/works/OL1W"] = []string{"/books/OL1M", "/books/OL2M"}
	ctx := context.Background()

	editions, err := provider.GetEditionsOfWork(ctx, workRecord("/works/OL1W"))

	require.NoError(t, err)
	require.Len(t, editions, 2)
	assert.Equal(t, "/books/OL1M", editions[0].Key)
	assert.Equal(t, "/books/OL2M", editions[1].Key)
}

// reversingDocumentStore returns matches in reverse request order
type reversingDocumentStore struct {
	fakeDocumentStore
}

func (f *reversingDocumentStore) FetchMany(ctx context.Context, keys []string) ([]*entities.Record, error) {
	docs, err := f.fakeDocumentStore.FetchMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
		docs[i], docs[j] = docs[j], docs[i]
	}
	return docs, nil
}

func TestLegacyProvider_GetEditionsOfWork_PreservesJoinOrder(t *testing.T) {
	documents := &reversingDocumentStore{fakeDocumentStore{records: map[string]*entities.Record{
		"/books/OL1M": editionRecord("/books/OL1M", "/works/OL1W", ""),
		"/books/OL2M": editionRecord("/books/OL2M", "/works/OL1W", ""),
		"/books/OL3M": editionRecord("/books/OL3M", "/works/OL1W", ""),
	}}}
	joiner := &fakeJoiner{editionsOfWork: map[string][]string{
		"/works/OL1W": {"/books/OL2M", "/books/OL1M", "/books/OL3M"},
	}}
	provider := NewLegacyProvider(documents, &fakeMetadataStore{}, joiner, &fakeRedirectStore{}, nil)

	editions, err := provider.GetEditionsOfWork(context.Background(), workRecord("/works/OL1W"))

	require.NoError(t, err)
	require.Len(t, editions, 3)
	// Join order, regardless of the order the store answered in
	assert.Equal(t, "/books/OL2M", editions[0].Key)
	assert.Equal(t, "/books/OL1M", editions[1].Key)
	assert.Equal(t, "/books/OL3M", editions[2].Key)
}

func TestLegacyProvider_GetEditionsOfWork_NilWork(t *testing.T) {
	provider, _, _, _, _ := newLegacyFixture()

	_, err := provider.GetEditionsOfWork(context.Background(), nil)

	assert.True(t, pkgerrors.IsValidation(err))
}

func TestLegacyProvider_StoreErrorPropagates(t *testing.T) {
	provider, documents, _, _, _ := newLegacyFixture()
	boom := errors.New("connection refused")
	documents.err = boom

	_, err := provider.GetDocument(context.Background(), "/books/OL1M")

	assert.ErrorIs(t, err, boom)
}

func TestLegacyProvider_PreloadsAreNoOps(t *testing.T) {
	provider, documents, metadata, joiner, _ := newLegacyFixture()
	ctx := context.Background()

	require.NoError(t, provider.PreloadDocuments(ctx, []string{"/books/OL1M"}))
	require.NoError(t, provider.PreloadMetadata(ctx, []string{"item123"}))
	require.NoError(t, provider.PreloadEditionsOfWorks(ctx, []string{"/works/OL1W"}))
	provider.ClearCache()

	assert.Empty(t, documents.calls)
	assert.Empty(t, metadata.calls)
	assert.Empty(t, joiner.calls)
}
