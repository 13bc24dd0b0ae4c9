package olclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "bibdata/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(DefaultConfig(strings.TrimPrefix(server.URL, "http://")), nil)
}

func TestClient_GetDocument(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/books/OL1M.json", r.URL.Path)
		fmt.Fprint(w, `{"key": "/books/OL1M", "type": {"key": "/type/edition"}, "works": [{"key": "/works/OL1W"}], "ocaid": "item123"}`)
	}))

	doc, err := client.GetDocument(context.Background(), "/books/OL1M")

	require.NoError(t, err)
	assert.Equal(t, "/books/OL1M", doc.Key)
	assert.True(t, doc.IsEdition())
	assert.Equal(t, "item123", doc.OCAID)
	workKey, ok := doc.FirstWorkKey()
	require.True(t, ok)
	assert.Equal(t, "/works/OL1W", workKey)
}

func TestClient_GetDocument_NotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := client.GetDocument(context.Background(), "/books/OL999M")

	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestClient_GetDocument_ServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.GetDocument(context.Background(), "/books/OL1M")

	assert.True(t, pkgerrors.IsUnavailable(err))
}

func TestClient_FetchMany(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/get_many", r.URL.Path)

		var keys []string
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("keys")), &keys))
		assert.ElementsMatch(t, []string{"/books/OL1M", "/books/OL2M", "/books/OL999M"}, keys)

		// Absent keys simply do not appear in the result map
		fmt.Fprint(w, `{"result": {
			"/books/OL1M": {"key": "/books/OL1M", "type": {"key": "/type/edition"}},
			"/books/OL2M": {"key": "/books/OL2M", "type": {"key": "/type/edition"}}
		}}`)
	}))

	docs, err := client.FetchMany(context.Background(), []string{"/books/OL1M", "/books/OL2M", "/books/OL999M"})

	require.NoError(t, err)
	require.Len(t, docs, 2)
	got := []string{docs[0].Key, docs[1].Key}
	assert.ElementsMatch(t, []string{"/books/OL1M", "/books/OL2M"}, got)
}

func TestClient_FetchMany_EmptyInputSkipsRequest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for an empty key list")
	}))

	docs, err := client.FetchMany(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, docs)
}

func TestClient_EditionsOfWork(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/OL1W/editions.json", r.URL.Path)
		assert.Equal(t, "500", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"entries": [
			{"key": "/books/OL1M", "type": {"key": "/type/edition"}},
			{"key": "/books/OL2M", "type": {"key": "/type/edition"}}
		]}`)
	}))

	editions, truncated, err := client.EditionsOfWork(context.Background(), "/works/OL1W")

	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, editions, 2)
	assert.Equal(t, "/books/OL1M", editions[0].Key)
}

func TestClient_EditionsOfWork_Truncated(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"links": {"next": "/works/OL1W/editions.json?limit=500&offset=500"},
			"entries": [{"key": "/books/OL1M", "type": {"key": "/type/edition"}}]
		}`)
	}))

	_, truncated, err := client.EditionsOfWork(context.Background(), "/works/OL1W")

	require.NoError(t, err)
	assert.True(t, truncated)
}

func TestClient_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var requests int
	config := DefaultConfig("")
	config.BreakerMinRequests = 3
	config.BreakerFailureThreshold = 0.5

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	config.Host = strings.TrimPrefix(server.URL, "http://")
	client := NewClient(config, nil)

	for i := 0; i < 5; i++ {
		_, err := client.GetDocument(context.Background(), "/books/OL1M")
		require.Error(t, err)
	}

	// Once the breaker opens, requests stop reaching the upstream
	assert.Less(t, requests, 5)
	_, err := client.GetDocument(context.Background(), "/books/OL1M")
	assert.True(t, pkgerrors.IsUnavailable(err))
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	var requests int
	config := DefaultConfig("")
	config.BreakerMinRequests = 3
	config.BreakerFailureThreshold = 0.5

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)
	config.Host = strings.TrimPrefix(server.URL, "http://")
	client := NewClient(config, nil)

	for i := 0; i < 10; i++ {
		_, err := client.GetDocument(context.Background(), "/books/OL999M")
		assert.True(t, pkgerrors.IsNotFound(err))
	}

	// Every request reached the upstream: not-found is a success to the breaker
	assert.Equal(t, 10, requests)
}
