package prowlarr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikootwo/readmeabook/internal/indexer"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{APIKey: "key"}, zerolog.Nop())
	assert.Error(t, err, "missing URL")

	_, err = NewClient(Config{URL: "http://localhost:9696"}, zerolog.Nop())
	assert.Error(t, err, "missing API key")
}

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		q := r.URL.Query()
		assert.Equal(t, "Project Hail Mary Andy Weir", q.Get("query"))
		assert.Equal(t, "search", q.Get("type"))
		assert.Equal(t, []string{"3030", "8010"}, q["categories"])
		assert.Equal(t, []string{"1", "4"}, q["indexerIds"])

		w.Write([]byte(`[
			{"guid":"g1","title":"Project Hail Mary [M4B]","size":1000000000,
			 "indexerId":1,"indexer":"MyAnonamouse","seeders":42,"protocol":"torrent",
			 "downloadUrl":"https://indexer/dl/1","publishDate":"2024-05-01T12:00:00Z",
			 "indexerFlags":["freeleech"]},
			{"guid":"g2","title":"Project Hail Mary MP3","size":800000000,
			 "indexerId":4,"indexer":"NZBIndexer","protocol":"usenet",
			 "magnetUrl":"magnet:?xt=urn:btih:abc"}
		]`))
	}))
	defer server.Close()

	client, err := NewClient(Config{URL: server.URL, APIKey: "test-key"}, zerolog.Nop())
	require.NoError(t, err)

	releases, err := client.Search(context.Background(), indexer.Query{
		Title:      "Project Hail Mary",
		Author:     "Andy Weir",
		Categories: []int{3030, 8010},
		IndexerIDs: []int64{1, 4},
	})
	require.NoError(t, err)
	require.Len(t, releases, 2)

	first := releases[0]
	assert.Equal(t, "g1", first.GUID)
	assert.Equal(t, "MyAnonamouse", first.Indexer)
	require.NotNil(t, first.Seeders)
	assert.Equal(t, 42, *first.Seeders)
	assert.Equal(t, []string{"freeleech"}, first.Flags)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), first.PublishDate)

	// magnetUrl backfills a missing downloadUrl.
	assert.Equal(t, "magnet:?xt=urn:btih:abc", releases[1].DownloadURL)
	assert.Nil(t, releases[1].Seeders)
}

func TestClient_SearchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"bad api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient(Config{URL: server.URL, APIKey: "wrong"}, zerolog.Nop())
	require.NoError(t, err)

	_, err = client.Search(context.Background(), indexer.Query{Title: "Dune"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_Test(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/system/status", r.URL.Path)
		w.Write([]byte(`{"version":"1.21.2"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{URL: server.URL, APIKey: "test-key"}, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, client.Test(context.Background()))
}
