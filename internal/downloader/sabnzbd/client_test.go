package sabnzbd

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikootwo/readmeabook/internal/downloader/types"
)

func testConfig(t *testing.T, serverURL string) types.ClientConfig {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return types.ClientConfig{
		Host:     host,
		Port:     port,
		APIKey:   "test-key",
		Category: "audiobooks",
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(types.ClientConfig{Host: "localhost", Port: 8080}, zerolog.Nop())
	assert.Error(t, err)
}

func TestClient_Test(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "version", q.Get("mode"))
		assert.Equal(t, "test-key", q.Get("apikey"))
		assert.Equal(t, "json", q.Get("output"))
		w.Write([]byte(`{"version":"4.3.2"}`))
	}))
	defer server.Close()

	client, err := New(testConfig(t, server.URL), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, types.ClientTypeSABnzbd, client.Type())
	assert.Equal(t, types.ProtocolUsenet, client.Protocol())
	assert.NoError(t, client.Test(context.Background()))
}

func TestClient_TestBadKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// SABnzbd answers API key errors with 200 and an empty payload.
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := New(testConfig(t, server.URL), zerolog.Nop())
	require.NoError(t, err)
	assert.ErrorIs(t, client.Test(context.Background()), types.ErrAuthFailed)
}

func TestClient_Submit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "addurl", q.Get("mode"))
		assert.Equal(t, "https://indexer.example/dl/42.nzb", q.Get("name"))
		assert.Equal(t, "Dune", q.Get("nzbname"))
		assert.Equal(t, "audiobooks", q.Get("cat"))
		w.Write([]byte(`{"status":true,"nzo_ids":["SABnzbd_nzo_1"]}`))
	}))
	defer server.Close()

	client, err := New(testConfig(t, server.URL), zerolog.Nop())
	require.NoError(t, err)

	id, err := client.Submit(context.Background(), types.SubmitRequest{
		URL:  "https://indexer.example/dl/42.nzb",
		Name: "Dune",
	})
	require.NoError(t, err)
	assert.Equal(t, "SABnzbd_nzo_1", id)
}

func TestClient_SubmitRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":false,"error":"no valid nzb"}`))
	}))
	defer server.Close()

	client, err := New(testConfig(t, server.URL), zerolog.Nop())
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), types.SubmitRequest{URL: "https://bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid nzb")
}

func TestClient_StatusInQueue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "queue", r.URL.Query().Get("mode"))
		w.Write([]byte(`{"queue":{"slots":[{"nzo_id":"nzo_1","status":"Downloading","percentage":"42.5"}]}}`))
	}))
	defer server.Close()

	client, err := New(testConfig(t, server.URL), zerolog.Nop())
	require.NoError(t, err)

	state, err := client.Status(context.Background(), "nzo_1")
	require.NoError(t, err)
	assert.Equal(t, 42.5, state.Progress)
	assert.False(t, state.Done)
}

func TestClient_StatusCompleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("mode") {
		case "queue":
			w.Write([]byte(`{"queue":{"slots":[]}}`))
		case "history":
			w.Write([]byte(`{"history":{"slots":[{"nzo_id":"nzo_1","status":"Completed","storage":"/downloads/complete/Dune"}]}}`))
		}
	}))
	defer server.Close()

	client, err := New(testConfig(t, server.URL), zerolog.Nop())
	require.NoError(t, err)

	state, err := client.Status(context.Background(), "nzo_1")
	require.NoError(t, err)
	assert.True(t, state.Done)
	assert.Equal(t, float64(100), state.Progress)
	assert.Equal(t, "/downloads/complete/Dune", state.SavePath)
}

func TestClient_StatusFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("mode") {
		case "queue":
			w.Write([]byte(`{"queue":{"slots":[]}}`))
		case "history":
			w.Write([]byte(`{"history":{"slots":[{"nzo_id":"nzo_1","status":"Failed","fail_message":"out of retention"}]}}`))
		}
	}))
	defer server.Close()

	client, err := New(testConfig(t, server.URL), zerolog.Nop())
	require.NoError(t, err)

	state, err := client.Status(context.Background(), "nzo_1")
	require.NoError(t, err)
	assert.True(t, state.Errored)
	assert.Equal(t, "out of retention", state.Error)
}

func TestClient_StatusNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("mode") {
		case "queue":
			w.Write([]byte(`{"queue":{"slots":[]}}`))
		case "history":
			w.Write([]byte(`{"history":{"slots":[]}}`))
		}
	}))
	defer server.Close()

	client, err := New(testConfig(t, server.URL), zerolog.Nop())
	require.NoError(t, err)

	_, err = client.Status(context.Background(), "nzo_gone")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestClient_RemoveFallsBackToHistory(t *testing.T) {
	var modes []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mode := r.URL.Query().Get("mode")
		modes = append(modes, mode)
		if mode == "queue" {
			w.Write([]byte(`{"status":false}`))
			return
		}
		w.Write([]byte(`{"status":true}`))
	}))
	defer server.Close()

	client, err := New(testConfig(t, server.URL), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, client.Remove(context.Background(), "nzo_1", true))
	assert.Equal(t, []string{"queue", "history"}, modes)
}
