package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikootwo/readmeabook/internal/notification/types"
)

func TestNotifier_Send(t *testing.T) {
	var gotMethod, gotContentType string
	var gotEvent types.Event

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEvent))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := New(Config{URL: server.URL}, zerolog.Nop())
	assert.Equal(t, "webhook", notifier.Name())

	event := types.Event{
		Type:      "request_available",
		RequestID: 42,
		Title:     "Dune",
		Author:    "Frank Herbert",
		Message:   "Dune is ready to listen",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, notifier.Send(context.Background(), event))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "request_available", gotEvent.Type)
	assert.Equal(t, int64(42), gotEvent.RequestID)
	assert.Equal(t, "Dune", gotEvent.Title)
}

func TestNotifier_SendCustomMethod(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := New(Config{URL: server.URL, Method: http.MethodPut}, zerolog.Nop())
	require.NoError(t, notifier.Send(context.Background(), types.Event{Type: "request_failed"}))
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestNotifier_SendServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := New(Config{URL: server.URL}, zerolog.Nop())
	err := notifier.Send(context.Background(), types.Event{Type: "request_failed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestNotifier_SendUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // immediately unreachable

	notifier := New(Config{URL: server.URL}, zerolog.Nop())
	assert.Error(t, notifier.Send(context.Background(), types.Event{Type: "request_failed"}))
}
