package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshline/syncd/pkg/types"
)

func TestHTTPTransportPush(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var env eventsEnvelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		for i, ev := range env.Events {
			ev.Seq = int64(i + 1)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(env)
	}))
	defer ts.Close()

	tr := NewHTTPTransport(ts.URL, "secret", nil)
	out, err := tr.Push(context.Background(), []*types.Event{{
		ID: "e1", ItemID: "a", Type: types.EventItemDeleted, Timestamp: 1, ClientID: "c",
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].Seq)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestHTTPTransportPull(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("since"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(eventsEnvelope{Events: []*types.Event{}})
	}))
	defer ts.Close()

	tr := NewHTTPTransport(ts.URL, "secret", nil)
	out, err := tr.Pull(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHTTPTransportStatusErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "validation failed"})
	}))
	defer ts.Close()

	tr := NewHTTPTransport(ts.URL, "secret", nil)
	_, err := tr.Push(context.Background(), nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "validation failed", se.Message)
	assert.True(t, IsTerminal(err), "4xx is terminal")
}

func TestHTTPTransportServerErrorRetryable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	tr := NewHTTPTransport(ts.URL, "secret", nil)
	_, err := tr.Pull(context.Background(), 0, 0)
	require.Error(t, err)
	assert.False(t, IsTerminal(err), "5xx must be retried")
}

func TestHTTPTransportNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // connection refused from here on

	tr := NewHTTPTransport(ts.URL, "secret", nil)
	_, err := tr.Push(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNetwork)
	assert.False(t, IsTerminal(err))
}
