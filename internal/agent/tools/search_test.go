package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/web3buddy/server/internal/core/error"
)

func TestWebSearcherRanksResults(t *testing.T) {
	var gotReq searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer": "Subgraphs index on-chain data.",
			"results": []map[string]string{
				{"title": "Docs", "url": "https://thegraph.com/docs", "content": "Getting started."},
				{"title": "Blog", "url": "https://thegraph.com/blog", "content": "Release notes."},
			},
		})
	}))
	defer srv.Close()

	s := NewWebSearcher(WebSearchConfig{APIKey: "k", BaseURL: srv.URL, MaxResults: 2, TimeoutSec: 5})
	out, err := s.Search(context.Background(), "what is a subgraph")
	require.NoError(t, err)

	assert.Equal(t, "k", gotReq.APIKey)
	assert.Equal(t, "what is a subgraph", gotReq.Query)
	assert.Equal(t, 2, gotReq.MaxResults)

	assert.Contains(t, out, "Subgraphs index on-chain data.")
	assert.Contains(t, out, "1. Docs (https://thegraph.com/docs)")
	assert.Contains(t, out, "2. Blog (https://thegraph.com/blog)")
}

func TestWebSearcherEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	s := NewWebSearcher(WebSearchConfig{BaseURL: srv.URL, TimeoutSec: 5})
	out, err := s.Search(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "No web results found.", out)
}

func TestWebSearcherUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewWebSearcher(WebSearchConfig{BaseURL: srv.URL, TimeoutSec: 5})
	_, err := s.Search(context.Background(), "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrToolExecution)
	assert.Contains(t, err.Error(), "429")
}
