package searchprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSearch_MissingAPIKeyIsConfigurationError(t *testing.T) {
	p := New(Config{BaseURL: "http://unused"}, zap.NewNop())
	_, aerr := p.Search(context.Background(), "T2 em Faro", "")
	require.NotNil(t, aerr)
	assert.Contains(t, aerr.Error(), "SEARCH_PROVIDER_API_KEY")
}

func TestSearch_ReturnsHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hits": []SearchHit{{Title: "T2 Faro", URL: "https://idealista.pt/1"}},
		})
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL, APIKey: "key"}, zap.NewNop())
	hits, aerr := p.Search(context.Background(), "T2 em Faro", "")
	require.Nil(t, aerr)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://idealista.pt/1", hits[0].URL)
}

func TestScrapeMarkdown_StripsTagsKeepsLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>T2 Faro</h1><p>Great <a href="https://x">view</a>.</p></body></html>`))
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL}, zap.NewNop())
	md, aerr := p.ScrapeMarkdown(context.Background(), srv.URL)
	require.Nil(t, aerr)
	assert.Contains(t, md, "T2 Faro")
	assert.Contains(t, md, "[view](https://x)")
}

func TestSearch_RateLimiterDoesNotBlockASingleCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"hits": []SearchHit{}})
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL, APIKey: "key"}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, aerr := p.Search(ctx, "query", "")
	require.Nil(t, aerr)
}
