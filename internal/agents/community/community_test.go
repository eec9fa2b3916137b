package community

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/larachado/coordinator/internal/domain"
	"github.com/larachado/coordinator/internal/llmgateway"
	"github.com/larachado/coordinator/internal/searchprovider"
)

func TestReport_ClampsOutOfRangeScores(t *testing.T) {
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":[{"title":"Faro Today","url":"https://x","snippet":"great schools"}]}`))
	}))
	defer searchSrv.Close()

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"overall_score\":12,\"overall_explain\":\"x\",\"school_rating\":-3,\"school_explain\":\"y\",\"safety_score\":7,\"safety_explain\":\"z\",\"positive_stories\":[{\"title\":\"A\",\"summary\":\"good\"}],\"negative_stories\":[]}"}}]}`))
	}))
	defer llmSrv.Close()

	search := searchprovider.New(searchprovider.Config{BaseURL: searchSrv.URL, APIKey: "k"}, zap.NewNop())
	llm, err := llmgateway.New(llmgateway.Config{APIKey: "k", BaseURL: llmSrv.URL}, zap.NewNop())
	require.NoError(t, err)

	a := New(search, llm, zap.NewNop())
	report := a.Report(context.Background(), domain.EnrichedCandidate{}, "Faro")

	require.NotNil(t, report)
	assert.Equal(t, 10.0, report.OverallScore)
	assert.Equal(t, 0.0, report.SchoolRating)
	assert.Equal(t, 7.0, report.SafetyScore)
	require.Len(t, report.PositiveStories, 1)
}

func TestReport_NilWhenNoSnippetsFound(t *testing.T) {
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":[]}`))
	}))
	defer searchSrv.Close()

	search := searchprovider.New(searchprovider.Config{BaseURL: searchSrv.URL, APIKey: "k"}, zap.NewNop())
	llm, err := llmgateway.New(llmgateway.Config{APIKey: "k", BaseURL: "http://unused.invalid"}, zap.NewNop())
	require.NoError(t, err)

	a := New(search, llm, zap.NewNop())
	report := a.Report(context.Background(), domain.EnrichedCandidate{}, "Nowhereville")

	assert.Nil(t, report)
}
