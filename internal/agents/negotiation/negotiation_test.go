package negotiation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/larachado/coordinator/internal/llmgateway"
	"github.com/larachado/coordinator/internal/searchprovider"
	"github.com/larachado/coordinator/internal/telephony"
)

func TestRun_HappyPathEndedCall(t *testing.T) {
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":[{"title":"Comp","url":"https://x","snippet":"sold for 850k last month"}]}`))
	}))
	defer searchSrv.Close()

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"findings\":[\"sold 850k last month\"],\"leverage_score\":6}"}}]}`))
	}))
	defer llmSrv.Close()

	polls := 0
	telSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/calls":
			w.Write([]byte(`{"call_id":"call-1"}`))
		case r.URL.Path == "/calls/call-1":
			polls++
			if polls < 2 {
				w.Write([]byte(`{"status":"active"}`))
			} else {
				w.Write([]byte(`{"status":"ended"}`))
			}
		case r.URL.Path == "/calls/call-1/transcript":
			w.Write([]byte(`{"transcript":"Seller accepted viewing."}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer telSrv.Close()

	search := searchprovider.New(searchprovider.Config{BaseURL: searchSrv.URL, APIKey: "k"}, zap.NewNop())
	llm, err := llmgateway.New(llmgateway.Config{APIKey: "k", BaseURL: llmSrv.URL}, zap.NewNop())
	require.NoError(t, err)
	tel := telephony.New(telephony.Config{APIKey: "k", BaseURL: telSrv.URL}, zap.NewNop())

	a := New(search, llm, tel, zap.NewNop())
	record, rerr := a.Run(context.Background(), Request{Address: "123 Main St", CallerName: "Ana", CallerEmail: "ana@x.com"})

	require.NoError(t, rerr)
	assert.True(t, record.Success)
	assert.Contains(t, record.CallSummary, "Seller accepted viewing")
	assert.InDelta(t, 6.0, record.LeverageScore, 0.001)
	assert.Len(t, record.Findings, 1)
}

func TestRun_CreateCallFatalFailsWholeOperation(t *testing.T) {
	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":[]}`))
	}))
	defer searchSrv.Close()

	telSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid assistant"}`))
	}))
	defer telSrv.Close()

	search := searchprovider.New(searchprovider.Config{BaseURL: searchSrv.URL, APIKey: "k"}, zap.NewNop())
	llm, err := llmgateway.New(llmgateway.Config{APIKey: "k", BaseURL: "http://unused.invalid"}, zap.NewNop())
	require.NoError(t, err)
	tel := telephony.New(telephony.Config{APIKey: "k", BaseURL: telSrv.URL}, zap.NewNop())

	a := New(search, llm, tel, zap.NewNop())
	_, rerr := a.Run(context.Background(), Request{Address: "123 Main St"})

	require.Error(t, rerr)
}

func TestRun_DegradesToEmptyFindingsWhenSearchFails(t *testing.T) {
	telSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.Write([]byte(`{"call_id":"call-2"}`))
		case r.URL.Path == fmt.Sprintf("/calls/%s", "call-2"):
			w.Write([]byte(`{"status":"failed"}`))
		case r.URL.Path == "/calls/call-2/transcript":
			w.Write([]byte(`{"transcript":""}`))
		}
	}))
	defer telSrv.Close()

	// No search provider API key configured: Search returns a Configuration
	// error, which the agent must swallow rather than propagate.
	search := searchprovider.New(searchprovider.Config{BaseURL: "http://unused.invalid"}, zap.NewNop())
	llm, err := llmgateway.New(llmgateway.Config{APIKey: "k", BaseURL: "http://unused.invalid"}, zap.NewNop())
	require.NoError(t, err)
	tel := telephony.New(telephony.Config{APIKey: "k", BaseURL: telSrv.URL}, zap.NewNop())

	a := New(search, llm, tel, zap.NewNop())
	record, rerr := a.Run(context.Background(), Request{Address: "Unknown Rd"})

	require.NoError(t, rerr)
	assert.False(t, record.Success)
	assert.Empty(t, record.Findings)
}
