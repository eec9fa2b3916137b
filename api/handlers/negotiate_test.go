package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/larachado/coordinator/api"
	"github.com/larachado/coordinator/internal/agents/community"
	"github.com/larachado/coordinator/internal/agents/localdiscovery"
	"github.com/larachado/coordinator/internal/agents/mapping"
	"github.com/larachado/coordinator/internal/agents/negotiation"
	"github.com/larachado/coordinator/internal/agents/research"
	"github.com/larachado/coordinator/internal/agents/scoping"
	"github.com/larachado/coordinator/internal/coordinator"
	"github.com/larachado/coordinator/internal/geocoder"
	"github.com/larachado/coordinator/internal/llmgateway"
	"github.com/larachado/coordinator/internal/poiprovider"
	"github.com/larachado/coordinator/internal/searchprovider"
	"github.com/larachado/coordinator/internal/session"
	"github.com/larachado/coordinator/internal/telephony"
)

func newNegotiateTestCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	logger := zap.NewNop()

	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":[]}`))
	}))
	t.Cleanup(searchSrv.Close)
	search := searchprovider.New(searchprovider.Config{BaseURL: searchSrv.URL, APIKey: "k"}, logger)

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatCompletionStub(`{"is_complete":false}`)))
	}))
	t.Cleanup(llmSrv.Close)
	llm, err := llmgateway.New(llmgateway.Config{APIKey: "k", BaseURL: llmSrv.URL}, logger)
	require.NoError(t, err)

	telSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/calls":
			w.Write([]byte(`{"call_id":"c1"}`))
		case r.URL.Path == "/calls/c1":
			w.Write([]byte(`{"status":"ended"}`))
		case r.URL.Path == "/calls/c1/transcript":
			w.Write([]byte(`{"transcript":"done"}`))
		}
	}))
	t.Cleanup(telSrv.Close)
	tel := telephony.New(telephony.Config{APIKey: "k", BaseURL: telSrv.URL}, logger)

	scopingAgent := scoping.New(llm, logger)
	researchAgent := research.New(search, llm, []string{"localhost"}, logger)
	geo := geocoder.New(geocoder.Config{BaseURL: searchSrv.URL}, nil, logger)
	mappingAgent := mapping.New(geo, logger)
	poi := poiprovider.New(poiprovider.Config{BaseURL: searchSrv.URL}, nil, logger)
	localDiscoveryAgent := localdiscovery.New(poi, logger)
	communityAgent := community.New(search, llm, logger)
	negotiationAgent := negotiation.New(search, llm, tel, logger)

	store := session.New(1024)
	return coordinator.New(store, scopingAgent, researchAgent, mappingAgent, localDiscoveryAgent, communityAgent, negotiationAgent, logger)
}

func TestNegotiateHandler_Handle_Success(t *testing.T) {
	coord := newNegotiateTestCoordinator(t)
	handler := NewNegotiateHandler(coord, zap.NewNop())

	body, _ := json.Marshal(api.NegotiateRequest{Address: "Rua das Flores 12, Faro", Name: "Ana"})
	r := httptest.NewRequest(http.MethodPost, "/api/negotiate", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Handle(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.NegotiateResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "done", resp.CallSummary)
}

func TestNegotiateHandler_Handle_MissingAddress(t *testing.T) {
	coord := newNegotiateTestCoordinator(t)
	handler := NewNegotiateHandler(coord, zap.NewNop())

	body, _ := json.Marshal(api.NegotiateRequest{Address: ""})
	r := httptest.NewRequest(http.MethodPost, "/api/negotiate", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Handle(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp api.NegotiateResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
}
