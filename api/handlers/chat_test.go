package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
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

func chatCompletionStub(content string) string {
	encoded, _ := json.Marshal(content)
	return fmt.Sprintf(`{"choices":[{"message":{"content":%s}}]}`, encoded)
}

// newGatheringOnlyCoordinator wires every agent against stubs that keep the
// scoping agent in the Gathering state, which is all these handler tests
// need to exercise request parsing and envelope shaping.
func newGatheringOnlyCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	logger := zap.NewNop()

	scopingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatCompletionStub(`{"location":null,"is_complete":false,"needs_more_info":true,"message_to_user":"Em que cidade procura?"}`)))
	}))
	t.Cleanup(scopingSrv.Close)
	scopingLLM, err := llmgateway.New(llmgateway.Config{APIKey: "k", BaseURL: scopingSrv.URL}, logger)
	require.NoError(t, err)
	scopingAgent := scoping.New(scopingLLM, logger)

	unusedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":[]}`))
	}))
	t.Cleanup(unusedSrv.Close)
	search := searchprovider.New(searchprovider.Config{BaseURL: unusedSrv.URL, APIKey: "k"}, logger)
	llm, err := llmgateway.New(llmgateway.Config{APIKey: "k", BaseURL: unusedSrv.URL}, logger)
	require.NoError(t, err)
	researchAgent := research.New(search, llm, []string{"localhost"}, logger)

	geo := geocoder.New(geocoder.Config{BaseURL: unusedSrv.URL}, nil, logger)
	mappingAgent := mapping.New(geo, logger)

	poi := poiprovider.New(poiprovider.Config{BaseURL: unusedSrv.URL}, nil, logger)
	localDiscoveryAgent := localdiscovery.New(poi, logger)

	communityAgent := community.New(search, llm, logger)

	tel := telephony.New(telephony.Config{APIKey: "k", BaseURL: unusedSrv.URL}, logger)
	negotiationAgent := negotiation.New(search, llm, tel, logger)

	store := session.New(1024)
	return coordinator.New(store, scopingAgent, researchAgent, mappingAgent, localDiscoveryAgent, communityAgent, negotiationAgent, logger)
}

func TestChatHandler_Handle_GatheringResponse(t *testing.T) {
	coord := newGatheringOnlyCoordinator(t)
	handler := NewChatHandler(coord, zap.NewNop())

	body, _ := json.Marshal(api.ChatRequest{Message: "Olá", SessionID: "s1"})
	r := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Handle(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var env api.Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.Equal(t, "success", env.Status)
}

func TestChatHandler_Handle_MissingFields(t *testing.T) {
	coord := newGatheringOnlyCoordinator(t)
	handler := NewChatHandler(coord, zap.NewNop())

	body, _ := json.Marshal(api.ChatRequest{Message: "", SessionID: ""})
	r := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Handle(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var env api.Envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.Equal(t, "error", env.Status)
}

func TestChatHandler_Handle_WrongContentType(t *testing.T) {
	coord := newGatheringOnlyCoordinator(t)
	handler := NewChatHandler(coord, zap.NewNop())

	r := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte(`{}`)))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	handler.Handle(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
