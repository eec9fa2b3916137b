package scoping

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/larachado/coordinator/internal/domain"
	"github.com/larachado/coordinator/internal/llmgateway"
)

func stubLLM(t *testing.T, content string) *llmgateway.Gateway {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encoded, _ := json.Marshal(content)
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%s}}]}`, encoded)
	}))
	t.Cleanup(srv.Close)
	llm, err := llmgateway.New(llmgateway.Config{APIKey: "k", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	return llm
}

func TestHandle_GatheringWhenIncomplete(t *testing.T) {
	llm := stubLLM(t, `{"location":"Faro","is_complete":false,"needs_more_info":true,"message_to_user":"Quantos quartos procura?"}`)
	a := New(llm, zap.NewNop())

	result := a.Handle(context.Background(), domain.StateGathering, domain.Requirements{}, []domain.Turn{
		{Role: domain.RoleUser, Text: "Procuro casa em Faro"},
	})

	assert.Equal(t, domain.StateGathering, result.State)
	assert.Equal(t, "Faro", result.Requirements.Location)
	assert.Equal(t, "Quantos quartos procura?", result.MessageToUser)
}

func TestHandle_CompleteWhenUsableAndFlagged(t *testing.T) {
	llm := stubLLM(t, `{"location":"Faro","bedrooms":2,"budget_max":250000,"is_rent":false,"is_complete":true,"needs_more_info":false,"message_to_user":"A procurar..."}`)
	a := New(llm, zap.NewNop())

	result := a.Handle(context.Background(), domain.StateGathering, domain.Requirements{}, []domain.Turn{
		{Role: domain.RoleUser, Text: "2 quartos em Faro até 250 mil, comprar"},
	})

	assert.Equal(t, domain.StateComplete, result.State)
	require.NotNil(t, result.Requirements.Bedrooms)
	assert.Equal(t, 2, *result.Requirements.Bedrooms)
}

func TestHandle_InvalidJSONFallsBackToGathering(t *testing.T) {
	llm := stubLLM(t, `not json`)
	a := New(llm, zap.NewNop())

	result := a.Handle(context.Background(), domain.StateGathering, domain.Requirements{}, []domain.Turn{
		{Role: domain.RoleUser, Text: "ola"},
	})

	assert.Equal(t, domain.StateGathering, result.State)
	assert.NotEmpty(t, result.MessageToUser)
}

func TestHandle_ValidationErrorKeepsSeedRequirements(t *testing.T) {
	llm := stubLLM(t, `{"location":"Faro","budget_min":300000,"budget_max":100000,"is_complete":false,"needs_more_info":false,"message_to_user":"ok"}`)
	a := New(llm, zap.NewNop())

	seed := domain.Requirements{Location: "Lisboa"}
	result := a.Handle(context.Background(), domain.StateGathering, seed, []domain.Turn{
		{Role: domain.RoleUser, Text: "orçamento entre 300 mil e 100 mil"},
	})

	assert.Equal(t, domain.StateGathering, result.State)
	assert.Equal(t, "Lisboa", result.Requirements.Location)
}

func TestHandle_RefinementFromComplete(t *testing.T) {
	llm := stubLLM(t, `{"location":"Faro","bedrooms":3,"is_complete":false,"needs_more_info":true,"message_to_user":"Mais alguma coisa?"}`)
	a := New(llm, zap.NewNop())

	seed := domain.Requirements{Location: "Faro", IsRent: false}
	result := a.Handle(context.Background(), domain.StateComplete, seed, []domain.Turn{
		{Role: domain.RoleUser, Text: "afinal quero 3 quartos"},
	})

	assert.Equal(t, domain.StateGathering, result.State)
	require.NotNil(t, result.Requirements.Bedrooms)
	assert.Equal(t, 3, *result.Requirements.Bedrooms)
}

func TestTrimTranscript_KeepsShortHistoryIntact(t *testing.T) {
	llm := stubLLM(t, `{"is_complete":false,"needs_more_info":true,"message_to_user":"ok"}`)
	a := New(llm, zap.NewNop())

	transcript := []domain.Turn{
		{Role: domain.RoleUser, Text: "ola"},
		{Role: domain.RoleAssistant, Text: "em que cidade?"},
	}

	trimmed := a.trimTranscript(transcript, "system prompt")
	assert.Len(t, trimmed, 2)
}
