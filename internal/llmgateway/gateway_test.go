package llmgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/larachado/coordinator/internal/apperr"
)

func TestNew_MissingAPIKeyStillConstructs(t *testing.T) {
	gw, aerr := New(Config{BaseURL: "http://unused"}, zap.NewNop())
	require.Nil(t, aerr)
	require.NotNil(t, gw)
	defer gw.Close()
}

// §6/§8 scenario 4: a missing LLM_API_KEY must degrade a chat turn to a
// Configuration message, not crash the process at boot. The gateway
// constructs fine; Complete is where the missing key surfaces, and it must
// do so without attempting a network call.
func TestComplete_MissingAPIKeyIsConfigurationError(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	gw, aerr := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.Nil(t, aerr)
	defer gw.Close()

	_, aerr = gw.Complete(context.Background(), "system", "user", false, 10, 0.1)
	require.NotNil(t, aerr)
	assert.Equal(t, apperr.Configuration, aerr.Kind)
	assert.Contains(t, aerr.Error(), "LLM_API_KEY")
	assert.False(t, called, "Complete must not attempt a network call with no API key")
}

func TestComplete_ReturnsRepairedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "```json\n{\"ok\":true}\n```"}},
			},
		})
	}))
	defer srv.Close()

	gw, aerr := New(Config{APIKey: "k", BaseURL: srv.URL}, zap.NewNop())
	require.Nil(t, aerr)
	defer gw.Close()

	out, aerr := gw.Complete(context.Background(), "system", "user", true, 100, 0.2)
	require.Nil(t, aerr)
	assert.JSONEq(t, `{"ok":true}`, out)
}

// TestComplete_DeadlineLaw is the §8 deadline law at C1's boundary: a call
// made under a short caller deadline against an upstream that never
// responds in time always returns at or shortly after that deadline,
// instead of hanging past it.
func TestComplete_DeadlineLaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	gw, aerr := New(Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 0}, zap.NewNop())
	require.Nil(t, aerr)
	defer gw.Close()

	const slack = 2 * time.Second

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 8
	properties := gopter.NewProperties(parameters)

	properties.Property("Complete returns within its deadline plus slack", prop.ForAll(
		func(budgetMillis int) bool {
			budget := time.Duration(budgetMillis) * time.Millisecond
			ctx, cancel := context.WithTimeout(context.Background(), budget)
			defer cancel()

			start := time.Now()
			_, aerr := gw.Complete(ctx, "system", "user", false, 10, 0.1)
			elapsed := time.Since(start)

			return aerr != nil && elapsed <= budget+slack
		},
		gen.IntRange(50, 300),
	))

	properties.TestingRun(t)
}
