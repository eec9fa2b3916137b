// Package llmgateway is the single-point adapter to an external
// chat-completion service (C1 in the coordinator design). It owns JSON
// coercion (via a repair pipeline) and the retry policy every other
// component relies on for LLM calls.
package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/larachado/coordinator/internal/apperr"
	"github.com/larachado/coordinator/internal/circuitbreaker"
	"github.com/larachado/coordinator/internal/metrics"
	"github.com/larachado/coordinator/internal/pool"
	"github.com/larachado/coordinator/internal/retry"
	"github.com/larachado/coordinator/internal/tlsutil"
)

// Config configures the gateway's target endpoint and client pool.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	PoolSize    int
	MaxRetries  int
}

// DefaultConfig returns the §4.1 defaults: 30s per-attempt timeout, a
// bounded client pool of 32, 3 retries.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o-mini",
		Timeout:    30 * time.Second,
		PoolSize:   32,
		MaxRetries: 3,
	}
}

// Gateway implements Complete, the one operation C1 exposes.
type Gateway struct {
	cfg     Config
	client  *http.Client
	pool    *pool.GoroutinePool
	retryer *retry.Retryer
	breaker *circuitbreaker.Breaker
	metrics *metrics.Collector
	logger  *zap.Logger
}

// SetMetrics attaches a metrics collector; calls made before this is set are
// not recorded. Optional — a Gateway with no collector still works.
func (g *Gateway) SetMetrics(m *metrics.Collector) {
	g.metrics = m
}

// New constructs a Gateway. A missing API key is not a construction error:
// the gateway is still built so the process can boot and serve other
// requests, but every Complete call fails fast with a Configuration error
// naming LLM_API_KEY (§6), letting the coordinator surface it as a chat
// message instead of crashing at startup.
func New(cfg Config, logger *zap.Logger) (*Gateway, *apperr.Error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 32
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	p := pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers:  cfg.PoolSize,
		QueueSize:   cfg.PoolSize * 8,
		IdleTimeout: 60 * time.Second,
	})

	return &Gateway{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		pool:   p,
		retryer: retry.New(&retry.Policy{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		}, logger),
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig(), logger),
		logger:  logger.With(zap.String("component", "llmgateway")),
	}, nil
}

// Model returns the configured chat-completion model name, used by callers
// (e.g. the scoping agent) that need to size a token budget for it.
func (g *Gateway) Model() string {
	return g.cfg.Model
}

// chatMessage is the wire shape of one message in the completion request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	ResponseFmt *responseFmt  `json:"response_format,omitempty"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete issues one chat-completion call. When wantJSON is true, the
// returned string is guaranteed to parse as JSON (via the repair pipeline in
// jsonrepair.go) or the call fails with a ParseError.
func (g *Gateway) Complete(ctx context.Context, systemPrompt, userPrompt string, wantJSON bool, maxTokens int, temperature float64) (string, *apperr.Error) {
	if g.cfg.APIKey == "" {
		return "", apperr.New(apperr.Configuration, "LLM_API_KEY is not set")
	}

	raw, aerr := g.completeOnce(ctx, systemPrompt, userPrompt, wantJSON, maxTokens, temperature)
	if aerr != nil {
		return "", aerr
	}
	if !wantJSON {
		return raw, nil
	}

	repaired, ok := repairJSON(raw)
	if ok {
		return repaired, nil
	}

	// One stricter-instruction retry (N=2 total repair attempts per §4.1).
	strictPrompt := systemPrompt + "\n\nIMPORTANT: reply with ONLY valid JSON, no prose, no markdown fences."
	raw2, aerr := g.completeOnce(ctx, strictPrompt, userPrompt, wantJSON, maxTokens, temperature)
	if aerr != nil {
		return "", aerr
	}
	repaired2, ok := repairJSON(raw2)
	if ok {
		return repaired2, nil
	}

	return "", apperr.New(apperr.ParseError, "LLM response could not be repaired into valid JSON")
}

func (g *Gateway) completeOnce(ctx context.Context, systemPrompt, userPrompt string, wantJSON bool, maxTokens int, temperature float64) (string, *apperr.Error) {
	if allowErr := g.breaker.Allow(); allowErr != nil {
		return "", apperr.New(apperr.UpstreamTransient, "LLM gateway circuit breaker open").WithProvider("llm").WithRetryable(true).WithCause(allowErr)
	}

	start := time.Now()
	result, usage, outErr := g.completeOnceUnguarded(ctx, systemPrompt, userPrompt, wantJSON, maxTokens, temperature)
	g.breaker.Report(outErr == nil)

	if g.metrics != nil {
		status := "success"
		if outErr != nil {
			status = "error"
		}
		g.metrics.RecordLLMRequest("llm", g.cfg.Model, status, time.Since(start), usage.PromptTokens, usage.CompletionTokens, 0)
	}

	return result, outErr
}

func (g *Gateway) completeOnceUnguarded(ctx context.Context, systemPrompt, userPrompt string, wantJSON bool, maxTokens int, temperature float64) (string, tokenUsage, *apperr.Error) {
	var result string
	var usage tokenUsage
	var outErr *apperr.Error

	poolErr := g.pool.SubmitWait(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		err := g.retryer.Do(attemptCtx, func() error {
			text, u, aerr := g.doRequest(attemptCtx, systemPrompt, userPrompt, wantJSON, maxTokens, temperature)
			if aerr != nil {
				return aerr
			}
			result = text
			usage = u
			return nil
		})
		if err != nil {
			outErr = apperr.AsError(err)
			return err
		}
		return nil
	})
	if poolErr != nil && outErr == nil {
		outErr = apperr.New(apperr.Timeout, "LLM gateway request pool rejected or timed out").WithCause(poolErr)
	}
	if outErr != nil {
		return "", tokenUsage{}, outErr
	}
	return result, usage, nil
}

// tokenUsage carries the provider-reported token counts for one completion
// call, used only for metrics.
type tokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

func (g *Gateway) doRequest(ctx context.Context, systemPrompt, userPrompt string, wantJSON bool, maxTokens int, temperature float64) (string, tokenUsage, *apperr.Error) {
	reqBody := completionRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if wantJSON {
		reqBody.ResponseFmt = &responseFmt{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", tokenUsage{}, apperr.New(apperr.LogicError, "failed to encode LLM request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", tokenUsage{}, apperr.New(apperr.LogicError, "failed to build LLM request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", tokenUsage{}, apperr.New(apperr.UpstreamTransient, "LLM request failed").WithProvider("llm").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))

	if resp.StatusCode >= 400 {
		if aerr := apperr.FromHTTPStatus("llm", resp.StatusCode, string(body)); aerr != nil {
			return "", tokenUsage{}, aerr
		}
	}

	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", tokenUsage{}, apperr.New(apperr.ParseError, "malformed LLM response envelope").WithCause(err)
	}
	if len(parsed.Choices) == 0 {
		return "", tokenUsage{}, apperr.New(apperr.UpstreamFatal, "LLM response had no choices")
	}

	return parsed.Choices[0].Message.Content, tokenUsage{PromptTokens: parsed.Usage.PromptTokens, CompletionTokens: parsed.Usage.CompletionTokens}, nil
}

// Close releases the gateway's bounded client pool.
func (g *Gateway) Close() {
	g.pool.Close()
}
