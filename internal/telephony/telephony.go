// Package telephony is the adapter to the external voice-call provider used
// by the negotiation agent (C10): create a call, poll it to a terminal
// status, then fetch its transcript.
package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/larachado/coordinator/internal/apperr"
	"github.com/larachado/coordinator/internal/tlsutil"
)

// Status is a call's lifecycle state as reported by the provider.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRinging Status = "ringing"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
	StatusFailed  Status = "failed"
	StatusTimedOut Status = "timed_out"
)

// IsTerminal reports whether s is one of ended/failed/timed_out.
func (s Status) IsTerminal() bool {
	return s == StatusEnded || s == StatusFailed || s == StatusTimedOut
}

const (
	pollInterval  = 3 * time.Second
	pollDeadline  = 10 * time.Minute
)

// Config points at the telephony vendor.
type Config struct {
	APIKey       string
	AssistantID  string
	BaseURL      string
	Timeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.telephony.example/v1",
		Timeout: 15 * time.Second,
	}
}

// Client implements CreateCall, GetStatus, and GetTranscript.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, client: tlsutil.SecureHTTPClient(cfg.Timeout), logger: logger.With(zap.String("component", "telephony"))}
}

type createCallRequest struct {
	AssistantID string `json:"assistant_id"`
	Brief       string `json:"brief"`
	ToNumber    string `json:"to_number,omitempty"`
}

type createCallResponse struct {
	CallID string `json:"call_id"`
}

// CreateCall starts a call with the given brief. A non-2xx response is a
// fatal failure of the whole negotiation, per §4.10.
func (c *Client) CreateCall(ctx context.Context, brief string, toNumber string) (string, *apperr.Error) {
	if c.cfg.APIKey == "" {
		return "", apperr.New(apperr.Configuration, "TELEPHONY_API_KEY is not set")
	}

	payload, _ := json.Marshal(createCallRequest{AssistantID: c.cfg.AssistantID, Brief: brief, ToNumber: toNumber})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/calls", bytes.NewReader(payload))
	if err != nil {
		return "", apperr.New(apperr.LogicError, "failed to build create-call request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.New(apperr.UpstreamTransient, "create-call request failed").WithProvider("telephony").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		if aerr := apperr.FromHTTPStatus("telephony", resp.StatusCode, string(body)); aerr != nil {
			return "", aerr
		}
	}

	var parsed createCallResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperr.New(apperr.ParseError, "malformed create-call response").WithCause(err)
	}
	if parsed.CallID == "" {
		return "", apperr.New(apperr.UpstreamFatal, "create-call response carried no call_id").WithProvider("telephony")
	}
	return parsed.CallID, nil
}

type statusResponse struct {
	Status Status `json:"status"`
}

// GetStatus fetches a call's current status.
func (c *Client) GetStatus(ctx context.Context, callID string) (Status, *apperr.Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/calls/%s", c.cfg.BaseURL, callID), nil)
	if err != nil {
		return "", apperr.New(apperr.LogicError, "failed to build status request").WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.New(apperr.UpstreamTransient, "status request failed").WithProvider("telephony").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 65536))
	if resp.StatusCode >= 300 {
		if aerr := apperr.FromHTTPStatus("telephony", resp.StatusCode, string(body)); aerr != nil {
			return "", aerr
		}
	}

	var parsed statusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperr.New(apperr.ParseError, "malformed status response").WithCause(err)
	}
	return parsed.Status, nil
}

type transcriptResponse struct {
	Transcript string `json:"transcript"`
}

// GetTranscript fetches a terminated call's transcript text.
func (c *Client) GetTranscript(ctx context.Context, callID string) (string, *apperr.Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/calls/%s/transcript", c.cfg.BaseURL, callID), nil)
	if err != nil {
		return "", apperr.New(apperr.LogicError, "failed to build transcript request").WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.New(apperr.UpstreamTransient, "transcript request failed").WithProvider("telephony").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		if aerr := apperr.FromHTTPStatus("telephony", resp.StatusCode, string(body)); aerr != nil {
			return "", aerr
		}
	}

	var parsed transcriptResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperr.New(apperr.ParseError, "malformed transcript response").WithCause(err)
	}
	return parsed.Transcript, nil
}

// PollUntilTerminal polls GetStatus every 3s until a terminal status or the
// 10-minute deadline elapses, per §4.10. A deadline expiry is reported as
// StatusTimedOut rather than an error, since it is a legitimate outcome the
// caller must still assemble a NegotiationRecord for.
func (c *Client) PollUntilTerminal(ctx context.Context, callID string) (Status, *apperr.Error) {
	ctx, cancel := context.WithTimeout(ctx, pollDeadline)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, aerr := c.GetStatus(ctx, callID)
		if aerr != nil {
			return "", aerr
		}
		if status.IsTerminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return StatusTimedOut, nil
		case <-ticker.C:
		}
	}
}
