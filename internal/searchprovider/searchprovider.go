// Package searchprovider issues web searches and page scrapes through an
// external MCP-style tool server (C2 in the coordinator design).
package searchprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/larachado/coordinator/internal/apperr"
	"github.com/larachado/coordinator/internal/retry"
	"github.com/larachado/coordinator/internal/tlsutil"
)

// defaultRateLimit caps outbound calls to the tool server ahead of its own
// 429 backoff, so a burst of extraction requests doesn't trip it in the
// first place.
const (
	defaultRatePerSecond = 5
	defaultBurst         = 5
)

// SearchHit is one web search result.
type SearchHit struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Snippet    string `json:"snippet"`
	DisplayURL string `json:"display_url"`
}

// Config points at the MCP-style tool server.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "https://mcp.search.example/v1",
		Timeout: 15 * time.Second,
	}
}

// Provider implements Search and ScrapeMarkdown.
type Provider struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	retryer *retry.Retryer
	logger  *zap.Logger
}

// New constructs a Provider; it does not check APIKey. Search returns a
// Configuration error when APIKey is absent (callers decide whether to fail
// softly); ScrapeMarkdown does not use the key.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Provider{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		limiter: rate.NewLimiter(rate.Limit(defaultRatePerSecond), defaultBurst),
		retryer: retry.New(&retry.Policy{
			MaxRetries:   3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		}, logger),
		logger: logger.With(zap.String("component", "searchprovider")),
	}
}

// Search issues a web search via the tool server. Idempotent.
func (p *Provider) Search(ctx context.Context, query, engine string) ([]SearchHit, *apperr.Error) {
	if p.cfg.APIKey == "" {
		return nil, apperr.New(apperr.Configuration, "SEARCH_PROVIDER_API_KEY is not set")
	}
	if engine == "" {
		engine = "google"
	}

	var hits []SearchHit
	err := p.retryer.Do(ctx, func() error {
		if lerr := p.limiter.Wait(ctx); lerr != nil {
			return apperr.New(apperr.Timeout, "search rate limiter wait cancelled").WithCause(lerr)
		}
		body, _ := json.Marshal(map[string]string{"query": query, "engine": engine})
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/search", bytes.NewReader(body))
		if rerr != nil {
			return apperr.New(apperr.LogicError, "failed to build search request").WithCause(rerr)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

		resp, rerr := p.client.Do(req)
		if rerr != nil {
			return apperr.New(apperr.UpstreamTransient, "search request failed").WithProvider(engine).WithRetryable(true).WithCause(rerr)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
		if resp.StatusCode >= 400 {
			if aerr := apperr.FromHTTPStatus(engine, resp.StatusCode, string(respBody)); aerr != nil {
				return aerr
			}
		}

		var parsed struct {
			Hits []SearchHit `json:"hits"`
		}
		if uerr := json.Unmarshal(respBody, &parsed); uerr != nil {
			return apperr.New(apperr.ParseError, "malformed search response").WithCause(uerr)
		}
		hits = parsed.Hits
		return nil
	})
	if err != nil {
		return nil, apperr.AsError(err)
	}
	return hits, nil
}

// ScrapeMarkdown fetches url and converts its body to a markdown-ish text
// rendering (tags stripped, link/text structure kept). Idempotent.
func (p *Provider) ScrapeMarkdown(ctx context.Context, url string) (string, *apperr.Error) {
	var markdown string
	err := p.retryer.Do(ctx, func() error {
		if lerr := p.limiter.Wait(ctx); lerr != nil {
			return apperr.New(apperr.Timeout, "scrape rate limiter wait cancelled").WithCause(lerr)
		}
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if rerr != nil {
			return apperr.New(apperr.LogicError, "failed to build scrape request").WithCause(rerr)
		}
		req.Header.Set("User-Agent", "larachado-coordinator/1.0 (+https://larachado.example)")

		resp, rerr := p.client.Do(req)
		if rerr != nil {
			return apperr.New(apperr.UpstreamTransient, "scrape request failed").WithProvider("scrape").WithRetryable(true).WithCause(rerr)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			if aerr := apperr.FromHTTPStatus("scrape", resp.StatusCode, string(body)); aerr != nil {
				return aerr
			}
		}

		doc, herr := html.Parse(io.LimitReader(resp.Body, 8<<20))
		if herr != nil {
			return apperr.New(apperr.ParseError, "failed to parse scraped HTML").WithCause(herr)
		}
		markdown = renderMarkdown(doc)
		return nil
	})
	if err != nil {
		return "", apperr.AsError(err)
	}
	return markdown, nil
}

// renderMarkdown walks an HTML document, emitting a text/markdown-ish
// rendering: link text followed by "(href)", headings/paragraphs separated
// by blank lines, scripts/styles skipped entirely.
func renderMarkdown(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "a":
				href := ""
				for _, a := range n.Attr {
					if a.Key == "href" {
						href = a.Val
					}
				}
				text := collectText(n)
				if text != "" {
					if href != "" {
						fmt.Fprintf(&b, "[%s](%s) ", text, href)
					} else {
						b.WriteString(text + " ")
					}
				}
				return
			case "p", "div", "h1", "h2", "h3", "h4", "li", "br", "tr":
				defer b.WriteString("\n")
			}
		case html.TextNode:
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				b.WriteString(trimmed + " ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func collectText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
