// Package geocoder forward-geocodes free-text addresses to coordinates with
// a confidence score (C3 in the coordinator design), grounded in a
// Nominatim-style adapter. Results are cached (Redis or process-local, see
// internal/cache) since the mapping agent often re-resolves the same city
// center across candidates.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/larachado/coordinator/internal/apperr"
	"github.com/larachado/coordinator/internal/cache"
	"github.com/larachado/coordinator/internal/metrics"
	"github.com/larachado/coordinator/internal/tlsutil"
)

// Result is a successful geocode.
type Result struct {
	Latitude          float64
	Longitude         float64
	Confidence        float64
	NormalizedAddress string
}

// confidenceFloor is the minimum match confidence. When the provider has no
// match, or its best match scores below this floor (§4.3: confidence < 0.3 is
// treated as NotFound), an *apperr.Error with Kind UpstreamFatal is returned.
const confidenceFloor = 0.3

// Config points at the Nominatim-compatible endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "https://nominatim.openstreetmap.org",
		Timeout: 10 * time.Second,
	}
}

// Geocoder implements geocode(query, country_hint?).
type Geocoder struct {
	cfg     Config
	client  *http.Client
	cache   cache.Cache
	metrics *metrics.Collector
	logger  *zap.Logger
}

func New(cfg Config, c cache.Cache, logger *zap.Logger) *Geocoder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Geocoder{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		cache:  c,
		logger: logger.With(zap.String("component", "geocoder")),
	}
}

// SetMetrics attaches a metrics collector for cache hit/miss counters.
func (g *Geocoder) SetMetrics(m *metrics.Collector) {
	g.metrics = m
}

type nominatimHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Importance  float64 `json:"importance"`
	DisplayName string  `json:"display_name"`
}

// Geocode resolves a free-text address, with one transient retry per §4.3.
// Returns a UpstreamFatal error carrying "not found" when there is no match
// or the best match's confidence is below 0.3.
func (g *Geocoder) Geocode(ctx context.Context, query string, countryHint string) (Result, *apperr.Error) {
	cacheKey := fmt.Sprintf("geocode:%s:%s", countryHint, query)
	var cached Result
	if g.cache != nil {
		if err := g.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
			if g.metrics != nil {
				g.metrics.RecordCacheHit("geocode")
			}
			return cached, nil
		}
		if g.metrics != nil {
			g.metrics.RecordCacheMiss("geocode")
		}
	}

	result, aerr := g.fetch(ctx, query, countryHint)
	if aerr != nil && aerr.Retryable {
		// One transient retry, per §4.3.
		result, aerr = g.fetch(ctx, query, countryHint)
	}
	if aerr != nil {
		return Result{}, aerr
	}

	if g.cache != nil {
		_ = g.cache.SetJSON(ctx, cacheKey, result, 24*time.Hour)
	}
	return result, nil
}

func (g *Geocoder) fetch(ctx context.Context, query, countryHint string) (Result, *apperr.Error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	q.Set("addressdetails", "0")
	q.Set("q", query)
	if countryHint != "" {
		q.Set("countrycodes", countryHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return Result{}, apperr.New(apperr.LogicError, "failed to build geocode request").WithCause(err)
	}
	req.Header.Set("User-Agent", "larachado-coordinator/1.0 (+https://larachado.example)")
	if g.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Result{}, apperr.New(apperr.UpstreamTransient, "geocode request failed").WithProvider("geocoder").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		if aerr := apperr.FromHTTPStatus("geocoder", resp.StatusCode, string(body)); aerr != nil {
			return Result{}, aerr
		}
	}

	var hits []nominatimHit
	if err := json.Unmarshal(body, &hits); err != nil {
		return Result{}, apperr.New(apperr.ParseError, "malformed geocoder response").WithCause(err)
	}
	if len(hits) == 0 {
		return Result{}, apperr.New(apperr.UpstreamFatal, "not found").WithProvider("geocoder")
	}

	hit := hits[0]
	lat, lerr := strconv.ParseFloat(hit.Lat, 64)
	lon, loerr := strconv.ParseFloat(hit.Lon, 64)
	if lerr != nil || loerr != nil {
		return Result{}, apperr.New(apperr.ParseError, "geocoder returned non-numeric coordinates")
	}

	confidence := hit.Importance
	if confidence <= 0 {
		confidence = 0.5
	}
	if confidence > 1 {
		confidence = 1
	}

	if confidence < confidenceFloor {
		return Result{}, apperr.New(apperr.UpstreamFatal, "not found").WithProvider("geocoder")
	}

	return Result{
		Latitude:          lat,
		Longitude:         lon,
		Confidence:        confidence,
		NormalizedAddress: hit.DisplayName,
	}, nil
}
