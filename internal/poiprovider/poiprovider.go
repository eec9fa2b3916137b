// Package poiprovider returns typed points of interest within a radius of a
// coordinate (C4 in the coordinator design), ordered by ascending distance
// computed via the spherical law of cosines.
package poiprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/larachado/coordinator/internal/apperr"
	"github.com/larachado/coordinator/internal/cache"
	"github.com/larachado/coordinator/internal/domain"
	"github.com/larachado/coordinator/internal/metrics"
	"github.com/larachado/coordinator/internal/tlsutil"
)

const earthRadiusMeters = 6371000.0

// DefaultRadiusMeters is the §4.4 default search radius.
const DefaultRadiusMeters = 1500.0

// Config points at the POI lookup endpoint (an Overpass-style API).
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "https://overpass-api.de/api",
		Timeout: 10 * time.Second,
	}
}

// Provider implements pois_near(lat, lon, radius_m, categories?).
type Provider struct {
	cfg     Config
	client  *http.Client
	cache   cache.Cache
	metrics *metrics.Collector
	logger  *zap.Logger
}

func New(cfg Config, c cache.Cache, logger *zap.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		cache:  c,
		logger: logger.With(zap.String("component", "poiprovider")),
	}
}

// SetMetrics attaches a metrics collector for cache hit/miss counters.
func (p *Provider) SetMetrics(m *metrics.Collector) {
	p.metrics = m
}

type rawPOI struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// PoisNear asks the provider for POIs within radiusM of (lat, lon) and returns
// them ascending by distance; the provider's results are not re-filtered by
// distance here.
// When categories is empty, all known categories are returned.
func (p *Provider) PoisNear(ctx context.Context, lat, lon, radiusM float64, categories []domain.POICategory) ([]domain.POI, *apperr.Error) {
	if radiusM <= 0 {
		radiusM = DefaultRadiusMeters
	}

	cacheKey := fmt.Sprintf("poi:%.5f:%.5f:%.0f", lat, lon, radiusM)
	var cached []domain.POI
	if p.cache != nil {
		if err := p.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
			if p.metrics != nil {
				p.metrics.RecordCacheHit("poi")
			}
			return filterCategories(cached, categories), nil
		}
		if p.metrics != nil {
			p.metrics.RecordCacheMiss("poi")
		}
	}

	pois, aerr := p.fetch(ctx, lat, lon, radiusM)
	if aerr != nil {
		return nil, aerr
	}

	if p.cache != nil {
		_ = p.cache.SetJSON(ctx, cacheKey, pois, 24*time.Hour)
	}
	return filterCategories(pois, categories), nil
}

func (p *Provider) fetch(ctx context.Context, lat, lon, radiusM float64) ([]domain.POI, *apperr.Error) {
	endpoint := fmt.Sprintf("%s/poi?lat=%f&lon=%f&radius=%f", p.cfg.BaseURL, lat, lon, radiusM)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.New(apperr.LogicError, "failed to build POI request").WithCause(err)
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.UpstreamTransient, "POI request failed").WithProvider("poi").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode >= 400 {
		if aerr := apperr.FromHTTPStatus("poi", resp.StatusCode, string(body)); aerr != nil {
			return nil, aerr
		}
	}

	var raws []rawPOI
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, apperr.New(apperr.ParseError, "malformed POI response").WithCause(err)
	}

	pois := make([]domain.POI, 0, len(raws))
	for _, r := range raws {
		pois = append(pois, domain.POI{
			Name:           r.Name,
			Category:       normalizeCategory(r.Category),
			Latitude:       r.Lat,
			Longitude:      r.Lon,
			DistanceMeters: distanceMeters(lat, lon, r.Lat, r.Lon),
		})
	}

	sort.SliceStable(pois, func(i, j int) bool {
		return pois[i].DistanceMeters < pois[j].DistanceMeters
	})

	return pois, nil
}

func filterCategories(pois []domain.POI, categories []domain.POICategory) []domain.POI {
	if len(categories) == 0 {
		return pois
	}
	allowed := make(map[domain.POICategory]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}
	out := make([]domain.POI, 0, len(pois))
	for _, p := range pois {
		if allowed[p.Category] {
			out = append(out, p)
		}
	}
	return out
}

func normalizeCategory(raw string) domain.POICategory {
	switch domain.POICategory(raw) {
	case domain.POISchool, domain.POIHospital, domain.POIGrocery, domain.POIRestaurant,
		domain.POIPark, domain.POITransitStation, domain.POICafe, domain.POIGym:
		return domain.POICategory(raw)
	default:
		return domain.POIOther
	}
}

// distanceMeters computes great-circle distance via the spherical law of
// cosines, the formula named in §4.4.
func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δλ := (lon2 - lon1) * math.Pi / 180

	cosCentral := math.Sin(φ1)*math.Sin(φ2) + math.Cos(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	// Guard against floating-point drift pushing the argument outside
	// [-1, 1] for near-identical or antipodal points.
	if cosCentral > 1 {
		cosCentral = 1
	} else if cosCentral < -1 {
		cosCentral = -1
	}
	return earthRadiusMeters * math.Acos(cosCentral)
}
