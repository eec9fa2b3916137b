// Package localdiscovery attaches nearby points of interest to the top Q=5
// geocoded candidates (C8); the remainder get an empty POI list without a
// lookup call. Per-candidate failure isolation: a POI lookup failure yields
// an empty list for that candidate rather than failing the batch.
package localdiscovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/larachado/coordinator/internal/domain"
	"github.com/larachado/coordinator/internal/poiprovider"
)

const (
	enrichConcurrency = 4
	topCandidates     = 5
)

// Agent implements the local-discovery stage.
type Agent struct {
	poi    *poiprovider.Provider
	logger *zap.Logger
}

func New(poi *poiprovider.Provider, logger *zap.Logger) *Agent {
	return &Agent{poi: poi, logger: logger.With(zap.String("component", "localdiscovery"))}
}

// Enrich attaches nearby POIs to the top Q=5 candidates, 4-way bounded
// concurrency; candidates beyond the fifth get an empty POIs slice with no
// lookup call at all, per §4.8. The batch always succeeds: a candidate
// whose POI lookup fails simply keeps an empty POIs slice.
func (a *Agent) Enrich(ctx context.Context, candidates []domain.GeoCandidate, deadline time.Duration) []domain.EnrichedCandidate {
	if len(candidates) == 0 {
		return nil
	}
	if deadline <= 0 {
		deadline = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	out := make([]domain.EnrichedCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = domain.EnrichedCandidate{GeoCandidate: c}
	}

	lookups := len(candidates)
	if lookups > topCandidates {
		lookups = topCandidates
	}

	sem := semaphore.NewWeighted(enrichConcurrency)
	var wg sync.WaitGroup

	for i := 0; i < lookups; i++ {
		i, c := i, candidates[i]

		if err := sem.Acquire(ctx, 1); err != nil {
			// Deadline reached: remaining top-5 candidates keep their empty POI list.
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			pois, aerr := a.poi.PoisNear(ctx, c.Latitude, c.Longitude, poiprovider.DefaultRadiusMeters, nil)
			if aerr != nil {
				a.logger.Debug("poi lookup failed, leaving candidate unenriched", zap.String("address", c.Address), zap.Error(aerr))
				return
			}
			out[i].POIs = pois
		}()
	}
	wg.Wait()

	return out
}
