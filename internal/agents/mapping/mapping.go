// Package mapping resolves each research candidate to a coordinate (C7):
// a coordinate already on the page is trusted outright, otherwise the full
// address is geocoded, falling back to "city, country" when that fails.
package mapping

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/larachado/coordinator/internal/domain"
	"github.com/larachado/coordinator/internal/geocoder"
	"github.com/larachado/coordinator/internal/locations"
)

const (
	resolveConcurrency = 8
	batchDeadline      = 20 * time.Second
)

// Agent implements the mapping stage.
type Agent struct {
	geocoder *geocoder.Geocoder
	logger   *zap.Logger
}

func New(g *geocoder.Geocoder, logger *zap.Logger) *Agent {
	return &Agent{geocoder: g, logger: logger.With(zap.String("component", "mapping"))}
}

// Resolve geocodes every candidate with bounded concurrency under a 20s
// batch deadline, preserving input order and dropping candidates that fail
// every fallback strategy. §4.7: the batch itself never fails; individual
// candidates simply disappear from the output.
func (a *Agent) Resolve(ctx context.Context, candidates []domain.Candidate, locationHint string) []domain.GeoCandidate {
	if len(candidates) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, batchDeadline)
	defer cancel()

	sem := semaphore.NewWeighted(resolveConcurrency)
	results := make([]*domain.GeoCandidate, len(candidates))
	var wg sync.WaitGroup

	for i, c := range candidates {
		i, c := i, c
		if err := sem.Acquire(ctx, 1); err != nil {
			// Deadline hit before this job could even start: leave it
			// (and everything after it) unresolved.
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if gc, ok := a.resolveOne(ctx, c, locationHint); ok {
				results[i] = &gc
			}
		}()
	}
	wg.Wait()

	out := make([]domain.GeoCandidate, 0, len(candidates))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// resolveOne tries, in order: the candidate's own coordinate (trusted
// outright, confidence 1.0), the full address, then "city, country" built
// from locationHint's canonical center.
func (a *Agent) resolveOne(ctx context.Context, c domain.Candidate, locationHint string) (domain.GeoCandidate, bool) {
	if c.HasCoordinates {
		return domain.GeoCandidate{
			Candidate:         c,
			Latitude:          c.Latitude,
			Longitude:         c.Longitude,
			GeocodeConfidence: 1.0,
		}, true
	}

	if res, aerr := a.geocoder.Geocode(ctx, c.Address, "pt"); aerr == nil {
		return domain.GeoCandidate{
			Candidate:         c,
			Latitude:          res.Latitude,
			Longitude:         res.Longitude,
			GeocodeConfidence: res.Confidence,
		}, true
	} else {
		a.logger.Debug("full-address geocode failed, falling back to city", zap.String("address", c.Address), zap.Error(aerr))
	}

	if loc, ok := locations.Lookup(locationHint); ok {
		fallbackQuery := fmt.Sprintf("%s, %s", loc.Canonical, loc.Country)
		if res, aerr := a.geocoder.Geocode(ctx, fallbackQuery, loc.Country); aerr == nil {
			return domain.GeoCandidate{
				Candidate:         c,
				Latitude:          res.Latitude,
				Longitude:         res.Longitude,
				GeocodeConfidence: res.Confidence * 0.5, // city-level fallback, not the listing itself
			}, true
		} else {
			a.logger.Debug("city-level geocode fallback failed, dropping candidate", zap.String("address", c.Address), zap.Error(aerr))
		}
	}

	return domain.GeoCandidate{}, false
}
