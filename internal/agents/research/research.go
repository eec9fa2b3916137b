// Package research turns a validated Requirements record into ranked
// property Candidates (C6): query synthesis, search, bounded-concurrency
// extraction, filtering, and ranking.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/larachado/coordinator/internal/apperr"
	"github.com/larachado/coordinator/internal/domain"
	"github.com/larachado/coordinator/internal/llmgateway"
	"github.com/larachado/coordinator/internal/locations"
	"github.com/larachado/coordinator/internal/searchprovider"
)

const (
	maxHits            = 20
	maxCandidates      = 10
	minSurvivorsToKeep = 3
	extractConcurrency = 5
)

// DefaultAllowedDomains is the §4.6 default allow-list.
var DefaultAllowedDomains = []string{
	"idealista.pt", "imovirtual.com", "casa.sapo.pt", "olx.pt",
	"zillow.com", "redfin.com",
}

// Result is C6's output: a ranked candidate list plus a one-sentence
// human summary, or an error when search failed fatally.
type Result struct {
	Candidates []domain.Candidate
	Summary    string
	Err        *apperr.Error
}

// Agent implements the research pipeline.
type Agent struct {
	search          *searchprovider.Provider
	llm             *llmgateway.Gateway
	allowedDomains  []string
	logger          *zap.Logger
}

func New(search *searchprovider.Provider, llm *llmgateway.Gateway, allowedDomains []string, logger *zap.Logger) *Agent {
	if len(allowedDomains) == 0 {
		allowedDomains = DefaultAllowedDomains
	}
	return &Agent{search: search, llm: llm, allowedDomains: allowedDomains, logger: logger.With(zap.String("component", "research"))}
}

// Run executes the full C6 pipeline for the given requirements.
func (a *Agent) Run(ctx context.Context, reqs domain.Requirements) Result {
	query := synthesizeQuery(reqs)

	hits, aerr := a.search.Search(ctx, query, "google")
	if aerr != nil {
		a.logger.Warn("research search failed", zap.Error(aerr))
		return Result{Err: aerr}
	}

	hits = filterAllowedDomains(hits, a.allowedDomains, maxHits)

	candidates := a.extractAll(ctx, hits)
	filtered := a.applyFilters(candidates, reqs, true)

	if len(filtered) < minSurvivorsToKeep {
		a.logger.Info("broadening retry: fewer than 3 survivors, dropping rooms filter")
		filtered = a.applyFilters(candidates, reqs, false)
	}

	ranked := rank(filtered)
	if len(ranked) > maxCandidates {
		ranked = ranked[:maxCandidates]
	}

	summary := a.summarize(ctx, reqs, ranked)

	return Result{Candidates: ranked, Summary: summary}
}

// synthesizeQuery builds the K=1 deterministic search string from
// requirements: location, rent/buy verb, bedrooms, budget.
func synthesizeQuery(r domain.Requirements) string {
	var parts []string
	verb := "comprar"
	if r.IsRent {
		verb = "arrendar"
	}
	parts = append(parts, verb)
	if r.Bedrooms != nil {
		parts = append(parts, fmt.Sprintf("T%d", *r.Bedrooms))
	}
	parts = append(parts, "em", r.Location)
	if r.BudgetMax != nil {
		parts = append(parts, "até", strconv.FormatFloat(*r.BudgetMax, 'f', 0, 64)+"€")
	}
	if r.IsRent {
		parts = append(parts, "arrendamento", "casa", "apartamento")
	} else {
		parts = append(parts, "venda", "casa", "apartamento")
	}
	return strings.Join(parts, " ")
}

func filterAllowedDomains(hits []searchprovider.SearchHit, allowed []string, limit int) []searchprovider.SearchHit {
	var out []searchprovider.SearchHit
	for _, h := range hits {
		for _, domainName := range allowed {
			if strings.Contains(h.URL, domainName) {
				out = append(out, h)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

// extractAll scrapes and extracts a Candidate for each hit with bounded
// concurrency (default 5). Extraction failures drop the hit silently.
func (a *Agent) extractAll(ctx context.Context, hits []searchprovider.SearchHit) []domain.Candidate {
	sem := semaphore.NewWeighted(extractConcurrency)
	var mu sync.Mutex
	var candidates []domain.Candidate
	var wg sync.WaitGroup

	for _, hit := range hits {
		hit := hit
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			c, ok := a.extractOne(ctx, hit)
			if !ok {
				return
			}
			mu.Lock()
			candidates = append(candidates, c)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return candidates
}

const extractionSchemaPrompt = `Extract a real-estate listing record from the markdown below. Reply with
ONLY a JSON object:
{
  "title": string,
  "address": string,
  "description": string,
  "price": number,
  "currency": string,
  "is_rent": boolean,
  "bedrooms": number|null,
  "bathrooms": number|null,
  "area_sqm": number|null,
  "property_type": string,
  "image_url": string|null,
  "latitude": number|null,
  "longitude": number|null
}
If the page is not a property listing or required fields (title, address,
price) cannot be found, reply with {"error": "not_a_listing"}.`

type extractedListing struct {
	Error        string   `json:"error"`
	Title        string   `json:"title"`
	Address      string   `json:"address"`
	Description  string   `json:"description"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency"`
	IsRent       bool     `json:"is_rent"`
	Bedrooms     *int     `json:"bedrooms"`
	Bathrooms    *float64 `json:"bathrooms"`
	AreaSqM      *float64 `json:"area_sqm"`
	PropertyType string   `json:"property_type"`
	ImageURL     string   `json:"image_url"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

func (a *Agent) extractOne(ctx context.Context, hit searchprovider.SearchHit) (domain.Candidate, bool) {
	markdown, aerr := a.search.ScrapeMarkdown(ctx, hit.URL)
	if aerr != nil {
		a.logger.Debug("scrape failed, dropping hit", zap.String("url", hit.URL), zap.Error(aerr))
		return domain.Candidate{}, false
	}

	raw, aerr := a.llm.Complete(ctx, extractionSchemaPrompt, markdown, true, 500, 0.0)
	if aerr != nil {
		a.logger.Debug("extraction LLM call failed, dropping hit", zap.String("url", hit.URL), zap.Error(aerr))
		return domain.Candidate{}, false
	}

	var listing extractedListing
	if err := json.Unmarshal([]byte(raw), &listing); err != nil {
		return domain.Candidate{}, false
	}
	if listing.Error != "" || listing.Title == "" || listing.Address == "" || listing.Price <= 0 {
		return domain.Candidate{}, false
	}

	c := domain.Candidate{
		Title:        listing.Title,
		Address:      listing.Address,
		Description:  listing.Description,
		SourceURL:    hit.URL,
		ImageURL:     listing.ImageURL,
		Price:        listing.Price,
		Currency:     listing.Currency,
		IsRent:       listing.IsRent,
		Bedrooms:     listing.Bedrooms,
		Bathrooms:    listing.Bathrooms,
		AreaSqM:      listing.AreaSqM,
		PropertyType: listing.PropertyType,
		RawSnippet:   markdown,
	}
	if listing.Latitude != nil && listing.Longitude != nil {
		c.HasCoordinates = true
		c.Latitude = *listing.Latitude
		c.Longitude = *listing.Longitude
	}
	return c, true
}

// applyFilters runs the location filter always, and the budget/room filter
// with the rooms clause optionally disabled for the broadened retry.
func (a *Agent) applyFilters(candidates []domain.Candidate, reqs domain.Requirements, enforceRooms bool) []domain.Candidate {
	var out []domain.Candidate
	for _, c := range candidates {
		if !locationMatches(c, reqs.Location) {
			continue
		}
		if reqs.BudgetMax != nil && c.Price > *reqs.BudgetMax {
			continue
		}
		if enforceRooms && reqs.Bedrooms != nil {
			if c.Bedrooms == nil || *c.Bedrooms != *reqs.Bedrooms {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// locationMatches implements §4.6's "either matches" rule: string
// containment OR bounding box (Open Question in §9: the original's precedence
// when both are available is ambiguous). A disagreement between the two
// checks is not logged.
func locationMatches(c domain.Candidate, locationFreeText string) bool {
	stringMatch := locations.Matches(c.Address, locationFreeText) || locations.Matches(c.Title, locationFreeText)

	if !c.HasCoordinates {
		return stringMatch
	}

	boxMatch, known := locations.InBoundingBox(c.Latitude, c.Longitude, locationFreeText)
	if !known {
		return stringMatch
	}
	return stringMatch || boxMatch
}

// rank stable-sorts by (coordinate-present desc, image-present desc,
// price-present desc, source-priority desc), per §4.6 step 6.
func rank(candidates []domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HasCoordinates != b.HasCoordinates {
			return a.HasCoordinates
		}
		aImg, bImg := a.ImageURL != "", b.ImageURL != ""
		if aImg != bImg {
			return aImg
		}
		aPrice, bPrice := a.Price > 0, b.Price > 0
		if aPrice != bPrice {
			return aPrice
		}
		return sourcePriority(a.SourceURL) > sourcePriority(b.SourceURL)
	})
	return out
}

func sourcePriority(url string) int {
	priorities := map[string]int{
		"idealista.pt":   5,
		"imovirtual.com": 4,
		"casa.sapo.pt":   3,
		"olx.pt":         2,
		"zillow.com":     4,
		"redfin.com":     4,
	}
	for domainName, p := range priorities {
		if strings.Contains(url, domainName) {
			return p
		}
	}
	return 0
}

func (a *Agent) summarize(ctx context.Context, reqs domain.Requirements, candidates []domain.Candidate) string {
	if len(candidates) == 0 {
		return "Não encontrámos imóveis que correspondam aos seus critérios. Pode tentar alargar a pesquisa."
	}

	var b strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s, %s, %.0f %s\n", c.Title, c.Address, c.Price, c.Currency)
	}

	prompt := fmt.Sprintf("Requirements: location=%s, bedrooms=%v, budget_max=%v.\nCandidates:\n%s\nWrite ONE sentence in Portuguese summarizing these results for the user.",
		reqs.Location, reqs.Bedrooms, reqs.BudgetMax, b.String())

	summary, aerr := a.llm.Complete(ctx, "You write one-sentence search result summaries.", prompt, false, 150, 0.3)
	if aerr != nil {
		return fmt.Sprintf("Encontrámos %d imóveis que correspondem aos seus critérios.", len(candidates))
	}
	return strings.TrimSpace(summary)
}
