// Package community produces a neighborhood report for the top-ranked
// candidate (C9): a couple of scoped web searches feed an LLM call that
// fills a fixed JSON schema, with score clamping and fail-to-nil semantics.
package community

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/larachado/coordinator/internal/domain"
	"github.com/larachado/coordinator/internal/llmgateway"
	"github.com/larachado/coordinator/internal/searchprovider"
)

const reportSchemaPrompt = `You are a local neighborhood analyst. Using the search snippets below, produce
a community report. Reply with ONLY a JSON object:
{
  "overall_score": number,
  "overall_explain": string,
  "school_rating": number,
  "school_explain": string,
  "safety_score": number,
  "safety_explain": string,
  "positive_stories": [{"title": string, "summary": string}],
  "negative_stories": [{"title": string, "summary": string}]
}
Scores are 0-10. If the snippets give no signal for a score, estimate
conservatively around 5 and say so in the explanation.`

type reportJSON struct {
	OverallScore    float64     `json:"overall_score"`
	OverallExplain  string      `json:"overall_explain"`
	SchoolRating    float64     `json:"school_rating"`
	SchoolExplain   string      `json:"school_explain"`
	SafetyScore     float64     `json:"safety_score"`
	SafetyExplain   string      `json:"safety_explain"`
	PositiveStories []blurbJSON `json:"positive_stories"`
	NegativeStories []blurbJSON `json:"negative_stories"`
}

type blurbJSON struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Agent implements the community stage.
type Agent struct {
	search *searchprovider.Provider
	llm    *llmgateway.Gateway
	logger *zap.Logger
}

func New(search *searchprovider.Provider, llm *llmgateway.Gateway, logger *zap.Logger) *Agent {
	return &Agent{search: search, llm: llm, logger: logger.With(zap.String("component", "community"))}
}

// Report builds a CommunityReport for the top candidate's city. Returns nil
// on any failure, per §4.9: the coordinator then simply omits the field.
func (a *Agent) Report(ctx context.Context, top domain.EnrichedCandidate, city string) *domain.CommunityReport {
	snippets := a.gatherSnippets(ctx, city)
	if snippets == "" {
		a.logger.Debug("no community snippets found", zap.String("city", city))
		return nil
	}

	raw, aerr := a.llm.Complete(ctx, reportSchemaPrompt, snippets, true, 700, 0.3)
	if aerr != nil {
		a.logger.Debug("community report LLM call failed", zap.Error(aerr))
		return nil
	}

	var parsed reportJSON
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		a.logger.Debug("community report response was not valid JSON", zap.Error(err))
		return nil
	}

	report := &domain.CommunityReport{
		OverallScore:   clampScore(parsed.OverallScore),
		OverallExplain: parsed.OverallExplain,
		SchoolRating:   clampScore(parsed.SchoolRating),
		SchoolExplain:  parsed.SchoolExplain,
		SafetyScore:    clampScore(parsed.SafetyScore),
		SafetyExplain:  parsed.SafetyExplain,
	}
	for _, s := range parsed.PositiveStories {
		report.PositiveStories = append(report.PositiveStories, domain.StoryBlurb{Title: s.Title, Summary: s.Summary})
	}
	for _, s := range parsed.NegativeStories {
		report.NegativeStories = append(report.NegativeStories, domain.StoryBlurb{Title: s.Title, Summary: s.Summary})
	}
	return report
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// gatherSnippets issues the neighborhood/crime/school searches scoped to
// city and concatenates their hit snippets. A failed search is skipped, not
// fatal — the overall report only fails if every search comes back empty.
func (a *Agent) gatherSnippets(ctx context.Context, city string) string {
	queries := []string{
		fmt.Sprintf("%s neighborhood reviews safety", city),
		fmt.Sprintf("%s schools rating", city),
		fmt.Sprintf("%s crime rate", city),
	}

	var b strings.Builder
	for _, q := range queries {
		hits, aerr := a.search.Search(ctx, q, "google")
		if aerr != nil {
			a.logger.Debug("community search failed, skipping query", zap.String("query", q), zap.Error(aerr))
			continue
		}
		for _, h := range hits {
			fmt.Fprintf(&b, "- %s: %s\n", h.Title, h.Snippet)
		}
	}
	return strings.TrimSpace(b.String())
}
