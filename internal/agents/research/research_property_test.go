package research

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/larachado/coordinator/internal/domain"
	"github.com/larachado/coordinator/internal/locations"
)

// Budget law: applyFilters never lets a candidate priced above budget_max
// through, regardless of how many candidates are evaluated or at what
// prices.
func TestProperty_ApplyFiltersEnforcesBudget(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("no surviving candidate exceeds budget_max", prop.ForAll(
		func(budgetMax float64, prices []float64) bool {
			candidates := make([]domain.Candidate, len(prices))
			for i, p := range prices {
				candidates[i] = domain.Candidate{
					Title:   fmt.Sprintf("c%d", i),
					Address: "Faro",
					Price:   p,
				}
			}

			a := &Agent{}
			out := a.applyFilters(candidates, domain.Requirements{Location: "Faro", BudgetMax: &budgetMax}, false)
			for _, c := range out {
				if c.Price > budgetMax {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0, 5000),
		gen.SliceOfN(10, gen.Float64Range(0, 5000)),
	))

	properties.TestingRun(t)
}

// Location law: with no budget/room constraint in play, applyFilters keeps
// exactly the candidates whose address satisfies the same string-containment
// rule locations.Matches applies on its own — the filter never keeps a
// candidate the location predicate rejects, and never drops one it accepts.
func TestProperty_ApplyFiltersMatchesLocationOracle(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150

	properties := gopter.NewProperties(parameters)

	properties.Property("survival agrees with locations.Matches(address, location)", prop.ForAll(
		func(location, addressPrefix, addressSuffix string) bool {
			address := addressPrefix + location + addressSuffix
			c := domain.Candidate{Title: "listing", Address: address, HasCoordinates: false}

			a := &Agent{}
			out := a.applyFilters([]domain.Candidate{c}, domain.Requirements{Location: location}, false)
			survived := len(out) == 1

			return survived == locations.Matches(address, location)
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
