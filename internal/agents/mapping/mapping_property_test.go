package mapping

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/larachado/coordinator/internal/domain"
)

// Result-set preservation: Resolve never grows the candidate set and never
// reorders the survivors relative to their input positions.
func TestProperty_ResolvePreservesOrderAndSize(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("len(geocoded) <= len(candidates), order preserved", prop.ForAll(
		func(n int) bool {
			if n < 0 || n > 15 {
				return true
			}
			a, closeFn := newTestAgent(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"lat":"38.0","lon":"-9.0","importance":0.8,"display_name":"x"}`))
			})
			defer closeFn()

			candidates := make([]domain.Candidate, n)
			for i := range candidates {
				candidates[i] = domain.Candidate{Title: fmt.Sprintf("c%d", i), Address: fmt.Sprintf("addr-%d", i), HasCoordinates: true, Latitude: float64(i), Longitude: float64(i)}
			}

			out := a.Resolve(context.Background(), candidates, "Faro")
			if len(out) > len(candidates) {
				return false
			}
			// Every surviving candidate already had coordinates, so every
			// input here must survive with its title preserved in order.
			if len(out) != len(candidates) {
				return false
			}
			for i, gc := range out {
				if gc.Title != candidates[i].Title {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 15),
	))

	properties.TestingRun(t)
}
