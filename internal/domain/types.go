// Package domain holds the entity types shared across every agent and the
// coordinator: Session, Requirements, Candidate and its enriched variants,
// CommunityReport, Envelope, and NegotiationRecord. Entities flow by value
// through the pipeline; only the Coordinator mutates a Session.
package domain

import (
	"strings"

	"github.com/larachado/coordinator/internal/apperr"
)

// Role identifies the speaker of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in a session's message history.
type Turn struct {
	Role Role
	Text string
}

// ScopingState is the two-state dialog machine driven by the scoping agent.
type ScopingState string

const (
	StateGathering ScopingState = "gathering"
	StateComplete  ScopingState = "complete"
)

// Requirements is the validated, structured housing criteria produced by the
// scoping agent (C5) and consumed read-only by every later stage.
type Requirements struct {
	Location       string   `json:"location"`
	Bedrooms       *int     `json:"bedrooms,omitempty"`
	Bathrooms      *float64 `json:"bathrooms,omitempty"`
	BudgetMin      *float64 `json:"budget_min,omitempty"`
	BudgetMax      *float64 `json:"budget_max,omitempty"`
	IsRent         bool     `json:"is_rent"`
	AdditionalInfo string   `json:"additional_info,omitempty"`
}

// Validate enforces the one cross-field invariant on Requirements: when both
// bounds are set, budget_min must not exceed budget_max.
func (r Requirements) Validate() *apperr.Error {
	if r.BudgetMin != nil && r.BudgetMax != nil && *r.BudgetMin > *r.BudgetMax {
		return apperr.New(apperr.LogicError, "budget_min must be less than or equal to budget_max")
	}
	return nil
}

// IsUsable reports whether the record is complete enough to hand off to
// research: a non-empty location and at least one of {bedrooms, budget_max}.
func (r Requirements) IsUsable() bool {
	return strings.TrimSpace(r.Location) != "" && (r.Bedrooms != nil || r.BudgetMax != nil)
}

// Merge overlays non-nil/non-empty fields from patch onto r, matching C5's
// "later non-null values overwrite earlier ones" merge rule. AdditionalInfo
// and IsRent always take the patch's value when patch carries one.
func (r Requirements) Merge(patch Requirements, patchSetIsRent bool) Requirements {
	out := r
	if strings.TrimSpace(patch.Location) != "" {
		out.Location = patch.Location
	}
	if patch.Bedrooms != nil {
		out.Bedrooms = patch.Bedrooms
	}
	if patch.Bathrooms != nil {
		out.Bathrooms = patch.Bathrooms
	}
	if patch.BudgetMin != nil {
		out.BudgetMin = patch.BudgetMin
	}
	if patch.BudgetMax != nil {
		out.BudgetMax = patch.BudgetMax
	}
	if patchSetIsRent {
		out.IsRent = patch.IsRent
	}
	if strings.TrimSpace(patch.AdditionalInfo) != "" {
		out.AdditionalInfo = patch.AdditionalInfo
	}
	return out
}

// Candidate is a scraped property listing before geocoding/enrichment.
type Candidate struct {
	Title        string   `json:"title"`
	Address      string   `json:"address"`
	Description  string   `json:"description,omitempty"`
	SourceURL    string   `json:"source_url"`
	ImageURL     string   `json:"image_url,omitempty"`
	Price        float64  `json:"price"`
	Currency     string   `json:"currency,omitempty"`
	IsRent       bool     `json:"is_rent"`
	Bedrooms     *int     `json:"bedrooms,omitempty"`
	Bathrooms    *float64 `json:"bathrooms,omitempty"`
	AreaSqM      *float64 `json:"area_sqm,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`
	RawSnippet   string   `json:"-"`

	// HasCoordinates/Latitude/Longitude are set when the extractor already
	// found a coordinate on the source page, letting C7 skip geocoding.
	HasCoordinates bool    `json:"-"`
	Latitude       float64 `json:"-"`
	Longitude      float64 `json:"-"`
}

// POICategory enumerates the point-of-interest kinds the POI provider (C4)
// and local-discovery agent (C8) deal in.
type POICategory string

const (
	POISchool         POICategory = "school"
	POIHospital       POICategory = "hospital"
	POIGrocery        POICategory = "grocery"
	POIRestaurant     POICategory = "restaurant"
	POIPark           POICategory = "park"
	POITransitStation POICategory = "transit_station"
	POICafe           POICategory = "cafe"
	POIGym            POICategory = "gym"
	POIOther          POICategory = "other"
)

// POI is one point of interest near an EnrichedCandidate.
type POI struct {
	Name           string      `json:"name"`
	Category       POICategory `json:"category"`
	Latitude       float64     `json:"latitude"`
	Longitude      float64     `json:"longitude"`
	DistanceMeters float64     `json:"distance_meters"`
}

// GeoCandidate is a Candidate augmented with a resolved coordinate and the
// geocoder's confidence, produced by the mapping agent (C7).
type GeoCandidate struct {
	Candidate
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	GeocodeConfidence float64 `json:"geocode_confidence"`
}

// EnrichedCandidate is a GeoCandidate plus its ordered, distance-sorted POI
// list, produced by the local-discovery agent (C8).
type EnrichedCandidate struct {
	GeoCandidate
	POIs []POI `json:"pois"`
}

// StoryBlurb is one entry of CommunityReport's positive/negative lists.
type StoryBlurb struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// CommunityReport is the community agent's (C9) neighborhood score/story for
// the top-ranked candidate's area. Scores are clamped to [0,10] by C9 before
// this struct is populated.
type CommunityReport struct {
	OverallScore    float64      `json:"overall_score"`
	OverallExplain  string       `json:"overall_explain,omitempty"`
	SchoolRating    float64      `json:"school_rating"`
	SchoolExplain   string       `json:"school_explain,omitempty"`
	SafetyScore     float64      `json:"safety_score"`
	SafetyExplain   string       `json:"safety_explain,omitempty"`
	PositiveStories []StoryBlurb `json:"positive_stories,omitempty"`
	NegativeStories []StoryBlurb `json:"negative_stories,omitempty"`
}

// EnvelopeKind distinguishes a request from a response in the inter-agent
// message type.
type EnvelopeKind string

const (
	EnvelopeRequest  EnvelopeKind = "request"
	EnvelopeResponse EnvelopeKind = "response"
)

// Envelope is the immutable inter-agent message. Payload is a variant value
// specific to the agent being addressed; once constructed an Envelope must
// not be mutated by any agent that receives it.
type Envelope struct {
	SessionID string
	Kind      EnvelopeKind
	TraceID   string
	Payload   any
	Err       *apperr.Error
}

// NegotiationRecord is the negotiation agent's (C10) result, returned
// directly to the HTTP caller. It is never persisted.
type NegotiationRecord struct {
	Address       string   `json:"address"`
	CallerName    string   `json:"caller_name,omitempty"`
	CallerEmail   string   `json:"caller_email,omitempty"`
	Brief         string   `json:"-"`
	Findings      []string `json:"findings"`
	LeverageScore float64  `json:"leverage_score"`
	CallSummary   string   `json:"call_summary"`
	Success       bool     `json:"success"`
}
