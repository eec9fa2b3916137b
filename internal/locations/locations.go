// Package locations supplies a named table of canonical locations, their
// aliases, and approximate centers, replacing the mixed-language magic
// strings the original source used for city matching. The research agent's
// (C6) location filter and the mapping agent's (C7) fallback geocoding
// strategy both consume this table.
package locations

import (
	"strings"
	"unicode"
)

// Location is one canonical place the system recognizes by name, with the
// alternate spellings/aliases callers might use and an approximate center
// used for bounding-box filtering and as a geocode fallback query.
type Location struct {
	Canonical string
	Aliases   []string
	Country   string
	CenterLat float64
	CenterLon float64
}

// table covers the 16 Algarve municipalities plus the handful of major
// localities the research agent's allow-listed sources most often mention.
var table = []Location{
	{Canonical: "Faro", Aliases: []string{"faro"}, Country: "PT", CenterLat: 37.0194, CenterLon: -7.9304},
	{Canonical: "Loulé", Aliases: []string{"loule", "vilamoura", "quarteira", "almancil"}, Country: "PT", CenterLat: 37.1380, CenterLon: -8.0233},
	{Canonical: "Albufeira", Aliases: []string{"albufeira", "guia", "ferreiras"}, Country: "PT", CenterLat: 37.0891, CenterLon: -8.2502},
	{Canonical: "Portimão", Aliases: []string{"portimao", "alvor"}, Country: "PT", CenterLat: 37.1393, CenterLon: -8.5380},
	{Canonical: "Lagos", Aliases: []string{"lagos"}, Country: "PT", CenterLat: 37.1022, CenterLon: -8.6742},
	{Canonical: "Lagoa", Aliases: []string{"lagoa", "carvoeiro", "ferragudo"}, Country: "PT", CenterLat: 37.1300, CenterLon: -8.4552},
	{Canonical: "Silves", Aliases: []string{"silves", "armacao de pera", "armação de pêra"}, Country: "PT", CenterLat: 37.1887, CenterLon: -8.4382},
	{Canonical: "Tavira", Aliases: []string{"tavira", "cabanas", "santa luzia"}, Country: "PT", CenterLat: 37.1277, CenterLon: -7.6486},
	{Canonical: "Vila Real de Santo António", Aliases: []string{"vila real de santo antonio", "vrsa", "monte gordo"}, Country: "PT", CenterLat: 37.1950, CenterLon: -7.4159},
	{Canonical: "Olhão", Aliases: []string{"olhao"}, Country: "PT", CenterLat: 37.0286, CenterLon: -7.8412},
	{Canonical: "São Brás de Alportel", Aliases: []string{"sao bras de alportel", "s. bras de alportel"}, Country: "PT", CenterLat: 37.1539, CenterLon: -7.8853},
	{Canonical: "Castro Marim", Aliases: []string{"castro marim", "altura"}, Country: "PT", CenterLat: 37.2193, CenterLon: -7.4430},
	{Canonical: "Alcoutim", Aliases: []string{"alcoutim"}, Country: "PT", CenterLat: 37.4697, CenterLon: -7.4719},
	{Canonical: "Monchique", Aliases: []string{"monchique", "caldas de monchique"}, Country: "PT", CenterLat: 37.3167, CenterLon: -8.5583},
	{Canonical: "Aljezur", Aliases: []string{"aljezur", "arrifana", "odeceixe"}, Country: "PT", CenterLat: 37.3167, CenterLon: -8.8000},
	{Canonical: "Vila do Bispo", Aliases: []string{"vila do bispo", "sagres", "salema"}, Country: "PT", CenterLat: 37.0833, CenterLon: -8.9333},
}

// stripDiacritics lowercases and removes combining marks so comparisons are
// accent-insensitive ("Sao Bras" matches "São Brás").
func stripDiacritics(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case 'á', 'à', 'â', 'ã', 'ä':
			r = 'a'
		case 'é', 'è', 'ê', 'ë':
			r = 'e'
		case 'í', 'ì', 'î', 'ï':
			r = 'i'
		case 'ó', 'ò', 'ô', 'õ', 'ö':
			r = 'o'
		case 'ú', 'ù', 'û', 'ü':
			r = 'u'
		case 'ç':
			r = 'c'
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup finds the canonical Location matching a free-text location token,
// comparing case- and diacritic-insensitively against the canonical name and
// every alias. Returns false when nothing in the table matches.
func Lookup(freeText string) (Location, bool) {
	needle := stripDiacritics(strings.TrimSpace(freeText))
	if needle == "" {
		return Location{}, false
	}
	for _, loc := range table {
		if stripDiacritics(loc.Canonical) == needle {
			return loc, true
		}
		for _, alias := range loc.Aliases {
			if stripDiacritics(alias) == needle {
				return loc, true
			}
		}
	}
	// Fall back to substring containment, since requirement text often
	// embeds the location inside a longer phrase ("T2 em Faro até 900€").
	for _, loc := range table {
		if strings.Contains(needle, stripDiacritics(loc.Canonical)) {
			return loc, true
		}
		for _, alias := range loc.Aliases {
			if strings.Contains(needle, stripDiacritics(alias)) {
				return loc, true
			}
		}
	}
	return Location{}, false
}

// Matches reports whether haystack (an address or title) contains the
// location token from freeText, case- and diacritic-insensitively. Used by
// the research agent's (C6 §4.6) location filter string-containment branch.
func Matches(haystack, freeText string) bool {
	needle := stripDiacritics(freeText)
	if needle == "" {
		return true
	}
	hay := stripDiacritics(haystack)
	if strings.Contains(hay, needle) {
		return true
	}
	if loc, ok := Lookup(freeText); ok {
		if strings.Contains(hay, stripDiacritics(loc.Canonical)) {
			return true
		}
		for _, alias := range loc.Aliases {
			if strings.Contains(hay, stripDiacritics(alias)) {
				return true
			}
		}
	}
	return false
}

// InBoundingBox reports whether (lat, lon) falls within an approximately
// 0.5 degree box around freeText's known center, per C6 §4.6. Returns false
// (not a match) when freeText has no known center, so callers should treat
// that as "bounding box inconclusive" rather than "out of range".
func InBoundingBox(lat, lon float64, freeText string) (matched bool, known bool) {
	loc, ok := Lookup(freeText)
	if !ok {
		return false, false
	}
	const halfBox = 0.25
	return lat >= loc.CenterLat-halfBox && lat <= loc.CenterLat+halfBox &&
		lon >= loc.CenterLon-halfBox && lon <= loc.CenterLon+halfBox, true
}

// All returns a copy of the full canonical table, for geocoding fallback
// queries and test coverage assertions.
func All() []Location {
	out := make([]Location, len(table))
	copy(out, table)
	return out
}
