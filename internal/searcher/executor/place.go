package executor

import (
	"context"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/tracing"
)

// Scope is the granularity a place lookup was matched at.
type Scope string

const (
	ScopePOI     Scope = "poi"
	ScopeCity    Scope = "city"
	ScopeRegion  Scope = "region"
	ScopeCountry Scope = "country"
)

// Map-provider feature types, most specific first.
var scopeTypes = []struct {
	scope Scope
	types []string
}{
	{ScopePOI, []string{"poi", "poi.landmark", "landmark", "address", "establishment", "point_of_interest"}},
	{ScopeCity, []string{"place", "locality", "city", "neighborhood", "district", "postcode", "sublocality"}},
	{ScopeRegion, []string{"region", "administrative_area_level_1", "state"}},
	{ScopeCountry, []string{"country"}},
}

// PlaceQuery is a place picked from a map search box.
type PlaceQuery struct {
	Name         string
	PlaceName    string
	PlaceTypes   []string
	Region       string
	Country      string
	StrictIntent bool
}

type PlaceResult struct {
	Scope    Scope
	Rows     []index.Row
	Variants []string
}

// ScopeFor picks the most specific scope named by q.PlaceTypes. Without a
// recognised type, a name equal to the region or country selects that scope
// and anything else is treated as a city.
func ScopeFor(q PlaceQuery) Scope {
	for _, candidate := range scopeTypes {
		for _, t := range q.PlaceTypes {
			for _, known := range candidate.types {
				if strings.EqualFold(strings.TrimSpace(t), known) {
					return candidate.scope
				}
			}
		}
	}
	name := strings.TrimSpace(q.Name)
	switch {
	case name != "" && strings.EqualFold(name, strings.TrimSpace(q.Region)):
		return ScopeRegion
	case name != "" && strings.EqualFold(name, strings.TrimSpace(q.Country)):
		return ScopeCountry
	default:
		return ScopeCity
	}
}

// SearchByPlace looks a place up at its own scope. Tiers are tried in order
// and the first tier with matches wins; no tier ever searches the place's
// parent region or country. A poi is only matched by its own name.
func (e *Engine) SearchByPlace(ctx context.Context, q PlaceQuery) PlaceResult {
	_, span := tracing.StartChildSpan(ctx, "engine.search_by_place")
	defer span.End()
	start := time.Now()

	scope := ScopeFor(q)
	tiers := e.placeTiers(scope, q)

	result := PlaceResult{Scope: scope, Rows: []index.Row{}, Variants: []string{}}
	tried := make([]string, 0)
	for _, variants := range tiers {
		if len(variants) == 0 {
			continue
		}
		tried = append(tried, variants...)
		if rows := e.SearchVariants(variants); len(rows) > 0 {
			result.Rows = rows
			result.Variants = variants
			break
		}
	}
	if len(result.Rows) == 0 {
		result.Variants = parser.Sorted(tried)
	}

	span.SetAttrs("scope", string(scope), "results", len(result.Rows))
	e.observe("by_place", "place", len(result.Rows), start)
	return result
}

func (e *Engine) placeTiers(scope Scope, q PlaceQuery) [][]string {
	name := strings.TrimSpace(q.Name)
	placeName := strings.TrimSpace(q.PlaceName)
	if placeName == "" {
		placeName = name
	}

	if scope == ScopePOI {
		return [][]string{parser.Sorted(append(e.parser.Strict(placeName), e.parser.Strict(name)...))}
	}

	tiers := [][]string{e.parser.Strict(placeName)}
	switch scope {
	case ScopeCity:
		if region := strings.TrimSpace(q.Region); name != "" && region != "" {
			tiers = append(tiers, e.parser.Strict(name+", "+region))
		}
		tiers = append(tiers, e.parser.Strict(name))
	case ScopeRegion:
		tiers = append(tiers, e.parser.Strict(firstNonBlank(q.Region, name)))
	case ScopeCountry:
		tiers = append(tiers, e.parser.Strict(firstNonBlank(q.Country, name)))
	}
	// The loose tier widens only the place's own name, never a trailing
	// ", Region" the name may carry.
	if head := firstPart(name); !q.StrictIntent && head != "" {
		tiers = append(tiers, e.parser.Loose(head))
	}
	return tiers
}

func firstPart(name string) string {
	head, _, _ := strings.Cut(name, ",")
	return strings.TrimSpace(head)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
