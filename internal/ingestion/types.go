// Package ingestion defines the geocoded market record types shared by the
// loader, the search index and the HTTP layer.
package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/s2"
)

// Record provenance values.
const (
	SourceResultsFile = "results-file"
	SourceCache       = "cache"
)

// CoordinatePrecision is the number of decimal places kept for record
// coordinates.
const CoordinatePrecision = 4

// State distinguishes records that carry at least one location from those
// that do not.
type State int

const (
	StateIncomplete State = iota
	StateComplete
)

func (s State) String() string {
	if s == StateComplete {
		return "complete"
	}
	return "incomplete"
}

// LocationEntry is one geocoded location attached to a record.
type LocationEntry struct {
	LocationName string  `json:"location_name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
}

// Valid reports whether the entry has a name and in-range coordinates.
func (l LocationEntry) Valid() bool {
	return strings.TrimSpace(l.LocationName) != "" && ValidCoordinate(l.Latitude, l.Longitude)
}

// Record is a prediction-market question with its geocoded location(s).
// Question is the logical primary key.
type Record struct {
	Question     string          `json:"question"`
	Entity       *string         `json:"entity,omitempty"`
	Reasoning    *string         `json:"reasoning,omitempty"`
	LocationName *string         `json:"location_name"`
	Latitude     *float64        `json:"latitude"`
	Longitude    *float64        `json:"longitude"`
	Locations    []LocationEntry `json:"locations,omitempty"`
	Category     *string         `json:"category,omitempty"`
	Link         *string         `json:"link,omitempty"`
	Source       string          `json:"source,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// State reports whether r has a primary location name or a non-empty
// locations list.
func (r Record) State() State {
	if r.LocationName != nil || len(r.Locations) > 0 {
		return StateComplete
	}
	return StateIncomplete
}

// HasError reports whether r carries a non-empty error.
func (r Record) HasError() bool {
	return strings.TrimSpace(r.Error) != ""
}

// LocationNames returns the trimmed primary location name followed by every
// locations entry name, skipping blanks and repeats.
func (r Record) LocationNames() []string {
	names := make([]string, 0, 1+len(r.Locations))
	seen := make(map[string]struct{}, 1+len(r.Locations))
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if r.LocationName != nil {
		add(*r.LocationName)
	}
	for _, loc := range r.Locations {
		add(loc.LocationName)
	}
	return names
}

// Points returns every location of r that has valid coordinates: the primary
// location first, then each locations entry not already covered.
func (r Record) Points() []LocationEntry {
	points := make([]LocationEntry, 0, 1+len(r.Locations))
	seen := make(map[string]struct{})
	if r.LocationName != nil && r.Latitude != nil && r.Longitude != nil {
		primary := LocationEntry{LocationName: *r.LocationName, Latitude: *r.Latitude, Longitude: *r.Longitude}
		if primary.Valid() {
			points = append(points, primary)
			seen[strings.TrimSpace(primary.LocationName)] = struct{}{}
		}
	}
	for _, loc := range r.Locations {
		name := strings.TrimSpace(loc.LocationName)
		if _, dup := seen[name]; dup || !loc.Valid() {
			continue
		}
		seen[name] = struct{}{}
		points = append(points, loc)
	}
	return points
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	c.Entity = cloneString(r.Entity)
	c.Reasoning = cloneString(r.Reasoning)
	c.LocationName = cloneString(r.LocationName)
	c.Category = cloneString(r.Category)
	c.Link = cloneString(r.Link)
	c.Latitude = cloneFloat(r.Latitude)
	c.Longitude = cloneFloat(r.Longitude)
	if r.Locations != nil {
		c.Locations = append([]LocationEntry(nil), r.Locations...)
	}
	return c
}

// RoundCoordinates rounds every coordinate on r to CoordinatePrecision.
func (r *Record) RoundCoordinates() {
	if r.Latitude != nil {
		v := Round(*r.Latitude, CoordinatePrecision)
		r.Latitude = &v
	}
	if r.Longitude != nil {
		v := Round(*r.Longitude, CoordinatePrecision)
		r.Longitude = &v
	}
	for i := range r.Locations {
		r.Locations[i].Latitude = Round(r.Locations[i].Latitude, CoordinatePrecision)
		r.Locations[i].Longitude = Round(r.Locations[i].Longitude, CoordinatePrecision)
	}
}

// CacheEntry is a partial record from the question-keyed cache. It remembers
// which fields were present in the source document so a merge only copies
// fields the cache actually carries.
type CacheEntry struct {
	Record
	present map[string]struct{}
}

// NewCacheEntry builds a CacheEntry whose present fields are fields.
func NewCacheEntry(r Record, fields ...string) CacheEntry {
	present := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		present[f] = struct{}{}
	}
	return CacheEntry{Record: r, present: present}
}

// Has reports whether field was present in the cache document.
func (c CacheEntry) Has(field string) bool {
	_, ok := c.present[field]
	return ok
}

// UnmarshalJSON decodes the entry and records the set of keys it carried.
func (c *CacheEntry) UnmarshalJSON(data []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("decoding cache entry: %w", err)
	}
	var r Record
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&r); err != nil {
		return fmt.Errorf("decoding cache entry: %w", err)
	}
	c.Record = r
	c.present = make(map[string]struct{}, len(keys))
	for key := range keys {
		c.present[key] = struct{}{}
	}
	return nil
}

// ValidCoordinate reports whether lat/lng form a valid point on the sphere.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return s2.LatLngFromDegrees(lat, lng).IsValid()
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
