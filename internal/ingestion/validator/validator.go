// Package validator checks geocoded records for structural problems: blank
// questions, out-of-range coordinates and location entries without a name.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion"
)

const maxQuestionLength = 4096

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateRecord returns a ValidationError describing every problem found on
// r, or nil.
func ValidateRecord(r *ingestion.Record) error {
	errs := make(map[string]string)

	question := strings.TrimSpace(r.Question)
	if question == "" {
		errs["question"] = "question is required"
	} else if len(question) > maxQuestionLength {
		errs["question"] = fmt.Sprintf("question must be at most %d characters", maxQuestionLength)
	}

	if (r.Latitude == nil) != (r.Longitude == nil) {
		errs["coordinates"] = "latitude and longitude must both be set or both be null"
	} else if r.Latitude != nil && !ingestion.ValidCoordinate(*r.Latitude, *r.Longitude) {
		errs["coordinates"] = "coordinates out of range"
	}

	for i, loc := range r.Locations {
		key := fmt.Sprintf("locations[%d]", i)
		if strings.TrimSpace(loc.LocationName) == "" {
			errs[key] = "location_name is required"
		} else if !ingestion.ValidCoordinate(loc.Latitude, loc.Longitude) {
			errs[key] = "coordinates out of range"
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
