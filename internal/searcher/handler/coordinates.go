package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion"
)

// CoordinateRow is one plottable location of a record.
type CoordinateRow struct {
	Question     string  `json:"question"`
	LocationName string  `json:"location_name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Geohash      string  `json:"geohash"`
	Category     *string `json:"category"`
	Link         *string `json:"link"`
}

type coordinatesResponse struct {
	Count       int             `json:"count"`
	Coordinates []CoordinateRow `json:"coordinates"`
}

// Coordinates lists every valid coordinate of every record, or a GeoJSON
// FeatureCollection when format=geojson.
func (h *Handler) Coordinates(w http.ResponseWriter, r *http.Request) {
	rows := CoordinateRows(h.engine.Index().Records())

	switch format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); format {
	case "", "json":
		h.writeJSON(w, http.StatusOK, coordinatesResponse{Count: len(rows), Coordinates: rows})
	case "geojson":
		body, err := json.Marshal(FeatureCollection(rows))
		if err != nil {
			h.logger.Error("failed to encode geojson", "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to encode geojson")
			return
		}
		h.writeBody(w, http.StatusOK, "application/geo+json", body)
	default:
		h.writeError(w, http.StatusUnprocessableEntity, "format must be json or geojson")
	}
}

// CoordinateRows flattens the records' valid points in record order.
func CoordinateRows(records []ingestion.Record) []CoordinateRow {
	rows := make([]CoordinateRow, 0, len(records))
	for _, rec := range records {
		question := strings.TrimSpace(rec.Question)
		if question == "" {
			continue
		}
		for _, p := range rec.Points() {
			rows = append(rows, CoordinateRow{
				Question:     question,
				LocationName: strings.TrimSpace(p.LocationName),
				Latitude:     p.Latitude,
				Longitude:    p.Longitude,
				Geohash:      geohash.Encode(p.Latitude, p.Longitude),
				Category:     rec.Category,
				Link:         rec.Link,
			})
		}
	}
	return rows
}

// FeatureCollection converts coordinate rows to GeoJSON point features.
func FeatureCollection(rows []CoordinateRow) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, row := range rows {
		f := geojson.NewFeature(orb.Point{row.Longitude, row.Latitude})
		f.Properties["question"] = row.Question
		f.Properties["location_name"] = row.LocationName
		f.Properties["geohash"] = row.Geohash
		if row.Category != nil {
			f.Properties["category"] = *row.Category
		}
		if row.Link != nil {
			f.Properties["link"] = *row.Link
		}
		fc.Append(f)
	}
	return fc
}
