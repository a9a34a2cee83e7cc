// Package domain defines the listing types that flow through the crawl
// pipeline: summaries parsed from search pages, details parsed from listing
// pages and the merged records persisted to the output file.
package domain

import (
	"strings"
	"time"
)

// ListingSummary is one entry of a search page's structured-data block,
// paired with the detail URL found at the same position in the page.
type ListingSummary struct {
	Title string
	Price *int
	Beds  *float64
	Baths *float64
	Lat   *float64
	Lon   *float64
	City  string
	// URL is empty when the page had fewer detail anchors than entries.
	URL string
}

// ListingDetail holds what the heuristics recovered from a detail page.
// The zero value is the empty detail returned when the page was unavailable.
type ListingDetail struct {
	Parsed            bool
	FullText          string
	Furnished         TriState
	PetsAllowed       TriState
	UtilitiesIncluded bool
	ParkingAvailable  bool
	SqFt              *int
	Beds              *float64
	Baths             *float64
	// PostDate is the raw machine-readable timestamp, usually ISO-8601.
	PostDate string
}

// ListingRecord is the unit of output. URL is its natural key.
type ListingRecord struct {
	Title             string   `json:"title"`
	Price             *int     `json:"price"`
	Beds              *float64 `json:"beds"`
	Baths             *float64 `json:"baths"`
	SqFt              *int     `json:"sqft"`
	Furnished         TriState `json:"furnished"`
	PetsAllowed       TriState `json:"pets_allowed"`
	UtilitiesIncluded TriState `json:"utilities_included"`
	ParkingAvailable  TriState `json:"parking_available"`
	City              string   `json:"city,omitempty"`
	Lat               *float64 `json:"lat"`
	Lon               *float64 `json:"lon"`
	PostDate          string   `json:"post_date,omitempty"`
	URL               string   `json:"url"`
	FullText          string   `json:"full_text,omitempty"`
}

// NewRecord starts a record from summary data alone.
func NewRecord(s ListingSummary) ListingRecord {
	return ListingRecord{
		Title: s.Title,
		Price: s.Price,
		Beds:  s.Beds,
		Baths: s.Baths,
		Lat:   s.Lat,
		Lon:   s.Lon,
		City:  s.City,
		URL:   s.URL,
	}
}

// Merge overlays detail-page data on a summary. Beds and baths from the
// detail page only fill gaps; square footage always takes the detail value
// when one was found. An unparsed detail leaves the summary data untouched.
func Merge(s ListingSummary, d ListingDetail) ListingRecord {
	rec := NewRecord(s)
	if !d.Parsed {
		return rec
	}
	rec.FullText = d.FullText
	rec.Furnished = d.Furnished
	rec.PetsAllowed = d.PetsAllowed
	rec.UtilitiesIncluded = Of(d.UtilitiesIncluded)
	rec.ParkingAvailable = Of(d.ParkingAvailable)
	rec.PostDate = d.PostDate
	if rec.Beds == nil && d.Beds != nil {
		rec.Beds = d.Beds
	}
	if rec.Baths == nil && d.Baths != nil {
		rec.Baths = d.Baths
	}
	if d.SqFt != nil {
		rec.SqFt = d.SqFt
	}
	return rec
}

var postDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// PostedAt parses PostDate. Timestamps without a zone are read as UTC.
func (r ListingRecord) PostedAt() (time.Time, bool) {
	return ParsePostDate(r.PostDate)
}

// ParsePostDate parses an ISO-8601 posting timestamp.
func ParsePostDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range postDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
