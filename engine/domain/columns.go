package domain

import "strconv"

// Columns is the fixed output column order. Downstream consumers rely on it.
var Columns = []string{
	"title", "price", "beds", "baths", "sqft",
	"furnished", "pets_allowed", "utilities_included", "parking_available",
	"city", "lat", "lon", "post_date", "url", "full_text",
}

// URLColumn is the index of "url" in Columns.
const URLColumn = 13

// Row renders the record in Columns order; absent values are empty cells.
func (r ListingRecord) Row() []string {
	return []string{
		r.Title,
		formatInt(r.Price),
		formatFloat(r.Beds),
		formatFloat(r.Baths),
		formatInt(r.SqFt),
		r.Furnished.Cell(),
		r.PetsAllowed.Cell(),
		r.UtilitiesIncluded.Cell(),
		r.ParkingAvailable.Cell(),
		r.City,
		formatFloat(r.Lat),
		formatFloat(r.Lon),
		r.PostDate,
		r.URL,
		r.FullText,
	}
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
