package extract

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rentscout/rentscout/engine/domain"
)

// PreferredBlockID identifies the search-results block on the upstream site.
const PreferredBlockID = "ld_searchpage_results"

type itemList struct {
	ItemListElement []json.RawMessage `json:"itemListElement"`
}

type listElement struct {
	Item *ldItem `json:"item"`
}

type ldItem struct {
	Name      string     `json:"name"`
	Latitude  flexNumber `json:"latitude"`
	Longitude flexNumber `json:"longitude"`
	Bedrooms  flexNumber `json:"numberOfBedrooms"`
	Bathrooms flexNumber `json:"numberOfBathroomsTotal"`
	Address   *struct {
		Locality string `json:"addressLocality"`
	} `json:"address"`
	Offers *struct {
		Price flexNumber `json:"price"`
	} `json:"offers"`
}

// flexNumber accepts a JSON number or a numeric string. Anything else
// decodes as absent instead of failing the whole block.
type flexNumber struct {
	v *float64
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	n.v = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		n.v = &f
	}
	return nil
}

// blockCandidates returns the structured blocks worth trying, preferred
// block first.
func blockCandidates(doc *goquery.Document) []string {
	var out []string
	if s := strings.TrimSpace(doc.Find("script#" + PreferredBlockID).First().Text()); s != "" {
		out = append(out, s)
	}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		if id, _ := sel.Attr("id"); id == PreferredBlockID {
			return
		}
		if s := strings.TrimSpace(sel.Text()); s != "" {
			out = append(out, s)
		}
	})
	return out
}

// ParseStructuredBlock finds the page's item list and converts each entry
// into a summary, in list order. Entries without an item still produce an
// (empty) summary so positions stay aligned with the anchors. It returns
// domain.ErrNoStructuredData when no block parses to an object carrying
// an item list.
func ParseStructuredBlock(doc *goquery.Document) ([]domain.ListingSummary, error) {
	for _, raw := range blockCandidates(doc) {
		var top map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &top); err != nil {
			continue
		}
		if _, ok := top["itemListElement"]; !ok {
			continue
		}
		var list itemList
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			continue
		}
		out := make([]domain.ListingSummary, 0, len(list.ItemListElement))
		for _, el := range list.ItemListElement {
			out = append(out, summaryFromElement(el))
		}
		return out, nil
	}
	return nil, domain.ErrNoStructuredData
}

func summaryFromElement(raw json.RawMessage) domain.ListingSummary {
	var el listElement
	if err := json.Unmarshal(raw, &el); err != nil || el.Item == nil {
		return domain.ListingSummary{}
	}
	it := el.Item
	s := domain.ListingSummary{
		Title: strings.TrimSpace(it.Name),
		Beds:  it.Bedrooms.v,
		Baths: it.Bathrooms.v,
		Lat:   it.Latitude.v,
		Lon:   it.Longitude.v,
	}
	if it.Address != nil {
		s.City = strings.TrimSpace(it.Address.Locality)
	}
	if it.Offers != nil && it.Offers.Price.v != nil {
		p := int(math.Round(*it.Offers.Price.v))
		s.Price = &p
	}
	return s
}
