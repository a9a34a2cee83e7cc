// Package extract turns fetched HTML into listing data: summaries and
// detail links from search pages, amenities and attributes from detail
// pages.
package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rentscout/rentscout/engine/domain"
)

// DefaultDetailPattern is the href substring that marks a detail page.
const DefaultDetailPattern = "/apa/"

var priceRe = regexp.MustCompile(`\$\s*([0-9][0-9,]*)`)

// SearchPage is the result of parsing one search page.
type SearchPage struct {
	// Listings are the structured entries paired with anchors by position.
	Listings []domain.ListingSummary
	// Anchors is the number of detail links found.
	Anchors int
	// Structured is false when no structured-data block parsed.
	Structured bool
}

// ParseSearchPage parses a search page. base resolves relative anchors.
// A page without a structured block yields no listings and no error; the
// error is reserved for HTML that cannot be read at all.
func ParseSearchPage(body string, base *url.URL, pattern string) (SearchPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return SearchPage{}, err
	}
	summaries, serr := ParseStructuredBlock(doc)
	anchors := ParseAnchors(doc, base, pattern)
	listings := Pair(summaries, anchors)
	for i := range listings {
		if listings[i].Price == nil {
			listings[i].Price = PriceFromTitle(listings[i].Title)
		}
	}
	return SearchPage{
		Listings:   listings,
		Anchors:    len(anchors),
		Structured: serr == nil,
	}, nil
}

// ParseAnchors returns, in document order, the absolute targets of links
// whose href contains pattern.
func ParseAnchors(doc *goquery.Document, base *url.URL, pattern string) []string {
	if pattern == "" {
		pattern = DefaultDetailPattern
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || !strings.Contains(href, pattern) {
			return
		}
		out = append(out, resolve(base, href))
	})
	return out
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// Pair attaches the i-th anchor to the i-th summary. Summaries beyond the
// last anchor keep an empty URL; surplus anchors are dropped. Pairing is
// purely positional and silently mismatches if the two sources disagree on
// order.
func Pair(summaries []domain.ListingSummary, anchors []string) []domain.ListingSummary {
	out := make([]domain.ListingSummary, len(summaries))
	copy(out, summaries)
	for i := range out {
		if i < len(anchors) {
			out[i].URL = anchors[i]
		} else {
			out[i].URL = ""
		}
	}
	return out
}

// PriceFromTitle returns the first dollar amount in title, or nil.
func PriceFromTitle(title string) *int {
	m := priceRe.FindStringSubmatch(title)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return nil
	}
	return &n
}
