package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/rentscout/rentscout/engine/domain"
)

func mustDoc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}

// searchHTML renders a page with n structured entries and m detail anchors.
func searchHTML(n, m int) string {
	var items []string
	for i := 0; i < n; i++ {
		items = append(items, fmt.Sprintf(
			`{"@type":"ListItem","position":"%d","item":{"@type":"Apartment","name":"Listing %d $1,%d00","numberOfBedrooms":"%d","numberOfBathroomsTotal":1,"latitude":49.2%d,"longitude":-123.1,"address":{"addressLocality":"Vancouver"}}}`,
			i, i, i+1, i+1, i))
	}
	var anchors []string
	for i := 0; i < m; i++ {
		anchors = append(anchors, fmt.Sprintf(`<li><a href="/van/apa/d/listing-%d/%d.html">listing %d</a></li>`, i, 7000+i, i))
	}
	return `<html><head><script type="application/ld+json" id="ld_searchpage_results">{"@type":"ItemList","itemListElement":[` +
		strings.Join(items, ",") + `]}</script></head><body><ol>` + strings.Join(anchors, "") +
		`<li><a href="/about/help">help</a></li></ol></body></html>`
}

func TestParseSearchPagePairsByPosition(t *testing.T) {
	base := mustURL(t, "https://vancouver.craigslist.org/search/apa?min_price=600&max_price=3000&s=0")
	page, err := ParseSearchPage(searchHTML(5, 3), base, "/apa/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Listings) != 5 {
		t.Fatalf("expected 5 listings, got %d", len(page.Listings))
	}
	if page.Anchors != 3 || !page.Structured {
		t.Fatalf("expected 3 anchors and a structured block, got %+v", page)
	}
	for i, l := range page.Listings {
		if l.Title != fmt.Sprintf("Listing %d $1,%d00", i, i+1) {
			t.Errorf("listing %d out of order: %q", i, l.Title)
		}
		if i < 3 {
			want := fmt.Sprintf("https://vancouver.craigslist.org/van/apa/d/listing-%d/%d.html", i, 7000+i)
			if l.URL != want {
				t.Errorf("listing %d: expected %s, got %s", i, want, l.URL)
			}
		} else if l.URL != "" {
			t.Errorf("listing %d: expected no url, got %s", i, l.URL)
		}
	}
	first := page.Listings[0]
	if first.Price == nil || *first.Price != 1100 {
		t.Errorf("expected title price 1100, got %v", first.Price)
	}
	if first.Beds == nil || *first.Beds != 1 {
		t.Errorf("expected beds from numeric string, got %v", first.Beds)
	}
	if first.City != "Vancouver" || first.Lat == nil || first.Lon == nil {
		t.Errorf("expected city and coordinates, got %+v", first)
	}
}

func TestParseSearchPageWithoutBlock(t *testing.T) {
	page, err := ParseSearchPage(`<html><body><a href="/apa/1.html">x</a></body></html>`, nil, "/apa/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Listings) != 0 || page.Structured {
		t.Fatalf("expected no listings, got %+v", page)
	}
	if page.Anchors != 1 {
		t.Fatalf("expected 1 anchor, got %d", page.Anchors)
	}
}

func TestParseStructuredBlockFallback(t *testing.T) {
	body := `<html><head>
<script type="application/ld+json">{"@type":"Organization","name":"x"}</script>
<script type="application/ld+json">not json</script>
<script type="application/ld+json">{"itemListElement":[{"item":{"name":"Fallback","offers":{"price":"1850"}}},{"position":1}]}</script>
<script type="application/ld+json">{"itemListElement":[{"item":{"name":"Too late"}}]}</script>
</head></html>`
	got, err := ParseStructuredBlock(mustDoc(t, body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Title != "Fallback" || got[0].Price == nil || *got[0].Price != 1850 {
		t.Fatalf("expected fallback entry with offer price, got %+v", got[0])
	}
	if got[1].Title != "" {
		t.Fatalf("expected empty placeholder for itemless entry, got %+v", got[1])
	}
}

func TestParseStructuredBlockRoundsOfferPrice(t *testing.T) {
	body := `<script id="ld_searchpage_results" type="application/ld+json">{"itemListElement":[
{"item":{"name":"up","offers":{"price":2500.9}}},
{"item":{"name":"down","offers":{"price":"1999.4"}}}]}</script>`
	got, err := ParseStructuredBlock(mustDoc(t, body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Price == nil || *got[0].Price != 2501 {
		t.Fatalf("expected 2500.9 rounded to 2501, got %v", got[0].Price)
	}
	if got[1].Price == nil || *got[1].Price != 1999 {
		t.Fatalf("expected 1999.4 rounded to 1999, got %v", got[1].Price)
	}
}

func TestParseStructuredBlockMalformedPreferred(t *testing.T) {
	body := `<script id="ld_searchpage_results" type="application/ld+json">{broken</script>
<script type="application/ld+json">{"itemListElement":[{"item":{"name":"A"}}]}</script>`
	got, err := ParseStructuredBlock(mustDoc(t, body))
	if err != nil || len(got) != 1 || got[0].Title != "A" {
		t.Fatalf("expected fallback after malformed preferred block, got %v %v", got, err)
	}
}

func TestParseStructuredBlockMissing(t *testing.T) {
	_, err := ParseStructuredBlock(mustDoc(t, `<html><body>nothing</body></html>`))
	if !errors.Is(err, domain.ErrNoStructuredData) {
		t.Fatalf("expected ErrNoStructuredData, got %v", err)
	}
}

func TestFlexNumberIgnoresJunk(t *testing.T) {
	body := `<script id="ld_searchpage_results">{"itemListElement":[{"item":{"name":"x","numberOfBedrooms":"studio","numberOfBathroomsTotal":{"v":1},"latitude":null}}]}</script>`
	got, err := ParseStructuredBlock(mustDoc(t, body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Beds != nil || got[0].Baths != nil || got[0].Lat != nil {
		t.Fatalf("expected absent numbers, got %+v", got[0])
	}
}

func TestParseAnchorsResolvesAndFilters(t *testing.T) {
	doc := mustDoc(t, `<a href="https://other.example/apa/9.html">abs</a>
<a href="/search/hhh">no</a><a href="d/apa/2.html">rel</a><a>none</a>`)
	got := ParseAnchors(doc, mustURL(t, "https://vancouver.craigslist.org/search/apa"), "/apa/")
	want := []string{"https://other.example/apa/9.html", "https://vancouver.craigslist.org/search/d/apa/2.html"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("anchor %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestPairSurplusAnchorsDropped(t *testing.T) {
	got := Pair([]domain.ListingSummary{{Title: "a"}}, []string{"u1", "u2"})
	if len(got) != 1 || got[0].URL != "u1" {
		t.Fatalf("expected one paired listing, got %+v", got)
	}
}

func TestPriceFromTitle(t *testing.T) {
	cases := map[string]int{
		"$1,850 / 1br - cozy":   1850,
		"Suite for $ 2400":      2400,
		"$900 or $1000 deposit": 900,
	}
	for in, want := range cases {
		got := PriceFromTitle(in)
		if got == nil || *got != want {
			t.Errorf("PriceFromTitle(%q): expected %d, got %v", in, want, got)
		}
	}
	for _, in := range []string{"", "no price here", "$ abc"} {
		if got := PriceFromTitle(in); got != nil {
			t.Errorf("PriceFromTitle(%q): expected nil, got %d", in, *got)
		}
	}
}
