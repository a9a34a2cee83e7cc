package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/rentscout/rentscout/engine/domain"
	"github.com/rentscout/rentscout/pkg/fn"
)

// MaxFullText caps the stored detail text, in characters.
const MaxFullText = 5000

// contentSelector picks the elements whose text makes up the detail blob.
const contentSelector = "section, p, li, span, h1, h2"

var (
	furnishedRe   = regexp.MustCompile(`(?i)\b(furnished|fully[-\s]?furnished|unfurnished)\b`)
	unfurnishedRe = regexp.MustCompile(`(?i)\bunfurnished\b`)
	petsRe        = regexp.MustCompile(`(?i)\b(pets?\s*ok|pet[-\s]?friendly|cats?\s*ok|dogs?\s*ok|no\s*pets)\b`)
	noPetsRe      = regexp.MustCompile(`(?i)\bno\s*pets\b`)
	utilitiesRe   = regexp.MustCompile(`(?i)\b(utilities?\s*included|hydro\s*included|heat\s*included|internet\s*included|all[-\s]?inclusive)\b`)
	parkingRe     = regexp.MustCompile(`(?i)\b(parking|parking\s*included|street\s*parking|underground\s*parking|no\s*parking)\b`)
	noParkingRe   = regexp.MustCompile(`(?i)\bno\s*parking\b`)
	sqftRe        = regexp.MustCompile(`(?i)(\d{3,5})\s*(?:ft2|ft²|sqft|square\s*feet)`)
	bedsRe        = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:br|bd|bed)`)
	bathsRe       = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:ba|bath)`)
)

// Fetcher is the subset of fetch.Fetcher the detail extractor needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) fn.Result[string]
}

// DetailExtractor fetches and parses listing detail pages.
type DetailExtractor struct {
	fetcher Fetcher
	log     *slog.Logger
}

// NewDetailExtractor creates a DetailExtractor. A nil logger uses slog.Default.
func NewDetailExtractor(f Fetcher, log *slog.Logger) *DetailExtractor {
	if log == nil {
		log = slog.Default()
	}
	return &DetailExtractor{fetcher: f, log: log}
}

// Extract fetches url and parses it. An unavailable page yields the empty
// detail and no error; the error is only set when ctx is done.
func (d *DetailExtractor) Extract(ctx context.Context, url string) (domain.ListingDetail, error) {
	body, err := d.fetcher.Fetch(ctx, url).Unwrap()
	if err != nil {
		if ctx.Err() != nil {
			return domain.ListingDetail{}, ctx.Err()
		}
		d.log.Debug("detail unavailable", "url", url, "err", err)
		return domain.ListingDetail{}, nil
	}
	detail, err := ParseDetail(body)
	if err != nil {
		d.log.Debug("detail unparsable", "url", url, "err", err)
		return domain.ListingDetail{}, nil
	}
	return detail, nil
}

// ParseDetail builds the text blob of a detail page and applies the
// amenity and attribute heuristics to it.
func ParseDetail(body string) (domain.ListingDetail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return domain.ListingDetail{}, err
	}
	text := Blob(doc)
	detail := Classify(text)
	detail.FullText = Truncate(text, MaxFullText)
	if t := doc.Find("time[datetime]").First(); t.Length() > 0 {
		detail.PostDate, _ = t.Attr("datetime")
		detail.PostDate = strings.TrimSpace(detail.PostDate)
	}
	return detail, nil
}

// Blob joins the whitespace-normalized text of every content element with
// single spaces. Nested matches contribute their text once per match.
func Blob(doc *goquery.Document) string {
	var parts []string
	doc.Find(contentSelector).Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			if t := nodeText(n); t != "" {
				parts = append(parts, t)
			}
		}
	})
	return strings.Join(parts, " ")
}

// nodeText joins the trimmed text nodes under n with spaces.
func nodeText(n *html.Node) string {
	var words []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				words = append(words, t)
			}
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(words, " ")
}

// Classify applies the keyword and numeric heuristics to a text blob.
// Furnished and pets are only known when a related keyword appears;
// utilities has no negative phrase; parking is vetoed by "no parking".
func Classify(text string) domain.ListingDetail {
	d := domain.ListingDetail{Parsed: true}
	if furnishedRe.MatchString(text) {
		d.Furnished = domain.Of(!unfurnishedRe.MatchString(text))
	}
	if petsRe.MatchString(text) {
		d.PetsAllowed = domain.Of(!noPetsRe.MatchString(text))
	}
	d.UtilitiesIncluded = utilitiesRe.MatchString(text)
	d.ParkingAvailable = parkingRe.MatchString(text) && !noParkingRe.MatchString(text)

	if m := sqftRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			d.SqFt = &n
		}
	}
	d.Beds = firstFloat(bedsRe, text)
	d.Baths = firstFloat(bathsRe, text)
	return d
}

func firstFloat(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &f
}

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
