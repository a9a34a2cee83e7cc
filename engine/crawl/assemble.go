package crawl

import (
	"time"

	"github.com/rentscout/rentscout/engine/domain"
)

// SkipReason says why a candidate was not recorded. Skips are not errors.
type SkipReason string

const (
	Keep          SkipReason = ""
	SkipPrice     SkipReason = "price"
	SkipNoURL     SkipReason = "no_url"
	SkipDuplicate SkipReason = "duplicate"
	SkipStale     SkipReason = "stale"
)

// Assembler merges search and detail data and decides emit or skip.
type Assembler struct {
	MinPrice int
	MaxPrice int
	// MaxAge of zero disables the recency filter.
	MaxAge time.Duration
	Seen   func(url string) bool
	Now    func() time.Time
}

// Screen applies the filters that need no detail page: the price band
// (unknown prices pass), a URL to key on and the seen set.
func (a *Assembler) Screen(s domain.ListingSummary) SkipReason {
	if s.Price != nil && (*s.Price < a.MinPrice || *s.Price > a.MaxPrice) {
		return SkipPrice
	}
	if s.URL == "" {
		return SkipNoURL
	}
	if a.Seen != nil && a.Seen(s.URL) {
		return SkipDuplicate
	}
	return Keep
}

// Assemble merges d into s and applies the recency filter. Only a parsed
// detail page can make a candidate stale; unparsable dates pass.
func (a *Assembler) Assemble(s domain.ListingSummary, d domain.ListingDetail) (domain.ListingRecord, SkipReason) {
	rec := domain.Merge(s, d)
	if !d.Parsed || a.MaxAge <= 0 {
		return rec, Keep
	}
	posted, ok := rec.PostedAt()
	if !ok {
		return rec, Keep
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	if now().Sub(posted) > a.MaxAge {
		return rec, SkipStale
	}
	return rec, Keep
}
