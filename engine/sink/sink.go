// Package sink mirrors accepted listing records to secondary stores. The
// CSV output stays the source of truth; sinks only see records it accepted.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/mmcloughlin/geohash"

	"github.com/rentscout/rentscout/engine/domain"
)

// GeohashPrecision gives cells of roughly 150m.
const GeohashPrecision = 7

// Event is one accepted record plus run metadata.
type Event struct {
	domain.ListingRecord
	RunID     string    `json:"run_id"`
	ScrapedAt time.Time `json:"scraped_at"`
	Geohash   string    `json:"geohash,omitempty"`
}

// NewEvent wraps rec. The geohash is set when both coordinates are known.
func NewEvent(runID string, at time.Time, rec domain.ListingRecord) Event {
	ev := Event{ListingRecord: rec, RunID: runID, ScrapedAt: at.UTC()}
	if rec.Lat != nil && rec.Lon != nil {
		ev.Geohash = geohash.EncodeWithPrecision(*rec.Lat, *rec.Lon, GeohashPrecision)
	}
	return ev
}

// Sink receives accepted records.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
	Close(ctx context.Context) error
}

// Multi fans out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
func (Nop) Close(context.Context) error       { return nil }

func triBool(t domain.TriState) *bool {
	v, known := t.Bool()
	if !known {
		return nil
	}
	return &v
}
