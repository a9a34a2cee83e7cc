// Package crawl drives a paginated search crawl: it walks the search pages
// in offset order, enriches candidates from their detail pages, filters
// them and hands survivors to the store and the mirrors.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rentscout/rentscout/engine/domain"
	"github.com/rentscout/rentscout/engine/extract"
	"github.com/rentscout/rentscout/engine/sink"
	"github.com/rentscout/rentscout/pkg/fn"
	"github.com/rentscout/rentscout/pkg/metrics"
)

// progressEvery is the row cadence of progress log lines.
const progressEvery = 25

// Fetcher fetches a page; an Err result means the page is unavailable.
type Fetcher interface {
	Fetch(ctx context.Context, url string) fn.Result[string]
}

// DetailSource extracts a detail page. It only errors when ctx is done.
type DetailSource interface {
	Extract(ctx context.Context, url string) (domain.ListingDetail, error)
}

// Store is the dedup-and-persist target. The driver is its only writer.
type Store interface {
	Seen(url string) bool
	Append(rec domain.ListingRecord) (bool, error)
	Flush() error
	SeenCount() int
}

// Stats are cumulative counts for a run.
type Stats struct {
	Pages       int
	PagesFailed int
	Candidates  int
	Written     int
	Skipped     map[SkipReason]int
	SinkErrors  int
}

func (s Stats) skippedTotal() int {
	n := 0
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// Options carries a driver's collaborators. Fetcher and Store are required.
type Options struct {
	Fetcher Fetcher
	// Details defaults to an extractor over Fetcher.
	Details DetailSource
	Store   Store
	// Sink receives records after the store accepted them. Nil disables mirroring.
	Sink    sink.Sink
	Logger  *slog.Logger
	Metrics *metrics.Registry
	RunID   string
	Now     func() time.Time
}

// Driver runs a crawl.
type Driver struct {
	cfg     Config
	pages   []string
	fetcher Fetcher
	details DetailSource
	store   Store
	sink    sink.Sink
	asm     *Assembler
	log     *slog.Logger
	reg     *metrics.Registry
	runID   string
	now     func() time.Time
}

// NewDriver validates cfg and wires the driver.
func NewDriver(cfg Config, opts Options) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Fetcher == nil || opts.Store == nil {
		return nil, errors.New("crawl: fetcher and store are required")
	}
	pages, err := PageURLs(cfg)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		cfg:     cfg,
		pages:   pages,
		fetcher: opts.Fetcher,
		details: opts.Details,
		store:   opts.Store,
		sink:    opts.Sink,
		log:     opts.Logger,
		reg:     opts.Metrics,
		runID:   opts.RunID,
		now:     opts.Now,
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.reg == nil {
		d.reg = metrics.New()
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.sink == nil {
		d.sink = sink.Nop{}
	}
	if d.details == nil {
		d.details = extract.NewDetailExtractor(opts.Fetcher, d.log)
	}
	d.asm = &Assembler{
		MinPrice: cfg.MinPrice,
		MaxPrice: cfg.MaxPrice,
		MaxAge:   cfg.MaxAge(),
		Seen:     opts.Store.Seen,
		Now:      d.now,
	}
	return d, nil
}

// PageURLs returns the pages the driver will visit, in order.
func (d *Driver) PageURLs() []string { return d.pages }

// Run visits every page in order. Unavailable pages and details, parse
// fallbacks and filter skips never stop the run. Run returns early only
// when ctx is done or the store fails to write; rows written up to that
// point have been flushed.
func (d *Driver) Run(ctx context.Context) (Stats, error) {
	stats := Stats{Skipped: map[SkipReason]int{}}
	d.reg.Gauge("rentscout_seen_urls", "URLs in the seen set.").Set(int64(d.store.SeenCount()))

	for i, pageURL := range d.pages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := d.runPage(ctx, i+1, pageURL, &stats); err != nil {
			if ferr := d.store.Flush(); ferr != nil {
				err = errors.Join(err, ferr)
			}
			return stats, err
		}
	}
	d.log.Info("crawl done",
		"pages", stats.Pages, "pages_failed", stats.PagesFailed,
		"rows", stats.Written, "skipped", stats.skippedTotal(),
		"skipped_price", stats.Skipped[SkipPrice], "skipped_duplicate", stats.Skipped[SkipDuplicate],
		"skipped_stale", stats.Skipped[SkipStale], "skipped_no_url", stats.Skipped[SkipNoURL],
		"sink_errors", stats.SinkErrors)
	return stats, nil
}

func (d *Driver) runPage(ctx context.Context, n int, pageURL string, stats *Stats) (err error) {
	ctx, span := otel.Tracer("rentscout/crawl").Start(ctx, "crawl.page")
	span.SetAttributes(attribute.Int("page", n), attribute.String("url", pageURL))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := d.now()
	log := d.log.With("page", n, "pages", len(d.pages))
	log.Info("page start", "url", pageURL)

	body, ferr := d.fetcher.Fetch(ctx, pageURL).Unwrap()
	if ferr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.PagesFailed++
		d.reg.Counter("rentscout_pages_total", "Search pages by outcome.", "status", "failed").Inc()
		log.Warn("page unavailable, skipping", "url", pageURL, "err", ferr)
		return nil
	}
	stats.Pages++
	d.reg.Counter("rentscout_pages_total", "Search pages by outcome.", "status", "ok").Inc()
	if n == 1 && d.cfg.DebugDump != "" {
		d.dump(body)
	}

	base, _ := url.Parse(pageURL)
	page, perr := extract.ParseSearchPage(body, base, d.cfg.DetailPattern)
	if perr != nil {
		log.Debug("page unparsable", "err", perr)
	}
	if !page.Structured {
		log.Debug("no structured data block")
	}
	log.Info("page parsed", "items", len(page.Listings), "anchors", page.Anchors)
	span.SetAttributes(attribute.Int("items", len(page.Listings)), attribute.Int("anchors", page.Anchors))

	rows, err := d.processListings(ctx, log, page.Listings, stats)
	if ferr := d.store.Flush(); ferr != nil {
		err = errors.Join(err, ferr)
	}
	if err != nil {
		return err
	}

	elapsed := d.now().Sub(start)
	d.reg.Histogram("rentscout_page_duration_seconds", "Wall time per search page.", metrics.DefaultBuckets).
		Observe(elapsed.Seconds())
	log.Info("page done", "rows", rows, "total", stats.Written, "elapsed", elapsed.Round(time.Millisecond))
	return nil
}

// candidate is a screened listing waiting for its detail page.
type candidate struct {
	summary domain.ListingSummary
	detail  domain.ListingDetail
	err     error
}

// processListings screens every listing, fetches details (in parallel when
// DetailWorkers > 1) and then merges, filters and persists strictly in
// extraction order.
func (d *Driver) processListings(ctx context.Context, log *slog.Logger, listings []domain.ListingSummary, stats *Stats) (int, error) {
	var cands []candidate
	for _, s := range listings {
		stats.Candidates++
		if reason := d.asm.Screen(s); reason != Keep {
			d.skip(stats, reason)
			continue
		}
		cands = append(cands, candidate{summary: s})
	}

	follow := !d.cfg.NoFollow
	if follow && d.cfg.DetailWorkers > 1 {
		cands = fn.ParMap(cands, d.cfg.DetailWorkers, func(_ int, c candidate) candidate {
			c.detail, c.err = d.details.Extract(ctx, c.summary.URL)
			return c
		})
	}

	rows := 0
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		if follow && d.cfg.DetailWorkers <= 1 {
			c.detail, c.err = d.details.Extract(ctx, c.summary.URL)
		}
		if c.err != nil {
			return rows, c.err
		}
		rec, reason := d.asm.Assemble(c.summary, c.detail)
		if reason != Keep {
			d.skip(stats, reason)
			continue
		}
		ok, err := d.store.Append(rec)
		if err != nil {
			return rows, fmt.Errorf("store: %w", err)
		}
		if !ok {
			d.skip(stats, SkipDuplicate)
			continue
		}
		rows++
		stats.Written++
		d.reg.Counter("rentscout_rows_written_total", "Rows appended to the output file.").Inc()
		d.reg.Gauge("rentscout_seen_urls", "URLs in the seen set.").Set(int64(d.store.SeenCount()))
		d.mirror(ctx, log, rec, stats)
		if stats.Written%progressEvery == 0 {
			log.Info("progress", "total", stats.Written)
		}
	}
	return rows, nil
}

func (d *Driver) skip(stats *Stats, reason SkipReason) {
	stats.Skipped[reason]++
	d.reg.Counter("rentscout_candidates_skipped_total", "Candidates not recorded, by reason.",
		"reason", string(reason)).Inc()
}

func (d *Driver) mirror(ctx context.Context, log *slog.Logger, rec domain.ListingRecord, stats *Stats) {
	if err := d.sink.Emit(ctx, sink.NewEvent(d.runID, d.now(), rec)); err != nil {
		stats.SinkErrors++
		d.reg.Counter("rentscout_sink_errors_total", "Mirror write failures.").Inc()
		log.Warn("mirror failed", "url", rec.URL, "err", err)
	}
}

func (d *Driver) dump(body string) {
	path := d.cfg.DebugDump
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		d.log.Warn("debug dump failed", "path", path, "err", err)
		return
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		d.log.Warn("debug dump failed", "path", path, "err", err)
		return
	}
	d.log.Debug("first page saved", "path", path)
}
