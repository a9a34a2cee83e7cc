package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createListings = `
CREATE TABLE IF NOT EXISTS rental_listings (
	url                TEXT PRIMARY KEY,
	title              TEXT NOT NULL,
	price              INTEGER,
	beds               DOUBLE PRECISION,
	baths              DOUBLE PRECISION,
	sqft               INTEGER,
	furnished          BOOLEAN,
	pets_allowed       BOOLEAN,
	utilities_included BOOLEAN,
	parking_available  BOOLEAN,
	city               TEXT,
	lat                DOUBLE PRECISION,
	lon                DOUBLE PRECISION,
	geohash            TEXT,
	post_date          TEXT,
	full_text          TEXT,
	run_id             TEXT NOT NULL,
	scraped_at         TIMESTAMPTZ NOT NULL
)`

const insertListing = `
INSERT INTO rental_listings (
	url, title, price, beds, baths, sqft,
	furnished, pets_allowed, utilities_included, parking_available,
	city, lat, lon, geohash, post_date, full_text, run_id, scraped_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (url) DO NOTHING`

// execer is the part of pgxpool.Pool the mirror uses.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres mirrors events into the rental_listings table. Rows are never
// updated once written.
type Postgres struct {
	db    execer
	close func()
}

// OpenPostgres connects to dsn and creates the table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	p, err := newPostgres(ctx, pool, pool.Close)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func newPostgres(ctx context.Context, db execer, closeFn func()) (*Postgres, error) {
	if _, err := db.Exec(ctx, createListings); err != nil {
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &Postgres{db: db, close: closeFn}, nil
}

func (p *Postgres) Emit(ctx context.Context, ev Event) error {
	var geo *string
	if ev.Geohash != "" {
		geo = &ev.Geohash
	}
	_, err := p.db.Exec(ctx, insertListing,
		ev.URL, ev.Title, ev.Price, ev.Beds, ev.Baths, ev.SqFt,
		triBool(ev.Furnished), triBool(ev.PetsAllowed),
		triBool(ev.UtilitiesIncluded), triBool(ev.ParkingAvailable),
		nullString(ev.City), ev.Lat, ev.Lon, geo,
		nullString(ev.PostDate), nullString(ev.FullText),
		ev.RunID, ev.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres insert %s: %w", ev.URL, err)
	}
	return nil
}

func (p *Postgres) Close(context.Context) error {
	if p.close != nil {
		p.close()
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
