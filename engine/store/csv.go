// Package store persists listing records to an append-only CSV file that
// doubles as the cross-run dedup index.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rentscout/rentscout/engine/domain"
)

// DefaultFlushEvery is the row cadence at which buffered rows reach disk.
const DefaultFlushEvery = 25

// ErrNoURL is returned when a record without a URL is appended.
var ErrNoURL = errors.New("record has no url")

// CSVStore appends records in domain.Columns order. It is not safe for
// concurrent use; one writer owns it for the duration of a run.
type CSVStore struct {
	path       string
	f          *os.File
	w          *csv.Writer
	seen       *SeenSet
	flushEvery int
	written    int
	dropped    int64
}

// Open prepares path for appending: parent directories are created, the
// seen set is rebuilt from existing rows, a torn final record left by an
// interrupted run is cut off and a header is written when the file is
// missing or empty.
func Open(path string) (*CSVStore, error) {
	if path == "" {
		return nil, fmt.Errorf("open store: %w", os.ErrInvalid)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	sc, err := scanFile(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if sc.tail < sc.size {
		if err := os.Truncate(path, sc.tail); err != nil {
			return nil, fmt.Errorf("open store: drop torn record: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &CSVStore{
		path:       path,
		f:          f,
		w:          csv.NewWriter(f),
		seen:       sc.seen,
		flushEvery: DefaultFlushEvery,
		dropped:    sc.size - sc.tail,
	}
	if err := s.writeHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func (s *CSVStore) writeHeader() error {
	fi, err := s.f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() > 0 {
		return nil
	}
	if err := s.w.Write(domain.Columns); err != nil {
		return err
	}
	return s.Flush()
}

// Seen reports whether url is already persisted.
func (s *CSVStore) Seen(url string) bool { return s.seen.Has(url) }

// SeenCount is the size of the seen set.
func (s *CSVStore) SeenCount() int { return s.seen.Len() }

// Written is the number of rows appended by this store.
func (s *CSVStore) Written() int { return s.written }

// Dropped is the size in bytes of the torn final record Open cut off.
func (s *CSVStore) Dropped() int64 { return s.dropped }

// Append writes rec unless its URL was seen before, reporting whether a
// row was written. The URL joins the seen set immediately.
func (s *CSVStore) Append(rec domain.ListingRecord) (bool, error) {
	if rec.URL == "" {
		return false, ErrNoURL
	}
	if s.seen.Has(rec.URL) {
		return false, nil
	}
	if err := s.w.Write(rec.Row()); err != nil {
		return false, fmt.Errorf("append %s: %w", rec.URL, err)
	}
	s.seen.Add(rec.URL)
	s.written++
	if s.flushEvery > 0 && s.written%s.flushEvery == 0 {
		if err := s.Flush(); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Flush pushes buffered rows to the file and syncs it.
func (s *CSVStore) Flush() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *CSVStore) Close() error {
	ferr := s.Flush()
	cerr := s.f.Close()
	return errors.Join(ferr, cerr)
}
