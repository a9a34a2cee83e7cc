package store

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// SeenSet is the set of URLs already persisted. It only grows.
type SeenSet struct {
	urls map[string]struct{}
}

// NewSeenSet returns an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{urls: make(map[string]struct{})}
}

func (s *SeenSet) Has(url string) bool {
	_, ok := s.urls[url]
	return ok
}

func (s *SeenSet) Add(url string) {
	if url != "" {
		s.urls[url] = struct{}{}
	}
}

func (s *SeenSet) Len() int { return len(s.urls) }

var bom = []byte{0xEF, 0xBB, 0xBF}

// ReadSeen streams an existing output file once and collects every
// non-empty url cell. A missing file yields an empty set. Malformed rows
// are skipped; a file without a url column contributes nothing. A torn
// final record contributes nothing either.
func ReadSeen(path string) (*SeenSet, error) {
	sc, err := scanFile(path)
	if err != nil {
		return nil, err
	}
	return sc.seen, nil
}

// scan is the result of one pass over an output file.
type scan struct {
	seen *SeenSet
	size int64
	// tail is the offset just past the last complete record. It is below
	// size when an interrupted run left a torn final record.
	tail int64
}

func scanFile(path string) (scan, error) {
	sc := scan{seen: NewSeenSet()}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return sc, nil
	}
	if err != nil {
		return sc, fmt.Errorf("read seen urls: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return sc, fmt.Errorf("read seen urls: %w", err)
	}
	sc.size, sc.tail = fi.Size(), fi.Size()
	if sc.size == 0 {
		return sc, nil
	}

	br := bufio.NewReader(f)
	var skip int64
	if first, _ := br.Peek(len(bom)); bytes.Equal(first, bom) {
		br.Discard(len(bom))
		skip = int64(len(bom))
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	// A record's url is only committed once the next record starts, so a
	// torn final record never reaches the set.
	var (
		idx     = -1
		header  = true
		start   int64
		pending string
	)
	for {
		begin := skip + r.InputOffset()
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		sc.seen.Add(pending)
		pending, start = "", begin
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			continue
		}
		if err != nil {
			return sc, fmt.Errorf("read seen urls: %w", err)
		}
		if header {
			header = false
			idx = urlColumn(row)
			continue
		}
		if idx >= 0 && len(row) > idx {
			pending = strings.TrimSpace(row[idx])
		}
	}

	torn, err := tornRecord(f, start, sc.size)
	if err != nil {
		return sc, fmt.Errorf("read seen urls: %w", err)
	}
	if !torn {
		sc.seen.Add(pending)
		return sc, nil
	}
	sc.tail = start
	if sc.tail <= skip {
		sc.tail = 0
	}
	return sc, nil
}

func urlColumn(header []string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == "url" {
			return i
		}
	}
	return -1
}

// tornRecord reports whether the record in [start, size) was cut short:
// it lacks its line terminator or stops inside a quoted cell.
func tornRecord(f *os.File, start, size int64) (bool, error) {
	buf := make([]byte, size-start)
	if _, err := f.ReadAt(buf, start); err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	if len(buf) == 0 {
		return false, nil
	}
	return buf[len(buf)-1] != '\n' || bytes.Count(buf, []byte{'"'})%2 == 1, nil
}
