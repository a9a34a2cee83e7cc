package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rentscout/rentscout/engine/domain"
	"github.com/rentscout/rentscout/pkg/logging"
	"github.com/rentscout/rentscout/pkg/metrics"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestFetcher(srv *httptest.Server, sl *recordingSleeper, reg *metrics.Registry) *Fetcher {
	return New(Config{
		Attempts: 3,
		Backoff:  time.Second,
		Client:   srv.Client(),
		Sleep:    sl.sleep,
		Metrics:  reg,
		Logger:   logging.Discard(),
	})
}

func TestFetchSuccessOnThirdAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			// 200 with an empty body is still a failure
		default:
			w.Write([]byte("<html>ok</html>"))
		}
	}))
	defer srv.Close()

	sl := &recordingSleeper{}
	reg := metrics.New()
	res := newTestFetcher(srv, sl, reg).Fetch(context.Background(), srv.URL)
	body, err := res.Unwrap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "<html>ok</html>" {
		t.Fatalf("expected body, got %q", body)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	if len(sl.waits) != 2 || sl.waits[0] != time.Second || sl.waits[1] != 2*time.Second {
		t.Fatalf("expected waits [1s 2s], got %v", sl.waits)
	}
	out := reg.Render()
	for _, want := range []string{`outcome="status"`, `outcome="empty"`, `outcome="ok"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in metrics, got:\n%s", want, out)
		}
	}
}

func TestFetchExhaustedIsUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sl := &recordingSleeper{}
	res := newTestFetcher(srv, sl, nil).Fetch(context.Background(), srv.URL)
	if res.IsOk() {
		t.Fatal("expected failure")
	}
	_, err := res.Unwrap()
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected wrapped 404, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	if len(sl.waits) != 2 {
		t.Fatalf("expected no wait after the last attempt, got %v", sl.waits)
	}
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	var ua, lang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		lang = r.Header.Get("Accept-Language")
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	res := newTestFetcher(srv, &recordingSleeper{}, nil).Fetch(context.Background(), srv.URL)
	if !res.IsOk() {
		t.Fatal("expected success")
	}
	if ua != DefaultUserAgent {
		t.Errorf("expected browser user agent, got %q", ua)
	}
	if lang != DefaultAcceptLanguage {
		t.Errorf("expected %q, got %q", DefaultAcceptLanguage, lang)
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	body, err := newTestFetcher(srv, &recordingSleeper{}, nil).Fetch(context.Background(), srv.URL+"/old").Unwrap()
	if err != nil || body != "moved" {
		t.Fatalf("expected redirected body, got %q (%v)", body, err)
	}
}

func TestFetchTransportErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	sl := &recordingSleeper{}
	res := newTestFetcher(srv, sl, nil).Fetch(context.Background(), url)
	if res.IsOk() {
		t.Fatal("expected failure against a closed server")
	}
	if len(sl.waits) != 2 {
		t.Fatalf("expected 2 waits, got %v", sl.waits)
	}
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher(srv, &recordingSleeper{}, nil).Fetch(ctx, srv.URL).Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	f := New(Config{})
	if f.cfg.Attempts != DefaultAttempts || f.cfg.Timeout != DefaultTimeout {
		t.Fatalf("expected defaults, got %+v", f.cfg)
	}
	if f.client.Timeout != DefaultTimeout {
		t.Fatalf("expected client timeout %v, got %v", DefaultTimeout, f.client.Timeout)
	}
}
