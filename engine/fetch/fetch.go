// Package fetch performs polite HTTP GETs with bounded, linearly spaced
// retries. A fetch either yields a non-empty body or reports the page as
// unavailable; callers are expected to carry on without it.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rentscout/rentscout/engine/domain"
	"github.com/rentscout/rentscout/pkg/fn"
	"github.com/rentscout/rentscout/pkg/metrics"
	"github.com/rentscout/rentscout/pkg/resilience"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultTimeout        = 25 * time.Second
	DefaultAttempts       = 3
	DefaultBackoff        = 1200 * time.Millisecond
)

// maxBody bounds how much of a response is read.
const maxBody = 16 << 20

// Config holds fetcher settings. Zero values fall back to the defaults.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	// Attempts is the retry cap, including the first try.
	Attempts int
	// Backoff is the linear unit: the wait after failed attempt n is n*Backoff.
	Backoff time.Duration
	// Pacer spaces successive fetches. Nil means no spacing.
	Pacer *resilience.Pacer
	// Client overrides the HTTP client; tests point it at httptest servers.
	Client *http.Client
	// Sleep replaces the retry wait in tests.
	Sleep   func(context.Context, time.Duration) error
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Fetcher fetches pages.
type Fetcher struct {
	cfg    Config
	client *http.Client
	retry  fn.RetryOpts
	log    *slog.Logger
	reg    *metrics.Registry
}

// New creates a Fetcher. The default client traces every request through
// otelhttp.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		cfg:    cfg,
		client: client,
		retry: fn.RetryOpts{
			MaxAttempts: cfg.Attempts,
			Backoff:     fn.Linear(cfg.Backoff),
			Sleep:       cfg.Sleep,
		},
		log: log,
		reg: cfg.Metrics,
	}
}

// Fetch GETs url. An attempt succeeds only when the transport completes,
// the final status is below 400 and the body is non-empty; every other
// outcome is retried alike. After the last attempt the result wraps
// domain.ErrUnavailable. Cancellation is reported as the context error.
func (f *Fetcher) Fetch(ctx context.Context, url string) fn.Result[string] {
	if f.cfg.Pacer != nil {
		if err := f.cfg.Pacer.Wait(ctx); err != nil {
			return fn.Err[string](err)
		}
	}

	attempt := 0
	res := fn.Retry(ctx, f.retry, func(ctx context.Context) fn.Result[string] {
		attempt++
		body, err := f.get(ctx, url)
		if err != nil {
			f.count(outcome(err))
			f.log.Debug("fetch attempt failed", "url", url, "attempt", attempt, "err", err)
			return fn.Err[string](err)
		}
		f.count("ok")
		return fn.Ok(body)
	})
	if res.IsOk() {
		return res
	}
	_, err := res.Unwrap()
	if ctx.Err() != nil {
		return fn.Err[string](ctx.Err())
	}
	return fn.Err[string](fmt.Errorf("%w: %s after %d attempts: %w", domain.ErrUnavailable, url, attempt, err))
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return "", &StatusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", domain.ErrEmptyBody
	}
	return string(body), nil
}

func (f *Fetcher) count(outcome string) {
	if f.reg == nil {
		return
	}
	f.reg.Counter("rentscout_fetch_attempts_total", "HTTP fetch attempts by outcome.", "outcome", outcome).Inc()
}

// StatusError is an unsuccessful HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

func outcome(err error) string {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return "status"
	case errors.Is(err, domain.ErrEmptyBody):
		return "empty"
	default:
		return "error"
	}
}
