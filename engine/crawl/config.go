package crawl

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rentscout/rentscout/engine/domain"
)

// Config describes one crawl run.
type Config struct {
	StartURL      string        `yaml:"start_url"`
	Pages         int           `yaml:"pages"`
	Delay         time.Duration `yaml:"delay"`
	MinPrice      int           `yaml:"min_price"`
	MaxPrice      int           `yaml:"max_price"`
	MaxDays       int           `yaml:"max_days"`
	NoFollow      bool          `yaml:"no_follow"`
	Out           string        `yaml:"out"`
	Retries       int           `yaml:"retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	Timeout       time.Duration `yaml:"timeout"`
	PageSize      int           `yaml:"page_size"`
	DetailPattern string        `yaml:"detail_pattern"`
	DetailWorkers int           `yaml:"detail_workers"`
	DebugDump     string        `yaml:"debug_dump"`
}

// DefaultConfig returns the settings used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		StartURL:      "https://vancouver.craigslist.org/search/apa",
		Pages:         8,
		Delay:         time.Second,
		MinPrice:      600,
		MaxPrice:      3000,
		MaxDays:       30,
		Out:           "data/rentals_raw.csv",
		Retries:       3,
		RetryBackoff:  1200 * time.Millisecond,
		Timeout:       25 * time.Second,
		PageSize:      120,
		DetailPattern: "/apa/",
		DetailWorkers: 1,
	}
}

// MaxAge is the recency window; zero disables the filter.
func (c Config) MaxAge() time.Duration {
	return time.Duration(c.MaxDays) * 24 * time.Hour
}

// Validate reports the first setting that prevents a run. Every error
// wraps domain.ErrInvalidConfig.
func (c Config) Validate() error {
	u, err := url.Parse(c.StartURL)
	if err != nil {
		return &domain.ConfigError{Field: "start-url", Value: c.StartURL, Reason: "unparsable", Wrapped: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return domain.NewConfigError("start-url", c.StartURL, "must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return domain.NewConfigError("start-url", c.StartURL, "scheme must be http or https")
	}
	switch {
	case c.Pages < 1:
		return domain.NewConfigError("pages", strconv.Itoa(c.Pages), "must be at least 1")
	case c.MinPrice < 0:
		return domain.NewConfigError("min-price", strconv.Itoa(c.MinPrice), "must not be negative")
	case c.MaxPrice < 0:
		return domain.NewConfigError("max-price", strconv.Itoa(c.MaxPrice), "must not be negative")
	case c.MinPrice > c.MaxPrice:
		return domain.NewConfigError("min-price", strconv.Itoa(c.MinPrice),
			fmt.Sprintf("must not exceed max-price %d", c.MaxPrice))
	case c.MaxDays < 0:
		return domain.NewConfigError("max-days", strconv.Itoa(c.MaxDays), "must not be negative")
	case c.Delay < 0:
		return domain.NewConfigError("delay", c.Delay.String(), "must not be negative")
	case c.Retries < 1:
		return domain.NewConfigError("retries", strconv.Itoa(c.Retries), "must be at least 1")
	case c.RetryBackoff < 0:
		return domain.NewConfigError("retry-backoff", c.RetryBackoff.String(), "must not be negative")
	case c.Timeout < 0:
		return domain.NewConfigError("timeout", c.Timeout.String(), "must not be negative")
	case c.PageSize < 1:
		return domain.NewConfigError("page-size", strconv.Itoa(c.PageSize), "must be at least 1")
	case c.Out == "":
		return domain.NewConfigError("out", c.Out, "must not be empty")
	case c.DetailPattern == "":
		return domain.NewConfigError("detail-pattern", c.DetailPattern, "must not be empty")
	case c.DetailWorkers < 0:
		return domain.NewConfigError("detail-workers", strconv.Itoa(c.DetailWorkers), "must not be negative")
	}
	return nil
}

// PageURLs expands the start URL into one URL per page. Any fragment and
// existing offset are dropped, the price band is set once and the offset
// parameter s advances by PageSize.
func PageURLs(c Config) ([]string, error) {
	base, err := url.Parse(c.StartURL)
	if err != nil {
		return nil, &domain.ConfigError{Field: "start-url", Value: c.StartURL, Reason: "unparsable", Wrapped: err}
	}
	base.Fragment = ""
	base.RawFragment = ""
	q := base.Query()
	q.Del("s")
	q.Set("min_price", strconv.Itoa(c.MinPrice))
	q.Set("max_price", strconv.Itoa(c.MaxPrice))

	out := make([]string, 0, c.Pages)
	for p := 0; p < c.Pages; p++ {
		q.Set("s", strconv.Itoa(p*c.PageSize))
		u := *base
		u.RawQuery = q.Encode()
		out = append(out, u.String())
	}
	return out, nil
}
