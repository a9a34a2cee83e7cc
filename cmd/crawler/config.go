package main

import (
	"flag"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/rentscout/rentscout/engine/crawl"
	"github.com/rentscout/rentscout/engine/domain"
	"github.com/rentscout/rentscout/engine/sink"
)

// settings is everything the crawler binary can be configured with.
type settings struct {
	Crawl crawl.Config `yaml:",inline"`

	LogFormat   string `yaml:"log_format"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
	PGDSN       string `yaml:"pg_dsn"`
	Neo4jURL    string `yaml:"neo4j_url"`
	Neo4jUser   string `yaml:"neo4j_user"`
	Neo4jPass   string `yaml:"neo4j_pass"`
	Neo4jDB     string `yaml:"neo4j_db"`

	configPath string
}

func defaultSettings() settings {
	return settings{
		Crawl:       crawl.DefaultConfig(),
		LogFormat:   "text",
		LogLevel:    "info",
		NATSSubject: sink.DefaultSubject,
		Neo4jUser:   "neo4j",
	}
}

func newFlagSet(s *settings, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("crawler", flag.ContinueOnError)
	fs.SetOutput(out)
	c := &s.Crawl
	fs.StringVar(&s.configPath, "config", "", "YAML config file")
	fs.StringVar(&c.StartURL, "start-url", c.StartURL, "search start URL")
	fs.IntVar(&c.Pages, "pages", c.Pages, "number of search pages to crawl")
	fs.DurationVar(&c.Delay, "delay", c.Delay, "minimum spacing between requests")
	fs.IntVar(&c.MinPrice, "min-price", c.MinPrice, "lowest price to keep")
	fs.IntVar(&c.MaxPrice, "max-price", c.MaxPrice, "highest price to keep")
	fs.IntVar(&c.MaxDays, "max-days", c.MaxDays, "skip posts older than this many days (0 = off)")
	fs.BoolVar(&c.NoFollow, "no-follow", c.NoFollow, "do not fetch detail pages")
	fs.StringVar(&c.Out, "out", c.Out, "output CSV path")
	fs.IntVar(&c.Retries, "retries", c.Retries, "attempts per request")
	fs.DurationVar(&c.RetryBackoff, "retry-backoff", c.RetryBackoff, "linear backoff unit between attempts")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "per-request timeout")
	fs.IntVar(&c.PageSize, "page-size", c.PageSize, "listings per search page (offset stride)")
	fs.StringVar(&c.DetailPattern, "detail-pattern", c.DetailPattern, "href substring of detail links")
	fs.IntVar(&c.DetailWorkers, "detail-workers", c.DetailWorkers, "parallel detail fetches per page")
	fs.StringVar(&c.DebugDump, "debug-dump", c.DebugDump, "save the first search page here")
	fs.StringVar(&s.LogFormat, "log-format", s.LogFormat, "text or json")
	fs.StringVar(&s.LogLevel, "log-level", s.LogLevel, "debug, info, warn or error")
	fs.StringVar(&s.MetricsAddr, "metrics-addr", s.MetricsAddr, "serve /metrics and /healthz on this address")
	fs.StringVar(&s.NATSURL, "nats", s.NATSURL, "NATS URL to mirror listings to")
	fs.StringVar(&s.NATSSubject, "subject", s.NATSSubject, "NATS subject")
	fs.StringVar(&s.PGDSN, "pg-dsn", s.PGDSN, "Postgres DSN to mirror listings to")
	fs.StringVar(&s.Neo4jURL, "neo4j-url", s.Neo4jURL, "Neo4j URL to mirror listings to")
	fs.StringVar(&s.Neo4jUser, "neo4j-user", s.Neo4jUser, "Neo4j user")
	fs.StringVar(&s.Neo4jPass, "neo4j-pass", s.Neo4jPass, "Neo4j password")
	fs.StringVar(&s.Neo4jDB, "neo4j-db", s.Neo4jDB, "Neo4j database (empty = server default)")
	return fs
}

// loadSettings layers defaults, the YAML file, CRAWLER_* variables and
// explicitly set flags, in that order.
func loadSettings(args []string, getenv func(string) string, out io.Writer) (settings, error) {
	// First pass only finds -config; flag errors surface here.
	first := defaultSettings()
	if err := newFlagSet(&first, out).Parse(args); err != nil {
		return settings{}, err
	}

	s := defaultSettings()
	if first.configPath != "" {
		if err := loadYAML(first.configPath, &s); err != nil {
			return settings{}, err
		}
	}
	if err := applyEnv(&s, getenv); err != nil {
		return settings{}, err
	}
	fs := newFlagSet(&s, io.Discard)
	if err := fs.Parse(args); err != nil {
		return settings{}, err
	}
	if fs.NArg() > 0 {
		return settings{}, domain.NewConfigError("args", fs.Arg(0), "unexpected positional argument")
	}
	return s, nil
}

func loadYAML(path string, s *settings) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return &domain.ConfigError{Field: "config", Value: path, Reason: "unreadable", Wrapped: err}
	}
	if err := yaml.UnmarshalStrict(b, s); err != nil {
		return &domain.ConfigError{Field: "config", Value: path, Reason: "invalid YAML", Wrapped: err}
	}
	return nil
}

type envVar struct {
	key   string
	apply func(string) error
}

func applyEnv(s *settings, getenv func(string) string) error {
	c := &s.Crawl
	vars := []envVar{
		{"CRAWLER_START_URL", setString(&c.StartURL)},
		{"CRAWLER_PAGES", setInt(&c.Pages)},
		{"CRAWLER_DELAY", setDuration(&c.Delay)},
		{"CRAWLER_MIN_PRICE", setInt(&c.MinPrice)},
		{"CRAWLER_MAX_PRICE", setInt(&c.MaxPrice)},
		{"CRAWLER_MAX_DAYS", setInt(&c.MaxDays)},
		{"CRAWLER_NO_FOLLOW", setBool(&c.NoFollow)},
		{"CRAWLER_OUT", setString(&c.Out)},
		{"CRAWLER_RETRIES", setInt(&c.Retries)},
		{"CRAWLER_RETRY_BACKOFF", setDuration(&c.RetryBackoff)},
		{"CRAWLER_TIMEOUT", setDuration(&c.Timeout)},
		{"CRAWLER_PAGE_SIZE", setInt(&c.PageSize)},
		{"CRAWLER_DETAIL_PATTERN", setString(&c.DetailPattern)},
		{"CRAWLER_DETAIL_WORKERS", setInt(&c.DetailWorkers)},
		{"CRAWLER_DEBUG_DUMP", setString(&c.DebugDump)},
		{"CRAWLER_LOG_FORMAT", setString(&s.LogFormat)},
		{"CRAWLER_LOG_LEVEL", setString(&s.LogLevel)},
		{"CRAWLER_METRICS_ADDR", setString(&s.MetricsAddr)},
		{"CRAWLER_NATS_URL", setString(&s.NATSURL)},
		{"CRAWLER_NATS_SUBJECT", setString(&s.NATSSubject)},
		{"CRAWLER_PG_DSN", setString(&s.PGDSN)},
		{"CRAWLER_NEO4J_URL", setString(&s.Neo4jURL)},
		{"CRAWLER_NEO4J_USER", setString(&s.Neo4jUser)},
		{"CRAWLER_NEO4J_PASS", setString(&s.Neo4jPass)},
		{"CRAWLER_NEO4J_DB", setString(&s.Neo4jDB)},
	}
	for _, v := range vars {
		raw := getenv(v.key)
		if raw == "" {
			continue
		}
		if err := v.apply(raw); err != nil {
			return &domain.ConfigError{Field: v.key, Value: raw, Reason: "invalid value", Wrapped: err}
		}
	}
	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			// bare numbers are seconds
			f, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil {
				return err
			}
			d = time.Duration(f * float64(time.Second))
		}
		*dst = d
		return nil
	}
}
