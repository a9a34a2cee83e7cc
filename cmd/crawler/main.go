// Command crawler walks a classifieds rental search, enriches each listing
// from its detail page and appends new listings to a CSV file, optionally
// mirroring them to NATS, Postgres and Neo4j.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/rentscout/rentscout/engine/crawl"
	"github.com/rentscout/rentscout/engine/fetch"
	"github.com/rentscout/rentscout/engine/sink"
	"github.com/rentscout/rentscout/engine/store"
	"github.com/rentscout/rentscout/pkg/logging"
	"github.com/rentscout/rentscout/pkg/metrics"
	"github.com/rentscout/rentscout/pkg/resilience"
)

const (
	exitOK          = 0
	exitFailed      = 1
	exitConfig      = 2
	exitInterrupted = 130
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Getenv, os.Stderr))
}

func run(args []string, getenv func(string) string, stderr io.Writer) int {
	s, err := loadSettings(args, getenv, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "crawler: %v\n", err)
		return exitConfig
	}
	logger, err := logging.New(logging.Options{Format: s.LogFormat, Level: s.LogLevel, Writer: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "crawler: %v\n", err)
		return exitConfig
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	slog.SetDefault(logger)

	cfg := s.Crawl
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Out)
	if err != nil {
		logger.Error("cannot open output", "path", cfg.Out, "err", err)
		return exitConfig
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("closing output", "err", err)
			return
		}
		logger.Info("output closed", "path", cfg.Out, "rows", st.Written(), "seen", st.SeenCount())
	}()
	if n := st.Dropped(); n > 0 {
		logger.Warn("dropped torn final row from an interrupted run", "path", cfg.Out, "bytes", n)
	}
	logger.Info("output ready", "path", cfg.Out, "seen", st.SeenCount())

	reg := metrics.New()
	if s.MetricsAddr != "" {
		shutdown, err := serveStatus(s.MetricsAddr, newStatusHandler(reg, logger), logger)
		if err != nil {
			logger.Error("cannot start status server", "addr", s.MetricsAddr, "err", err)
			return exitConfig
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutCtx)
		}()
	}

	mirrors, err := openSinks(ctx, s)
	if err != nil {
		logger.Error("cannot open mirror", "err", err)
		return exitConfig
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mirrors.Close(closeCtx); err != nil {
			logger.Warn("closing mirrors", "err", err)
		}
	}()

	fetcher := fetch.New(fetch.Config{
		Timeout:  cfg.Timeout,
		Attempts: cfg.Retries,
		Backoff:  cfg.RetryBackoff,
		Pacer:    resilience.NewPacer(cfg.Delay),
		Metrics:  reg,
		Logger:   logger,
	})
	driver, err := crawl.NewDriver(cfg, crawl.Options{
		Fetcher: fetcher,
		Store:   st,
		Sink:    mirrors,
		Logger:  logger,
		Metrics: reg,
		RunID:   runID,
	})
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		return exitConfig
	}

	stats, err := driver.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Warn("crawl interrupted", "rows", stats.Written, "path", cfg.Out)
		return exitInterrupted
	case err != nil:
		logger.Error("crawl failed", "rows", stats.Written, "path", cfg.Out, "err", err)
		return exitFailed
	}
	logger.Info("done", "rows", stats.Written, "path", cfg.Out)
	return exitOK
}

// openSinks connects every configured mirror.
func openSinks(ctx context.Context, s settings) (sink.Multi, error) {
	var out sink.Multi
	if s.NATSURL != "" {
		n, err := sink.DialNATS(s.NATSURL, s.NATSSubject)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if s.PGDSN != "" {
		p, err := sink.OpenPostgres(ctx, s.PGDSN)
		if err != nil {
			out.Close(ctx)
			return nil, err
		}
		out = append(out, p)
	}
	if s.Neo4jURL != "" {
		n, err := sink.OpenNeo4j(ctx, s.Neo4jURL, s.Neo4jUser, s.Neo4jPass, s.Neo4jDB)
		if err != nil {
			out.Close(ctx)
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
