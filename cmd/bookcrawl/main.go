package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkraev/bookcrawl/config"
	"github.com/mkraev/bookcrawl/models"
	"github.com/mkraev/bookcrawl/schedule"
	"github.com/mkraev/bookcrawl/scraper"
)

func main() {
	defaults := config.DefaultConfig()

	batchDefault := defaults.BatchSize
	if value, ok, err := config.EnvInt("CRAWL_BATCH"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid CRAWL_BATCH: %v\n", err)
		os.Exit(1)
	} else if ok {
		batchDefault = value
	}
	workersDefault := defaults.Workers
	if value, ok, err := config.EnvInt("CRAWL_WORKERS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid CRAWL_WORKERS: %v\n", err)
		os.Exit(1)
	} else if ok {
		workersDefault = value
	}
	baseDefault := defaults.BaseURL
	if value, ok := config.EnvString("CRAWL_BASE_URL"); ok {
		baseDefault = value
	}
	outputDefault := defaults.OutputFile
	if value, ok := config.EnvString("CRAWL_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaults.MetricsAddr
	if value, ok := config.EnvString("CRAWL_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	baseURL := flag.String("base-url", baseDefault, "Catalog root URL to crawl")
	rawURL := flag.String("raw-url", "", "Base URL for resolving relative hrefs (default: base URL + /)")
	batchSize := flag.Int("batch", batchDefault, "URLs pulled from the link stream per chunk")
	workers := flag.Int("workers", workersDefault, "Concurrent detail-page fetches per chunk")
	timeoutSec := flag.Int("timeout", int(defaults.Timeout/time.Second), "Per-request timeout (seconds)")
	cacheSize := flag.Int("cache", defaults.CacheSize, "Parsed-page LRU cache size (0 disables)")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaults.OutputFormat, "Output format: csv, json, or dual")
	save := flag.Bool("save", false, "Persist the crawl result")
	daemon := flag.Bool("daemon", false, "Run as a daily scheduled job instead of once")
	scheduleAt := flag.String("at", defaults.ScheduleAt, "Daily run time for daemon mode (HH:MM:SS)")
	scheduleTZ := flag.String("tz", defaults.ScheduleTZ, "Timezone for daemon mode")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaults
	cfg.BaseURL = strings.TrimSuffix(*baseURL, "/")
	cfg.RawBaseURL = *rawURL
	cfg.BatchSize = *batchSize
	cfg.Workers = *workers
	cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	cfg.CacheSize = *cacheSize
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.Save = *save
	cfg.ScheduleAt = *scheduleAt
	cfg.ScheduleTZ = *scheduleTZ
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if *daemon {
		runDaemon(ctx, cfg)
		return
	}

	if err := runOnce(ctx, cfg); err != nil {
		os.Exit(1)
	}
}

// runOnce performs a single crawl invocation.
func runOnce(ctx context.Context, cfg *config.Config) error {
	s, err := scraper.New(cfg)
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		return err
	}
	defer s.Close()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	result, stats, runErr := s.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, stats, cfg, runErr)
	return runErr
}

// runDaemon keeps the process alive firing one crawl per day. A failed
// invocation is reported and the next scheduled time still fires.
func runDaemon(ctx context.Context, cfg *config.Config) {
	sched := schedule.New()
	err := sched.Daily("crawl-books", cfg.ScheduleAt, cfg.ScheduleTZ, func(jobCtx context.Context) error {
		return runOnce(jobCtx, cfg)
	})
	if err != nil {
		slog.Error("registering scheduled crawl", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("daemon started",
		slog.String("at", cfg.ScheduleAt),
		slog.String("tz", cfg.ScheduleTZ),
		slog.String("stop", `type "s" + enter, or send an interrupt`),
	)
	if err := sched.Run(ctx); err != nil {
		slog.Error("scheduler loop failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func printSummary(result models.CrawlResult, stats *models.CrawlStats, cfg *config.Config, runErr error) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if runErr != nil {
		fmt.Println("Crawl aborted")
		fmt.Printf("  Error:          %v\n", runErr)
	} else {
		fmt.Println("Crawl complete")
	}

	duration := stats.EndTime.Sub(stats.StartTime)
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(stats.Attempted) / duration.Seconds()
	}

	fmt.Printf("  Expected total: %d\n", stats.ExpectedTotal)
	fmt.Printf("  Attempted:      %d\n", stats.Attempted)
	fmt.Printf("  Extracted:      %d\n", stats.Extracted)
	fmt.Printf("  Empty records:  %d\n", stats.EmptyRecords)
	fmt.Printf("  Chunks:         %d\n", stats.Chunks)
	fmt.Printf("  Duration:       %v\n", duration)
	fmt.Printf("  Items/sec:      %.2f\n", itemsPerSec)
	if cfg.Save {
		if len(result) > 0 {
			fmt.Printf("  Output file:    %s\n", cfg.OutputFile)
		} else {
			fmt.Println("  Output file:    skipped (no records)")
		}
	}
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
