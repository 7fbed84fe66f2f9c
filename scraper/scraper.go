// Package scraper implements the crawl pipeline: pagination-driven link
// discovery, concurrent detail-page extraction, and the run controller
// that owns the session and the persistence decision.
package scraper

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mkraev/bookcrawl/config"
	"github.com/mkraev/bookcrawl/fetch"
	"github.com/mkraev/bookcrawl/models"
	"github.com/mkraev/bookcrawl/pipeline"
)

// Scraper is the run controller for one crawl invocation. It owns the
// shared session for the crawl lifetime and decides whether the
// aggregate result is persisted on exit.
type Scraper struct {
	cfg     *config.Config
	session *fetch.Session
	Metrics *Metrics
}

// New builds a scraper configured from cfg.
func New(cfg *config.Config) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	session, err := fetch.NewSession(cfg)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics()
	session.SetObserver(metrics)

	return &Scraper{
		cfg:     cfg,
		session: session,
		Metrics: metrics,
	}, nil
}

// Session exposes the shared session. Test seam for transport swaps.
func (s *Scraper) Session() *fetch.Session {
	return s.session
}

// Close releases the session. Safe after a failed run.
func (s *Scraper) Close() {
	s.session.Close()
}

// Run executes one full crawl: read the catalog root for the expected
// total, stream links through the batch coordinator, and persist the
// aggregate when saving was requested. A transport error aborts the
// crawl but whatever was collected first is still returned, and still
// persisted. An empty result skips persistence and reports that
// distinctly from a successful save.
func (s *Scraper) Run(ctx context.Context) (models.CrawlResult, *models.CrawlStats, error) {
	stats := &models.CrawlStats{StartTime: time.Now()}
	result := models.CrawlResult{}

	crawlErr := s.crawl(ctx, result, stats)

	stats.EndTime = time.Now()
	stats.Fill(result)

	if crawlErr != nil {
		slog.Error("crawl aborted",
			slog.Any("error", crawlErr),
			slog.Int("collected", stats.Attempted),
		)
	}

	if s.cfg.Save {
		if err := s.persist(result); err != nil && crawlErr == nil {
			crawlErr = err
		}
	}

	return result, stats, crawlErr
}

func (s *Scraper) crawl(ctx context.Context, result models.CrawlResult, stats *models.CrawlStats) error {
	root, err := s.session.Fetch(ctx, s.cfg.BaseURL)
	if err != nil {
		return err
	}
	if root != nil {
		stats.ExpectedTotal = expectedTotal(root)
	}

	slog.Info("starting crawl",
		slog.String("base_url", s.cfg.BaseURL),
		slog.Int("expected_total", stats.ExpectedTotal),
		slog.Int("batch_size", s.cfg.BatchSize),
		slog.Int("workers", s.cfg.Workers),
	)

	stream := NewLinkStream(s.session, s.cfg.BaseURL, s.cfg.RawBaseURL)
	coordinator := NewCoordinator(s.session, s.cfg.BatchSize, s.cfg.Workers, s.Metrics)

	chunks, err := coordinator.Drain(ctx, stream, result)
	stats.Chunks = chunks
	return err
}

func (s *Scraper) persist(result models.CrawlResult) error {
	if len(result) == 0 {
		slog.Warn("crawl produced no records, skipping save",
			slog.String("output", s.cfg.OutputFile),
		)
		return nil
	}

	writer, err := pipeline.NewWriter(s.cfg.OutputFormat, s.cfg.OutputFile)
	if err != nil {
		return err
	}
	if err := writer.Write(result); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	if err := writer.Validate(); err != nil {
		return err
	}

	slog.Info("result saved",
		slog.String("output", s.cfg.OutputFile),
		slog.Int("records", len(result)),
	)
	return nil
}

// expectedTotal derives the catalog's stated item count from the first
// two range markers on the root page. It sizes progress reporting only;
// a page without usable markers degrades to zero and the crawl proceeds.
func expectedTotal(doc *goquery.Document) int {
	markers := doc.Find("strong")
	if markers.Length() < 2 {
		return 0
	}

	first, err1 := strconv.Atoi(strings.TrimSpace(markers.Eq(0).Text()))
	second, err2 := strconv.Atoi(strings.TrimSpace(markers.Eq(1).Text()))
	if err1 != nil || err2 != nil {
		return 0
	}

	total := second - first + 1
	if total < 1 {
		total = first - second + 1
	}
	return total
}
