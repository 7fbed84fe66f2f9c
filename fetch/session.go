// Package fetch owns the shared HTTP session used by every request a
// crawl issues: one GET per call, a fixed per-request timeout, and a
// bounded cache of parsed documents.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mkraev/bookcrawl/config"
)

// Observer receives fetch lifecycle events. Implementations must be
// safe for concurrent use.
type Observer interface {
	FetchStarted(url string)
	FetchSucceeded(url string, d time.Duration)
	FetchFailed(url string, category string)
}

// Session is a shared connection context for a whole crawl. It is safe
// for concurrent use: each Fetch runs on a clone of the base collector,
// and clones share one HTTP backend, so the connection pool is reused
// across every worker.
type Session struct {
	base      *colly.Collector
	transport *http.Transport
	timeout   time.Duration
	cache     *lru.Cache[string, *goquery.Document]
	observer  Observer
}

// NewSession builds a session configured from cfg.
func NewSession(cfg *config.Config) (*Session, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(cfg.Timeout)

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	collector.WithTransport(transport)

	s := &Session{
		base:      collector,
		transport: transport,
		timeout:   cfg.Timeout,
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, *goquery.Document](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("build page cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// SetObserver attaches a metrics hook.
func (s *Session) SetObserver(o Observer) {
	s.observer = o
}

// WithTransport swaps the underlying round tripper. Test seam.
func (s *Session) WithTransport(rt http.RoundTripper) {
	s.base.WithTransport(rt)
	s.transport = nil
}

// Fetch issues one GET and parses the body into a document tree.
// Transport-level failures and non-2xx statuses return a
// *TransportError. A body that cannot be parsed as markup yields a nil
// document with no error: parse failure is non-fatal, transport
// failure is fatal to the caller.
func (s *Session) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	if s.cache != nil {
		if doc, ok := s.cache.Get(rawURL); ok {
			return doc, nil
		}
	}

	if s.observer != nil {
		s.observer.FetchStarted(rawURL)
	}
	start := time.Now()

	collector := s.base.Clone()
	collector.SetRequestTimeout(s.timeout)

	var body []byte
	var status int
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := collector.Visit(rawURL); err != nil {
		classified := classifyError(err, status)
		te := &TransportError{URL: rawURL, Status: status, Err: classified}
		if s.observer != nil {
			s.observer.FetchFailed(rawURL, ErrorLabel(te))
		}
		return nil, te
	}

	if s.observer != nil {
		s.observer.FetchSucceeded(rawURL, time.Since(start))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		// Unparseable markup is an absent document, not a failure.
		return nil, nil
	}

	if s.cache != nil {
		s.cache.Add(rawURL, doc)
	}
	return doc, nil
}

// Close releases idle connections held by the session.
func (s *Session) Close() {
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
	if s.cache != nil {
		s.cache.Purge()
	}
}
