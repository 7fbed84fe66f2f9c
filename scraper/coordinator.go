package scraper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mkraev/bookcrawl/fetch"
	"github.com/mkraev/bookcrawl/models"
)

// Coordinator drains a link stream in fixed-size chunks and fans each
// chunk out across a bounded worker pool. Chunking bounds in-flight
// work without ever materializing the full link list; the pool size
// bounds simultaneous outbound connections.
type Coordinator struct {
	session   *fetch.Session
	batchSize int
	workers   int
	metrics   *Metrics

	progress atomic.Int64
}

// NewCoordinator builds a coordinator over the shared session.
func NewCoordinator(session *fetch.Session, batchSize, workers int, metrics *Metrics) *Coordinator {
	if batchSize <= 0 {
		batchSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Coordinator{
		session:   session,
		batchSize: batchSize,
		workers:   workers,
		metrics:   metrics,
	}
}

// Progress reports the number of URLs processed so far.
func (c *Coordinator) Progress() int64 {
	return c.progress.Load()
}

// Drain pulls chunks from stream until a pull yields zero URLs, merging
// every {url: record} pair into result. Records for malformed pages are
// empty but still keyed. A transport failure in any worker aborts the
// crawl; records that completed before the failure stay in result.
// Cancellation is checked between chunks, not mid-chunk.
func (c *Coordinator) Drain(ctx context.Context, stream *LinkStream, result models.CrawlResult) (int, error) {
	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			return chunks, err
		}

		chunk, err := stream.Batch(ctx, c.batchSize)
		if err != nil {
			return chunks, err
		}
		if len(chunk) == 0 {
			return chunks, nil
		}

		if err := c.processChunk(ctx, chunk, result); err != nil {
			return chunks, err
		}
		chunks++

		done := c.progress.Add(int64(len(chunk)))
		c.metrics.SetProgress(done)
		slog.Info("chunk complete",
			slog.Int("size", len(chunk)),
			slog.Int64("processed", done),
		)
	}
}

func (c *Coordinator) processChunk(ctx context.Context, chunk []string, result models.CrawlResult) error {
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.workers)

	for _, link := range chunk {
		link := link
		group.Go(func() error {
			book, err := BookData(groupCtx, c.session, link)
			if err != nil {
				return err
			}
			if book.IsEmpty() {
				c.metrics.IncEmpty()
			} else {
				c.metrics.IncBooks()
			}

			mu.Lock()
			result[link] = book
			mu.Unlock()
			return nil
		})
	}

	return group.Wait()
}
