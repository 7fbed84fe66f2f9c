package scraper

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mkraev/bookcrawl/fetch"
)

// LinkStream walks the paginated catalog lazily, one listing page at a
// time, and yields absolute detail-page URLs. The stream is
// forward-only and non-restartable; a fresh crawl builds a fresh
// stream. Pagination is inherently sequential because each page's
// successor comes from its own "next" control.
type LinkStream struct {
	session *fetch.Session
	rawURL  string
	page    string // next catalog page to fetch, "" when exhausted
	pending []string
	done    bool
}

// NewLinkStream starts discovery at baseURL. rawURL is the base used to
// resolve relative hrefs; when empty it defaults to baseURL + "/".
// Passing an explicit rawURL allows starting mid-catalog: subsequent
// "next" links still resolve against the raw base, not the page being
// fetched.
func NewLinkStream(session *fetch.Session, baseURL, rawURL string) *LinkStream {
	if rawURL == "" {
		rawURL = baseURL + "/"
	}
	return &LinkStream{
		session: session,
		rawURL:  rawURL,
		page:    baseURL,
	}
}

// catalogueJoin resolves href against the raw base, prepending the
// "catalogue/" path segment when the href does not already carry it.
func catalogueJoin(rawURL, href string) string {
	if strings.Contains(href, "catalogue") {
		return rawURL + href
	}
	return rawURL + "catalogue/" + href
}

// Next returns the next detail-page URL, or "" when the catalog is
// exhausted. A transport failure while fetching a listing page ends the
// stream and propagates.
func (ls *LinkStream) Next(ctx context.Context) (string, error) {
	for len(ls.pending) == 0 {
		if ls.done || ls.page == "" {
			return "", nil
		}
		if err := ls.fill(ctx); err != nil {
			ls.done = true
			return "", err
		}
	}

	link := ls.pending[0]
	ls.pending = ls.pending[1:]
	return link, nil
}

// Batch pulls up to n URLs from the stream. A short or empty batch
// means the stream ended; an error aborts discovery with whatever was
// pulled before it.
func (ls *LinkStream) Batch(ctx context.Context, n int) ([]string, error) {
	var out []string
	for len(out) < n {
		link, err := ls.Next(ctx)
		if err != nil {
			return out, err
		}
		if link == "" {
			break
		}
		out = append(out, link)
	}
	return out, nil
}

func (ls *LinkStream) fill(ctx context.Context) error {
	doc, err := ls.session.Fetch(ctx, ls.page)
	if err != nil {
		return err
	}
	if doc == nil {
		// Absent document reads as "reached the end".
		ls.page = ""
		ls.done = true
		return nil
	}

	doc.Find("a[title]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		if href == "" {
			return
		}
		ls.pending = append(ls.pending, catalogueJoin(ls.rawURL, href))
	})

	next := doc.Find("li.next a").First()
	if href, ok := next.Attr("href"); ok && href != "" {
		ls.page = catalogueJoin(ls.rawURL, href)
	} else {
		ls.page = ""
		ls.done = true
	}
	return nil
}
