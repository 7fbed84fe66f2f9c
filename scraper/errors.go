package scraper

import "fmt"

// MalformedPageError marks a detail page whose structure does not match
// the expected layout. It is recoverable at single-URL granularity: the
// record for that URL degrades to empty and the crawl continues.
type MalformedPageError struct {
	URL    string
	Reason string
}

func (e *MalformedPageError) Error() string {
	return fmt.Sprintf("malformed page %s: %s", e.URL, e.Reason)
}
