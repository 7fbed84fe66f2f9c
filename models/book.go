// Package models defines data structures for the crawler.
package models

import "time"

// ProductInfo mirrors the seven-row information table on a detail page.
// Field order matches the table layout.
type ProductInfo struct {
	UPC          string `json:"UPC"`
	ProductType  string `json:"product Type"`
	PriceExclTax string `json:"price (excl. tax)"`
	PriceInclTax string `json:"price (incl. tax)"`
	Tax          string `json:"tax"`
	Availability string `json:"availability"`
	NumReviews   string `json:"number of reviews"`
}

// Book holds every field extracted from one detail page. A Book is
// either fully populated or entirely empty; empty records mark URLs
// that were attempted but could not be extracted, and marshal as {}.
type Book struct {
	Title       string       `json:"title,omitempty"`
	Price       string       `json:"price,omitempty"`
	InStock     string       `json:"in_stock,omitempty"`
	Rating      *int         `json:"rating,omitempty"`
	Description string       `json:"product_description,omitempty"`
	Info        *ProductInfo `json:"product_information,omitempty"`
}

// IsEmpty reports whether the record carries no extracted data.
func (b *Book) IsEmpty() bool {
	return b == nil || (b.Title == "" && b.Info == nil)
}

// CrawlResult maps each attempted detail-page URL to its record.
// Workers write disjoint keys, so no entry is ever merged twice except
// by a duplicated link, where the last write wins.
type CrawlResult map[string]*Book

// CrawlStats summarises one crawl invocation.
type CrawlStats struct {
	StartTime     time.Time
	EndTime       time.Time
	ExpectedTotal int
	Attempted     int
	Extracted     int
	EmptyRecords  int
	Chunks        int
}

// Fill derives the per-record counters from the aggregate result.
func (s *CrawlStats) Fill(result CrawlResult) {
	s.Attempted = len(result)
	s.Extracted = 0
	s.EmptyRecords = 0
	for _, book := range result {
		if book.IsEmpty() {
			s.EmptyRecords++
		} else {
			s.Extracted++
		}
	}
}
