package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mkraev/bookcrawl/fetch"
	"github.com/mkraev/bookcrawl/models"
)

var (
	rePrice  = regexp.MustCompile(`£\d+\.\d{2}`)
	reParens = regexp.MustCompile(`\((.*?)\)`)
)

var ratingWords = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

const infoRowCount = 7

// BookData fetches one detail page and extracts its record. Transport
// failures propagate untouched; any malformed-page condition degrades
// that single URL to an empty record and is never fatal to the crawl.
func BookData(ctx context.Context, session *fetch.Session, url string) (*models.Book, error) {
	doc, err := session.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	book, err := extractBook(doc)
	if err != nil {
		var malformed *MalformedPageError
		if errors.As(err, &malformed) {
			malformed.URL = url
			slog.Warn("malformed detail page",
				slog.String("url", url),
				slog.String("reason", malformed.Reason),
			)
			return &models.Book{}, nil
		}
		return nil, err
	}
	return book, nil
}

// extractBook reads the fixed detail-page schema out of doc. An absent
// document, main block, or information table yields an empty record; a
// table with fewer rows than the layout promises is malformed.
func extractBook(doc *goquery.Document) (*models.Book, error) {
	if doc == nil {
		return &models.Book{}, nil
	}

	main := doc.Find("div.col-sm-6.product_main").First()
	if main.Length() == 0 {
		return &models.Book{}, nil
	}
	rows := doc.Find("table").First().Find("tr")
	if rows.Length() == 0 {
		return &models.Book{}, nil
	}
	if rows.Length() < infoRowCount {
		return nil, &MalformedPageError{
			Reason: fmt.Sprintf("information table has %d rows, want %d", rows.Length(), infoRowCount),
		}
	}

	book := &models.Book{
		Title:   strings.TrimSpace(main.Find("h1").Text()),
		Price:   rePrice.FindString(main.Find("p.price_color").Text()),
		InStock: parenthesized(main.Text()),
		Rating:  ratingOf(main.Find("p.star-rating").First()),
		Info: &models.ProductInfo{
			UPC:          rowText(rows, 0),
			ProductType:  rowText(rows, 1),
			PriceExclTax: rePrice.FindString(rowText(rows, 2)),
			PriceInclTax: rePrice.FindString(rowText(rows, 3)),
			Tax:          rePrice.FindString(rowText(rows, 4)),
			Availability: parenthesized(rowText(rows, 5)),
			NumReviews:   rowText(rows, 6),
		},
	}

	if desc := doc.Find("#product_description").First(); desc.Length() > 0 {
		book.Description = strings.TrimSpace(desc.NextAllFiltered("p").First().Text())
	}

	return book, nil
}

// ratingOf maps the last class token of the rating element ("One"
// through "Five") to its ordinal. Unrecognized or missing tokens yield
// an absent rating, never an error.
func ratingOf(rating *goquery.Selection) *int {
	classes := strings.Fields(rating.AttrOr("class", ""))
	if len(classes) == 0 {
		return nil
	}
	value, ok := ratingWords[classes[len(classes)-1]]
	if !ok {
		return nil
	}
	return &value
}

// parenthesized returns the text inside the first parenthesized group,
// or "" when there is none.
func parenthesized(text string) string {
	match := reParens.FindStringSubmatch(text)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

// rowText returns the raw cell text of the i-th table row.
func rowText(rows *goquery.Selection, i int) string {
	return rows.Eq(i).Find("td").First().Text()
}
