// Package pipeline persists and reloads crawl results.
package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mkraev/bookcrawl/models"
)

// ResultWriter defines the interface for result output.
type ResultWriter interface {
	Write(result models.CrawlResult) error
	Close() error
	Validate() error
}

// NewWriter builds a writer for the requested format. The dual format
// writes the configured path plus a sibling with the other extension.
func NewWriter(format, filename string) (ResultWriter, error) {
	switch format {
	case "json":
		return NewJSONWriter(filename)
	case "csv":
		return NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv")
		jsonFilename = strings.TrimSuffix(jsonFilename, ".json") + ".json"
		csvFilename := strings.TrimSuffix(filename, ".json")
		csvFilename = strings.TrimSuffix(csvFilename, ".csv") + ".csv"
		return NewDualWriter(csvFilename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// JSONWriter persists the whole result map as one UTF-8 JSON document
// with 4-space indentation and non-ASCII characters left unescaped.
type JSONWriter struct {
	file *os.File
	mu   sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	return &JSONWriter{file: f}, nil
}

// Write replaces the file contents with the encoded result.
func (jw *JSONWriter) Write(result models.CrawlResult) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate json file: %w", err)
	}
	if _, err := jw.file.Seek(0, 0); err != nil {
		return fmt.Errorf("rewind json file: %w", err)
	}

	encoder := json.NewEncoder(jw.file)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := os.Stat(jw.file.Name())
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// ReadResult loads a previously persisted result map.
func ReadResult(filename string) (models.CrawlResult, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open result file: %w", err)
	}
	defer f.Close()

	var result models.CrawlResult
	if err := json.NewDecoder(f).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode result file: %w", err)
	}
	return result, nil
}

var csvHeader = []string{
	"url", "title", "price", "in_stock", "rating", "product_description",
	"upc", "product_type", "price_excl_tax", "price_incl_tax", "tax",
	"availability", "number_of_reviews",
}

// CSVWriter flattens each record to one row, keyed and sorted by URL.
type CSVWriter struct {
	file *os.File
	mu   sync.Mutex
}

// NewCSVWriter initialises a CSV writer.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	return &CSVWriter{file: f}, nil
}

// Write replaces the file contents with header plus one row per URL.
func (cw *CSVWriter) Write(result models.CrawlResult) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := cw.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate csv file: %w", err)
	}
	if _, err := cw.file.Seek(0, 0); err != nil {
		return fmt.Errorf("rewind csv file: %w", err)
	}

	writer := csv.NewWriter(cw.file)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	urls := make([]string, 0, len(result))
	for url := range result {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	for _, url := range urls {
		book := result[url]
		rating := ""
		if book.Rating != nil {
			rating = strconv.Itoa(*book.Rating)
		}
		info := book.Info
		if info == nil {
			info = &models.ProductInfo{}
		}
		record := []string{
			url,
			book.Title,
			book.Price,
			book.InStock,
			rating,
			book.Description,
			info.UPC,
			info.ProductType,
			info.PriceExclTax,
			info.PriceInclTax,
			info.Tax,
			info.Availability,
			info.NumReviews,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.file.Name())
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
