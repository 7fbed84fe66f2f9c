package pipeline

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mkraev/bookcrawl/models"
)

func sampleResult() models.CrawlResult {
	three := 3
	return models.CrawlResult{
		"http://example.test/catalogue/a-light-in-the-attic_1000/index.html": {
			Title:       "A Light in the Attic",
			Price:       "£51.77",
			InStock:     "22 available",
			Rating:      &three,
			Description: "It's hard to imagine a world without A Light in the Attic.",
			Info: &models.ProductInfo{
				UPC:          "a897fe39b1053632",
				ProductType:  "Books",
				PriceExclTax: "£51.77",
				PriceInclTax: "£51.77",
				Tax:          "£0.00",
				Availability: "22 available",
				NumReviews:   "0",
			},
		},
		"http://example.test/catalogue/broken-book_1/index.html": {},
	}
}

func TestJSONWriterRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "books.json")
	result := sampleResult()

	writer, err := NewJSONWriter(filename)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := writer.Write(result); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := ReadResult(filename)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(result, reloaded) {
		t.Fatalf("round-trip mismatch:\n got %+v\nwant %+v", reloaded, result)
	}
}

func TestJSONWriterFormat(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "books.json")
	writer, err := NewJSONWriter(filename)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := writer.Write(sampleResult()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	body := string(raw)

	// Non-ASCII stays unescaped and indentation is four spaces.
	if !strings.Contains(body, "£51.77") {
		t.Errorf("expected unescaped currency symbol in output")
	}
	if !strings.Contains(body, "\n    \"") {
		t.Errorf("expected 4-space indentation")
	}
	// Empty records marshal as bare objects.
	if !strings.Contains(body, "{}") {
		t.Errorf("expected an empty record object in output")
	}
	if strings.Contains(body, `\u00a3`) {
		t.Errorf("currency symbol must not be unicode-escaped")
	}
}

func TestJSONWriterValidateEmpty(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "books.json")
	writer, err := NewJSONWriter(filename)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Validate(); err == nil {
		t.Fatalf("expected validation error for empty file")
	}
}

func TestCSVWriterRowsSortedByURL(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "books.csv")
	writer, err := NewCSVWriter(filename)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := writer.Write(sampleResult()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2 records", len(rows))
	}
	if !reflect.DeepEqual(rows[0], csvHeader) {
		t.Fatalf("header = %v", rows[0])
	}
	// Sorted by URL: a-light... precedes broken-book... lexicographically.
	if !strings.Contains(rows[1][0], "a-light-in-the-attic") {
		t.Fatalf("first row url = %q", rows[1][0])
	}
	if rows[1][4] != "3" {
		t.Fatalf("rating cell = %q, want 3", rows[1][4])
	}
	if rows[2][1] != "" {
		t.Fatalf("empty record title cell = %q, want empty", rows[2][1])
	}
}

func TestNewWriterFactory(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		format  string
		wantErr bool
	}{
		{format: "json"},
		{format: "csv"},
		{format: "dual"},
		{format: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			writer, err := NewWriter(tt.format, filepath.Join(dir, "out-"+tt.format+".json"))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for format %q", tt.format)
				}
				return
			}
			if err != nil {
				t.Fatalf("new writer: %v", err)
			}
			writer.Close()
		})
	}
}

func TestDualWriterWritesBoth(t *testing.T) {
	dir := t.TempDir()
	csvFile := filepath.Join(dir, "books.csv")
	jsonFile := filepath.Join(dir, "books.json")

	writer, err := NewDualWriter(csvFile, jsonFile)
	if err != nil {
		t.Fatalf("new dual writer: %v", err)
	}
	if err := writer.Write(sampleResult()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, filename := range []string{csvFile, jsonFile} {
		info, err := os.Stat(filename)
		if err != nil {
			t.Fatalf("stat %s: %v", filename, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", filename)
		}
	}
}
