package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds crawl configuration.
type Config struct {
	BaseURL    string
	RawBaseURL string // base used to resolve relative hrefs; defaults to BaseURL + "/"

	BatchSize int
	Workers   int
	Timeout   time.Duration
	CacheSize int

	OutputFile   string
	OutputFormat string // csv, json, or dual
	Save         bool

	ScheduleAt string // wall-clock time, "15:04:05"
	ScheduleTZ string // IANA timezone name

	UserAgent   string
	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "https://books.toscrape.com",
		BatchSize:    200,
		Workers:      70,
		Timeout:      20 * time.Second,
		CacheSize:    32,
		OutputFile:   "artifacts/books_data.json",
		OutputFormat: "json",
		Save:         false,
		ScheduleAt:   "19:00:00",
		ScheduleTZ:   "Europe/Moscow",
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		MetricsAddr:  "",
		Verbose:      false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.RawBaseURL != "" {
		rawURL, err := url.Parse(c.RawBaseURL)
		if err != nil {
			return fmt.Errorf("invalid raw base URL: %w", err)
		}
		if rawURL.Host == "" {
			return fmt.Errorf("raw base URL must include a host")
		}
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.ScheduleAt != "" {
		if _, err := time.Parse("15:04:05", c.ScheduleAt); err != nil {
			return fmt.Errorf("invalid schedule time: %w", err)
		}
	}
	if c.ScheduleTZ != "" {
		if _, err := time.LoadLocation(c.ScheduleTZ); err != nil {
			return fmt.Errorf("invalid schedule timezone: %w", err)
		}
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// EnvString reads a string override from the environment.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer override from the environment.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}
