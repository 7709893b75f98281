package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL    string
	VenuePath  string
	VenueID    string
	CategoryID string
	MaxEvents  int

	Proxies []string

	Timeout             time.Duration
	EventsTimeout       time.Duration
	MaxRetries          int
	RetryBackoff        time.Duration
	RetryBackoffMax     time.Duration
	RateLimitBackoff    time.Duration
	RateLimitBackoffMax time.Duration
	RunTimeout          time.Duration

	RecommendedOnly bool
	BetterValueOnly bool

	OutputFile   string
	OutputFormat string // report, jsonl, or dual
	LogFile      string
	MetricsAddr  string

	UserAgent   string
	InsecureTLS bool

	PipelineBufferSize int
	BatchSize          int
	DedupeMaxSize      int

	Verbose bool
}

// DefaultConfig returns conservative defaults for the MSG venue target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:             "https://www.stubhub.com",
		VenuePath:           "/madison-square-garden-tickets/venue/1282/",
		VenueID:             "3708",
		CategoryID:          "0",
		MaxEvents:           100,
		Timeout:             10 * time.Second,
		EventsTimeout:       30 * time.Second,
		MaxRetries:          3,
		RetryBackoff:        1 * time.Second,
		RetryBackoffMax:     8 * time.Second,
		RateLimitBackoff:    10 * time.Second,
		RateLimitBackoffMax: 2 * time.Minute,
		RunTimeout:          0,
		OutputFile:          "output/stubhub_results.json",
		OutputFormat:        "report",
		LogFile:             "scraper.log",
		UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		InsecureTLS:         true,
		PipelineBufferSize:  256,
		BatchSize:           16,
		DedupeMaxSize:       1024,
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

	if c.VenuePath == "" {
		return fmt.Errorf("venue path cannot be empty")
	}
	if c.VenueID == "" {
		return fmt.Errorf("venue id cannot be empty")
	}
	if c.MaxEvents <= 0 {
		return fmt.Errorf("max events must be positive")
	}
	if len(c.Proxies) == 0 {
		return fmt.Errorf("proxy pool cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.EventsTimeout <= 0 {
		return fmt.Errorf("events timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("retry backoff must be positive")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.RateLimitBackoff <= c.RetryBackoffMax {
		// Keeps rate-limit waits strictly longer than transient waits at
		// every attempt index, even after capping.
		return fmt.Errorf("rate limit backoff (%s) must exceed retry backoff max (%s)", c.RateLimitBackoff, c.RetryBackoffMax)
	}
	if c.RateLimitBackoffMax > 0 && c.RateLimitBackoff > c.RateLimitBackoffMax {
		return fmt.Errorf("rate limit backoff (%s) cannot exceed rate limit backoff max (%s)", c.RateLimitBackoff, c.RateLimitBackoffMax)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run timeout cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "report" && c.OutputFormat != "jsonl" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be report, jsonl, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}
