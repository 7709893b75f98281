// Package models defines data structures for the scraper.
package models

import "time"

// Event represents a single venue event from the trending-events listing.
type Event struct {
	EventID            int64  `json:"eventId"`
	EventName          string `json:"eventName"`
	LocalEventDateTime string `json:"localEventDateTime"`
	VenueName          string `json:"venueName"`
	CategoryID         int64  `json:"categoryId"`
}

// Zone is a ticket zone inside an event's venue-map seating configuration.
type Zone struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	MinPrice     float64 `json:"minPrice"`
	MaxPrice     float64 `json:"maxPrice"`
	ListingCount int     `json:"listingCount"`
	Recommended  bool    `json:"recommendedTickets"`
	BetterValue  bool    `json:"betterValueTickets"`
}

// SeatingConfig is the decoded venue-map response for one event.
type SeatingConfig struct {
	Zones []Zone `json:"zones"`
}

// EventTickets pairs an event with its scraped ticket zones.
type EventTickets struct {
	EventID        int64     `json:"event_id"`
	EventName      string    `json:"event_name"`
	EventDate      string    `json:"event_date"`
	Venue          string    `json:"venue"`
	CategoryID     int64     `json:"category_id"`
	Zones          []Zone    `json:"zones"`
	ScrapeDuration float64   `json:"scrape_duration"`
	ScrapedAt      time.Time `json:"scraped_at"`
}

// ScrapeResult holds the overall result of a scraping run.
type ScrapeResult struct {
	StartTime    time.Time
	EndTime      time.Time
	EventCount   int
	RequestCount int
	ErrorCount   int
	RetryCount   int
	FailedEvents []string
	ErrorsByType map[string]int
}

// RunSummary is the statistics header of the persisted report.
type RunSummary struct {
	ScrapeTimestamp     time.Time `json:"scrape_timestamp"`
	TotalEvents         int       `json:"total_events"`
	TotalAttempts       int       `json:"total_attempts"`
	FailedAttempts      int       `json:"failed_attempts"`
	FailureRate         float64   `json:"failure_rate"`
	TotalExecutionTime  float64   `json:"total_execution_time"`
	AverageTimePerEvent float64   `json:"average_time_per_event"`
}

// Report is the full output document written at the end of a run.
type Report struct {
	RunSummary
	Events []*EventTickets `json:"events"`
}
