// Package stubhub wraps the ticketing API endpoints the scraper consumes:
// the venue trending-events listing and the per-event venue-map seating
// configuration.
package stubhub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aluiziolira/go-scrape-tickets/config"
	"github.com/aluiziolira/go-scrape-tickets/dispatch"
	"github.com/aluiziolira/go-scrape-tickets/models"
)

// Client issues API calls through the proxy-aware dispatcher.
type Client struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
}

// NewClient builds a client over an existing dispatcher.
func NewClient(cfg *config.Config, dispatcher *dispatch.Dispatcher) *Client {
	return &Client{cfg: cfg, dispatcher: dispatcher}
}

// TrendingEvents fetches the venue's event listing. The result is capped at
// cfg.MaxEvents by the API's maxRows parameter.
func (c *Client) TrendingEvents(ctx context.Context, sessionID string) ([]models.Event, error) {
	eventsURL := c.cfg.BaseURL + c.cfg.VenuePath

	query := url.Values{}
	query.Set("method", "TrendingEventsLocale")
	query.Set("categoryId", c.cfg.CategoryID)
	query.Set("maxRows", strconv.Itoa(c.cfg.MaxEvents))
	query.Set("fromDate", "1970-01-01T00:00:00.000Z")
	query.Set("toDate", "9999-12-31T23:59:59.999Z")
	query.Set("venueId", c.cfg.VenueID)

	result := c.dispatcher.Dispatch(ctx, dispatch.FetchRequest{
		Method:  http.MethodPost,
		URL:     eventsURL,
		Query:   query,
		Header:  c.headers(eventsURL),
		Timeout: c.cfg.EventsTimeout,
	}, sessionID)
	if !result.Ok() {
		return nil, fmt.Errorf("fetch trending events: %w", result.Err)
	}

	return decodeEvents(result.Body)
}

// SeatingConfig fetches the venue-map seating configuration for one event.
func (c *Client) SeatingConfig(ctx context.Context, event models.Event, sessionID string) (*models.SeatingConfig, error) {
	configURL := fmt.Sprintf("%s/Browse/VenueMap/GetVenueMapSeatingConfig/%d", c.cfg.BaseURL, event.EventID)

	query := url.Values{}
	query.Set("categoryId", strconv.FormatInt(event.CategoryID, 10))
	query.Set("withFees", "false")
	query.Set("withSeats", "false")

	referer := fmt.Sprintf("%s/event/%d/", c.cfg.BaseURL, event.EventID)
	result := c.dispatcher.Dispatch(ctx, dispatch.FetchRequest{
		Method: http.MethodPost,
		URL:    configURL,
		Query:  query,
		Header: c.headers(referer),
	}, sessionID)
	if !result.Ok() {
		return nil, result.Err
	}

	return decodeSeatingConfig(result.Body)
}

func (c *Client) headers(referer string) map[string]string {
	return map[string]string{
		"Accept":          "*/*",
		"Accept-Language": "en-GB,en-US;q=0.9,en;q=0.8",
		"Content-Length":  "0",
		"Content-Type":    "application/json",
		"Origin":          c.cfg.BaseURL,
		"Referer":         referer,
	}
}
