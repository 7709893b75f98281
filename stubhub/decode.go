package stubhub

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-tickets/models"
)

type eventsResponse struct {
	Items []models.Event `json:"items"`
}

// decodeEvents parses the trending-events payload, dropping entries that
// lack the fields downstream processing requires.
func decodeEvents(body []byte) ([]models.Event, error) {
	var parsed eventsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode events response: %w", err)
	}

	events := make([]models.Event, 0, len(parsed.Items))
	for _, event := range parsed.Items {
		if ValidateEvent(event) != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// decodeSeatingConfig parses the venue-map payload for one event.
func decodeSeatingConfig(body []byte) (*models.SeatingConfig, error) {
	var parsed models.SeatingConfig
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode seating config response: %w", err)
	}
	return &parsed, nil
}

// ValidateEvent ensures the listing captured the required fields.
func ValidateEvent(event models.Event) error {
	if event.EventID <= 0 {
		return fmt.Errorf("event missing id")
	}
	if strings.TrimSpace(event.EventName) == "" {
		return fmt.Errorf("event %d missing name", event.EventID)
	}
	return nil
}

// ValidateTickets ensures a scraped ticket record carries the required
// fields before it is persisted.
func ValidateTickets(event *models.EventTickets) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	if event.EventID <= 0 {
		return fmt.Errorf("event missing id")
	}
	if strings.TrimSpace(event.EventName) == "" {
		return fmt.Errorf("event %d missing name", event.EventID)
	}
	return nil
}
