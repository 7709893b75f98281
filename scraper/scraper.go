// Package scraper orchestrates a scrape run: one session per proxy endpoint,
// requests serialized within each session to preserve stickiness.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-tickets/config"
	"github.com/aluiziolira/go-scrape-tickets/dispatch"
	"github.com/aluiziolira/go-scrape-tickets/models"
	"github.com/aluiziolira/go-scrape-tickets/pipeline"
	"github.com/aluiziolira/go-scrape-tickets/proxy"
	"github.com/aluiziolira/go-scrape-tickets/stubhub"
)

// Scraper wires the proxy pool, dispatcher, and API client for one run.
type Scraper struct {
	cfg        *config.Config
	pool       *proxy.Pool
	dispatcher *dispatch.Dispatcher
	client     *stubhub.Client
	Metrics    *dispatch.Metrics

	attemptCount int64
	failedCount  int64
	retryCount   int64

	mu           sync.Mutex
	failedEvents []string
	errorsByType map[string]int
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	pool, err := proxy.NewPool(cfg.Proxies)
	if err != nil {
		return nil, fmt.Errorf("build proxy pool: %w", err)
	}

	s := &Scraper{
		cfg:          cfg,
		pool:         pool,
		Metrics:      dispatch.NewMetrics(),
		errorsByType: make(map[string]int),
	}
	s.dispatcher = dispatch.NewDispatcher(cfg, pool,
		dispatch.WithMetrics(s.Metrics),
		dispatch.WithObserver(dispatch.ObserverFunc(s.observeAttempt)),
	)
	s.client = stubhub.NewClient(cfg, s.dispatcher)
	return s, nil
}

// Dispatcher exposes the underlying dispatcher, mainly for tests.
func (s *Scraper) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Run fetches the event listing, scrapes tickets for every event through the
// sticky sessions, and streams results into the pipeline.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	sessions := s.pool.Sessions()

	events, err := s.client.TrendingEvents(ctx, sessions[0])
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	slog.Info("fetched event listing", slog.Int("events", len(events)))

	eventCh := make(chan models.Event)
	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(1)
		go func(session string) {
			defer wg.Done()
			for event := range eventCh {
				s.scrapeEvent(ctx, event, session, p)
			}
		}(session)
	}

feed:
	for _, event := range events {
		select {
		case <-ctx.Done():
			break feed
		case eventCh <- event:
		}
	}
	close(eventCh)
	wg.Wait()

	return &models.ScrapeResult{
		StartTime:    start,
		EndTime:      time.Now(),
		EventCount:   len(events),
		RequestCount: int(atomic.LoadInt64(&s.attemptCount)),
		ErrorCount:   int(atomic.LoadInt64(&s.failedCount)),
		RetryCount:   int(atomic.LoadInt64(&s.retryCount)),
		FailedEvents: s.snapshotFailedEvents(),
		ErrorsByType: s.snapshotErrors(),
	}, nil
}

func (s *Scraper) scrapeEvent(ctx context.Context, event models.Event, session string, p *pipeline.Pipeline) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	seating, err := s.client.SeatingConfig(ctx, event, session)
	duration := time.Since(start)

	if err != nil {
		atomic.AddInt64(&s.failedCount, 1)
		kind := dispatch.KindLabel(err)

		s.mu.Lock()
		s.errorsByType[kind]++
		s.failedEvents = append(s.failedEvents, fmt.Sprintf("%s (%d)", event.EventName, event.EventID))
		s.mu.Unlock()

		slog.Error("event scrape failed",
			slog.Int64("event_id", event.EventID),
			slog.String("event", event.EventName),
			slog.String("session", session),
			slog.String("category", kind),
			slog.Any("error", err),
		)
		return
	}

	s.Metrics.IncEvents()
	slog.Debug("event scraped",
		slog.Int64("event_id", event.EventID),
		slog.String("event", event.EventName),
		slog.Int("zones", len(seating.Zones)),
		slog.Duration("duration", duration),
	)

	tickets := &models.EventTickets{
		EventID:        event.EventID,
		EventName:      event.EventName,
		EventDate:      event.LocalEventDateTime,
		Venue:          event.VenueName,
		CategoryID:     event.CategoryID,
		Zones:          seating.Zones,
		ScrapeDuration: duration.Seconds(),
		ScrapedAt:      time.Now(),
	}
	if err := p.Process(tickets); err != nil && err != pipeline.ErrPipelineClosed {
		slog.Error("pipeline process error", slog.Any("error", err))
	}
}

// observeAttempt is the dispatcher's default observer: it logs each attempt
// and keeps the run counters.
func (s *Scraper) observeAttempt(a dispatch.Attempt) {
	atomic.AddInt64(&s.attemptCount, 1)
	if a.Backoff > 0 {
		atomic.AddInt64(&s.retryCount, 1)
	}

	if a.Err == nil {
		slog.Debug("request attempt",
			slog.String("url", a.URL),
			slog.String("proxy", a.Proxy),
			slog.Int("attempt", a.Number),
			slog.Int("status", a.Status),
		)
		return
	}
	slog.Warn("request attempt failed",
		slog.String("url", a.URL),
		slog.String("proxy", a.Proxy),
		slog.Int("attempt", a.Number),
		slog.Int("status", a.Status),
		slog.String("category", dispatch.KindLabel(a.Err)),
		slog.Duration("backoff", a.Backoff),
		slog.Any("error", a.Err),
	)
}

func (s *Scraper) snapshotFailedEvents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedEvents))
	copy(out, s.failedEvents)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
