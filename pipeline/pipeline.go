// Package pipeline filters, de-duplicates, and persists scraped events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-tickets/config"
	"github.com/aluiziolira/go-scrape-tickets/models"
	"github.com/aluiziolira/go-scrape-tickets/stubhub"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(events []*models.EventTickets) error
	WriteSummary(summary *models.RunSummary) error
	Close() error
	Validate() error
}

// Pipeline coordinates validation, filtering, de-duplication, and output
// writing.
type Pipeline struct {
	cfg       *config.Config
	writer    OutputWriter
	eventCh   chan *models.EventTickets
	batchSize int

	wg sync.WaitGroup

	seen *lru.Cache[int64, struct{}]

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline with a bounded in-memory buffer. The context
// aborts enqueuing when the run is canceled.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) (*Pipeline, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	seen, err := lru.New[int64, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	p := &Pipeline{
		cfg:       cfg,
		writer:    writer,
		eventCh:   make(chan *models.EventTickets, cfg.PipelineBufferSize),
		batchSize: cfg.BatchSize,
		seen:      seen,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
	go func() {
		select {
		case <-ctx.Done():
			p.signalShutdown()
		case <-p.shutdown:
		}
	}()
	return p, nil
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues an event for downstream processing.
func (p *Pipeline) Process(event *models.EventTickets) error {
	if event == nil {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	return p.enqueue(event)
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
	}
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.eventCh)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := p.GetMetrics()
				processed := snapshot["processed_events"].(int64)
				dropped := snapshot["dropped_events"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("dropped_kinds", len(dropped)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.EventTickets, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for event := range p.eventCh {
		prepared := p.prepare(event)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(event *models.EventTickets) *models.EventTickets {
	if err := stubhub.ValidateTickets(event); err != nil {
		p.metrics.addDropped("invalid_record")
		return nil
	}

	if existed, _ := p.seen.ContainsOrAdd(event.EventID, struct{}{}); existed {
		p.metrics.addDropped("duplicate_event")
		return nil
	}

	kept, removed := FilterZones(event.Zones, p.cfg.RecommendedOnly, p.cfg.BetterValueOnly)
	event.Zones = kept
	if removed > 0 {
		p.metrics.addFilteredZones(removed)
	}
	if len(event.Zones) == 0 && (p.cfg.RecommendedOnly || p.cfg.BetterValueOnly) {
		p.metrics.addDropped("no_matching_zones")
		return nil
	}

	p.metrics.incrementProcessed()
	return event
}

// FilterZones keeps only the zones matching the active boolean filters and
// reports how many were removed. With both filters off, all zones pass.
func FilterZones(zones []models.Zone, recommendedOnly, betterValueOnly bool) ([]models.Zone, int) {
	if !recommendedOnly && !betterValueOnly {
		return zones, 0
	}

	kept := make([]models.Zone, 0, len(zones))
	for _, zone := range zones {
		if recommendedOnly && !zone.Recommended {
			continue
		}
		if betterValueOnly && !zone.BetterValue {
			continue
		}
		kept = append(kept, zone)
	}
	return kept, len(zones) - len(kept)
}

func (p *Pipeline) enqueue(event *models.EventTickets) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.eventCh <- event:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.eventCh)
	})
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu            sync.Mutex
	processed     int64
	filteredZones int64
	dropped       map[string]int
}

func newMetrics() metrics {
	return metrics{
		dropped: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addFilteredZones(n int) {
	m.mu.Lock()
	m.filteredZones += int64(n)
	m.mu.Unlock()
}

func (m *metrics) addDropped(kind string) {
	m.mu.Lock()
	m.dropped[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyDropped := make(map[string]int, len(m.dropped))
	for k, v := range m.dropped {
		copyDropped[k] = v
	}

	return map[string]interface{}{
		"processed_events": m.processed,
		"filtered_zones":   m.filteredZones,
		"dropped_events":   copyDropped,
	}
}
