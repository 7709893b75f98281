package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-tickets/config"
	"github.com/aluiziolira/go-scrape-tickets/models"
)

type collectingWriter struct {
	mu      sync.Mutex
	events  []*models.EventTickets
	summary *models.RunSummary
}

func (cw *collectingWriter) Write(events []*models.EventTickets) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.events = append(cw.events, events...)
	return nil
}

func (cw *collectingWriter) WriteSummary(summary *models.RunSummary) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.summary = summary
	return nil
}

func (cw *collectingWriter) Close() error {
	return nil
}

func (cw *collectingWriter) Validate() error {
	return nil
}

func (cw *collectingWriter) Count() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return len(cw.events)
}

func (cw *collectingWriter) All() []*models.EventTickets {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	out := make([]*models.EventTickets, len(cw.events))
	copy(out, cw.events)
	return out
}

func sampleEvent(id int64, zones ...models.Zone) *models.EventTickets {
	return &models.EventTickets{
		EventID:   id,
		EventName: fmt.Sprintf("Event %d", id),
		Venue:     "Madison Square Garden",
		Zones:     zones,
	}
}

func TestFilterZones(t *testing.T) {
	zones := []models.Zone{
		{ID: 1, Name: "Floor A", Recommended: true, BetterValue: false},
		{ID: 2, Name: "Section 212", Recommended: false, BetterValue: true},
		{ID: 3, Name: "Balcony", Recommended: true, BetterValue: true},
		{ID: 4, Name: "Obstructed", Recommended: false, BetterValue: false},
	}

	tests := []struct {
		name            string
		recommendedOnly bool
		betterValueOnly bool
		wantIDs         []int64
	}{
		{name: "no filters", wantIDs: []int64{1, 2, 3, 4}},
		{name: "recommended only", recommendedOnly: true, wantIDs: []int64{1, 3}},
		{name: "better value only", betterValueOnly: true, wantIDs: []int64{2, 3}},
		{name: "both", recommendedOnly: true, betterValueOnly: true, wantIDs: []int64{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, removed := FilterZones(zones, tt.recommendedOnly, tt.betterValueOnly)
			if len(kept) != len(tt.wantIDs) {
				t.Fatalf("kept %d zones, want %d", len(kept), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if kept[i].ID != id {
					t.Fatalf("zone %d = id %d, want %d", i, kept[i].ID, id)
				}
			}
			if removed != len(zones)-len(tt.wantIDs) {
				t.Fatalf("removed = %d, want %d", removed, len(zones)-len(tt.wantIDs))
			}
		})
	}
}

func TestPipelineFiltersAndWrites(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RecommendedOnly = true
	cfg.BatchSize = 1

	writer := &collectingWriter{}
	p, err := NewPipeline(context.Background(), writer, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(2)

	recommended := models.Zone{ID: 1, Recommended: true}
	plain := models.Zone{ID: 2}

	if err := p.Process(sampleEvent(101, recommended, plain)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Process(sampleEvent(102, plain)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if writer.Count() != 1 {
		t.Fatalf("events written = %d, want 1", writer.Count())
	}
	kept := writer.All()[0]
	if kept.EventID != 101 || len(kept.Zones) != 1 || kept.Zones[0].ID != 1 {
		t.Fatalf("unexpected kept event: %+v", kept)
	}

	metrics := p.GetMetrics()
	dropped := metrics["dropped_events"].(map[string]int)
	if dropped["no_matching_zones"] != 1 {
		t.Fatalf("dropped = %v, want one no_matching_zones", dropped)
	}
	if metrics["filtered_zones"].(int64) != 2 {
		t.Fatalf("filtered_zones = %v, want 2", metrics["filtered_zones"])
	}
}

func TestPipelineDeduplicatesEvents(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	writer := &collectingWriter{}
	p, err := NewPipeline(context.Background(), writer, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(1)

	zone := models.Zone{ID: 1}
	for i := 0; i < 3; i++ {
		if err := p.Process(sampleEvent(101, zone)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if writer.Count() != 1 {
		t.Fatalf("events written = %d, want 1 after dedupe", writer.Count())
	}
	metrics := p.GetMetrics()
	dropped := metrics["dropped_events"].(map[string]int)
	if dropped["duplicate_event"] != 2 {
		t.Fatalf("duplicate drops = %d, want 2", dropped["duplicate_event"])
	}
}

func TestPipelineDropsInvalidRecords(t *testing.T) {
	cfg := config.DefaultConfig()

	writer := &collectingWriter{}
	p, err := NewPipeline(context.Background(), writer, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(1)

	if err := p.Process(&models.EventTickets{EventID: 0, EventName: "no id"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if writer.Count() != 0 {
		t.Fatalf("events written = %d, want 0", writer.Count())
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	cfg := config.DefaultConfig()

	writer := &collectingWriter{}
	p, err := NewPipeline(context.Background(), writer, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := p.Process(sampleEvent(101)); err != ErrPipelineClosed {
		t.Fatalf("process after close = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineContextCancelStopsIntake(t *testing.T) {
	cfg := config.DefaultConfig()

	ctx, cancel := context.WithCancel(context.Background())
	writer := &collectingWriter{}
	p, err := NewPipeline(ctx, writer, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start(1)

	cancel()

	// The shutdown signal propagates asynchronously; eventually Process
	// must refuse new work.
	deadline := make(chan struct{})
	go func() {
		for {
			if err := p.Process(sampleEvent(101, models.Zone{ID: 1})); err == ErrPipelineClosed {
				close(deadline)
				return
			}
		}
	}()
	<-deadline

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func BenchmarkPipelineThroughput(b *testing.B) {
	cfg := config.DefaultConfig()
	cfg.DedupeMaxSize = 5000000

	for _, workers := range []int{1, 5, 16} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			writer := &collectingWriter{}
			p, err := NewPipeline(context.Background(), writer, cfg)
			if err != nil {
				b.Fatalf("new pipeline: %v", err)
			}
			p.Start(workers)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				event := sampleEvent(int64(i+1), models.Zone{ID: 1})
				if err := p.Process(event); err != nil {
					b.Fatalf("process: %v", err)
				}
			}
			b.StopTimer()
			if err := p.Close(); err != nil {
				b.Fatalf("close: %v", err)
			}
		})
	}
}
