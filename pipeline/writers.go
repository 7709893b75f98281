package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aluiziolira/go-scrape-tickets/models"
)

// ReportWriter buffers events and writes a single report document containing
// the run statistics and all scraped events.
type ReportWriter struct {
	file   *os.File
	mu     sync.Mutex
	events []*models.EventTickets
	wrote  bool
}

// NewReportWriter initialises the report writer.
func NewReportWriter(filename string) (*ReportWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}

	return &ReportWriter{file: f}, nil
}

// Write buffers events until the summary arrives.
func (rw *ReportWriter) Write(events []*models.EventTickets) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	rw.events = append(rw.events, events...)
	return nil
}

// WriteSummary assembles and persists the full report document. Events are
// ordered by id so output is stable across runs.
func (rw *ReportWriter) WriteSummary(summary *models.RunSummary) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	sort.Slice(rw.events, func(i, j int) bool {
		return rw.events[i].EventID < rw.events[j].EventID
	})

	report := models.Report{
		RunSummary: *summary,
		Events:     rw.events,
	}
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if _, err := rw.file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	rw.wrote = true
	return nil
}

// Close closes the underlying file.
func (rw *ReportWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.file.Close()
}

// Validate ensures the report document was written.
func (rw *ReportWriter) Validate() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if !rw.wrote {
		return fmt.Errorf("report was never written")
	}
	info, err := rw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat report file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("report file is empty")
	}
	return nil
}

// JSONLWriter streams newline-delimited JSON records as events arrive; the
// run summary is appended as the final record.
type JSONLWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONLWriter initialises the JSONL writer.
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONLWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends events in JSONL format.
func (jw *JSONLWriter) Write(events []*models.EventTickets) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, event := range events {
		if err := jw.encoder.Encode(event); err != nil {
			return fmt.Errorf("encode jsonl record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}

	return nil
}

// WriteSummary appends the run statistics as the trailing record.
func (jw *JSONLWriter) WriteSummary(summary *models.RunSummary) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.encoder.Encode(summary); err != nil {
		return fmt.Errorf("encode jsonl summary: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSONL file has data.
func (jw *JSONLWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat jsonl file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("jsonl file is empty")
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
