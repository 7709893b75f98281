package pipeline

import (
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-tickets/models"
)

// DualWriter outputs to both the report document and a JSONL stream.
type DualWriter struct {
	reportWriter *ReportWriter
	jsonlWriter  *JSONLWriter
	mu           sync.Mutex
}

// NewDualWriter creates a writer producing both output files.
func NewDualWriter(reportFilename, jsonlFilename string) (*DualWriter, error) {
	reportWriter, err := NewReportWriter(reportFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to create report writer: %w", err)
	}

	jsonlWriter, err := NewJSONLWriter(jsonlFilename)
	if err != nil {
		reportWriter.Close()
		return nil, fmt.Errorf("failed to create JSONL writer: %w", err)
	}

	return &DualWriter{
		reportWriter: reportWriter,
		jsonlWriter:  jsonlWriter,
	}, nil
}

// Write writes events to both outputs.
func (dw *DualWriter) Write(events []*models.EventTickets) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.reportWriter.Write(events); err != nil {
		return fmt.Errorf("report write failed: %w", err)
	}

	if err := dw.jsonlWriter.Write(events); err != nil {
		return fmt.Errorf("JSONL write failed: %w", err)
	}

	return nil
}

// WriteSummary records the run statistics in both outputs.
func (dw *DualWriter) WriteSummary(summary *models.RunSummary) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.reportWriter.WriteSummary(summary); err != nil {
		return fmt.Errorf("report summary failed: %w", err)
	}

	if err := dw.jsonlWriter.WriteSummary(summary); err != nil {
		return fmt.Errorf("JSONL summary failed: %w", err)
	}

	return nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error

	if err := dw.reportWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("report close failed: %w", err))
	}

	if err := dw.jsonlWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("JSONL close failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}

	return nil
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error

	if err := dw.reportWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("report validation failed: %w", err))
	}

	if err := dw.jsonlWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("JSONL validation failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}
