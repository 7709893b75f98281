package pipeline

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-tickets/models"
)

func testEvents() []*models.EventTickets {
	scrapedAt := time.Date(2025, 1, 26, 19, 0, 0, 0, time.UTC)
	return []*models.EventTickets{
		{
			EventID:        102,
			EventName:      "Knicks vs Celtics",
			EventDate:      "2025-02-01T19:30:00",
			Venue:          "Madison Square Garden",
			Zones:          []models.Zone{{ID: 2, Name: "Section 212", MinPrice: 95}},
			ScrapeDuration: 0.8,
			ScrapedAt:      scrapedAt,
		},
		{
			EventID:        101,
			EventName:      "Rangers vs Bruins",
			EventDate:      "2025-01-26T19:00:00",
			Venue:          "Madison Square Garden",
			Zones:          []models.Zone{{ID: 1, Name: "Floor A", MinPrice: 250.5, Recommended: true}},
			ScrapeDuration: 1.2,
			ScrapedAt:      scrapedAt,
		},
	}
}

func testSummary() *models.RunSummary {
	return &models.RunSummary{
		ScrapeTimestamp:     time.Date(2025, 1, 26, 20, 0, 0, 0, time.UTC),
		TotalEvents:         2,
		TotalAttempts:       3,
		FailedAttempts:      1,
		FailureRate:         33.33,
		TotalExecutionTime:  2.0,
		AverageTimePerEvent: 1.0,
	}
}

func TestReportWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.json")

	writer, err := NewReportWriter(path)
	if err != nil {
		t.Fatalf("create report writer: %v", err)
	}

	if err := writer.Write(testEvents()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.WriteSummary(testSummary()); err != nil {
		t.Fatalf("write summary: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var report models.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalEvents != 2 || report.FailedAttempts != 1 {
		t.Fatalf("unexpected summary: %+v", report.RunSummary)
	}
	if len(report.Events) != 2 {
		t.Fatalf("events=%d, want 2", len(report.Events))
	}
	if report.Events[0].EventID != 101 || report.Events[1].EventID != 102 {
		t.Fatalf("events not ordered by id: %d, %d", report.Events[0].EventID, report.Events[1].EventID)
	}
	if report.Events[0].Zones[0].Name != "Floor A" {
		t.Fatalf("unexpected zone: %+v", report.Events[0].Zones[0])
	}
}

func TestReportWriterValidateWithoutSummary(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewReportWriter(filepath.Join(dir, "results.json"))
	if err != nil {
		t.Fatalf("create report writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Write(testEvents()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("validate should fail before the summary is written")
	}
}

func TestJSONLWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.jsonl")

	writer, err := NewJSONLWriter(path)
	if err != nil {
		t.Fatalf("create jsonl writer: %v", err)
	}

	if err := writer.Write(testEvents()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.WriteSummary(testSummary()); err != nil {
		t.Fatalf("write summary: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open jsonl: %v", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan jsonl: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("lines=%d, want 2 events + 1 summary", len(lines))
	}

	var event models.EventTickets
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("decode first line: %v", err)
	}
	if event.EventID != 102 {
		t.Fatalf("first line event id = %d, want 102", event.EventID)
	}

	var summary models.RunSummary
	if err := json.Unmarshal([]byte(lines[2]), &summary); err != nil {
		t.Fatalf("decode summary line: %v", err)
	}
	if summary.TotalAttempts != 3 {
		t.Fatalf("summary attempts = %d, want 3", summary.TotalAttempts)
	}
}

func TestDualWriter(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "results.json")
	jsonlPath := filepath.Join(dir, "results.jsonl")

	writer, err := NewDualWriter(reportPath, jsonlPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write(testEvents()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.WriteSummary(testSummary()); err != nil {
		t.Fatalf("write summary: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, path := range []string{reportPath, jsonlPath} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", path)
		}
	}
}
