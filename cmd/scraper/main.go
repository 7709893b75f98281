package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-tickets/config"
	"github.com/aluiziolira/go-scrape-tickets/models"
	"github.com/aluiziolira/go-scrape-tickets/pipeline"
	"github.com/aluiziolira/go-scrape-tickets/scraper"
)

func main() {
	config.LoadDotEnv()

	defaultCfg := config.DefaultConfig()
	proxiesDefault := ""
	if value, ok := config.EnvString("SCRAPER_PROXIES"); ok {
		proxiesDefault = value
	}
	outputDefault := defaultOutputFile()
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := ""
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	retriesDefault := defaultCfg.MaxRetries
	if value, ok, err := config.EnvInt("SCRAPER_MAX_RETRIES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_MAX_RETRIES: %v\n", err)
		os.Exit(1)
	} else if ok {
		retriesDefault = value
	}

	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Ticketing site base URL")
	venuePath := flag.String("venue-path", defaultCfg.VenuePath, "Venue listing path for event discovery")
	venueID := flag.String("venue-id", defaultCfg.VenueID, "Venue identifier for the events query")
	maxEvents := flag.Int("max-events", defaultCfg.MaxEvents, "Maximum events to fetch from the listing")
	proxies := flag.String("proxies", proxiesDefault, "Comma-separated proxy descriptors (host:port:user:pass)")
	proxyFile := flag.String("proxy-file", "", "File with one proxy descriptor per line")
	maxRetries := flag.Int("max-retries", retriesDefault, "Maximum retry attempts per request")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff.Milliseconds()), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax.Milliseconds()), "Maximum retry backoff (milliseconds)")
	rateLimitBackoffMs := flag.Int("ratelimit-backoff", int(defaultCfg.RateLimitBackoff.Milliseconds()), "Initial rate-limit backoff (milliseconds)")
	rateLimitBackoffMaxMs := flag.Int("ratelimit-backoff-max", int(defaultCfg.RateLimitBackoffMax.Milliseconds()), "Maximum rate-limit backoff (milliseconds)")
	timeoutMs := flag.Int("timeout", int(defaultCfg.Timeout.Milliseconds()), "Per-request timeout (milliseconds)")
	runTimeoutMs := flag.Int("run-timeout", 0, "Run-level timeout, 0 for none (milliseconds)")
	recommendedOnly := flag.Bool("recommended-only", false, "Keep only recommended ticket zones")
	betterValueOnly := flag.Bool("better-value-only", false, "Keep only better-value ticket zones")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: report, jsonl, or dual")
	logFile := flag.String("log-file", defaultCfg.LogFile, "Log file path (empty disables file logging)")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level, logCloser, err := newLogger(*verbose, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configure logging: %v\n", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	proxyList := config.SplitProxyList(*proxies)
	if *proxyFile != "" {
		fromFile, err := config.LoadProxyFile(*proxyFile)
		if err != nil {
			slog.Error("loading proxy file", slog.Any("error", err))
			os.Exit(1)
		}
		proxyList = append(proxyList, fromFile...)
	}

	cfg := buildConfigFromFlags(defaultCfg, *baseURL, *venuePath, *venueID, *maxEvents, proxyList,
		*maxRetries, *retryBackoffMs, *retryBackoffMaxMs, *rateLimitBackoffMs, *rateLimitBackoffMaxMs,
		*timeoutMs, *runTimeoutMs, *recommendedOnly, *betterValueOnly,
		*outputFile, *outputFormat, *logFile, *metricsAddr, *verbose)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.String("venue_path", cfg.VenuePath),
		slog.Int("proxies", len(cfg.Proxies)),
		slog.Int("max_events", cfg.MaxEvents),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight sessions to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p, err := pipeline.NewPipeline(ctx, writer, cfg)
	if err != nil {
		slog.Error("initialising pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	p.Start(len(cfg.Proxies))
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, err := s.Run(ctx, p)
	if err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	pipelineMetrics := p.GetMetrics()
	summary := buildSummary(result, pipelineMetrics)
	if err := writer.WriteSummary(summary); err != nil {
		slog.Error("writing report summary failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, summary, cfg.OutputFile)
}

func defaultOutputFile() string {
	return fmt.Sprintf("output/stubhub_results_%s.json", time.Now().Format("20060102_150405"))
}

func buildConfigFromFlags(cfg *config.Config, baseURL, venuePath, venueID string, maxEvents int, proxies []string,
	maxRetries, retryBackoffMs, retryBackoffMaxMs, rateLimitBackoffMs, rateLimitBackoffMaxMs,
	timeoutMs, runTimeoutMs int, recommendedOnly, betterValueOnly bool,
	outputFile, outputFormat, logFile, metricsAddr string, verbose bool) *config.Config {
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	cfg.VenuePath = venuePath
	cfg.VenueID = venueID
	cfg.MaxEvents = maxEvents
	cfg.Proxies = proxies
	cfg.MaxRetries = maxRetries
	cfg.RetryBackoff = time.Duration(retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(retryBackoffMaxMs) * time.Millisecond
	cfg.RateLimitBackoff = time.Duration(rateLimitBackoffMs) * time.Millisecond
	cfg.RateLimitBackoffMax = time.Duration(rateLimitBackoffMaxMs) * time.Millisecond
	cfg.Timeout = time.Duration(timeoutMs) * time.Millisecond
	cfg.RunTimeout = time.Duration(runTimeoutMs) * time.Millisecond
	cfg.RecommendedOnly = recommendedOnly
	cfg.BetterValueOnly = betterValueOnly
	cfg.OutputFile = outputFile
	cfg.OutputFormat = strings.ToLower(outputFormat)
	cfg.LogFile = logFile
	cfg.MetricsAddr = metricsAddr
	cfg.Verbose = verbose
	return cfg
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "report":
		return pipeline.NewReportWriter(filename)
	case "jsonl":
		return pipeline.NewJSONLWriter(filename)
	case "dual":
		jsonlFilename := strings.TrimSuffix(filename, ".json") + ".jsonl"
		return pipeline.NewDualWriter(filename, jsonlFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func buildSummary(result *models.ScrapeResult, pipelineMetrics map[string]interface{}) *models.RunSummary {
	processed := int64(0)
	if value, ok := pipelineMetrics["processed_events"].(int64); ok {
		processed = value
	}

	failureRate := 0.0
	if result.RequestCount > 0 {
		failureRate = float64(result.ErrorCount) / float64(result.RequestCount) * 100
	}

	totalTime := result.EndTime.Sub(result.StartTime).Seconds()
	avgTime := 0.0
	if processed > 0 {
		avgTime = totalTime / float64(processed)
	}

	return &models.RunSummary{
		ScrapeTimestamp:     result.EndTime,
		TotalEvents:         int(processed),
		TotalAttempts:       result.RequestCount,
		FailedAttempts:      result.ErrorCount,
		FailureRate:         failureRate,
		TotalExecutionTime:  totalTime,
		AverageTimePerEvent: avgTime,
	}
}

func printSummary(result *models.ScrapeResult, summary *models.RunSummary, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	fmt.Println("\nPerformance criteria:")
	fmt.Printf("  Avg time per event:  %.2fs (target < 2s: %s)\n", summary.AverageTimePerEvent, passFail(summary.AverageTimePerEvent < 2))
	fmt.Printf("  Failed attempts:     %d\n", summary.FailedAttempts)
	fmt.Printf("  Failure rate:        %.2f%% (target < 15%%: %s)\n", summary.FailureRate, passFail(summary.FailureRate < 15))

	fmt.Println("\nScraping statistics:")
	fmt.Printf("  Events found:   %d\n", result.EventCount)
	fmt.Printf("  Events written: %d\n", summary.TotalEvents)
	fmt.Printf("  Attempts:       %d\n", summary.TotalAttempts)
	fmt.Printf("  Retries:        %d\n", result.RetryCount)
	fmt.Printf("  Failed events:  %d\n", len(result.FailedEvents))
	for _, name := range result.FailedEvents {
		fmt.Printf("    - %s\n", name)
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:    %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:       %.2fs\n", summary.TotalExecutionTime)
	fmt.Printf("  Output file:    %s\n", outputFile)
	fmt.Println(separator)
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func newLogger(verbose bool, logFile string) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var output io.Writer = os.Stdout
	var closer io.Closer
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open log file: %w", err)
		}
		output = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) && logFile == "" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler), level, closer, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
