package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-benco/config"
	"github.com/aluiziolira/go-scrape-benco/models"
	"github.com/aluiziolira/go-scrape-benco/scraper"
	"github.com/aluiziolira/go-scrape-benco/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	defaultCfg := config.DefaultConfig()
	categoryDefault := defaultCfg.CategoryName
	if value, ok := config.EnvString("CATEGORY_NAME"); ok {
		categoryDefault = value
	}
	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("MAX_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid MAX_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		pagesDefault = value
	}
	minDelayDefault := defaultCfg.MinDelay.Seconds()
	if value, ok, err := config.EnvFloat("MIN_DELAY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid MIN_DELAY: %v\n", err)
		os.Exit(1)
	} else if ok {
		minDelayDefault = value
	}
	maxDelayDefault := defaultCfg.MaxDelay.Seconds()
	if value, ok, err := config.EnvFloat("MAX_DELAY"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid MAX_DELAY: %v\n", err)
		os.Exit(1)
	} else if ok {
		maxDelayDefault = value
	}
	storageDefault := defaultCfg.StorageType
	if value, ok := config.EnvString("STORAGE_TYPE"); ok {
		storageDefault = value
	}
	outputDefault := ""
	if value, ok := config.EnvString("OUTPUT_FILE"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("METRICS_ADDR"); ok {
		metricsDefault = value
	}

	category := flag.String("category", categoryDefault, "Catalog category to scrape")
	maxPages := flag.Int("pages", pagesDefault, "Maximum pages to scrape (0 scrapes every page the site reports)")
	minDelay := flag.Float64("min-delay", minDelayDefault, "Minimum delay between pages (seconds)")
	maxDelay := flag.Float64("max-delay", maxDelayDefault, "Maximum delay between pages (seconds)")
	storageType := flag.String("storage", storageDefault, "Storage backend: json or sqlite")
	outputFile := flag.String("output", outputDefault, "Output file path (default depends on storage backend)")
	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Base URL of the storefront")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "HTTP request timeout")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per page")
	retryBackoff := flag.Duration("retry-backoff", defaultCfg.RetryBackoff, "Initial retry backoff")
	retryBackoffMax := flag.Duration("retry-backoff-max", defaultCfg.RetryBackoffMax, "Maximum retry backoff")
	dedupeMax := flag.Int("dedupe-max", defaultCfg.DedupeMaxSize, "Maximum SKUs tracked for deduplication")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	respectRobots := flag.Bool("respect-robots", false, "Respect robots.txt directives")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := buildConfig(*baseURL, *category, *maxPages, *minDelay, *maxDelay, *timeout, *maxRetries, *retryBackoff, *retryBackoffMax, *storageType, *outputFile, *dedupeMax, *metricsAddr, *respectRobots, *verbose)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.String("category", cfg.CategoryName),
		slog.Int("pages", cfg.MaxPages),
		slog.String("storage", cfg.StorageType),
	)

	store, err := storage.New(cfg)
	if err != nil {
		slog.Error("initialising storage", slog.Any("error", err))
		os.Exit(1)
	}

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		closeStore(store)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
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

	stats, err := s.Run(ctx, store)
	if err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		closeStore(store)
		os.Exit(1)
	}

	if err := store.Close(); err != nil {
		slog.Error("close storage", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(stats, cfg.OutputFile)
}

func buildConfig(baseURL, category string, maxPages int, minDelaySec, maxDelaySec float64, timeout time.Duration, maxRetries int, retryBackoff, retryBackoffMax time.Duration, storageType, outputFile string, dedupeMax int, metricsAddr string, respectRobots, verbose bool) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.CategoryName = category
	cfg.MaxPages = maxPages
	cfg.MinDelay = secondsToDuration(minDelaySec)
	cfg.MaxDelay = secondsToDuration(maxDelaySec)
	cfg.Timeout = timeout
	cfg.MaxRetries = maxRetries
	cfg.RetryBackoff = retryBackoff
	cfg.RetryBackoffMax = retryBackoffMax
	cfg.StorageType = strings.ToLower(storageType)
	cfg.OutputFile = outputFile
	if cfg.OutputFile == "" {
		cfg.OutputFile = defaultOutput(cfg.StorageType)
	}
	cfg.DedupeMaxSize = dedupeMax
	cfg.MetricsAddr = metricsAddr
	cfg.RespectRobotsTxt = respectRobots
	cfg.Verbose = verbose
	return cfg
}

func defaultOutput(storageType string) string {
	if storageType == config.StorageSQLite {
		return "output/products.db"
	}
	return "output/products.json"
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

func closeStore(store storage.Store) {
	if err := store.Close(); err != nil {
		slog.Error("close storage", slog.Any("error", err))
	}
}

func printSummary(stats *models.Statistics, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	if stats.CategoryURL != "" {
		fmt.Printf("  Category URL:  %s\n", stats.CategoryURL)
	}
	fmt.Printf("  Detected:      %d\n", stats.TotalDetected)
	fmt.Printf("  Saved:         %d\n", stats.TotalSaved)
	fmt.Printf("  Skipped:       %d\n", stats.TotalSkipped)
	fmt.Printf("  Missing price: %d\n", stats.MissingPrice)
	fmt.Printf("  Started:       %s\n", stats.StartedAt)
	fmt.Printf("  Finished:      %s\n", stats.FinishedAt)
	fmt.Printf("  Duration:      %.2fs\n", stats.DurationSeconds)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
