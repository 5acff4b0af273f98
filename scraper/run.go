package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/aluiziolira/go-scrape-benco/models"
	"github.com/aluiziolira/go-scrape-benco/storage"
)

// Run walks the category search pages in order, persisting each new
// product as it is parsed, and returns the run statistics. Pages that
// keep failing after retries are skipped, not fatal.
func (s *Scraper) Run(ctx context.Context, store storage.Store) (*models.Statistics, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	stats := models.NewStatistics(time.Now())
	seen, err := newSeenSet(s.cfg.DedupeMaxSize)
	if err != nil {
		return nil, err
	}

	sitePages := 0
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			slog.Info("scrape cancelled", slog.Int("page", page))
			break
		}

		result, err := s.fetchPageWithRetry(ctx, page)
		if err != nil {
			slog.Warn("skipping page", slog.Int("page", page), slog.Any("error", err))
			result = &PageResult{}
		}

		if page == 1 && result.Catalog != nil {
			stats.CategoryURL = result.Catalog.URL
			sitePages = pageCount(result.Catalog.TotalProducts)
			slog.Info("category detected",
				slog.String("name", result.Catalog.Name),
				slog.Int("total_products", result.Catalog.TotalProducts),
				slog.Int("pages", sitePages),
			)
		}

		saved, skipped := s.persistPage(result, seen, store, stats)
		if s.Metrics != nil {
			s.Metrics.IncPages()
		}
		slog.Info("page complete",
			slog.Int("page", page),
			slog.Int("detected", len(result.Products)),
			slog.Int("saved", saved),
			slog.Int("skipped", skipped),
			slog.Int("dropped", result.Dropped),
		)

		if s.lastPage(page, sitePages, len(result.Products)) {
			break
		}
		if !s.sleepBetweenPages(ctx) {
			break
		}
	}

	stats.Finalize(time.Now())
	if err := store.SaveStatistics(*stats); err != nil {
		return stats, fmt.Errorf("save statistics: %w", err)
	}
	return stats, nil
}

// persistPage counts every parsed product and saves the ones not seen
// before. Persistence failures skip the record rather than abort the run.
func (s *Scraper) persistPage(result *PageResult, seen *seenSet, store storage.Store, stats *models.Statistics) (saved, skipped int) {
	skip := func() {
		stats.TotalSkipped++
		skipped++
		if s.Metrics != nil {
			s.Metrics.IncSkipped()
		}
	}

	for _, product := range result.Products {
		stats.TotalDetected++
		if s.Metrics != nil {
			s.Metrics.IncDetected()
		}
		if product.Price == "" {
			stats.MissingPrice++
		}

		if !seen.IsNew(product.SKU) {
			skip()
			continue
		}

		inserted, err := store.SaveProduct(product)
		if err != nil {
			slog.Error("save product failed",
				slog.String("sku", product.SKU),
				slog.Any("error", err),
			)
			skip()
			continue
		}
		if !inserted {
			skip()
			continue
		}

		seen.MarkSeen(product.SKU)
		stats.TotalSaved++
		saved++
		if s.Metrics != nil {
			s.Metrics.IncSaved()
		}
	}
	return saved, skipped
}

// lastPage reports whether the crawl is done after this page: the
// configured cap is hit, the site-advertised page count is reached, or
// an uncapped run with no advertised total sees an empty page. A page
// that yields nothing mid-catalog (failed fetch, promo-only grid) does
// not end the crawl while the site still reports pages ahead.
func (s *Scraper) lastPage(page, sitePages, got int) bool {
	if s.cfg.MaxPages > 0 && page >= s.cfg.MaxPages {
		return true
	}
	if sitePages > 0 && page >= sitePages {
		return true
	}
	if s.cfg.MaxPages == 0 && sitePages == 0 && got == 0 {
		return true
	}
	return false
}

func (s *Scraper) fetchPageWithRetry(ctx context.Context, page int) (*PageResult, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if s.Metrics != nil {
				s.Metrics.IncRetries()
			}
			if !sleepContext(ctx, retryBackoff(s.cfg.RetryBackoff, s.cfg.RetryBackoffMax, attempt)) {
				break
			}
		}

		result, err := s.FetchPage(ctx, page)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		slog.Warn("page fetch failed",
			slog.Int("page", page),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}
	return nil, lastErr
}

func retryBackoff(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	// Cap the shift so deep retry counts cannot overflow the multiply
	// into a negative delay.
	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}
	delay := base * time.Duration(1<<shift)
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

// sleepBetweenPages applies the politeness delay. Returns false when the
// context was cancelled while waiting.
func (s *Scraper) sleepBetweenPages(ctx context.Context) bool {
	delay := s.cfg.MinDelay
	if spread := s.cfg.MaxDelay - s.cfg.MinDelay; spread > 0 {
		delay += time.Duration(rand.Float64() * float64(spread))
	}
	if delay <= 0 {
		return ctx.Err() == nil
	}
	slog.Info("waiting before next page", slog.Duration("delay", delay))
	return sleepContext(ctx, delay)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func pageCount(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
