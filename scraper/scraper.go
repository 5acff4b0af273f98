package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-benco/config"
	"github.com/aluiziolira/go-scrape-benco/models"
	"github.com/aluiziolira/go-scrape-benco/parser"
	"github.com/gocolly/colly/v2"
)

// pageSize is how many products the storefront renders per grid page.
const pageSize = 24

// accKey indexes the per-request accumulator inside the colly context.
const accKey = "acc"

// Scraper wraps the colly collector that walks category search pages.
type Scraper struct {
	cfg       *config.Config
	base      *url.URL
	collector *colly.Collector
	Metrics   *Metrics
}

// PageResult holds everything parsed out of a single search page.
type PageResult struct {
	Products []*models.Product
	Dropped  int
	Catalog  *models.CategoryInfo
}

// pageAccumulator collects handler output for one request. The collector
// runs with parallelism 1 and Request blocks until handlers finish, so
// no locking is needed.
type pageAccumulator struct {
	page        int
	products    []*models.Product
	dropped     int
	ratings     map[string]parser.Rating
	catalog     *models.CategoryInfo
	status      int
	contentType string
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &Scraper{
		cfg:       cfg,
		base:      parsed,
		collector: collector,
		Metrics:   NewMetrics(),
	}
	s.configureHandlers()
	return s, nil
}

func (s *Scraper) configureHandlers() {
	s.collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Ctx.Put("start", time.Now())
		if s.Metrics != nil {
			s.Metrics.IncRequest("started")
		}
		if acc := accFromCtx(r.Ctx); acc != nil {
			slog.Debug("requesting page",
				slog.Int("page", acc.page),
				slog.String("url", r.URL.String()),
			)
		}
	})

	s.collector.OnResponse(func(r *colly.Response) {
		if acc := accFromCtx(r.Ctx); acc != nil {
			acc.status = r.StatusCode
			acc.contentType = r.Headers.Get("Content-Type")
		}
		if s.Metrics != nil {
			if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
				s.Metrics.ObserveDuration(time.Since(start))
			}
			s.Metrics.IncRequest("completed")
		}
	})

	s.collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
			if acc := accFromCtx(r.Ctx); acc != nil {
				acc.status = r.StatusCode
			}
		}
		category := errorTypeLabel(classifyError(err, statusCode))
		if s.Metrics != nil {
			s.Metrics.IncError(category)
		}
		slog.Debug("request error",
			slog.Int("status", statusCode),
			slog.String("category", category),
			slog.Any("error", err),
		)
	})

	s.collector.OnHTML("div.product-grid > div", func(e *colly.HTMLElement) {
		acc := accFromCtx(e.Request.Ctx)
		if acc == nil {
			return
		}
		product, ok := s.extractProduct(e.DOM, e.Request)
		if !ok {
			acc.dropped++
			if s.Metrics != nil {
				s.Metrics.IncDropped()
			}
			slog.Debug("dropping unparseable card", slog.Int("page", acc.page))
			return
		}
		acc.products = append(acc.products, product)
	})

	s.collector.OnHTML(`script[type="application/ld+json"]`, func(e *colly.HTMLElement) {
		acc := accFromCtx(e.Request.Ctx)
		if acc == nil {
			return
		}
		raw := e.Text
		if name, rating, ok := parser.ParseAggregateRating(raw); ok {
			acc.ratings[name] = rating
			return
		}
		if info, ok := parser.ParseOfferCatalog(raw); ok && acc.catalog == nil {
			acc.catalog = &info
		}
	})
}

// FetchPage requests one search page and returns the parsed products.
// Failures are reported as *FetchError so callers can retry.
func (s *Scraper) FetchPage(ctx context.Context, page int) (*PageResult, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1, got %d", page)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pageURL, err := s.searchURL(page)
	if err != nil {
		return nil, fmt.Errorf("build search url for page %d: %w", page, err)
	}

	acc := &pageAccumulator{
		page:    page,
		ratings: make(map[string]parser.Rating),
	}
	reqCtx := colly.NewContext()
	reqCtx.Put(accKey, acc)

	if err := s.collector.Request(http.MethodGet, pageURL, nil, reqCtx, nil); err != nil {
		return nil, &FetchError{
			Page:       page,
			StatusCode: acc.status,
			Err:        classifyError(err, acc.status),
		}
	}

	if !strings.Contains(strings.ToLower(acc.contentType), "html") {
		return nil, &FetchError{
			Page:       page,
			StatusCode: acc.status,
			Err:        fmt.Errorf("unparseable body: content type %q", acc.contentType),
		}
	}

	for _, product := range acc.products {
		if rating, ok := acc.ratings[product.Name]; ok {
			product.Rating = rating.Value
			product.ReviewCount = rating.Count
		}
	}

	return &PageResult{
		Products: acc.products,
		Dropped:  acc.dropped,
		Catalog:  acc.catalog,
	}, nil
}

// extractProduct parses one grid card. A card without a product link,
// SKU, or usable name is reported as not ok.
func (s *Scraper) extractProduct(card *goquery.Selection, req *colly.Request) (*models.Product, bool) {
	link := card.Find(`a[href*="/Product/"]`).First()
	href, ok := link.Attr("href")
	if !ok {
		return nil, false
	}

	sku, ok := parser.SKUFromHref(href)
	if !ok {
		return nil, false
	}

	price, brand := parser.PriceBrandFromCart(card.Find("button.add-to-cart-button").AttrOr("onclick", ""))

	product := &models.Product{
		SKU:             sku,
		Name:            parser.CleanName(link.Text()),
		Price:           price,
		Availability:    parser.ExtractAvailability(card.Text()),
		Brand:           brand,
		ProductCategory: s.cfg.CategoryName,
		ImageURL:        card.Find("img").First().AttrOr("src", ""),
		ProductURL:      req.AbsoluteURL(stripQuery(href)),
	}

	if err := parser.Validate(product); err != nil {
		return nil, false
	}
	return product, true
}

func accFromCtx(ctx *colly.Context) *pageAccumulator {
	if ctx == nil {
		return nil
	}
	acc, _ := ctx.GetAny(accKey).(*pageAccumulator)
	return acc
}

func stripQuery(href string) string {
	if i := strings.IndexByte(href, '?'); i >= 0 {
		return href[:i]
	}
	return href
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
