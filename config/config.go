package config

import (
	"fmt"
	"net/url"
	"time"
)

// Storage type values accepted by Config.StorageType.
const (
	StorageJSON   = "json"
	StorageSQLite = "sqlite"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL          string
	CategoryName     string
	MaxPages         int // 0 scrapes every page the site reports
	MinDelay         time.Duration
	MaxDelay         time.Duration
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	StorageType      string // json or sqlite
	OutputFile       string
	UserAgent        string
	DedupeMaxSize    int
	MetricsAddr      string
	Verbose          bool
	RespectRobotsTxt bool
}

// DefaultConfig returns conservative defaults for the Benco storefront.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://shop.benco.com",
		CategoryName:     "Acrylics & Relines",
		MaxPages:         2,
		MinDelay:         1 * time.Second,
		MaxDelay:         3 * time.Second,
		Timeout:          30 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		StorageType:      StorageJSON,
		OutputFile:       "output/products.json",
		UserAgent:        "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36",
		DedupeMaxSize:    100000,
		MetricsAddr:      "",
		Verbose:          false,
		RespectRobotsTxt: false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.CategoryName == "" {
		return fmt.Errorf("category name cannot be empty")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("min delay cannot be negative")
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("max delay (%s) cannot be below min delay (%s)", c.MaxDelay, c.MinDelay)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.StorageType != StorageJSON && c.StorageType != StorageSQLite {
		return fmt.Errorf("storage type must be json or sqlite")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}
