// Package models defines data structures for the scraper.
package models

// Product represents one catalog item parsed from a category search page.
// Price, Rating and ReviewCount stay empty when the site does not expose
// them; empty optionals are omitted from JSON output.
type Product struct {
	SKU             string `json:"sku"`
	Name            string `json:"name"`
	Price           string `json:"price,omitempty"`
	Availability    string `json:"availability"`
	Brand           string `json:"brand"`
	ProductCategory string `json:"product_category"`
	ImageURL        string `json:"image_url"`
	ProductURL      string `json:"product_url"`
	Rating          string `json:"rating,omitempty"`
	ReviewCount     string `json:"review_count,omitempty"`
}

// CategoryInfo holds the catalog metadata the site advertises for a
// category search: display name, total product count and canonical URL.
type CategoryInfo struct {
	Name          string
	TotalProducts int
	URL           string
}
