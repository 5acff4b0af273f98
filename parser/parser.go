// Package parser normalizes raw product card fields into model values.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-benco/models"
)

var (
	skuPattern = regexp.MustCompile(`/Product/([^/]+)/`)

	// Trailing stock/ship status text the site appends to product names.
	nameNoisePattern = regexp.MustCompile(`(No Longer Available|In Stock.*|Out of Stock|Estimated Ship Date.*|\d{4}-\d{3}).*$`)

	// The add-to-cart onclick embeds the price and brand:
	// QuantityChangeClick('SKU', 1, 'uuid', undefined, `Name`, 'Price', `Brand`, 'Category')
	cartPricePattern = regexp.MustCompile("`,\\s*'([\\d.]+)'")
	cartBrandPattern = regexp.MustCompile("'[\\d.]+',\\s*`([^`]+)`")

	availabilityPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Estimated Ship Date \d{1,2}/\d{1,2}/\d{2,4}(?: - \d{1,2}/\d{1,2}/\d{2,4})?`),
		regexp.MustCompile(`(?i)In Stock in \w+`),
		regexp.MustCompile(`(?i)In Stock`),
		regexp.MustCompile(`(?i)Out of Stock`),
		regexp.MustCompile(`(?i)No Longer Available`),
		regexp.MustCompile(`(?i)Ships in \d+ (?:day|week|business day)s?`),
	}
)

// SKUFromHref extracts the SKU path segment from a product link.
func SKUFromHref(href string) (string, bool) {
	match := skuPattern.FindStringSubmatch(href)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// CleanName collapses whitespace and strips the stock status noise the
// site concatenates onto product link text.
func CleanName(raw string) string {
	collapsed := strings.Join(strings.Fields(raw), " ")
	return strings.TrimSpace(nameNoisePattern.ReplaceAllString(collapsed, ""))
}

// ExtractAvailability returns the first recognized stock phrase in the
// card text, or an empty string when none is present.
func ExtractAvailability(text string) string {
	for _, pattern := range availabilityPatterns {
		if match := pattern.FindString(text); match != "" {
			return strings.TrimSpace(match)
		}
	}
	return ""
}

// PriceBrandFromCart parses the price and brand out of the add-to-cart
// button's onclick attribute. Both are empty when the site hides the
// purchase button.
func PriceBrandFromCart(onclick string) (price, brand string) {
	if match := cartPricePattern.FindStringSubmatch(onclick); match != nil {
		price = match[1]
	}
	if match := cartBrandPattern.FindStringSubmatch(onclick); match != nil {
		brand = match[1]
	}
	return price, brand
}

// Validate ensures a parsed card carried the required fields.
func Validate(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("product missing sku")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product missing name for sku %s", p.SKU)
	}
	return nil
}
