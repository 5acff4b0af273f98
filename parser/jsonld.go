package parser

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-benco/models"
)

// Rating is the aggregate customer rating advertised for a product in
// the page's JSON-LD blocks.
type Rating struct {
	Value string
	Count string
}

// ParseAggregateRating decodes one JSON-LD script body and, when it is
// an AggregateRating block, returns the reviewed product name and the
// rating values as strings.
func ParseAggregateRating(raw string) (string, Rating, bool) {
	doc, ok := decodeJSONLD(raw)
	if !ok || doc["@type"] != "AggregateRating" {
		return "", Rating{}, false
	}

	reviewed, _ := doc["itemReviewed"].(map[string]any)
	name := ldString(reviewed["name"])
	if name == "" {
		return "", Rating{}, false
	}

	return name, Rating{
		Value: ldString(doc["ratingValue"]),
		Count: ldString(doc["ratingCount"]),
	}, true
}

// ParseOfferCatalog decodes one JSON-LD script body and, when it is an
// OfferCatalog block, returns the category name, advertised product
// total and canonical URL.
func ParseOfferCatalog(raw string) (models.CategoryInfo, bool) {
	doc, ok := decodeJSONLD(raw)
	if !ok || doc["@type"] != "OfferCatalog" {
		return models.CategoryInfo{}, false
	}

	return models.CategoryInfo{
		Name:          ldString(doc["name"]),
		TotalProducts: ldInt(doc["numberOfItems"]),
		URL:           ldString(doc["url"]),
	}, true
}

func decodeJSONLD(raw string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}
	return doc, true
}

// ldString renders a JSON-LD scalar as text; ratings appear as strings
// on some pages and as bare numbers on others.
func ldString(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case json.Number:
		return value.String()
	default:
		return ""
	}
}

func ldInt(v any) int {
	switch value := v.(type) {
	case json.Number:
		if n, err := value.Int64(); err == nil {
			return int(n)
		}
		if f, err := value.Float64(); err == nil {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return 0
}
