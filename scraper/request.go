package scraper

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// searchCategorization scopes the search to one category tab.
type searchCategorization struct {
	Tab        string `json:"Tab"`
	TabID      int    `json:"TabId"`
	CategoryID int    `json:"CategoryId"`
}

// searchCriteria is the payload the storefront expects inside the q
// query parameter.
type searchCriteria struct {
	Categorization                searchCategorization `json:"Categorization"`
	Page                          int                  `json:"Page"`
	GroupSimilarItems             bool                 `json:"GroupSimilarItems"`
	AllowAutoCorrectSubstitution  bool                 `json:"AllowAutoCorrectSubstitution"`
	Source                        string               `json:"Source"`
	ShowResultsAsGrid             bool                 `json:"ShowResultsAsGrid"`
	IncludePricing                bool                 `json:"IncludePricing"`
	IsCompleteCart                bool                 `json:"IsCompleteCart"`
	IsGeneralSuggestion           bool                 `json:"IsGeneralSuggestion"`
	SelectionCriterionDescription string               `json:"SelectionCriterionDescription"`
}

// buildSearchToken encodes the criteria the way the site expects:
// compact JSON, gzipped, then base64.
func buildSearchToken(category string, page int) (string, error) {
	criteria := searchCriteria{
		Categorization:                searchCategorization{Tab: category},
		Page:                          page,
		GroupSimilarItems:             true,
		Source:                        "Categories." + sourceLabel(category),
		ShowResultsAsGrid:             true,
		SelectionCriterionDescription: category,
	}

	// The site decodes the token as plain JSON, so & must stay a raw
	// byte rather than the \u0026 escape Marshal would emit.
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(criteria); err != nil {
		return "", fmt.Errorf("marshal search criteria: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(bytes.TrimSuffix(payload.Bytes(), []byte("\n"))); err != nil {
		return "", fmt.Errorf("compress search criteria: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress search criteria: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// sourceLabel strips the characters the site drops from category names
// in the Source member.
func sourceLabel(category string) string {
	return strings.NewReplacer(" ", "", "&", "").Replace(category)
}

// searchURL builds the full category search URL for one page.
func (s *Scraper) searchURL(page int) (string, error) {
	token, err := buildSearchToken(s.cfg.CategoryName, page)
	if err != nil {
		return "", err
	}

	u := *s.base
	u.Path = "/Search"
	query := url.Values{}
	query.Set("q", token)
	u.RawQuery = query.Encode()
	return u.String(), nil
}
