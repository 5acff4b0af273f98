package scraper

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// seenSet tracks SKUs already persisted in this run. Bounded so a very
// long crawl cannot grow memory without limit.
type seenSet struct {
	cache *lru.Cache[string, struct{}]
}

func newSeenSet(maxSize int) (*seenSet, error) {
	cache, err := lru.New[string, struct{}](maxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &seenSet{cache: cache}, nil
}

// IsNew reports whether sku has not been marked seen yet.
func (s *seenSet) IsNew(sku string) bool {
	return !s.cache.Contains(sku)
}

// MarkSeen records sku as persisted.
func (s *seenSet) MarkSeen(sku string) {
	s.cache.Add(sku, struct{}{})
}

// Len returns the number of tracked SKUs.
func (s *seenSet) Len() int {
	return s.cache.Len()
}
