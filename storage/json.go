package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/aluiziolira/go-scrape-benco/models"
)

// document is the persisted output shape: the finalized statistics
// followed by every accepted product.
type document struct {
	Statistics models.Statistics `json:"statistics"`
	Products   []*models.Product `json:"products"`
}

// JSONStore accumulates accepted products in memory and serializes the
// whole document once at Close, overwriting the target file.
type JSONStore struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
	doc    document
	index  map[string]struct{}
	closed bool
}

// NewJSONStore creates (or truncates) the target file up front so an
// unusable path aborts the run before any fetch.
func NewJSONStore(filename string) (*JSONStore, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	return &JSONStore{
		file:   f,
		writer: bufio.NewWriter(f),
		doc:    document{Products: []*models.Product{}},
		index:  make(map[string]struct{}),
	}, nil
}

// SaveProduct appends one product to the pending document. A sku already
// accepted in this run is reported as a duplicate.
func (js *JSONStore) SaveProduct(p *models.Product) (bool, error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.closed {
		return false, fmt.Errorf("json store is closed")
	}
	if _, dup := js.index[p.SKU]; dup {
		return false, nil
	}

	js.index[p.SKU] = struct{}{}
	js.doc.Products = append(js.doc.Products, p)
	return true, nil
}

// SaveStatistics records the finalized statistics for the document.
func (js *JSONStore) SaveStatistics(stats models.Statistics) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.closed {
		return fmt.Errorf("json store is closed")
	}
	js.doc.Statistics = stats
	return nil
}

// Close writes the accumulated document and releases the file handle.
func (js *JSONStore) Close() error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.closed {
		return nil
	}
	js.closed = true

	encoder := json.NewEncoder(js.writer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(js.doc); err != nil {
		js.file.Close()
		return fmt.Errorf("encode output document: %w", err)
	}
	if err := js.writer.Flush(); err != nil {
		js.file.Close()
		return fmt.Errorf("flush output document: %w", err)
	}
	return js.file.Close()
}
