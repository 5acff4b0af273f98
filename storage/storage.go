// Package storage persists scraped products and run statistics to a
// JSON document or a SQLite database.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-benco/config"
	"github.com/aluiziolira/go-scrape-benco/models"
)

// Store persists products one at a time and the run statistics once at
// the end of the run. SaveProduct reports whether the record was newly
// inserted; a duplicate sku is dropped silently and reported as false.
type Store interface {
	SaveProduct(p *models.Product) (bool, error)
	SaveStatistics(stats models.Statistics) error
	Close() error
}

// New builds the store selected by cfg.StorageType. Both variants claim
// their target file during construction, so a bad output path fails the
// run before any page is fetched.
func New(cfg *config.Config) (Store, error) {
	switch cfg.StorageType {
	case config.StorageJSON:
		return NewJSONStore(cfg.OutputFile)
	case config.StorageSQLite:
		return NewSQLiteStore(cfg.OutputFile)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
