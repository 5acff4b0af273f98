package storage

import (
	"database/sql"
	"fmt"

	"github.com/aluiziolira/go-scrape-benco/models"
	_ "modernc.org/sqlite"
)

const (
	createProductsTable = `CREATE TABLE IF NOT EXISTS products (
	sku TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	price TEXT,
	availability TEXT,
	brand TEXT,
	product_category TEXT,
	image_url TEXT,
	product_url TEXT,
	rating TEXT,
	review_count TEXT
)`

	createStatisticsTable = `CREATE TABLE IF NOT EXISTS statistics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	categoryUrl TEXT,
	totalDetected INTEGER,
	totalSaved INTEGER,
	totalSkipped INTEGER,
	missingPrice INTEGER,
	startedAt TEXT,
	finishedAt TEXT,
	durationSeconds REAL
)`

	insertProduct = `INSERT INTO products
	(sku, name, price, availability, brand, product_category, image_url, product_url, rating, review_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(sku) DO NOTHING`

	insertStatistics = `INSERT INTO statistics
	(categoryUrl, totalDetected, totalSaved, totalSkipped, missingPrice, startedAt, finishedAt, durationSeconds)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
)

// SQLiteStore persists products and statistics to a SQLite database.
// The sku primary key makes duplicate inserts no-ops across runs, so
// product history deduplicates globally while statistics rows accumulate
// one per run.
type SQLiteStore struct {
	db     *sql.DB
	insert *sql.Stmt
}

// NewSQLiteStore opens (or creates) the database at path and prepares
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	for _, ddl := range []string{createProductsTable, createStatisticsTable} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	insert, err := db.Prepare(insertProduct)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare product insert: %w", err)
	}

	return &SQLiteStore{db: db, insert: insert}, nil
}

// SaveProduct inserts one product row; a sku already present in the
// table is dropped silently and reported as a duplicate.
func (ss *SQLiteStore) SaveProduct(p *models.Product) (bool, error) {
	result, err := ss.insert.Exec(
		p.SKU,
		p.Name,
		nullIfEmpty(p.Price),
		p.Availability,
		p.Brand,
		p.ProductCategory,
		p.ImageURL,
		p.ProductURL,
		nullIfEmpty(p.Rating),
		nullIfEmpty(p.ReviewCount),
	)
	if err != nil {
		return false, fmt.Errorf("insert product %s: %w", p.SKU, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert product %s: %w", p.SKU, err)
	}
	return affected > 0, nil
}

// SaveStatistics appends one statistics row for the run.
func (ss *SQLiteStore) SaveStatistics(stats models.Statistics) error {
	_, err := ss.db.Exec(insertStatistics,
		stats.CategoryURL,
		stats.TotalDetected,
		stats.TotalSaved,
		stats.TotalSkipped,
		stats.MissingPrice,
		stats.StartedAt,
		stats.FinishedAt,
		stats.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("insert statistics: %w", err)
	}
	return nil
}

// Close releases the prepared statement and the database handle.
func (ss *SQLiteStore) Close() error {
	stmtErr := ss.insert.Close()
	if err := ss.db.Close(); err != nil {
		return fmt.Errorf("close sqlite database: %w", err)
	}
	if stmtErr != nil {
		return fmt.Errorf("close insert statement: %w", stmtErr)
	}
	return nil
}

// nullIfEmpty maps absent optional fields to NULL so missing values stay
// distinguishable from empty text.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
