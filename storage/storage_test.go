package storage

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-benco/config"
	"github.com/aluiziolira/go-scrape-benco/models"
)

func sampleProduct(sku string) *models.Product {
	return &models.Product{
		SKU:             sku,
		Name:            "Jet Acrylic Liquid 1 Quart",
		Price:           "38.99",
		Availability:    "In Stock in Pittston",
		Brand:           "Lang Dental",
		ProductCategory: "Acrylics & Relines",
		ImageURL:        "https://images.benco.com/" + sku + ".jpg",
		ProductURL:      "https://shop.benco.com/Product/" + sku + "/detail",
		Rating:          "4.6",
		ReviewCount:     "28",
	}
}

func sampleStatistics() models.Statistics {
	return models.Statistics{
		CategoryURL:     "https://shop.benco.com/Browse/acrylics",
		TotalDetected:   48,
		TotalSaved:      47,
		TotalSkipped:    1,
		MissingPrice:    2,
		StartedAt:       "2026-08-26 10:00:00",
		FinishedAt:      "2026-08-26 10:01:30",
		DurationSeconds: 90.12,
	}
}

func TestJSONStoreSaveAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("create json store: %v", err)
	}

	full := sampleProduct("3700-613")
	bare := &models.Product{SKU: "2119-201", Name: "Lucitone 199 Denture Base"}

	for _, p := range []*models.Product{full, bare} {
		inserted, err := store.SaveProduct(p)
		if err != nil {
			t.Fatalf("save product %s: %v", p.SKU, err)
		}
		if !inserted {
			t.Fatalf("product %s should be inserted", p.SKU)
		}
	}
	if err := store.SaveStatistics(sampleStatistics()); err != nil {
		t.Fatalf("save statistics: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("top-level keys = %d, want statistics and products", len(top))
	}
	if _, ok := top["statistics"]; !ok {
		t.Fatalf("output missing statistics key")
	}
	if _, ok := top["products"]; !ok {
		t.Fatalf("output missing products key")
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if len(doc.Products) != 2 {
		t.Fatalf("products = %d, want 2", len(doc.Products))
	}
	if *doc.Products[0] != *full {
		t.Errorf("product = %+v, want %+v", doc.Products[0], full)
	}
	if doc.Statistics != sampleStatistics() {
		t.Errorf("statistics = %+v, want %+v", doc.Statistics, sampleStatistics())
	}

	// Optional fields are omitted, not rendered as empty strings.
	bareJSON, err := json.Marshal(doc.Products[1])
	if err != nil {
		t.Fatalf("marshal bare product: %v", err)
	}
	for _, key := range []string{`"price"`, `"rating"`, `"review_count"`} {
		if strings.Contains(string(bareJSON), key) {
			t.Errorf("bare product should omit %s, got %s", key, bareJSON)
		}
	}
}

func TestJSONStoreDuplicateSKU(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("create json store: %v", err)
	}

	if inserted, err := store.SaveProduct(sampleProduct("3700-613")); err != nil || !inserted {
		t.Fatalf("first save = %v/%v, want true/nil", inserted, err)
	}
	if inserted, err := store.SaveProduct(sampleProduct("3700-613")); err != nil || inserted {
		t.Fatalf("duplicate save = %v/%v, want false/nil", inserted, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if len(doc.Products) != 1 {
		t.Fatalf("products = %d, want 1", len(doc.Products))
	}
}

func TestJSONStoreEmptyRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("create json store: %v", err)
	}
	if err := store.SaveStatistics(sampleStatistics()); err != nil {
		t.Fatalf("save statistics: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(raw), `"products": []`) {
		t.Fatalf("empty run should render an empty array, got %s", raw)
	}
}

func TestJSONStoreClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("create json store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	if _, err := store.SaveProduct(sampleProduct("3700-613")); err == nil {
		t.Fatalf("save after close should fail")
	}
	if err := store.SaveStatistics(sampleStatistics()); err == nil {
		t.Fatalf("save statistics after close should fail")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}

func TestJSONStoreInvalidPath(t *testing.T) {
	if _, err := NewJSONStore(t.TempDir()); err == nil {
		t.Fatalf("directory path should be rejected")
	}
}

func TestSQLiteStoreSaveAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("create sqlite store: %v", err)
	}

	full := sampleProduct("3700-613")
	bare := &models.Product{SKU: "2119-201", Name: "Lucitone 199 Denture Base"}
	for _, p := range []*models.Product{full, bare} {
		inserted, err := store.SaveProduct(p)
		if err != nil {
			t.Fatalf("save product %s: %v", p.SKU, err)
		}
		if !inserted {
			t.Fatalf("product %s should be inserted", p.SKU)
		}
	}
	if err := store.SaveStatistics(sampleStatistics()); err != nil {
		t.Fatalf("save statistics: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer db.Close()

	var products int
	if err := db.QueryRow("SELECT COUNT(*) FROM products").Scan(&products); err != nil {
		t.Fatalf("count products: %v", err)
	}
	if products != 2 {
		t.Fatalf("products = %d, want 2", products)
	}

	var statsRows int
	if err := db.QueryRow("SELECT COUNT(*) FROM statistics").Scan(&statsRows); err != nil {
		t.Fatalf("count statistics: %v", err)
	}
	if statsRows != 1 {
		t.Fatalf("statistics rows = %d, want 1", statsRows)
	}

	var priceIsNull bool
	if err := db.QueryRow("SELECT price IS NULL FROM products WHERE sku = ?", bare.SKU).Scan(&priceIsNull); err != nil {
		t.Fatalf("query null price: %v", err)
	}
	if !priceIsNull {
		t.Fatalf("missing price should be stored as NULL")
	}

	var name string
	if err := db.QueryRow("SELECT name FROM products WHERE sku = ?", full.SKU).Scan(&name); err != nil {
		t.Fatalf("query name: %v", err)
	}
	if name != full.Name {
		t.Fatalf("name = %q, want %q", name, full.Name)
	}
}

func TestSQLiteStoreDuplicateSKU(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("create sqlite store: %v", err)
	}
	defer store.Close()

	if inserted, err := store.SaveProduct(sampleProduct("3700-613")); err != nil || !inserted {
		t.Fatalf("first save = %v/%v, want true/nil", inserted, err)
	}
	if inserted, err := store.SaveProduct(sampleProduct("3700-613")); err != nil || inserted {
		t.Fatalf("duplicate save = %v/%v, want false/nil", inserted, err)
	}
}

func TestSQLiteStoreAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.db")

	first, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("create sqlite store: %v", err)
	}
	if inserted, err := first.SaveProduct(sampleProduct("3700-613")); err != nil || !inserted {
		t.Fatalf("first run save = %v/%v, want true/nil", inserted, err)
	}
	if err := first.SaveStatistics(sampleStatistics()); err != nil {
		t.Fatalf("first run statistics: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close first run: %v", err)
	}

	second, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen sqlite store: %v", err)
	}
	if inserted, err := second.SaveProduct(sampleProduct("3700-613")); err != nil || inserted {
		t.Fatalf("second run save = %v/%v, want false/nil for known sku", inserted, err)
	}
	if err := second.SaveStatistics(sampleStatistics()); err != nil {
		t.Fatalf("second run statistics: %v", err)
	}
	if err := second.Close(); err != nil {
		t.Fatalf("close second run: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer db.Close()

	var products, statsRows int
	if err := db.QueryRow("SELECT COUNT(*) FROM products").Scan(&products); err != nil {
		t.Fatalf("count products: %v", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM statistics").Scan(&statsRows); err != nil {
		t.Fatalf("count statistics: %v", err)
	}
	if products != 1 {
		t.Fatalf("products = %d, want 1 across runs", products)
	}
	if statsRows != 2 {
		t.Fatalf("statistics rows = %d, want one per run", statsRows)
	}
}

func TestSQLiteStoreInvalidPath(t *testing.T) {
	if _, err := NewSQLiteStore(t.TempDir()); err == nil {
		t.Fatalf("directory path should be rejected")
	}
}

func TestNewStoreDispatch(t *testing.T) {
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.StorageType = config.StorageJSON
	cfg.OutputFile = filepath.Join(dir, "products.json")
	store, err := New(cfg)
	if err != nil {
		t.Fatalf("new json store: %v", err)
	}
	if _, ok := store.(*JSONStore); !ok {
		t.Fatalf("store = %T, want *JSONStore", store)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close json store: %v", err)
	}

	cfg.StorageType = config.StorageSQLite
	cfg.OutputFile = filepath.Join(dir, "products.db")
	store, err = New(cfg)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("store = %T, want *SQLiteStore", store)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close sqlite store: %v", err)
	}

	cfg.StorageType = "csv"
	if _, err := New(cfg); err == nil {
		t.Fatalf("unsupported storage type should be rejected")
	}
}
