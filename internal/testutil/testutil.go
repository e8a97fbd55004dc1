package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/database/sqlite"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SetupTestDB opens a fresh in-memory database with the schema applied. It is closed when the
// test finishes.
func SetupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlite.NewSQLite(&sqlite.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SeedItem inserts a stock item with the given sku and quantity. The sku doubles as the title.
func SeedItem(t *testing.T, db *sqlx.DB, sku string, quantity int) *model.StockItem {
	t.Helper()
	now := time.Now().UTC()
	item := &model.StockItem{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		SKU:       sku,
		Title:     sku,
		Quantity:  quantity,
	}
	_, err := db.NamedExecContext(context.Background(), `
		INSERT INTO stock_items (id, sku, title, quantity, min_quantity, is_composite, created_at, updated_at)
		VALUES (:id, :sku, :title, :quantity, :min_quantity, :is_composite, :created_at, :updated_at)`, item)
	if err != nil {
		t.Fatalf("Failed to seed item %s: %v", sku, err)
	}
	return item
}

// SeedEdge links main to component and flags main as composite, bypassing BOM validation.
func SeedEdge(t *testing.T, db *sqlx.DB, main, component *model.StockItem, perUnit int) *model.BOMEdge {
	t.Helper()
	edge := &model.BOMEdge{
		ID:              uuid.New().String(),
		MainSKUID:       main.ID,
		ComponentSKUID:  component.ID,
		QuantityPerUnit: perUnit,
		CreatedAt:       time.Now().UTC(),
	}
	ctx := context.Background()
	if _, err := db.NamedExecContext(ctx, `
		INSERT INTO bom_edges (id, main_sku_id, component_sku_id, quantity_per_unit, created_at)
		VALUES (:id, :main_sku_id, :component_sku_id, :quantity_per_unit, :created_at)`, edge); err != nil {
		t.Fatalf("Failed to seed edge %s -> %s: %v", main.SKU, component.SKU, err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE stock_items SET is_composite = 1 WHERE id = ?`, main.ID); err != nil {
		t.Fatalf("Failed to flag %s composite: %v", main.SKU, err)
	}
	main.IsComposite = true
	return edge
}

// Quantity reads the stored quantity of an item.
func Quantity(t *testing.T, db *sqlx.DB, id string) int {
	t.Helper()
	var q int
	if err := db.GetContext(context.Background(), &q, `SELECT quantity FROM stock_items WHERE id = ?`, id); err != nil {
		t.Fatalf("Failed to read quantity of %s: %v", id, err)
	}
	return q
}

// MovementCount counts ledger rows, optionally for one item.
func MovementCount(t *testing.T, db *sqlx.DB, itemID string) int {
	t.Helper()
	query := `SELECT COUNT(*) FROM stock_movements`
	args := []interface{}{}
	if itemID != "" {
		query += ` WHERE item_id = ?`
		args = append(args, itemID)
	}
	var n int
	if err := db.GetContext(context.Background(), &n, query, args...); err != nil {
		t.Fatalf("Failed to count movements: %v", err)
	}
	return n
}

func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// DoRequest executes an HTTP request against the test router.
func DoRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes the JSON envelope of a response.
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// Data returns the "data" object of a parsed response, or nil.
func Data(resp map[string]interface{}) map[string]interface{} {
	d, _ := resp["data"].(map[string]interface{})
	return d
}
