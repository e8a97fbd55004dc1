package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/jmoiron/sqlx"
)

const itemColumns = `id, sku, ean, title, quantity, min_quantity, max_quantity, location, category,
	supplier, cost_price, selling_price, notes, is_composite, created_at, updated_at`

type SQLiteRepository struct {
	DB *sqlx.DB
}

func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{DB: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, item *model.StockItem) error {
	query := `
		INSERT INTO stock_items (
			id, sku, ean, title, quantity, min_quantity, max_quantity, location, category,
			supplier, cost_price, selling_price, notes, is_composite, created_at, updated_at
		)
		VALUES (
			:id, :sku, :ean, :title, :quantity, :min_quantity, :max_quantity, :location, :category,
			:supplier, :cost_price, :selling_price, :notes, :is_composite, :created_at, :updated_at
		)
	`
	_, err := r.DB.NamedExecContext(ctx, query, item)
	return err
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*model.StockItem, error) {
	return r.findOne(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id = ?`, id)
}

func (r *SQLiteRepository) FindBySKU(ctx context.Context, sku string) (*model.StockItem, error) {
	return r.findOne(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE sku = ?`, sku)
}

func (r *SQLiteRepository) findOne(ctx context.Context, query string, args ...interface{}) (*model.StockItem, error) {
	var item model.StockItem
	if err := r.DB.GetContext(ctx, &item, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// FindByIDs returns the items in the order of ids. Unknown ids are skipped.
func (r *SQLiteRepository) FindByIDs(ctx context.Context, ids []string) ([]model.StockItem, error) {
	if len(ids) == 0 {
		return []model.StockItem{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+itemColumns+` FROM stock_items WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var rows []model.StockItem
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	byID := make(map[string]model.StockItem, len(rows))
	for _, it := range rows {
		byID[it.ID] = it
	}
	out := make([]model.StockItem, 0, len(rows))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *SQLiteRepository) FindAll(ctx context.Context, f *dto.ItemFilters) ([]model.StockItem, int, error) {
	items := []model.StockItem{}
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.Search != "" {
		conditions = append(conditions, "(sku LIKE :search OR title LIKE :search OR ean LIKE :search)")
		args["search"] = "%" + f.Search + "%"
	}
	if f.Category != "" {
		conditions = append(conditions, "category = :category")
		args["category"] = f.Category
	}
	if f.LowStock {
		conditions = append(conditions, "quantity <= min_quantity")
	}
	if f.NoStock {
		conditions = append(conditions, "quantity = 0")
	}
	if f.WithStock {
		conditions = append(conditions, "quantity > 0")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countStmt, err := r.DB.PrepareNamedContext(ctx, "SELECT COUNT(*) FROM stock_items"+whereClause)
	if err != nil {
		return nil, 0, err
	}
	defer countStmt.Close()
	if err := countStmt.GetContext(ctx, &count, args); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + itemColumns + " FROM stock_items" + whereClause + " ORDER BY title ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

func (r *SQLiteRepository) CountAll(ctx context.Context) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM stock_items`)
	return n, err
}

func (r *SQLiteRepository) IsSKUUnique(ctx context.Context, sku, excludeID string) (bool, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM stock_items WHERE sku = ? AND id <> ?`, sku, excludeID)
	return n == 0, err
}

func (r *SQLiteRepository) IsEANUnique(ctx context.Context, ean, excludeID string) (bool, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM stock_items WHERE ean = ? AND id <> ?`, ean, excludeID)
	return n == 0, err
}

func (r *SQLiteRepository) CountEdges(ctx context.Context, mainID string) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM bom_edges WHERE main_sku_id = ?`, mainID)
	return n, err
}

func (r *SQLiteRepository) Update(ctx context.Context, item *model.StockItem) error {
	query := `
		UPDATE stock_items SET
			sku = :sku, ean = :ean, title = :title, min_quantity = :min_quantity,
			max_quantity = :max_quantity, location = :location, category = :category,
			supplier = :supplier, cost_price = :cost_price, selling_price = :selling_price,
			notes = :notes, is_composite = :is_composite, updated_at = :updated_at
		WHERE id = :id
	`
	_, err := r.DB.NamedExecContext(ctx, query, item)
	return err
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var refs int
	if err := tx.GetContext(ctx, &refs, `SELECT COUNT(*) FROM bom_edges WHERE component_sku_id = ?`, id); err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: item is a component of %d composite(s)", inventory.ErrConflict, refs)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM bom_edges WHERE main_sku_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM stock_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) Stats(ctx context.Context) (*model.InventoryStats, error) {
	var s model.InventoryStats
	err := r.DB.GetContext(ctx, &s, `
		SELECT
			COUNT(*) AS total_items,
			COALESCE(SUM(quantity), 0) AS total_quantity,
			COALESCE(SUM(CASE WHEN quantity <= min_quantity THEN 1 ELSE 0 END), 0) AS low_stock_items,
			COALESCE(SUM(CASE WHEN quantity = 0 THEN 1 ELSE 0 END), 0) AS out_of_stock_items,
			COALESCE(AVG(quantity), 0.0) AS avg_quantity
		FROM stock_items
	`)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepository) LowStock(ctx context.Context) ([]model.StockItem, error) {
	items := []model.StockItem{}
	err := r.DB.SelectContext(ctx, &items, `SELECT `+itemColumns+` FROM stock_items
		WHERE is_composite = 0 AND quantity > 0 AND quantity <= min_quantity
		ORDER BY quantity ASC, title ASC`)
	return items, err
}

func (r *SQLiteRepository) OutOfStock(ctx context.Context) ([]model.StockItem, error) {
	items := []model.StockItem{}
	err := r.DB.SelectContext(ctx, &items, `SELECT `+itemColumns+` FROM stock_items
		WHERE is_composite = 0 AND quantity = 0
		ORDER BY title ASC`)
	return items, err
}
