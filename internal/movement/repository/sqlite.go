package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/movement"
	"github.com/fekuna/omnipos-stock-service/internal/movement/dto"
	"github.com/jmoiron/sqlx"
)

const insertMovement = `
	INSERT INTO stock_movements (
		id, item_id, movement_type, quantity, previous_quantity, new_quantity,
		reason, actor_id, parent_movement_id, is_cascade, created_at
	)
	VALUES (
		:id, :item_id, :movement_type, :quantity, :previous_quantity, :new_quantity,
		:reason, :actor_id, :parent_movement_id, :is_cascade, :created_at
	)
`

type SQLiteRepository struct {
	DB *sqlx.DB
}

func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{DB: db}
}

func (r *SQLiteRepository) GetItem(ctx context.Context, id string) (*model.StockItem, error) {
	return r.getItem(ctx, `WHERE id = ?`, id)
}

func (r *SQLiteRepository) GetItemBySKU(ctx context.Context, sku string) (*model.StockItem, error) {
	return r.getItem(ctx, `WHERE sku = ?`, sku)
}

func (r *SQLiteRepository) getItem(ctx context.Context, where string, arg string) (*model.StockItem, error) {
	var item model.StockItem
	err := r.DB.GetContext(ctx, &item, `
		SELECT id, sku, ean, title, quantity, min_quantity, max_quantity, location, category,
			supplier, cost_price, selling_price, notes, is_composite, created_at, updated_at
		FROM stock_items `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *SQLiteRepository) ListComponents(ctx context.Context, mainID string) ([]model.BOMEdge, error) {
	edges := []model.BOMEdge{}
	err := r.DB.SelectContext(ctx, &edges, `
		SELECT id, main_sku_id, component_sku_id, quantity_per_unit, created_at
		FROM bom_edges
		WHERE main_sku_id = ?
		ORDER BY created_at ASC, rowid ASC`, mainID)
	return edges, err
}

func (r *SQLiteRepository) Apply(ctx context.Context, writes []movement.QuantityWrite, records []model.StockMovement) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, w := range writes {
		res, err := tx.ExecContext(ctx,
			`UPDATE stock_items SET quantity = ?, updated_at = ? WHERE id = ? AND quantity = ?`,
			w.New, now, w.ItemID, w.Previous)
		if err != nil {
			return fmt.Errorf("failed to update quantity: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: item %s no longer holds %d", movement.ErrConcurrentModification, w.ItemID, w.Previous)
		}
	}

	for i := range records {
		if _, err := tx.NamedExecContext(ctx, insertMovement, &records[i]); err != nil {
			return fmt.Errorf("failed to log movement: %w", err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovementView, int, error) {
	items := []model.StockMovementView{}
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.ItemID != "" {
		conditions = append(conditions, "m.item_id = :item_id")
		args["item_id"] = f.ItemID
	}
	if f.Kind != "" {
		conditions = append(conditions, "m.movement_type = :movement_type")
		args["movement_type"] = f.Kind
	}
	if f.Search != "" {
		conditions = append(conditions, "(i.sku LIKE :search OR i.title LIKE :search OR m.reason LIKE :search)")
		args["search"] = "%" + f.Search + "%"
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}
	from := " FROM stock_movements m LEFT JOIN stock_items i ON i.id = m.item_id"

	countStmt, err := r.DB.PrepareNamedContext(ctx, "SELECT COUNT(*)"+from+whereClause)
	if err != nil {
		return nil, 0, err
	}
	defer countStmt.Close()
	if err := countStmt.GetContext(ctx, &count, args); err != nil {
		return nil, 0, err
	}

	query := `SELECT m.id, m.item_id, m.movement_type, m.quantity, m.previous_quantity, m.new_quantity,
		m.reason, m.actor_id, m.parent_movement_id, m.is_cascade, m.created_at,
		i.sku AS item_sku, i.title AS item_title` + from + whereClause +
		" ORDER BY m.created_at DESC, m.rowid DESC"
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

func (r *SQLiteRepository) CountMovements(ctx context.Context) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM stock_movements`)
	return n, err
}
