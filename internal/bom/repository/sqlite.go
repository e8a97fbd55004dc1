package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/jmoiron/sqlx"
)

const insertEdge = `
	INSERT INTO bom_edges (id, main_sku_id, component_sku_id, quantity_per_unit, created_at)
	VALUES (:id, :main_sku_id, :component_sku_id, :quantity_per_unit, :created_at)
`

type SQLiteRepository struct {
	DB *sqlx.DB
}

func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{DB: db}
}

func (r *SQLiteRepository) ItemExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM stock_items WHERE id = ?`, id)
	return n > 0, err
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*model.BOMEdge, error) {
	var edge model.BOMEdge
	err := r.DB.GetContext(ctx, &edge, `
		SELECT id, main_sku_id, component_sku_id, quantity_per_unit, created_at
		FROM bom_edges WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &edge, nil
}

func (r *SQLiteRepository) AllEdges(ctx context.Context) ([]model.BOMEdge, error) {
	edges := []model.BOMEdge{}
	err := r.DB.SelectContext(ctx, &edges, `
		SELECT id, main_sku_id, component_sku_id, quantity_per_unit, created_at FROM bom_edges`)
	return edges, err
}

func (r *SQLiteRepository) ListByMain(ctx context.Context, mainID string) ([]model.BOMEdgeView, error) {
	edges := []model.BOMEdgeView{}
	err := r.DB.SelectContext(ctx, &edges, `
		SELECT e.id, e.main_sku_id, e.component_sku_id, e.quantity_per_unit, e.created_at,
			i.sku AS component_sku, i.title AS component_title,
			i.quantity AS component_quantity, i.is_composite AS component_is_composite
		FROM bom_edges e
		JOIN stock_items i ON e.component_sku_id = i.id
		WHERE e.main_sku_id = ?
		ORDER BY e.created_at DESC, e.rowid DESC`, mainID)
	return edges, err
}

func (r *SQLiteRepository) ListCompositeRows(ctx context.Context) ([]model.CompositeRow, error) {
	rows := []model.CompositeRow{}
	err := r.DB.SelectContext(ctx, &rows, `
		SELECT m.id AS main_sku_id, m.sku AS main_sku, m.title AS main_title,
			e.id AS edge_id, c.id AS component_sku_id, c.sku AS component_sku,
			c.title AS component_title, e.quantity_per_unit
		FROM bom_edges e
		JOIN stock_items m ON e.main_sku_id = m.id
		JOIN stock_items c ON e.component_sku_id = c.id
		ORDER BY m.title ASC, m.id ASC, e.created_at ASC, e.rowid ASC`)
	return rows, err
}

func (r *SQLiteRepository) Create(ctx context.Context, edge *model.BOMEdge) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertEdge, edge); err != nil {
		return fmt.Errorf("failed to insert edge: %w", err)
	}
	if err := setComposite(ctx, tx, edge.MainSKUID, true); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) Delete(ctx context.Context, edge *model.BOMEdge) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bom_edges WHERE id = ?`, edge.ID); err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}

	var remaining int
	if err := tx.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM bom_edges WHERE main_sku_id = ?`, edge.MainSKUID); err != nil {
		return err
	}
	if remaining == 0 {
		if err := setComposite(ctx, tx, edge.MainSKUID, false); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) Replace(ctx context.Context, mainID string, edges []model.BOMEdge) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bom_edges WHERE main_sku_id = ?`, mainID); err != nil {
		return fmt.Errorf("failed to clear edges: %w", err)
	}
	for i := range edges {
		if _, err := tx.NamedExecContext(ctx, insertEdge, &edges[i]); err != nil {
			return fmt.Errorf("failed to insert edge: %w", err)
		}
	}
	if err := setComposite(ctx, tx, mainID, len(edges) > 0); err != nil {
		return err
	}
	return tx.Commit()
}

func setComposite(ctx context.Context, tx *sqlx.Tx, id string, composite bool) error {
	_, err := tx.ExecContext(ctx, `UPDATE stock_items SET is_composite = ?, updated_at = ? WHERE id = ?`, composite, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update composite flag: %w", err)
	}
	return nil
}
