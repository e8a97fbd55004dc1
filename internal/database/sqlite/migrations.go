package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS stock_items (
	id            TEXT PRIMARY KEY,
	sku           TEXT NOT NULL UNIQUE,
	ean           TEXT,
	title         TEXT NOT NULL,
	quantity      INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
	min_quantity  INTEGER NOT NULL DEFAULT 0,
	max_quantity  INTEGER,
	location      TEXT,
	category      TEXT,
	supplier      TEXT,
	cost_price    REAL,
	selling_price REAL,
	notes         TEXT,
	is_composite  BOOLEAN NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_items_ean ON stock_items(ean) WHERE ean IS NOT NULL AND ean <> '';
CREATE INDEX IF NOT EXISTS idx_stock_items_title ON stock_items(title);
CREATE INDEX IF NOT EXISTS idx_stock_items_category ON stock_items(category);

CREATE TABLE IF NOT EXISTS bom_edges (
	id                TEXT PRIMARY KEY,
	main_sku_id       TEXT NOT NULL REFERENCES stock_items(id),
	component_sku_id  TEXT NOT NULL REFERENCES stock_items(id),
	quantity_per_unit INTEGER NOT NULL CHECK (quantity_per_unit >= 1),
	created_at        TIMESTAMP NOT NULL,
	CHECK (main_sku_id <> component_sku_id),
	UNIQUE (main_sku_id, component_sku_id)
);

CREATE INDEX IF NOT EXISTS idx_bom_edges_component ON bom_edges(component_sku_id);

CREATE TABLE IF NOT EXISTS stock_movements (
	id                 TEXT PRIMARY KEY,
	item_id            TEXT NOT NULL,
	movement_type      TEXT NOT NULL CHECK (movement_type IN ('in', 'out', 'adjustment')),
	quantity           INTEGER NOT NULL,
	previous_quantity  INTEGER NOT NULL,
	new_quantity       INTEGER NOT NULL,
	reason             TEXT,
	actor_id           TEXT,
	parent_movement_id TEXT,
	is_cascade         BOOLEAN NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stock_movements_item ON stock_movements(item_id, created_at);
CREATE INDEX IF NOT EXISTS idx_stock_movements_parent ON stock_movements(parent_movement_id);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
