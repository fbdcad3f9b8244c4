package postgres

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		price      NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		status     TEXT NOT NULL DEFAULT 'active',
		stock      INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS inventory (
		product_id      TEXT PRIMARY KEY,
		total_stock     INTEGER NOT NULL CHECK (total_stock >= 0),
		available_stock INTEGER NOT NULL CHECK (available_stock >= 0),
		reserved_stock  INTEGER NOT NULL CHECK (reserved_stock >= 0),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (total_stock = available_stock + reserved_stock)
	)`,

	`CREATE TABLE IF NOT EXISTS carts (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id         TEXT PRIMARY KEY,
		cart_id    TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL,
		quantity   INTEGER NOT NULL CHECK (quantity >= 0),
		unit_price NUMERIC(12,2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		UNIQUE (cart_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		total_items      INTEGER NOT NULL,
		subtotal         NUMERIC(12,2) NOT NULL,
		tax              NUMERIC(12,2) NOT NULL,
		discount         NUMERIC(12,2) NOT NULL,
		grand_total      NUMERIC(12,2) NOT NULL,
		status           TEXT NOT NULL,
		shipping_address TEXT NOT NULL DEFAULT '',
		payment_method   TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (grand_total = subtotal + tax - discount)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id           TEXT PRIMARY KEY,
		order_id     TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id   TEXT NOT NULL,
		product_name TEXT NOT NULL,
		unit_price   NUMERIC(12,2) NOT NULL,
		quantity     INTEGER NOT NULL CHECK (quantity > 0),
		line_total   NUMERIC(12,2) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id                 TEXT PRIMARY KEY,
		order_id           TEXT NOT NULL REFERENCES orders(id),
		user_id            TEXT NOT NULL,
		gateway_order_id   TEXT NOT NULL,
		gateway_payment_id TEXT,
		gateway_signature  TEXT,
		amount             NUMERIC(12,2) NOT NULL,
		currency           TEXT NOT NULL,
		status             TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT payments_order_capture_key UNIQUE (order_id, gateway_payment_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payments_one_pending_per_order ON payments(order_id) WHERE status = 'PENDING'`,
	`CREATE INDEX IF NOT EXISTS idx_payments_gateway_order ON payments(gateway_order_id)`,
}

// Migrate creates the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for i, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
