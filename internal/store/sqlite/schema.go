package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id INTEGER REFERENCES locations(id) ON DELETE SET NULL,
		name      TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		sku              TEXT UNIQUE,
		name             TEXT NOT NULL,
		reorder_point    INTEGER NOT NULL DEFAULT 0 CHECK (reorder_point >= 0),
		min_stock_level  INTEGER NOT NULL DEFAULT 0 CHECK (min_stock_level >= 0),
		reorder_quantity INTEGER NOT NULL DEFAULT 0 CHECK (reorder_quantity >= 0),
		purchase_price   TEXT NOT NULL DEFAULT '0'
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id           INTEGER NOT NULL REFERENCES items(id),
		type              TEXT NOT NULL CHECK (type IN ('purchase', 'sale', 'transfer', 'adjustment', 'return', 'write_off', 'count')),
		quantity          INTEGER NOT NULL,
		from_location_id  INTEGER REFERENCES locations(id),
		from_bin          TEXT NOT NULL DEFAULT '',
		to_location_id    INTEGER REFERENCES locations(id),
		to_bin            TEXT NOT NULL DEFAULT '',
		unit_price        TEXT NOT NULL DEFAULT '0',
		total_price       TEXT NOT NULL DEFAULT '0',
		created_by        TEXT NOT NULL DEFAULT '',
		reference         TEXT NOT NULL DEFAULT '' CHECK (length(reference) <= 100),
		notes             TEXT NOT NULL DEFAULT '',
		work_order_id     INTEGER,
		reverses_entry_id INTEGER UNIQUE REFERENCES ledger_entries(id),
		created_at        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_item ON ledger_entries (item_id, id)`,
	`CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_no_update
		BEFORE UPDATE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS trg_ledger_entries_no_delete
		BEFORE DELETE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END`,
	`CREATE TABLE IF NOT EXISTS balances (
		item_id     INTEGER NOT NULL REFERENCES items(id),
		location_id INTEGER NOT NULL REFERENCES locations(id),
		bin         TEXT NOT NULL DEFAULT '',
		quantity    INTEGER NOT NULL CHECK (quantity >= 0),
		updated_at  TEXT NOT NULL,
		PRIMARY KEY (item_id, location_id, bin)
	)`,
}

// Open opens (creating if needed) the database file at path and ensures the
// ledger tables exist. The pool is capped at one connection: SQLite allows a
// single writer, and one connection makes every store transaction serial.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	log.Printf("[SQLITE] schema ready")
	return nil
}
