// Package sqlite persists the stock ledger in a single SQLite file through
// database/sql and the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"stock-ledger/internal/core"
)

// timeLayout is fixed-width so created_at compares correctly as TEXT.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const entryColumns = `id, item_id, type, quantity, from_location_id, from_bin, to_location_id, to_bin,
	unit_price, total_price, created_by, reference, notes, work_order_id, reverses_entry_id, created_at`

// Store implements core.Store. Writers are serialized by the single pooled
// connection, which trivially satisfies per-key ordering.
type Store struct {
	db *sql.DB
}

var _ core.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Atomic(ctx context.Context, _ []core.LockKey, fn func(ctx context.Context, tx core.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) GetBalance(ctx context.Context, key core.BalanceKey) (core.Balance, bool, error) {
	return getBalance(ctx, t.tx, key)
}

func (t *sqlTx) PutBalance(ctx context.Context, b core.Balance) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO balances (item_id, location_id, bin, quantity, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (item_id, location_id, bin)
		DO UPDATE SET quantity = excluded.quantity, updated_at = excluded.updated_at
	`, b.ItemID, b.LocationID, b.Bin, b.Quantity, formatTime(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to write balance for item %d at location %d: %w", b.ItemID, b.LocationID, err)
	}
	return nil
}

func (t *sqlTx) AppendEntry(ctx context.Context, e core.LedgerEntry) (core.LedgerEntry, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (item_id, type, quantity, from_location_id, from_bin, to_location_id, to_bin,
			unit_price, total_price, created_by, reference, notes, work_order_id, reverses_entry_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ItemID, string(e.Type), e.Quantity, nullID(e.FromLocationID), e.FromBin, nullID(e.ToLocationID), e.ToBin,
		e.UnitPrice.String(), e.TotalPrice.String(), e.CreatedBy, e.Reference, e.Notes,
		nullID(e.WorkOrderID), nullID(e.ReversesEntryID), formatTime(e.CreatedAt))
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("failed to read ledger entry id: %w", err)
	}
	e.ID = int(id)
	return e, nil
}

func (t *sqlTx) IsReversed(ctx context.Context, entryID int) (bool, error) {
	var reversed bool
	err := t.tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE reverses_entry_id = ?)", entryID,
	).Scan(&reversed)
	if err != nil {
		return false, fmt.Errorf("failed to check reversal of entry %d: %w", entryID, err)
	}
	return reversed, nil
}

// StockOnHand needs no extra lock: the single connection already runs one
// unit of work at a time.
func (t *sqlTx) StockOnHand(ctx context.Context, itemID int) (int, error) {
	return stockOnHand(ctx, t.tx, itemID)
}

func (s *Store) GetBalance(ctx context.Context, key core.BalanceKey) (core.Balance, bool, error) {
	return getBalance(ctx, s.db, key)
}

func getBalance(ctx context.Context, q dbtx, key core.BalanceKey) (core.Balance, bool, error) {
	b := core.Balance{BalanceKey: key}
	var updated string
	err := q.QueryRowContext(ctx,
		"SELECT quantity, updated_at FROM balances WHERE item_id = ? AND location_id = ? AND bin = ?",
		key.ItemID, key.LocationID, key.Bin,
	).Scan(&b.Quantity, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Balance{}, false, nil
		}
		return core.Balance{}, false, fmt.Errorf("failed to read balance: %w", err)
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Balance{}, false, err
	}
	return b, true, nil
}

func (s *Store) ListBalances(ctx context.Context, itemID int) ([]core.Balance, error) {
	return queryBalances(ctx, s.db, `
		SELECT item_id, location_id, bin, quantity, updated_at
		FROM balances WHERE item_id = ?
		ORDER BY location_id, bin
	`, itemID)
}

func (s *Store) StockOnHand(ctx context.Context, itemID int) (int, error) {
	return stockOnHand(ctx, s.db, itemID)
}

func stockOnHand(ctx context.Context, q dbtx, itemID int) (int, error) {
	var total int
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(quantity), 0) FROM balances WHERE item_id = ?", itemID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum stock on hand for item %d: %w", itemID, err)
	}
	return total, nil
}

func (s *Store) GetEntry(ctx context.Context, id int) (core.LedgerEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM ledger_entries WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.LedgerEntry{}, &core.NotFoundError{Kind: "entry", ID: id}
		}
		return core.LedgerEntry{}, fmt.Errorf("failed to get entry %d: %w", id, err)
	}
	return e, nil
}

func (s *Store) ListEntries(ctx context.Context, itemID int, filter core.LedgerFilter, afterID, limit int) ([]core.LedgerEntry, error) {
	where := []string{"id > ?"}
	args := []any{afterID}

	if itemID != 0 {
		where = append(where, "item_id = ?")
		args = append(args, itemID)
	}
	if len(filter.Types) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(filter.Types)), ", ")
		where = append(where, "type IN ("+marks+")")
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if filter.LocationID != nil {
		where = append(where, "(from_location_id = ? OR to_location_id = ?)")
		args = append(args, *filter.LocationID, *filter.LocationID)
	}
	if filter.WorkOrderID != nil {
		where = append(where, "work_order_id = ?")
		args = append(args, *filter.WorkOrderID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(filter.Until))
	}

	query := "SELECT " + entryColumns + " FROM ledger_entries WHERE " + strings.Join(where, " AND ") + " ORDER BY id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return queryEntries(ctx, s.db, query, args...)
}

func (s *Store) ReadAll(ctx context.Context) ([]core.LedgerEntry, []core.Balance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	entries, err := queryEntries(ctx, tx, "SELECT "+entryColumns+" FROM ledger_entries ORDER BY id")
	if err != nil {
		return nil, nil, err
	}
	balances, err := queryBalances(ctx, tx, "SELECT item_id, location_id, bin, quantity, updated_at FROM balances")
	if err != nil {
		return nil, nil, err
	}
	return entries, balances, nil
}

func (s *Store) ReplaceBalances(ctx context.Context, project func(entries []core.LedgerEntry) ([]core.Balance, error)) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	entries, err := queryEntries(ctx, tx, "SELECT "+entryColumns+" FROM ledger_entries ORDER BY id")
	if err != nil {
		return 0, err
	}
	rows, err := project(entries)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM balances"); err != nil {
		return 0, fmt.Errorf("failed to clear balances: %w", err)
	}
	ins, err := tx.PrepareContext(ctx,
		"INSERT INTO balances (item_id, location_id, bin, quantity, updated_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare balance insert: %w", err)
	}
	defer ins.Close()
	for _, b := range rows {
		if _, err := ins.ExecContext(ctx, b.ItemID, b.LocationID, b.Bin, b.Quantity, formatTime(b.UpdatedAt)); err != nil {
			return 0, fmt.Errorf("failed to write balance for item %d at location %d: %w", b.ItemID, b.LocationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rebuild: %w", err)
	}
	return len(rows), nil
}

func queryBalances(ctx context.Context, q dbtx, query string, args ...any) ([]core.Balance, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []core.Balance
	for rows.Next() {
		var b core.Balance
		var updated string
		if err := rows.Scan(&b.ItemID, &b.LocationID, &b.Bin, &b.Quantity, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		if b.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read balances: %w", err)
	}
	return out, nil
}

func queryEntries(ctx context.Context, q dbtx, query string, args ...any) ([]core.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger entries: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (core.LedgerEntry, error) {
	var e core.LedgerEntry
	var typ, created string
	var from, to, workOrder, reverses sql.Null[int]
	err := row.Scan(&e.ID, &e.ItemID, &typ, &e.Quantity, &from, &e.FromBin, &to, &e.ToBin,
		&e.UnitPrice, &e.TotalPrice, &e.CreatedBy, &e.Reference, &e.Notes, &workOrder, &reverses, &created)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	e.Type = core.TransactionType(typ)
	e.FromLocationID = idPtr(from)
	e.ToLocationID = idPtr(to)
	e.WorkOrderID = idPtr(workOrder)
	e.ReversesEntryID = idPtr(reverses)
	if e.CreatedAt, err = parseTime(created); err != nil {
		return core.LedgerEntry{}, err
	}
	return e, nil
}

func nullID(id *int) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}

func idPtr(n sql.Null[int]) *int {
	if !n.Valid {
		return nil
	}
	v := n.V
	return &v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
