// Package postgres persists the stock ledger in PostgreSQL through pgx.
//
// Writers take transaction-scoped advisory locks on (item_id, location_id) in
// LockKeys order, so two entries that share a key serialize while disjoint
// keys commit in parallel. Advisory locks cover keys that have no balance row
// yet, which SELECT ... FOR UPDATE cannot.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stock-ledger/internal/core"
)

const entryColumns = `id, item_id, type, quantity, from_location_id, from_bin, to_location_id, to_bin,
	unit_price, total_price, created_by, reference, notes, work_order_id, reverses_entry_id, created_at`

type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Atomic(ctx context.Context, keys []core.LockKey, fn func(ctx context.Context, tx core.LedgerTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// ROW EXCLUSIVE on balances queues writers behind a running rebuild,
	// which holds EXCLUSIVE on the same table.
	if _, err := tx.Exec(ctx, "LOCK TABLE balances IN ROW EXCLUSIVE MODE"); err != nil {
		return fmt.Errorf("failed to lock balances: %w", err)
	}
	for _, k := range keys {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1::int4, $2::int4)", k.ItemID, k.LocationID); err != nil {
			return fmt.Errorf("failed to lock item %d at location %d: %w", k.ItemID, k.LocationID, err)
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetBalance(ctx context.Context, key core.BalanceKey) (core.Balance, bool, error) {
	return getBalance(ctx, t.tx, key)
}

func (t *pgTx) PutBalance(ctx context.Context, b core.Balance) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO balances (item_id, location_id, bin, quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_id, location_id, bin)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
	`, b.ItemID, b.LocationID, b.Bin, b.Quantity, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to write balance for item %d at location %d: %w", b.ItemID, b.LocationID, err)
	}
	return nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e core.LedgerEntry) (core.LedgerEntry, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (item_id, type, quantity, from_location_id, from_bin, to_location_id, to_bin,
			unit_price, total_price, created_by, reference, notes, work_order_id, reverses_entry_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`, e.ItemID, string(e.Type), e.Quantity, e.FromLocationID, e.FromBin, e.ToLocationID, e.ToBin,
		e.UnitPrice, e.TotalPrice, e.CreatedBy, e.Reference, e.Notes, e.WorkOrderID, e.ReversesEntryID, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return e, nil
}

func (t *pgTx) IsReversed(ctx context.Context, entryID int) (bool, error) {
	var reversed bool
	err := t.tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE reverses_entry_id = $1)", entryID,
	).Scan(&reversed)
	if err != nil {
		return false, fmt.Errorf("failed to check reversal of entry %d: %w", entryID, err)
	}
	return reversed, nil
}

// StockOnHand locks the item-wide key (item_id, 0) until commit. Location ids
// start at 1, so the pair never matches a per-location key. It is always the
// last lock a unit of work takes, which keeps the ordering deadlock-free.
func (t *pgTx) StockOnHand(ctx context.Context, itemID int) (int, error) {
	if _, err := t.tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1::int4, 0)", itemID); err != nil {
		return 0, fmt.Errorf("failed to lock item %d: %w", itemID, err)
	}
	return stockOnHand(ctx, t.tx, itemID)
}

func (s *Store) GetBalance(ctx context.Context, key core.BalanceKey) (core.Balance, bool, error) {
	return getBalance(ctx, s.pool, key)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getBalance(ctx context.Context, q querier, key core.BalanceKey) (core.Balance, bool, error) {
	b := core.Balance{BalanceKey: key}
	err := q.QueryRow(ctx,
		"SELECT quantity, updated_at FROM balances WHERE item_id = $1 AND location_id = $2 AND bin = $3",
		key.ItemID, key.LocationID, key.Bin,
	).Scan(&b.Quantity, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Balance{}, false, nil
		}
		return core.Balance{}, false, fmt.Errorf("failed to read balance: %w", err)
	}
	return b, true, nil
}

func (s *Store) ListBalances(ctx context.Context, itemID int) ([]core.Balance, error) {
	return queryBalances(ctx, s.pool, `
		SELECT item_id, location_id, bin, quantity, updated_at
		FROM balances WHERE item_id = $1
		ORDER BY location_id, bin
	`, itemID)
}

func (s *Store) StockOnHand(ctx context.Context, itemID int) (int, error) {
	return stockOnHand(ctx, s.pool, itemID)
}

func stockOnHand(ctx context.Context, q querier, itemID int) (int, error) {
	var total int
	err := q.QueryRow(ctx,
		"SELECT COALESCE(SUM(quantity), 0) FROM balances WHERE item_id = $1", itemID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum stock on hand for item %d: %w", itemID, err)
	}
	return total, nil
}

func (s *Store) GetEntry(ctx context.Context, id int) (core.LedgerEntry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, "SELECT "+entryColumns+" FROM ledger_entries WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.LedgerEntry{}, &core.NotFoundError{Kind: "entry", ID: id}
		}
		return core.LedgerEntry{}, fmt.Errorf("failed to get entry %d: %w", id, err)
	}
	return e, nil
}

func (s *Store) ListEntries(ctx context.Context, itemID int, filter core.LedgerFilter, afterID, limit int) ([]core.LedgerEntry, error) {
	where := []string{"id > $1"}
	args := []any{afterID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if itemID != 0 {
		add("item_id = $%d", itemID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		add("type = ANY($%d)", types)
	}
	if filter.LocationID != nil {
		add("(from_location_id = $%[1]d OR to_location_id = $%[1]d)", *filter.LocationID)
	}
	if filter.WorkOrderID != nil {
		add("work_order_id = $%d", *filter.WorkOrderID)
	}
	if !filter.Since.IsZero() {
		add("created_at >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("created_at < $%d", filter.Until)
	}

	query := "SELECT " + entryColumns + " FROM ledger_entries WHERE " + strings.Join(where, " AND ") + " ORDER BY id"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return queryEntries(ctx, s.pool, query, args...)
}

func (s *Store) ReadAll(ctx context.Context) ([]core.LedgerEntry, []core.Balance, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "LOCK TABLE balances IN EXCLUSIVE MODE"); err != nil {
		return 0, fmt.Errorf("failed to lock balances: %w", err)
	}
	if _, err := tx.Exec(ctx, "LOCK TABLE ledger_entries IN SHARE MODE"); err != nil {
		return 0, fmt.Errorf("failed to lock ledger: %w", err)
	}

	entries, err := queryEntries(ctx, tx, "SELECT "+entryColumns+" FROM ledger_entries ORDER BY id")
	if err != nil {
		return 0, err
	}
	rows, err := project(entries)
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM balances"); err != nil {
		return 0, fmt.Errorf("failed to clear balances: %w", err)
	}
	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"balances"},
		[]string{"item_id", "location_id", "bin", "quantity", "updated_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			b := rows[i]
			return []any{b.ItemID, b.LocationID, b.Bin, b.Quantity, b.UpdatedAt}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to write balances: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit rebuild: %w", err)
	}
	return int(n), nil
}

func queryBalances(ctx context.Context, q querier, query string, args ...any) ([]core.Balance, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []core.Balance
	for rows.Next() {
		var b core.Balance
		if err := rows.Scan(&b.ItemID, &b.LocationID, &b.Bin, &b.Quantity, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read balances: %w", err)
	}
	return out, nil
}

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]core.LedgerEntry, error) {
	rows, err := q.Query(ctx, query, args...)
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

func scanEntry(row pgx.Row) (core.LedgerEntry, error) {
	var e core.LedgerEntry
	var typ string
	err := row.Scan(&e.ID, &e.ItemID, &typ, &e.Quantity, &e.FromLocationID, &e.FromBin, &e.ToLocationID, &e.ToBin,
		&e.UnitPrice, &e.TotalPrice, &e.CreatedBy, &e.Reference, &e.Notes, &e.WorkOrderID, &e.ReversesEntryID, &e.CreatedAt)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	e.Type = core.TransactionType(typ)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
