package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stock-ledger/internal/core"
)

// Catalog reads items and locations from the tables the ledger references.
type Catalog struct {
	pool *pgxpool.Pool
}

var (
	_ core.ItemLookup     = (*Catalog)(nil)
	_ core.LocationLookup = (*Catalog)(nil)
)

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) GetItem(ctx context.Context, id int) (core.Item, error) {
	var item core.Item
	err := c.pool.QueryRow(ctx, `
		SELECT id, COALESCE(sku, ''), name, reorder_point, min_stock_level, reorder_quantity, purchase_price
		FROM items WHERE id = $1
	`, id).Scan(&item.ID, &item.SKU, &item.Name, &item.ReorderPoint, &item.MinStockLevel, &item.ReorderQuantity, &item.PurchasePrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Item{}, &core.NotFoundError{Kind: "item", ID: id}
		}
		return core.Item{}, fmt.Errorf("failed to get item %d: %w", id, err)
	}
	return item, nil
}

func (c *Catalog) LocationExists(ctx context.Context, id int) (bool, error) {
	var ok bool
	if err := c.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1)", id).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check location %d: %w", id, err)
	}
	return ok, nil
}

// CreateItem inserts an item and returns its id. An empty SKU is stored as NULL.
func (c *Catalog) CreateItem(ctx context.Context, item core.Item) (int, error) {
	var sku *string
	if item.SKU != "" {
		sku = &item.SKU
	}
	var id int
	err := c.pool.QueryRow(ctx, `
		INSERT INTO items (sku, name, reorder_point, min_stock_level, reorder_quantity, purchase_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, sku, item.Name, item.ReorderPoint, item.MinStockLevel, item.ReorderQuantity, item.PurchasePrice).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, &core.ValidationError{Field: "sku", Message: fmt.Sprintf("%s is already in use", item.SKU)}
		}
		return 0, fmt.Errorf("failed to create item %q: %w", item.Name, err)
	}
	return id, nil
}

func (c *Catalog) CreateLocation(ctx context.Context, loc core.Location) (int, error) {
	var id int
	err := c.pool.QueryRow(ctx,
		"INSERT INTO locations (parent_id, name) VALUES ($1, $2) RETURNING id",
		loc.ParentID, loc.Name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create location %q: %w", loc.Name, err)
	}
	return id, nil
}
