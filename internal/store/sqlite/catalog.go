package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"stock-ledger/internal/core"
)

type Catalog struct {
	db *sql.DB
}

var (
	_ core.ItemLookup     = (*Catalog)(nil)
	_ core.LocationLookup = (*Catalog)(nil)
)

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) GetItem(ctx context.Context, id int) (core.Item, error) {
	var item core.Item
	err := c.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(sku, ''), name, reorder_point, min_stock_level, reorder_quantity, purchase_price
		FROM items WHERE id = ?
	`, id).Scan(&item.ID, &item.SKU, &item.Name, &item.ReorderPoint, &item.MinStockLevel, &item.ReorderQuantity, &item.PurchasePrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Item{}, &core.NotFoundError{Kind: "item", ID: id}
		}
		return core.Item{}, fmt.Errorf("failed to get item %d: %w", id, err)
	}
	return item, nil
}

func (c *Catalog) LocationExists(ctx context.Context, id int) (bool, error) {
	var ok bool
	if err := c.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM locations WHERE id = ?)", id).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check location %d: %w", id, err)
	}
	return ok, nil
}

func (c *Catalog) CreateItem(ctx context.Context, item core.Item) (int, error) {
	var sku any
	if item.SKU != "" {
		sku = item.SKU
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO items (sku, name, reorder_point, min_stock_level, reorder_quantity, purchase_price)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sku, item.Name, item.ReorderPoint, item.MinStockLevel, item.ReorderQuantity, item.PurchasePrice.String())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: items.sku") {
			return 0, &core.ValidationError{Field: "sku", Message: fmt.Sprintf("%s is already in use", item.SKU)}
		}
		return 0, fmt.Errorf("failed to create item %q: %w", item.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read item id: %w", err)
	}
	return int(id), nil
}

func (c *Catalog) CreateLocation(ctx context.Context, loc core.Location) (int, error) {
	res, err := c.db.ExecContext(ctx, "INSERT INTO locations (parent_id, name) VALUES (?, ?)", nullID(loc.ParentID), loc.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to create location %q: %w", loc.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read location id: %w", err)
	}
	return int(id), nil
}
