package memory

import (
	"context"
	"fmt"
	"sync"

	"stock-ledger/internal/core"
)

// Catalog is an in-memory item catalog and location registry.
type Catalog struct {
	mu        sync.RWMutex
	nextItem  int
	nextLoc   int
	items     map[int]core.Item
	skus      map[string]int
	locations map[int]core.Location
}

var (
	_ core.ItemLookup     = (*Catalog)(nil)
	_ core.LocationLookup = (*Catalog)(nil)
)

func NewCatalog() *Catalog {
	return &Catalog{
		items:     map[int]core.Item{},
		skus:      map[string]int{},
		locations: map[int]core.Location{},
	}
}

// PutItem inserts or replaces an item. A SKU may belong to one item only.
func (c *Catalog) PutItem(item core.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if item.SKU != "" {
		if owner, ok := c.skus[item.SKU]; ok && owner != item.ID {
			return &core.ValidationError{Field: "sku", Message: fmt.Sprintf("%s already belongs to item %d", item.SKU, owner)}
		}
	}
	if prev, ok := c.items[item.ID]; ok && prev.SKU != "" {
		delete(c.skus, prev.SKU)
	}
	c.items[item.ID] = item
	if item.SKU != "" {
		c.skus[item.SKU] = item.ID
	}
	return nil
}

func (c *Catalog) PutLocation(loc core.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations[loc.ID] = loc
}

// CreateItem assigns the next free id and stores the item.
func (c *Catalog) CreateItem(_ context.Context, item core.Item) (int, error) {
	c.mu.Lock()
	for {
		c.nextItem++
		if _, taken := c.items[c.nextItem]; !taken {
			break
		}
	}
	item.ID = c.nextItem
	c.mu.Unlock()

	if err := c.PutItem(item); err != nil {
		return 0, err
	}
	return item.ID, nil
}

func (c *Catalog) CreateLocation(_ context.Context, loc core.Location) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if loc.ParentID != nil {
		if _, ok := c.locations[*loc.ParentID]; !ok {
			return 0, &core.NotFoundError{Kind: "location", ID: *loc.ParentID}
		}
	}
	for {
		c.nextLoc++
		if _, taken := c.locations[c.nextLoc]; !taken {
			break
		}
	}
	loc.ID = c.nextLoc
	c.locations[loc.ID] = loc
	return loc.ID, nil
}

func (c *Catalog) GetItem(_ context.Context, id int) (core.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return core.Item{}, &core.NotFoundError{Kind: "item", ID: id}
	}
	return item, nil
}

func (c *Catalog) LocationExists(_ context.Context, id int) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.locations[id]
	return ok, nil
}
