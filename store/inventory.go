package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// InventoryRepo reads and mutates the inventory table.
type InventoryRepo struct {
	db bun.IDB
}

func NewInventoryRepo(db bun.IDB) *InventoryRepo {
	return &InventoryRepo{db: db}
}

// Scan returns the full inventory ordered by lower(name) ascending, so
// a first-match substring scan over it is deterministic.
func (r *InventoryRepo) Scan(ctx context.Context) ([]InventoryItem, error) {
	var items []InventoryItem
	if err := r.db.NewSelect().
		Model(&items).
		OrderExpr("lower(name) ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan inventory: %w", err)
	}
	return items, nil
}

// Sample returns up to limit items with just enough detail for an
// expert match prompt.
func (r *InventoryRepo) Sample(ctx context.Context, limit int) ([]InventoryItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	var items []InventoryItem
	if err := r.db.NewSelect().
		Model(&items).
		Column("id", "name", "description").
		OrderExpr("lower(name) ASC").
		Limit(limit).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("sample inventory: %w", err)
	}
	return items, nil
}

// FindByName looks up an item by exact name. Returns ErrNotFound when
// no row matches.
func (r *InventoryRepo) FindByName(ctx context.Context, name string) (*InventoryItem, error) {
	item := new(InventoryItem)
	err := r.db.NewSelect().
		Model(item).
		Where("name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find inventory item %q: %w", name, err)
	}
	return item, nil
}

// DecrementStock conditionally subtracts qty from the item's stock. The
// update matches no row when the remaining stock is too low, which is
// surfaced as ErrInsufficientStock; stock can never go negative.
func (r *InventoryRepo) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("decrement stock: quantity must be positive, got %d", qty)
	}

	res, err := r.db.NewUpdate().
		Model((*InventoryItem)(nil)).
		Set("stock = stock - ?", qty).
		Where("id = ?", id).
		Where("stock >= ?", qty).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("decrement stock for %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock for %s: %w", id, err)
	}
	if rows == 0 {
		return ErrInsufficientStock
	}
	return nil
}
