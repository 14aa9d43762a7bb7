package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OrderRepo is the append-only order ledger.
type OrderRepo struct {
	db bun.IDB
}

func NewOrderRepo(db bun.IDB) *OrderRepo {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) Append(ctx context.Context, rec *OrderRecord) error {
	if rec == nil {
		return fmt.Errorf("append order: record is nil")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.PurchaseDate.IsZero() {
		rec.PurchaseDate = time.Now().UTC()
	}

	if _, err := r.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("append order: %w", err)
	}
	return nil
}

// RecentFor returns the patient's most recent orders, newest first.
func (r *OrderRepo) RecentFor(ctx context.Context, patientID string, limit int) ([]OrderRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	var records []OrderRecord
	if err := r.db.NewSelect().
		Model(&records).
		Where("patient_id = ?", patientID).
		OrderExpr("purchase_date DESC").
		Limit(limit).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("recent orders for %s: %w", patientID, err)
	}
	return records, nil
}
