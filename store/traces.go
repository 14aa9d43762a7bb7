package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TraceRepo is the append-only audit log of agent decisions.
type TraceRepo struct {
	db bun.IDB
}

func NewTraceRepo(db bun.IDB) *TraceRepo {
	return &TraceRepo{db: db}
}

func (r *TraceRepo) Append(ctx context.Context, entry *TraceEntry) error {
	if entry == nil {
		return fmt.Errorf("append trace: entry is nil")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if _, err := r.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("append trace: %w", err)
	}
	return nil
}

// AllFor returns every trace entry of a session, oldest first.
func (r *TraceRepo) AllFor(ctx context.Context, sessionID string) ([]TraceEntry, error) {
	var entries []TraceEntry
	if err := r.db.NewSelect().
		Model(&entries).
		Where("session_id = ?", sessionID).
		OrderExpr("timestamp ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("traces for session %s: %w", sessionID, err)
	}
	return entries, nil
}
