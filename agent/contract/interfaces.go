package contract

import (
	"context"

	"github.com/google/uuid"

	storex "github.com/rxgenie/rxgenie/store"
)

// Completer is the opaque text-completion capability. One attempt per
// call; retry policy belongs to the deploying system.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// InventoryStore is the product catalog with stock levels. Scan returns
// items ordered by lower(name) ascending so substring resolution is
// deterministic. DecrementStock is conditional and returns
// store.ErrInsufficientStock instead of taking stock negative.
type InventoryStore interface {
	Scan(ctx context.Context) ([]storex.InventoryItem, error)
	Sample(ctx context.Context, limit int) ([]storex.InventoryItem, error)
	FindByName(ctx context.Context, name string) (*storex.InventoryItem, error)
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) error
}

// OrderLedger is the append-only record of fulfilled orders.
type OrderLedger interface {
	Append(ctx context.Context, rec *storex.OrderRecord) error
	RecentFor(ctx context.Context, patientID string, limit int) ([]storex.OrderRecord, error)
}

// TraceLog is the append-only audit record of agent decisions.
type TraceLog interface {
	Append(ctx context.Context, entry *storex.TraceEntry) error
	AllFor(ctx context.Context, sessionID string) ([]storex.TraceEntry, error)
}

// Notifier delivers refill alerts to a patient's registered contact.
// Best effort: callers log failures and move on.
type Notifier interface {
	Notify(ctx context.Context, contact, displayName string, alerts []RefillAlert) error
}

type PatientDirectory interface {
	FindByID(ctx context.Context, patientID string) (*storex.Patient, error)
}

// The four pipeline agents. Extract, Evaluate and Predict recover from
// every failure internally and always return a usable value; Fulfill is
// the only stage whose error reaches the orchestrator.

type OrderingAgent interface {
	Extract(ctx context.Context, sessionID, text string) OrderIntent
}

type SafetyAgent interface {
	Evaluate(ctx context.Context, sessionID string, intent OrderIntent, prescriptionText string) SafetyDecision
}

type ActionAgent interface {
	Fulfill(ctx context.Context, sessionID, patientID string, intent OrderIntent, product *storex.InventoryItem) (ActionResult, error)
}

type RefillAgent interface {
	Predict(ctx context.Context, sessionID, patientID string) []RefillAlert
}
