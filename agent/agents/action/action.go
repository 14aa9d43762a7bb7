// Package action commits an approved order or triggers external
// procurement. It trusts the caller's approval and does not re-validate
// policy; the orchestrator is the sole gate in front of it.
package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/rxgenie/rxgenie/agent/contract"
	tracex "github.com/rxgenie/rxgenie/agent/trace"
	storex "github.com/rxgenie/rxgenie/store"
)

const procurementSource = "partner"

// Hook receives a fulfillment payload after a committed order.
// Satisfied by webhook.Client.
type Hook interface {
	Post(ctx context.Context, payload any) error
}

type Agent struct {
	ledger    contractx.OrderLedger
	inventory contractx.InventoryStore
	traces    contractx.TraceLog
	hook      Hook
	now       func() time.Time
}

type Option func(*Agent)

// WithHook enables the best-effort outbound fulfillment notification.
func WithHook(hook Hook) Option {
	return func(a *Agent) {
		a.hook = hook
	}
}

func New(ledger contractx.OrderLedger, inventory contractx.InventoryStore, traces contractx.TraceLog, opts ...Option) (*Agent, error) {
	if ledger == nil {
		return nil, errors.New("order ledger is required")
	}
	if inventory == nil {
		return nil, errors.New("inventory store is required")
	}

	a := &Agent{
		ledger:    ledger,
		inventory: inventory,
		traces:    traces,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

var _ contractx.ActionAgent = (*Agent)(nil)

// Fulfill commits an approved order: conditional stock decrement first,
// then the ledger append, then the fire-and-forget hook. A nil product
// takes the procurement path and touches neither store. The decrement
// can still lose a race and fail with store.ErrInsufficientStock; no
// rollback is attempted at any point after it lands.
func (a *Agent) Fulfill(ctx context.Context, sessionID, patientID string, intent contractx.OrderIntent, product *storex.InventoryItem) (contractx.ActionResult, error) {
	if product == nil {
		result := contractx.ActionResult{
			Status: contractx.ActionProcurementTriggered,
			Source: procurementSource,
		}
		reasoning := fmt.Sprintf("Medicine %q not available locally. Triggered external procurement.", intent.MedicineOr("requested item"))
		tracex.Record(ctx, a.traces, sessionID, contractx.AgentAction, intent, result, reasoning, "External Success")
		return result, nil
	}

	qty := intent.Quantity
	if qty < 1 {
		qty = 1
	}

	if err := a.inventory.DecrementStock(ctx, product.ID, qty); err != nil {
		tracex.Record(ctx, a.traces, sessionID, contractx.AgentAction, intent, nil,
			fmt.Sprintf("Stock decrement rejected for %q.", product.Name), "Fulfillment Aborted")
		return contractx.ActionResult{}, fmt.Errorf("decrement stock: %w", err)
	}

	rec := &storex.OrderRecord{
		ID:           uuid.New(),
		PatientID:    patientID,
		PurchaseDate: a.now().UTC(),
		ProductID:    product.ID,
		ProductName:  product.Name,
		UnitPrice:    product.Price,
		Quantity:     qty,
		TotalPrice:   product.Price * float64(qty),
	}
	if intent.DosageFrequency != nil {
		rec.DosageFrequency = *intent.DosageFrequency
	}

	if err := a.ledger.Append(ctx, rec); err != nil {
		tracex.Record(ctx, a.traces, sessionID, contractx.AgentAction, intent, nil,
			"Ledger append failed after stock decrement; no rollback.", "Fulfillment Failed")
		return contractx.ActionResult{}, fmt.Errorf("append order: %w", err)
	}

	a.fireHook(ctx, rec)

	result := contractx.ActionResult{
		Status:  contractx.ActionOrderProcessed,
		OrderID: rec.ID.String(),
	}
	tracex.Record(ctx, a.traces, sessionID, contractx.AgentAction, intent, result,
		"Executed ledger append, stock decrement, and fulfillment hook.", "Success")
	return result, nil
}

func (a *Agent) fireHook(ctx context.Context, rec *storex.OrderRecord) {
	if a.hook == nil {
		return
	}
	if err := a.hook.Post(ctx, rec); err != nil {
		log.Warn().Err(err).Str("order_id", rec.ID.String()).Msg("fulfillment hook failed")
	}
}
