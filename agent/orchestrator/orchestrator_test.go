package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	actionx "github.com/rxgenie/rxgenie/agent/agents/action"
	orderingx "github.com/rxgenie/rxgenie/agent/agents/ordering"
	refillx "github.com/rxgenie/rxgenie/agent/agents/refill"
	safetyx "github.com/rxgenie/rxgenie/agent/agents/safety"
	contractx "github.com/rxgenie/rxgenie/agent/contract"
	storex "github.com/rxgenie/rxgenie/store"
)

// ---- stage-level fakes ----

type fakeOrdering struct {
	intent contractx.OrderIntent
}

func (f *fakeOrdering) Extract(ctx context.Context, sessionID, text string) contractx.OrderIntent {
	return f.intent
}

type fakeSafety struct {
	decision contractx.SafetyDecision
}

func (f *fakeSafety) Evaluate(ctx context.Context, sessionID string, intent contractx.OrderIntent, prescriptionText string) contractx.SafetyDecision {
	return f.decision
}

type fakeAction struct {
	result contractx.ActionResult
	err    error
	calls  int
}

func (f *fakeAction) Fulfill(ctx context.Context, sessionID, patientID string, intent contractx.OrderIntent, product *storex.InventoryItem) (contractx.ActionResult, error) {
	f.calls++
	if f.err != nil {
		return contractx.ActionResult{}, f.err
	}
	return f.result, nil
}

type fakeRefill struct {
	alerts []contractx.RefillAlert
	calls  int
}

func (f *fakeRefill) Predict(ctx context.Context, sessionID, patientID string) []contractx.RefillAlert {
	f.calls++
	return f.alerts
}

type memTraceLog struct {
	entries []storex.TraceEntry
	allErr  error
}

func (m *memTraceLog) Append(ctx context.Context, entry *storex.TraceEntry) error {
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memTraceLog) AllFor(ctx context.Context, sessionID string) ([]storex.TraceEntry, error) {
	if m.allErr != nil {
		return nil, m.allErr
	}
	var out []storex.TraceEntry
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func named(name string) contractx.OrderIntent {
	return contractx.OrderIntent{MedicineName: &name, Quantity: 1}
}

func request(text string) contractx.ChatOrderRequest {
	return contractx.ChatOrderRequest{PatientID: "p1", Text: text}
}

func newOrch(t *testing.T, ordering contractx.OrderingAgent, safety contractx.SafetyAgent, action contractx.ActionAgent, refill contractx.RefillAgent, traces contractx.TraceLog) *Orchestrator {
	t.Helper()
	o, err := New(ordering, safety, action, refill, traces)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestProcessChatOrderApprovedFlow(t *testing.T) {
	t.Parallel()

	action := &fakeAction{result: contractx.ActionResult{Status: contractx.ActionOrderProcessed, OrderID: "o1"}}
	refill := &fakeRefill{alerts: []contractx.RefillAlert{{Medicine: "Paracetamol", DaysUntilRefill: 3, Reason: "low"}}}
	product := &storex.InventoryItem{ID: uuid.New(), Name: "Paracetamol", Stock: 20, Price: 4.5}
	o := newOrch(t,
		&fakeOrdering{intent: named("Paracetamol")},
		&fakeSafety{decision: contractx.SafetyDecision{Approved: true, Product: product}},
		action, refill, &memTraceLog{},
	)

	resp := o.ProcessChatOrder(context.Background(), "s1", request("I need Paracetamol for fever"))
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if !strings.Contains(resp.Message, "Paracetamol") {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
	if resp.Action == nil || resp.Action.OrderID != "o1" {
		t.Fatalf("unexpected action: %+v", resp.Action)
	}
	if len(resp.RefillAlerts) != 1 {
		t.Fatalf("unexpected alerts: %+v", resp.RefillAlerts)
	}
	if action.calls != 1 || refill.calls != 1 {
		t.Fatalf("expected one action and one refill call, got %d/%d", action.calls, refill.calls)
	}
	if resp.Traces == nil {
		t.Fatal("traces must be non-nil")
	}
}

func TestProcessChatOrderDenialNeverReachesAction(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		denial      contractx.Denial
		wantMessage string
	}{
		{
			name:        "procurement offer",
			denial:      contractx.Denial{Kind: contractx.DenialNotStocked, Reason: "not found"},
			wantMessage: "partner shops",
		},
		{
			name:        "out of stock",
			denial:      contractx.Denial{Kind: contractx.DenialOutOfStock, Reason: "empty"},
			wantMessage: "partner shops",
		},
		{
			name:        "prescription required",
			denial:      contractx.Denial{Kind: contractx.DenialNeedsPrescription, Reason: "rx needed"},
			wantMessage: "requires a prescription",
		},
		{
			name:        "unclear",
			denial:      contractx.Denial{Kind: contractx.DenialUnclear, Reason: "Please tell me which medicine you usually take."},
			wantMessage: "Please tell me which medicine you usually take.",
		},
		{
			name:        "policy rejected",
			denial:      contractx.Denial{Kind: contractx.DenialPolicyRejected, Reason: "I cannot approve this order based on the provided prescription."},
			wantMessage: "cannot approve",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			action := &fakeAction{}
			refill := &fakeRefill{}
			denial := tc.denial
			o := newOrch(t,
				&fakeOrdering{intent: named("Paracetamol")},
				&fakeSafety{decision: contractx.SafetyDecision{Approved: false, Denial: &denial}},
				action, refill, &memTraceLog{},
			)

			resp := o.ProcessChatOrder(context.Background(), "s1", request("order"))
			if resp.Success {
				t.Fatal("expected denial response")
			}
			if !strings.Contains(resp.Message, tc.wantMessage) {
				t.Fatalf("message %q does not contain %q", resp.Message, tc.wantMessage)
			}
			if action.calls != 0 {
				t.Fatal("action agent must not run on denial")
			}
			if refill.calls != 0 {
				t.Fatal("refill agent must not run on denial")
			}
		})
	}
}

func TestProcessChatOrderLateOutOfStock(t *testing.T) {
	t.Parallel()

	action := &fakeAction{err: fmt.Errorf("decrement stock: %w", storex.ErrInsufficientStock)}
	refill := &fakeRefill{}
	product := &storex.InventoryItem{ID: uuid.New(), Name: "Paracetamol", Stock: 1, Price: 4.5}
	o := newOrch(t,
		&fakeOrdering{intent: named("Paracetamol")},
		&fakeSafety{decision: contractx.SafetyDecision{Approved: true, Product: product}},
		action, refill, &memTraceLog{},
	)

	resp := o.ProcessChatOrder(context.Background(), "s1", request("order"))
	if resp.Success {
		t.Fatal("expected late denial")
	}
	if !strings.Contains(resp.Message, "partner shops") {
		t.Fatalf("expected procurement offer, got %q", resp.Message)
	}
	if refill.calls != 0 {
		t.Fatal("refill must not run after a failed fulfillment")
	}
}

func TestProcessChatOrderUnexpectedFailureYieldsApology(t *testing.T) {
	t.Parallel()

	action := &fakeAction{err: errors.New("ledger exploded")}
	product := &storex.InventoryItem{ID: uuid.New(), Name: "Paracetamol", Stock: 5, Price: 4.5}
	o := newOrch(t,
		&fakeOrdering{intent: named("Paracetamol")},
		&fakeSafety{decision: contractx.SafetyDecision{Approved: true, Product: product}},
		action, &fakeRefill{}, &memTraceLog{},
	)

	resp := o.ProcessChatOrder(context.Background(), "s1", request("order"))
	if resp.Success {
		t.Fatal("expected failure response")
	}
	if resp.Message != apologyMessage {
		t.Fatalf("expected generic apology, got %q", resp.Message)
	}
	if resp.Traces == nil || len(resp.Traces) != 0 {
		t.Fatalf("expected empty trace list, got %+v", resp.Traces)
	}
}

func TestProcessChatOrderTraceReadbackFailureIsEmptyList(t *testing.T) {
	t.Parallel()

	traces := &memTraceLog{allErr: errors.New("trace store down")}
	o := newOrch(t,
		&fakeOrdering{intent: named("Paracetamol")},
		&fakeSafety{decision: contractx.SafetyDecision{Approved: false, Denial: &contractx.Denial{Kind: contractx.DenialNotStocked}}},
		&fakeAction{}, &fakeRefill{}, traces,
	)

	resp := o.ProcessChatOrder(context.Background(), "s1", request("order"))
	if resp.Traces == nil || len(resp.Traces) != 0 {
		t.Fatalf("expected empty non-nil traces, got %+v", resp.Traces)
	}
}

// ---- end-to-end over real agents and in-memory stores ----

type fakeCompleter struct {
	responses []string
	err       error
	idx       int
	calls     int
}

func (f *fakeCompleter) Complete(ctx context.Context, req contractx.CompletionRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.idx >= len(f.responses) {
		return "", errors.New("no fake response left")
	}
	resp := f.responses[f.idx]
	f.idx++
	return resp, nil
}

type memInventory struct {
	items []storex.InventoryItem
}

func (m *memInventory) Scan(ctx context.Context) ([]storex.InventoryItem, error) {
	return m.items, nil
}

func (m *memInventory) Sample(ctx context.Context, limit int) ([]storex.InventoryItem, error) {
	if len(m.items) > limit {
		return m.items[:limit], nil
	}
	return m.items, nil
}

func (m *memInventory) FindByName(ctx context.Context, name string) (*storex.InventoryItem, error) {
	for i := range m.items {
		if m.items[i].Name == name {
			return &m.items[i], nil
		}
	}
	return nil, storex.ErrNotFound
}

func (m *memInventory) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	for i := range m.items {
		if m.items[i].ID == id {
			if m.items[i].Stock < qty {
				return storex.ErrInsufficientStock
			}
			m.items[i].Stock -= qty
			return nil
		}
	}
	return storex.ErrInsufficientStock
}

type memLedger struct {
	records []storex.OrderRecord
}

func (m *memLedger) Append(ctx context.Context, rec *storex.OrderRecord) error {
	m.records = append(m.records, *rec)
	return nil
}

func (m *memLedger) RecentFor(ctx context.Context, patientID string, limit int) ([]storex.OrderRecord, error) {
	var out []storex.OrderRecord
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].PatientID == patientID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

type memPatients struct{}

func (memPatients) FindByID(ctx context.Context, patientID string) (*storex.Patient, error) {
	return nil, storex.ErrNotFound
}

func buildPipeline(t *testing.T, inv *memInventory, ledger *memLedger, traces *memTraceLog, extractResp string, refillResponses []string) *Orchestrator {
	t.Helper()

	ordering, err := orderingx.New(&fakeCompleter{responses: []string{extractResp}}, traces)
	if err != nil {
		t.Fatalf("ordering.New() error = %v", err)
	}
	safety, err := safetyx.New(&fakeCompleter{}, inv, traces)
	if err != nil {
		t.Fatalf("safety.New() error = %v", err)
	}
	action, err := actionx.New(ledger, inv, traces)
	if err != nil {
		t.Fatalf("action.New() error = %v", err)
	}
	refill, err := refillx.New(&fakeCompleter{responses: refillResponses}, ledger, memPatients{}, traces)
	if err != nil {
		t.Fatalf("refill.New() error = %v", err)
	}

	return newOrch(t, ordering, safety, action, refill, traces)
}

func TestPipelineParacetamolScenario(t *testing.T) {
	t.Parallel()

	inv := &memInventory{items: []storex.InventoryItem{
		{ID: uuid.New(), Name: "Paracetamol", Stock: 20, Price: 4.5},
	}}
	ledger := &memLedger{}
	traces := &memTraceLog{}
	o := buildPipeline(t, inv, ledger, traces,
		`{"medicine_name":"Paracetamol","quantity":1,"dosage_frequency":"as needed","detected_language":"en","symptom":"fever"}`,
		[]string{`{"needs_refill":false,"days_until_refill":30,"reason":"fresh order"}`},
	)

	resp := o.ProcessChatOrder(context.Background(), "s1", request("I need Paracetamol for fever"))
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Order == nil || resp.Order.MedicineName == nil || *resp.Order.MedicineName != "Paracetamol" {
		t.Fatalf("unexpected order intent: %+v", resp.Order)
	}
	if inv.items[0].Stock != 19 {
		t.Fatalf("expected stock 19, got %d", inv.items[0].Stock)
	}
	if len(ledger.records) != 1 || ledger.records[0].TotalPrice != 4.5 {
		t.Fatalf("unexpected ledger: %+v", ledger.records)
	}

	// one trace per agent invocation, in invocation order
	got, err := traces.AllFor(context.Background(), "s1")
	if err != nil {
		t.Fatalf("AllFor() error = %v", err)
	}
	wantAgents := []contractx.AgentName{
		contractx.AgentOrdering,
		contractx.AgentSafety,
		contractx.AgentAction,
		contractx.AgentRefill,
	}
	if len(got) != len(wantAgents) {
		t.Fatalf("expected %d trace entries, got %d", len(wantAgents), len(got))
	}
	for i, want := range wantAgents {
		if got[i].AgentName != string(want) {
			t.Fatalf("trace %d = %s, want %s", i, got[i].AgentName, want)
		}
	}
	if len(resp.Traces) != len(wantAgents) {
		t.Fatalf("response traces = %d, want %d", len(resp.Traces), len(wantAgents))
	}
}

func TestPipelineOutOfStockScenario(t *testing.T) {
	t.Parallel()

	inv := &memInventory{items: []storex.InventoryItem{
		{ID: uuid.New(), Name: "Paracetamol", Stock: 0, Price: 4.5},
	}}
	ledger := &memLedger{}
	traces := &memTraceLog{}
	o := buildPipeline(t, inv, ledger, traces,
		`{"medicine_name":"Paracetamol","quantity":1}`,
		nil,
	)

	resp := o.ProcessChatOrder(context.Background(), "s1", request("I need Paracetamol for fever"))
	if resp.Success {
		t.Fatal("expected denial")
	}
	if !strings.Contains(resp.Message, "partner shops") {
		t.Fatalf("expected procurement offer, got %q", resp.Message)
	}
	if len(ledger.records) != 0 {
		t.Fatal("ledger must stay untouched")
	}
	if inv.items[0].Stock != 0 {
		t.Fatalf("stock must not change, got %d", inv.items[0].Stock)
	}
	// ordering + safety only
	if len(resp.Traces) != 2 {
		t.Fatalf("expected 2 trace entries, got %d", len(resp.Traces))
	}
}
