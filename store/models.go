package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// InventoryItem is one stocked product. Stock is mutated only through
// InventoryRepo.DecrementStock and never goes negative.
type InventoryItem struct {
	bun.BaseModel `bun:"table:inventory_items,alias:i"`

	ID                   uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name                 string    `bun:"name,notnull" json:"name"`
	Description          string    `bun:"description" json:"description,omitempty"`
	Stock                int       `bun:"stock,notnull" json:"stock"`
	Price                float64   `bun:"price,notnull" json:"price"`
	PrescriptionRequired bool      `bun:"prescription_required,notnull" json:"prescription_required"`
}

// OrderRecord is an append-only row in the order ledger. The product
// fields are a snapshot taken at fulfillment time.
type OrderRecord struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID              uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	PatientID       string    `bun:"patient_id,notnull" json:"patient_id"`
	PurchaseDate    time.Time `bun:"purchase_date,notnull" json:"purchase_date"`
	ProductID       uuid.UUID `bun:"product_id,type:uuid,notnull" json:"product_id"`
	ProductName     string    `bun:"product_name,notnull" json:"product_name"`
	UnitPrice       float64   `bun:"unit_price,notnull" json:"unit_price"`
	Quantity        int       `bun:"quantity,notnull" json:"quantity"`
	TotalPrice      float64   `bun:"total_price,notnull" json:"total_price"`
	DosageFrequency string    `bun:"dosage_frequency" json:"dosage_frequency,omitempty"`
}

// TraceEntry is one audit row for one agent invocation. All entries of
// a single chat-order request share a session id.
type TraceEntry struct {
	bun.BaseModel `bun:"table:agent_traces,alias:t"`

	ID        uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	SessionID string          `bun:"session_id,notnull" json:"session_id"`
	AgentName string          `bun:"agent_name,notnull" json:"agent_name"`
	Timestamp time.Time       `bun:"timestamp,notnull" json:"timestamp"`
	Input     json.RawMessage `bun:"input,type:jsonb" json:"input,omitempty"`
	Reasoning string          `bun:"reasoning" json:"reasoning"`
	Decision  string          `bun:"decision" json:"decision"`
	Output    json.RawMessage `bun:"output,type:jsonb" json:"output,omitempty"`
}

// Patient is the registered contact record used for refill alerts.
type Patient struct {
	bun.BaseModel `bun:"table:patients,alias:p"`

	PatientID string `bun:"patient_id,pk" json:"patient_id"`
	Username  string `bun:"username" json:"username"`
	Email     string `bun:"email" json:"email,omitempty"`
}
