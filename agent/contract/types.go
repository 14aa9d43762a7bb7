package contract

import (
	"strings"

	storex "github.com/rxgenie/rxgenie/store"
)

type AgentName string

const (
	AgentOrdering AgentName = "Conversational Ordering Agent"
	AgentSafety   AgentName = "Safety & Policy Agent"
	AgentAction   AgentName = "Action Agent"
	AgentRefill   AgentName = "Predictive Refill Agent"
)

// CompletionRequest is the narrow surface agents use to talk to the
// language model. ExpectJSON asks the backend for a JSON-object
// completion; the response text may still be fenced or malformed.
type CompletionRequest struct {
	Prompt     string
	ExpectJSON bool
}

// OrderIntent is the structured interpretation of a free-text order.
// Fields are nil when they could not be recovered from the input.
// Immutable once produced.
type OrderIntent struct {
	MedicineName     *string `json:"medicine_name"`
	Quantity         int     `json:"quantity"`
	DosageFrequency  *string `json:"dosage_frequency"`
	DetectedLanguage *string `json:"detected_language,omitempty"`
	Symptom          *string `json:"symptom,omitempty"`
}

// MedicineOr returns the extracted medicine name, or fallback when the
// intent carries none.
func (i OrderIntent) MedicineOr(fallback string) string {
	if i.MedicineName != nil {
		if name := strings.TrimSpace(*i.MedicineName); name != "" {
			return name
		}
	}
	return fallback
}

type DenialKind string

const (
	// DenialUnclear: no identifiable medicine, nothing to procure.
	DenialUnclear DenialKind = "unclear"
	// DenialNotStocked: a name was identified but no local item exists.
	DenialNotStocked DenialKind = "not_stocked"
	// DenialOutOfStock: the item exists locally with zero stock.
	DenialOutOfStock DenialKind = "out_of_stock"
	// DenialNeedsPrescription: prescription required, none supplied.
	DenialNeedsPrescription DenialKind = "prescription_needed"
	// DenialPolicyRejected: supplied prescription did not validate.
	DenialPolicyRejected DenialKind = "policy_rejected"
)

// Denial carries exactly one denial outcome. The kinds replace the
// original independent procurement/prescription flags, so illegal
// combinations cannot be represented.
type Denial struct {
	Kind   DenialKind `json:"kind"`
	Reason string     `json:"reason,omitempty"`
}

// ProcurementAvailable reports whether an external procurement offer
// makes sense for this denial.
func (d Denial) ProcurementAvailable() bool {
	return d.Kind == DenialNotStocked || d.Kind == DenialOutOfStock
}

// SafetyDecision is the outcome of policy evaluation. Product is set
// only when Approved; Denial is set only when not.
type SafetyDecision struct {
	Approved bool                  `json:"approved"`
	Product  *storex.InventoryItem `json:"product,omitempty"`
	Denial   *Denial               `json:"denial,omitempty"`
}

const (
	ActionOrderProcessed       = "order_processed"
	ActionProcurementTriggered = "procurement_triggered"
)

type ActionResult struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
	Source  string `json:"source,omitempty"`
}

type RefillAlert struct {
	Medicine        string `json:"medicine"`
	DaysUntilRefill int    `json:"days_until_refill"`
	Reason          string `json:"reason"`
}

// ChatOrderRequest is the pipeline entry payload, as handed over by the
// serving layer.
type ChatOrderRequest struct {
	PatientID        string `json:"patient_id"`
	Text             string `json:"text"`
	PrescriptionText string `json:"prescription_data,omitempty"`
}

// ChatOrderResponse is the assembled pipeline result. Traces is always
// non-nil; a trace readback failure yields an empty list.
type ChatOrderResponse struct {
	Success      bool                `json:"success"`
	Message      string              `json:"message"`
	Order        *OrderIntent        `json:"order,omitempty"`
	Action       *ActionResult       `json:"action,omitempty"`
	RefillAlerts []RefillAlert       `json:"refill_alerts,omitempty"`
	Traces       []storex.TraceEntry `json:"traces"`
}
