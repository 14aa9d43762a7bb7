// Package safety resolves an order intent to a concrete inventory item
// and approves or denies it against stock and prescription policy.
package safety

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/rxgenie/rxgenie/agent/contract"
	llmx "github.com/rxgenie/rxgenie/agent/llm"
	promptx "github.com/rxgenie/rxgenie/agent/prompt"
	tracex "github.com/rxgenie/rxgenie/agent/trace"
	storex "github.com/rxgenie/rxgenie/store"
)

// sampleLimit bounds how much inventory the symptom-match prompt sees.
const sampleLimit = 20

const clarifyReason = "I couldn't identify a specific medicine. Could you please tell me which one you usually take, or describe your symptoms more specifically?"

type Agent struct {
	completer contractx.Completer
	inventory contractx.InventoryStore
	traces    contractx.TraceLog
	prompts   promptx.PromptSet
}

func New(completer contractx.Completer, inventory contractx.InventoryStore, traces contractx.TraceLog) (*Agent, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if inventory == nil {
		return nil, errors.New("inventory store is required")
	}
	return &Agent{
		completer: completer,
		inventory: inventory,
		traces:    traces,
		prompts:   promptx.LoadPromptSet(),
	}, nil
}

var _ contractx.SafetyAgent = (*Agent)(nil)

// Evaluate never returns an error: any unexpected store or model
// failure collapses to the most conservative denial, with procurement
// offered, so the pipeline keeps moving.
func (a *Agent) Evaluate(ctx context.Context, sessionID string, intent contractx.OrderIntent, prescriptionText string) contractx.SafetyDecision {
	decision, reasoning, err := a.evaluate(ctx, intent, prescriptionText)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("safety evaluation failed")
		decision = contractx.SafetyDecision{
			Approved: false,
			Denial: &contractx.Denial{
				Kind:   contractx.DenialNotStocked,
				Reason: "Expert suggestion: not found in inventory.",
			},
		}
		reasoning = "Fallback due to system error."
	}

	input := map[string]any{"order": intent, "prescription": prescriptionText}
	tracex.Record(ctx, a.traces, sessionID, contractx.AgentSafety, input, decision, reasoning, "Decision Made")
	return decision
}

func (a *Agent) evaluate(ctx context.Context, intent contractx.OrderIntent, prescriptionText string) (contractx.SafetyDecision, string, error) {
	medicineName := intent.MedicineOr("")
	symptom := ""
	if intent.Symptom != nil {
		symptom = strings.TrimSpace(*intent.Symptom)
	}

	var product *storex.InventoryItem

	// Step 1: case-insensitive substring scan. Scan order is
	// lower(name) ascending, so the first match is stable.
	if medicineName != "" {
		items, err := a.inventory.Scan(ctx)
		if err != nil {
			return contractx.SafetyDecision{}, "", err
		}
		needle := strings.ToLower(medicineName)
		for i := range items {
			if strings.Contains(strings.ToLower(items[i].Name), needle) {
				product = &items[i]
				break
			}
		}
	}

	// Step 2: expert symptom match over an inventory sample.
	if product == nil && symptom != "" {
		matched, err := a.matchSymptom(ctx, symptom)
		if err != nil {
			return contractx.SafetyDecision{}, "", err
		}
		if matched != "" {
			p, err := a.inventory.FindByName(ctx, matched)
			if err != nil && !errors.Is(err, storex.ErrNotFound) {
				return contractx.SafetyDecision{}, "", err
			}
			if p != nil {
				product = p
				medicineName = matched
			}
		}
	}

	// Step 3: nothing identifiable, nothing to procure.
	if medicineName == "" && product == nil {
		return deny(contractx.DenialUnclear, clarifyReason),
			"No identifiable medicine in the request.", nil
	}

	// Step 4: identified but not stocked locally.
	if product == nil {
		reasoning := fmt.Sprintf("Medicine %q not found locally.", medicineName)
		return deny(contractx.DenialNotStocked, reasoning), reasoning, nil
	}

	// Step 5: stocked but empty.
	if product.Stock <= 0 {
		reasoning := fmt.Sprintf("Medicine %q is out of stock locally.", medicineName)
		return deny(contractx.DenialOutOfStock, reasoning), reasoning, nil
	}

	// Step 6: prescription policy.
	if product.PrescriptionRequired {
		if strings.TrimSpace(prescriptionText) == "" {
			reasoning := fmt.Sprintf("Medicine %q requires a prescription.", medicineName)
			return deny(contractx.DenialNeedsPrescription, reasoning), reasoning, nil
		}

		validation, err := a.validatePrescription(ctx, medicineName, prescriptionText)
		if err != nil {
			return contractx.SafetyDecision{}, "", err
		}
		if !validation.IsValid {
			reason := "I cannot approve this order based on the provided prescription. " + validation.Explanation
			return deny(contractx.DenialPolicyRejected, reason),
				"Prescription rejected: " + validation.Explanation, nil
		}
		return contractx.SafetyDecision{Approved: true, Product: product},
			"Prescription validated: " + validation.Explanation, nil
	}

	// Step 7: in stock, no prescription required.
	return contractx.SafetyDecision{Approved: true, Product: product},
		fmt.Sprintf("Medicine %q is available locally without a prescription.", medicineName), nil
}

// matchSymptom asks the expert model to pick a product name or the
// literal "None". Returns "" when there is no usable match.
func (a *Agent) matchSymptom(ctx context.Context, symptom string) (string, error) {
	sample, err := a.inventory.Sample(ctx, sampleLimit)
	if err != nil {
		return "", err
	}
	if len(sample) == 0 {
		return "", nil
	}

	products := make([]map[string]string, 0, len(sample))
	for _, item := range sample {
		products = append(products, map[string]string{
			"name":        item.Name,
			"description": item.Description,
		})
	}
	payload, err := json.Marshal(map[string]any{
		"symptom":  symptom,
		"products": products,
	})
	if err != nil {
		return "", fmt.Errorf("marshal symptom payload: %w", err)
	}

	raw, err := a.completer.Complete(ctx, contractx.CompletionRequest{
		Prompt: a.prompts.SymptomMatch + "\n\n" + string(payload),
	})
	if err != nil {
		return "", err
	}

	name := strings.Trim(strings.TrimSpace(raw), `"`)
	if name == "" || strings.EqualFold(name, "none") {
		return "", nil
	}
	return name, nil
}

type prescriptionVerdict struct {
	IsValid     bool   `json:"is_valid"`
	Explanation string `json:"explanation"`
}

func (a *Agent) validatePrescription(ctx context.Context, medicineName, prescriptionText string) (prescriptionVerdict, error) {
	payload, err := json.Marshal(map[string]string{
		"medicine":     medicineName,
		"prescription": prescriptionText,
	})
	if err != nil {
		return prescriptionVerdict{}, fmt.Errorf("marshal prescription payload: %w", err)
	}

	raw, err := a.completer.Complete(ctx, contractx.CompletionRequest{
		Prompt:     a.prompts.Prescription + "\n\n" + string(payload),
		ExpectJSON: true,
	})
	if err != nil {
		return prescriptionVerdict{}, err
	}

	var verdict prescriptionVerdict
	if err := llmx.UnmarshalLenient(raw, &verdict); err != nil {
		return prescriptionVerdict{}, err
	}
	return verdict, nil
}

func deny(kind contractx.DenialKind, reason string) contractx.SafetyDecision {
	return contractx.SafetyDecision{
		Approved: false,
		Denial:   &contractx.Denial{Kind: kind, Reason: reason},
	}
}
