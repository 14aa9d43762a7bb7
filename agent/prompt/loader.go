package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/ordering.txt
	orderingRaw string

	//go:embed template/symptom_match.txt
	symptomMatchRaw string

	//go:embed template/prescription.txt
	prescriptionRaw string

	//go:embed template/refill.txt
	refillRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Ordering     string
	SymptomMatch string
	Prescription string
	Refill       string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Ordering:     strings.TrimSpace(orderingRaw),
		SymptomMatch: strings.TrimSpace(symptomMatchRaw),
		Prescription: strings.TrimSpace(prescriptionRaw),
		Refill:       strings.TrimSpace(refillRaw),
	}
}
