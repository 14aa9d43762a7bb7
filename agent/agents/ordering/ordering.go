// Package ordering converts raw user text into a structured order
// intent. Extraction never fails: any model or parse failure degrades
// to a default intent so downstream stages always receive one.
package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/rxgenie/rxgenie/agent/contract"
	llmx "github.com/rxgenie/rxgenie/agent/llm"
	promptx "github.com/rxgenie/rxgenie/agent/prompt"
	tracex "github.com/rxgenie/rxgenie/agent/trace"
)

const defaultDosage = "As directed"

type Agent struct {
	completer contractx.Completer
	traces    contractx.TraceLog
	prompt    string
}

func New(completer contractx.Completer, traces contractx.TraceLog) (*Agent, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	return &Agent{
		completer: completer,
		traces:    traces,
		prompt:    promptx.LoadPromptSet().Ordering,
	}, nil
}

var _ contractx.OrderingAgent = (*Agent)(nil)

func (a *Agent) Extract(ctx context.Context, sessionID, text string) contractx.OrderIntent {
	intent, reasoning, decision := a.extract(ctx, text)
	tracex.Record(ctx, a.traces, sessionID, contractx.AgentOrdering, text, intent, reasoning, decision)
	return intent
}

func (a *Agent) extract(ctx context.Context, text string) (contractx.OrderIntent, string, string) {
	prompt := a.prompt + "\n\nText: " + strconv.Quote(text)
	raw, err := a.completer.Complete(ctx, contractx.CompletionRequest{
		Prompt:     prompt,
		ExpectJSON: true,
	})
	if err != nil {
		log.Error().Err(err).Msg("intent extraction completion failed")
		return degradedIntent(), "Completion failed; falling back to default intent.", "Extraction Failed"
	}

	var out intentPayload
	if err := llmx.UnmarshalLenient(raw, &out); err != nil {
		log.Warn().Err(err).Msg("intent extraction returned unparseable output")
		return degradedIntent(), "Completion output unparseable; falling back to default intent.", "Extraction Failed"
	}

	return out.toIntent(), "Extracted structured order details from natural text.", "Extracted"
}

// intentPayload tolerates the model returning quantity as a number or a
// numeric string.
type intentPayload struct {
	MedicineName     *string     `json:"medicine_name"`
	Quantity         json.Number `json:"quantity"`
	DosageFrequency  *string     `json:"dosage_frequency"`
	DetectedLanguage *string     `json:"detected_language"`
	Symptom          *string     `json:"symptom"`
}

func (p intentPayload) toIntent() contractx.OrderIntent {
	quantity := 1
	if q, err := p.Quantity.Int64(); err == nil && q >= 1 {
		quantity = int(q)
	} else if f, err := p.Quantity.Float64(); err == nil && f >= 1 {
		quantity = int(f)
	}

	dosage := trimmed(p.DosageFrequency)
	if dosage == nil {
		d := defaultDosage
		dosage = &d
	}

	return contractx.OrderIntent{
		MedicineName:     trimmed(p.MedicineName),
		Quantity:         quantity,
		DosageFrequency:  dosage,
		DetectedLanguage: trimmed(p.DetectedLanguage),
		Symptom:          trimmed(p.Symptom),
	}
}

func degradedIntent() contractx.OrderIntent {
	dosage := defaultDosage
	return contractx.OrderIntent{
		MedicineName:    nil,
		Quantity:        1,
		DosageFrequency: &dosage,
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
