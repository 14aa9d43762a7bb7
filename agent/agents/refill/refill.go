// Package refill inspects a patient's order history and predicts
// near-term refill needs. Read-mostly: its only side effect is the
// best-effort contact notification.
package refill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/rxgenie/rxgenie/agent/contract"
	llmx "github.com/rxgenie/rxgenie/agent/llm"
	promptx "github.com/rxgenie/rxgenie/agent/prompt"
	tracex "github.com/rxgenie/rxgenie/agent/trace"
	storex "github.com/rxgenie/rxgenie/store"
)

const (
	defaultHistoryLimit = 5
	fallbackDisplayName = "Valued Patient"
)

type Agent struct {
	completer    contractx.Completer
	ledger       contractx.OrderLedger
	patients     contractx.PatientDirectory
	notifier     contractx.Notifier
	traces       contractx.TraceLog
	prompt       string
	historyLimit int
	now          func() time.Time
}

type Option func(*Agent)

// WithNotifier enables outbound refill alerts.
func WithNotifier(n contractx.Notifier) Option {
	return func(a *Agent) {
		a.notifier = n
	}
}

func WithHistoryLimit(limit int) Option {
	return func(a *Agent) {
		if limit > 0 {
			a.historyLimit = limit
		}
	}
}

func New(completer contractx.Completer, ledger contractx.OrderLedger, patients contractx.PatientDirectory, traces contractx.TraceLog, opts ...Option) (*Agent, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if ledger == nil {
		return nil, errors.New("order ledger is required")
	}
	if patients == nil {
		return nil, errors.New("patient directory is required")
	}

	a := &Agent{
		completer:    completer,
		ledger:       ledger,
		patients:     patients,
		traces:       traces,
		prompt:       promptx.LoadPromptSet().Refill,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

var _ contractx.RefillAgent = (*Agent)(nil)

// Predict estimates refill needs from the patient's recent orders.
// Empty history short-circuits with zero completion calls. Individual
// estimate failures skip that order rather than abort the run.
func (a *Agent) Predict(ctx context.Context, sessionID, patientID string) []contractx.RefillAlert {
	history, err := a.ledger.RecentFor(ctx, patientID, a.historyLimit)
	if err != nil {
		log.Error().Err(err).Str("patient_id", patientID).Msg("order history lookup failed")
		tracex.Record(ctx, a.traces, sessionID, contractx.AgentRefill, patientID, nil,
			"Order history unavailable.", "Skipped Analysis")
		return nil
	}
	if len(history) == 0 {
		tracex.Record(ctx, a.traces, sessionID, contractx.AgentRefill, patientID, []contractx.RefillAlert{},
			"No past orders found for this patient.", "Skipped Analysis")
		return nil
	}

	var alerts []contractx.RefillAlert
	for i := range history {
		estimate, err := a.estimate(ctx, &history[i])
		if err != nil {
			log.Warn().Err(err).Str("order_id", history[i].ID.String()).Msg("refill estimate failed")
			continue
		}
		if !estimate.NeedsRefill {
			continue
		}
		alerts = append(alerts, contractx.RefillAlert{
			Medicine:        history[i].ProductName,
			DaysUntilRefill: estimate.DaysUntilRefill,
			Reason:          "Proactive check: " + estimate.Reason,
		})
	}

	tracex.Record(ctx, a.traces, sessionID, contractx.AgentRefill, patientID, alerts,
		fmt.Sprintf("Refill analysis found %d items requiring attention soon.", len(alerts)), "Analysis Complete")

	if len(alerts) > 0 {
		a.notify(ctx, patientID, alerts)
	}
	return alerts
}

type refillEstimate struct {
	NeedsRefill     bool   `json:"needs_refill"`
	DaysUntilRefill int    `json:"days_until_refill"`
	Reason          string `json:"reason"`
}

func (a *Agent) estimate(ctx context.Context, order *storex.OrderRecord) (refillEstimate, error) {
	payload, err := json.Marshal(map[string]any{
		"order":        order,
		"current_date": a.now().UTC().Format("2006-01-02"),
	})
	if err != nil {
		return refillEstimate{}, fmt.Errorf("marshal refill payload: %w", err)
	}

	raw, err := a.completer.Complete(ctx, contractx.CompletionRequest{
		Prompt:     a.prompt + "\n\n" + string(payload),
		ExpectJSON: true,
	})
	if err != nil {
		return refillEstimate{}, err
	}

	var estimate refillEstimate
	if err := llmx.UnmarshalLenient(raw, &estimate); err != nil {
		return refillEstimate{}, err
	}
	return estimate, nil
}

// notify looks up the registered contact and delivers the alerts.
// No contact on file is a silent skip; delivery failure is logged only.
func (a *Agent) notify(ctx context.Context, patientID string, alerts []contractx.RefillAlert) {
	if a.notifier == nil {
		return
	}

	patient, err := a.patients.FindByID(ctx, patientID)
	if err != nil {
		if !errors.Is(err, storex.ErrNotFound) {
			log.Warn().Err(err).Str("patient_id", patientID).Msg("patient lookup failed")
		}
		return
	}
	if patient.Email == "" {
		log.Debug().Str("patient_id", patientID).Msg("no contact on file, skipping refill alert")
		return
	}

	name := patient.Username
	if name == "" {
		name = fallbackDisplayName
	}
	if err := a.notifier.Notify(ctx, patient.Email, name, alerts); err != nil {
		log.Warn().Err(err).Str("patient_id", patientID).Msg("refill notification failed")
	}
}
