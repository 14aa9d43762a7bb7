// Package orchestrator sequences the four pipeline agents for one
// chat-order request and assembles the final response. It is the sole
// enforcement point for the rule that fulfillment only ever runs after
// safety approval.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/rxgenie/rxgenie/agent/contract"
	storex "github.com/rxgenie/rxgenie/store"
)

const apologyMessage = "I encountered an issue processing your order. However, if the item is unavailable, I can usually procure it from a partner shop. Please try again or specify the medicine more clearly."

// GraphInput is one chat-order request plus its session correlation id.
type GraphInput struct {
	SessionID string
	Request   contractx.ChatOrderRequest
}

type Orchestrator struct {
	ordering contractx.OrderingAgent
	safety   contractx.SafetyAgent
	action   contractx.ActionAgent
	refill   contractx.RefillAgent
	traces   contractx.TraceLog

	graphRunner compose.Runnable[GraphInput, contractx.ChatOrderResponse]
}

func New(
	ordering contractx.OrderingAgent,
	safety contractx.SafetyAgent,
	action contractx.ActionAgent,
	refill contractx.RefillAgent,
	traces contractx.TraceLog,
) (*Orchestrator, error) {
	if ordering == nil {
		return nil, errors.New("ordering agent is required")
	}
	if safety == nil {
		return nil, errors.New("safety agent is required")
	}
	if action == nil {
		return nil, errors.New("action agent is required")
	}
	if refill == nil {
		return nil, errors.New("refill agent is required")
	}
	if traces == nil {
		return nil, errors.New("trace log is required")
	}

	o := &Orchestrator{
		ordering: ordering,
		safety:   safety,
		action:   action,
		refill:   refill,
		traces:   traces,
	}

	graphRunner, err := o.compileChatOrderGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// ProcessChatOrder runs the pipeline for one request. Any error that
// escapes the graph collapses to a generic apology with an empty trace
// list; raw internals are never shown to the caller.
func (o *Orchestrator) ProcessChatOrder(ctx context.Context, sessionID string, req contractx.ChatOrderRequest) contractx.ChatOrderResponse {
	resp, err := o.graphRunner.Invoke(ctx, GraphInput{
		SessionID: sessionID,
		Request:   req,
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("chat order pipeline failed")
		return contractx.ChatOrderResponse{
			Success: false,
			Message: apologyMessage,
			Traces:  []storex.TraceEntry{},
		}
	}

	resp.Traces = o.readTraces(ctx, sessionID)
	return resp
}

// readTraces is best-effort: a readback failure yields an empty list
// rather than failing the whole response.
func (o *Orchestrator) readTraces(ctx context.Context, sessionID string) []storex.TraceEntry {
	entries, err := o.traces.AllFor(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("trace readback failed")
		return []storex.TraceEntry{}
	}
	if entries == nil {
		entries = []storex.TraceEntry{}
	}
	return entries
}

func denialMessage(denial *contractx.Denial, intent contractx.OrderIntent) string {
	medName := intent.MedicineOr("this item")
	switch {
	case denial == nil:
		return apologyMessage
	case denial.ProcurementAvailable():
		return fmt.Sprintf("We don't have %q in our local inventory at the moment. However, as your expert pharmacist, I can procure it for you from one of our partner shops! Shall I proceed with the external order?", medName)
	case denial.Kind == contractx.DenialNeedsPrescription:
		return fmt.Sprintf("I've found %q, but it requires a prescription which I don't see on file. Please upload it to continue.", medName)
	default:
		return denial.Reason
	}
}

func successMessage(intent contractx.OrderIntent) string {
	return fmt.Sprintf("Available! Order placed successfully for %s.", intent.MedicineOr("your medicine"))
}
