package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/rxgenie/rxgenie/agent/contract"
	storex "github.com/rxgenie/rxgenie/store"
)

// graphState is threaded through the pipeline stages of one request.
type graphState struct {
	SessionID        string
	PatientID        string
	Text             string
	PrescriptionText string

	Intent   contractx.OrderIntent
	Decision contractx.SafetyDecision
	Action   *contractx.ActionResult
	Alerts   []contractx.RefillAlert
}

func (o *Orchestrator) compileChatOrderGraph(
	ctx context.Context,
) (compose.Runnable[GraphInput, contractx.ChatOrderResponse], error) {
	graph := compose.NewGraph[GraphInput, contractx.ChatOrderResponse]()

	if err := graph.AddLambdaNode("extract",
		compose.InvokableLambda(func(ctx context.Context, in GraphInput) (*graphState, error) {
			if strings.TrimSpace(in.SessionID) == "" {
				return nil, fmt.Errorf("%w: session id is required", contractx.ErrValidation)
			}
			if strings.TrimSpace(in.Request.PatientID) == "" {
				return nil, fmt.Errorf("%w: patient id is required", contractx.ErrValidation)
			}

			st := &graphState{
				SessionID:        in.SessionID,
				PatientID:        in.Request.PatientID,
				Text:             in.Request.Text,
				PrescriptionText: in.Request.PrescriptionText,
			}
			st.Intent = o.ordering.Extract(ctx, st.SessionID, st.Text)
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node extract: %w", err)
	}

	if err := graph.AddLambdaNode("evaluate",
		compose.InvokableLambda(func(ctx context.Context, st *graphState) (*graphState, error) {
			st.Decision = o.safety.Evaluate(ctx, st.SessionID, st.Intent, st.PrescriptionText)
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node evaluate: %w", err)
	}

	if err := graph.AddLambdaNode("compose_denial",
		compose.InvokableLambda(func(ctx context.Context, st *graphState) (contractx.ChatOrderResponse, error) {
			return contractx.ChatOrderResponse{
				Success: false,
				Message: denialMessage(st.Decision.Denial, st.Intent),
				Order:   &st.Intent,
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node compose_denial: %w", err)
	}

	if err := graph.AddLambdaNode("fulfill",
		compose.InvokableLambda(func(ctx context.Context, st *graphState) (*graphState, error) {
			result, err := o.action.Fulfill(ctx, st.SessionID, st.PatientID, st.Intent, st.Decision.Product)
			if err != nil {
				// A concurrent order can win the conditional decrement
				// between approval and commit; that becomes a late
				// out-of-stock denial instead of a pipeline error.
				if errors.Is(err, storex.ErrInsufficientStock) {
					st.Decision = contractx.SafetyDecision{
						Approved: false,
						Denial: &contractx.Denial{
							Kind:   contractx.DenialOutOfStock,
							Reason: fmt.Sprintf("Medicine %q ran out of stock while processing the order.", st.Intent.MedicineOr("this item")),
						},
					}
					return st, nil
				}
				return nil, err
			}
			st.Action = &result
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node fulfill: %w", err)
	}

	if err := graph.AddLambdaNode("check_refills",
		compose.InvokableLambda(func(ctx context.Context, st *graphState) (*graphState, error) {
			if st.Action != nil {
				st.Alerts = o.refill.Predict(ctx, st.SessionID, st.PatientID)
			}
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node check_refills: %w", err)
	}

	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(func(ctx context.Context, st *graphState) (contractx.ChatOrderResponse, error) {
			if st.Action == nil {
				return contractx.ChatOrderResponse{
					Success: false,
					Message: denialMessage(st.Decision.Denial, st.Intent),
					Order:   &st.Intent,
				}, nil
			}
			return contractx.ChatOrderResponse{
				Success:      true,
				Message:      successMessage(st.Intent),
				Order:        &st.Intent,
				Action:       st.Action,
				RefillAlerts: st.Alerts,
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, st *graphState) (string, error) {
			if st == nil {
				return "", fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
			}
			if st.Decision.Approved {
				return "fulfill", nil
			}
			return "compose_denial", nil
		},
		map[string]bool{
			"fulfill":        true,
			"compose_denial": true,
		},
	)

	if err := graph.AddEdge(compose.START, "extract"); err != nil {
		return nil, fmt.Errorf("add edge start->extract: %w", err)
	}
	if err := graph.AddEdge("extract", "evaluate"); err != nil {
		return nil, fmt.Errorf("add edge extract->evaluate: %w", err)
	}
	if err := graph.AddBranch("evaluate", branch); err != nil {
		return nil, fmt.Errorf("add evaluate branch: %w", err)
	}
	if err := graph.AddEdge("compose_denial", compose.END); err != nil {
		return nil, fmt.Errorf("add edge compose_denial->end: %w", err)
	}
	if err := graph.AddEdge("fulfill", "check_refills"); err != nil {
		return nil, fmt.Errorf("add edge fulfill->check_refills: %w", err)
	}
	if err := graph.AddEdge("check_refills", "finalize"); err != nil {
		return nil, fmt.Errorf("add edge check_refills->finalize: %w", err)
	}
	if err := graph.AddEdge("finalize", compose.END); err != nil {
		return nil, fmt.Errorf("add edge finalize->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.chat_order"))
	if err != nil {
		return nil, fmt.Errorf("compile chat order graph: %w", err)
	}
	return runner, nil
}
