// Package notify adapts an outbound poster to the refill Notifier
// contract. Delivery mechanics (mail, queue, webhook relay) live behind
// the endpoint; only the alert payload shape is owned here.
package notify

import (
	"context"
	"errors"

	contractx "github.com/rxgenie/rxgenie/agent/contract"
)

const alertSubject = "Action Required: Proactive Refill Alert"

// Poster is satisfied by webhook.Client.
type Poster interface {
	Post(ctx context.Context, payload any) error
}

type RefillNotifier struct {
	poster Poster
}

func NewRefillNotifier(poster Poster) (*RefillNotifier, error) {
	if poster == nil {
		return nil, errors.New("poster is required")
	}
	return &RefillNotifier{poster: poster}, nil
}

var _ contractx.Notifier = (*RefillNotifier)(nil)

func (n *RefillNotifier) Notify(ctx context.Context, contact, displayName string, alerts []contractx.RefillAlert) error {
	payload := map[string]any{
		"to":      contact,
		"name":    displayName,
		"subject": alertSubject,
		"alerts":  alerts,
	}
	return n.poster.Post(ctx, payload)
}
