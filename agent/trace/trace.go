// Package trace writes audit entries for agent decisions. Writes are
// fire-and-forget relative to the decision path: failures are logged
// and never block or abort the pipeline.
package trace

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/rxgenie/rxgenie/agent/contract"
	storex "github.com/rxgenie/rxgenie/store"
)

// Record appends one audit entry for a single agent invocation.
func Record(ctx context.Context, traces contractx.TraceLog, sessionID string, agent contractx.AgentName, input, output any, reasoning, decision string) {
	if traces == nil {
		return
	}

	entry := &storex.TraceEntry{
		ID:        uuid.New(),
		SessionID: sessionID,
		AgentName: string(agent),
		Timestamp: time.Now().UTC(),
		Input:     toJSON(input),
		Reasoning: reasoning,
		Decision:  decision,
		Output:    toJSON(output),
	}

	if err := traces.Append(ctx, entry); err != nil {
		log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("agent", string(agent)).
			Msg("trace write failed")
	}
}

func toJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(strconv.Quote("unserializable: " + err.Error()))
	}
	return raw
}
