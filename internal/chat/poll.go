// ABOUTME: Bounded polling for an asynchronous agent reply after delivery confirmation
// ABOUTME: Ticks the session history until a new qualifying counterparty message appears

package chat

import (
	"context"
	"time"

	"github.com/hol-org/registry-cli/internal/broker"
)

// PollResult is the outcome of waiting for an asynchronous reply. Found=false
// after the deadline is a defined terminal state ("not yet answered"), not a
// failure.
type PollResult struct {
	Found   bool
	Message string
}

// agentReplies returns the counterparty messages that are real replies, i.e.
// not themselves delivery confirmations.
func agentReplies(history []broker.HistoryEntry) []broker.HistoryEntry {
	var replies []broker.HistoryEntry
	for _, entry := range history {
		if entry.Role == "agent" && !IsDeliveryConfirmation(entry.Content) {
			replies = append(replies, entry)
		}
	}
	return replies
}

// pollForReply fetches the session history every interval until a qualifying
// agent message appears beyond initialCount or the timeout elapses. Transient
// fetch errors skip the tick rather than aborting.
func (o *Orchestrator) pollForReply(ctx context.Context, sessionID string, initialCount int) (*PollResult, error) {
	deadline := time.Now().Add(o.pollTimeout)
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		hist, err := o.api.GetSessionHistory(ctx, sessionID)
		if err != nil {
			o.logger.Debug("history poll tick failed", "session_id", sessionID, "error", err)
			continue
		}

		replies := agentReplies(hist.History)
		if len(replies) > initialCount {
			return &PollResult{Found: true, Message: replies[len(replies)-1].Content}, nil
		}
	}

	return &PollResult{Found: false}, nil
}
