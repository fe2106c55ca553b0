// ABOUTME: Tests for the chat orchestrator state machine
// ABOUTME: Covers cache reuse, liveness recreation, transport fallback, and reply polling

package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hol-org/registry-cli/internal/broker"
	"github.com/hol-org/registry-cli/internal/session"
)

// fakeBroker scripts the broker surface and records every call.
type fakeBroker struct {
	createFn  func(req broker.CreateSessionRequest) (*broker.CreateSessionResult, error)
	sendFn    func(req broker.SendMessageRequest) (*broker.ChatResponse, error)
	historyFn func(sessionID string) (*broker.SessionHistory, error)

	createCalls  []broker.CreateSessionRequest
	sendCalls    []broker.SendMessageRequest
	historyCalls int
}

func (f *fakeBroker) CreateSession(ctx context.Context, req broker.CreateSessionRequest) (*broker.CreateSessionResult, error) {
	f.createCalls = append(f.createCalls, req)
	if f.createFn == nil {
		return &broker.CreateSessionResult{SessionID: "sess-1"}, nil
	}
	return f.createFn(req)
}

func (f *fakeBroker) SendMessage(ctx context.Context, req broker.SendMessageRequest) (*broker.ChatResponse, error) {
	f.sendCalls = append(f.sendCalls, req)
	if f.sendFn == nil {
		return &broker.ChatResponse{Message: "hello back"}, nil
	}
	return f.sendFn(req)
}

func (f *fakeBroker) GetSessionHistory(ctx context.Context, sessionID string) (*broker.SessionHistory, error) {
	f.historyCalls++
	if f.historyFn == nil {
		return &broker.SessionHistory{}, nil
	}
	return f.historyFn(sessionID)
}

func newOrchestrator(api BrokerAPI, cache session.Store) *Orchestrator {
	return NewOrchestrator(api, cache, WithPolling(time.Millisecond, 50*time.Millisecond))
}

func TestChat_CreatesSessionWithDefaultTransport(t *testing.T) {
	fb := &fakeBroker{}
	cache := session.NewMemoryStore()
	o := newOrchestrator(fb, cache)

	res, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{})
	require.NoError(t, err)

	require.Len(t, fb.createCalls, 1)
	assert.Equal(t, DefaultTransport, fb.createCalls[0].Transport)
	assert.Equal(t, "uaid:aid:demo", fb.createCalls[0].UAID)

	require.Len(t, fb.sendCalls, 1)
	assert.Equal(t, "sess-1", fb.sendCalls[0].SessionID)
	assert.Equal(t, "Hello!", fb.sendCalls[0].Message)

	assert.True(t, res.Created)
	assert.Equal(t, "hello back", res.Reply)
	assert.Equal(t, DefaultTransport, res.Transport)

	rec, err := cache.Get(context.Background(), "uaid:aid:demo")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.Equal(t, DefaultTransport, rec.Transport)
}

func TestChat_ReusesCachedSession(t *testing.T) {
	fb := &fakeBroker{}
	cache := session.NewMemoryStore()
	o := newOrchestrator(fb, cache)

	first, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{})
	require.NoError(t, err)

	second, err := o.Chat(context.Background(), "uaid:aid:demo", "Again", Options{})
	require.NoError(t, err)

	assert.Len(t, fb.createCalls, 1, "second invocation must never re-run the create step")
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.False(t, second.Created)
	assert.Len(t, fb.sendCalls, 2)
}

func TestChat_RecreatesWhenProbeFails(t *testing.T) {
	fb := &fakeBroker{}
	sessionCount := 0
	fb.createFn = func(req broker.CreateSessionRequest) (*broker.CreateSessionResult, error) {
		sessionCount++
		return &broker.CreateSessionResult{SessionID: fmt.Sprintf("sess-%d", sessionCount)}, nil
	}
	fb.historyFn = func(sessionID string) (*broker.SessionHistory, error) {
		return nil, &broker.APIError{Status: 404, Message: "session not found"}
	}

	cache := session.NewMemoryStore()
	require.NoError(t, cache.Put(context.Background(), "uaid:aid:demo", "sess-stale", "", DefaultTransport))

	o := newOrchestrator(fb, cache)
	res, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{})
	require.NoError(t, err)

	assert.Len(t, fb.createCalls, 1, "dead session must trigger recreation")
	assert.Equal(t, "sess-1", res.SessionID)

	rec, err := cache.Get(context.Background(), "uaid:aid:demo")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", rec.SessionID, "cache entry must be overwritten")
}

func TestChat_SessionReadyWithoutMessage(t *testing.T) {
	fb := &fakeBroker{}
	cache := session.NewMemoryStore()
	o := newOrchestrator(fb, cache)

	res, err := o.Chat(context.Background(), "uaid:aid:demo", "", Options{})
	require.NoError(t, err)

	assert.Equal(t, "sess-1", res.SessionID)
	assert.Empty(t, fb.sendCalls)

	// The session is resumable by a later invocation.
	rec, err := cache.Get(context.Background(), "uaid:aid:demo")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", rec.SessionID)
}

func TestChat_InvalidTransportHint(t *testing.T) {
	fb := &fakeBroker{}
	o := newOrchestrator(fb, session.NewMemoryStore())

	_, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{Transport: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport must be one of")
	assert.Empty(t, fb.createCalls, "input errors are fatal before any network call")
}

func TestChat_CreateFallbackOmitsTransport(t *testing.T) {
	fb := &fakeBroker{}
	fb.createFn = func(req broker.CreateSessionRequest) (*broker.CreateSessionResult, error) {
		if req.Transport == DefaultTransport {
			return &broker.CreateSessionResult{Failure: &broker.SessionFailure{Message: "xmtp unavailable"}}, nil
		}
		return &broker.CreateSessionResult{SessionID: "sess-fallback"}, nil
	}

	cache := session.NewMemoryStore()
	o := newOrchestrator(fb, cache)
	res, err := o.Chat(context.Background(), "uaid:aid:demo", "", Options{})
	require.NoError(t, err)

	require.Len(t, fb.createCalls, 2, "exactly one fallback retry")
	assert.Equal(t, DefaultTransport, fb.createCalls[0].Transport)
	assert.Empty(t, fb.createCalls[1].Transport)
	assert.Equal(t, "sess-fallback", res.SessionID)
	assert.Empty(t, res.Transport, "fallback binds the server default")
}

func TestChat_CreateFailureSurfacesVerificationHint(t *testing.T) {
	fb := &fakeBroker{}
	fb.createFn = func(req broker.CreateSessionRequest) (*broker.CreateSessionResult, error) {
		return &broker.CreateSessionResult{Failure: &broker.SessionFailure{
			Message:         "agent not verified",
			VerificationURL: "https://hol.org/verify/demo",
		}}, nil
	}

	o := newOrchestrator(fb, session.NewMemoryStore())
	_, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{})

	var createErr *CreateSessionError
	require.True(t, errors.As(err, &createErr))
	assert.Equal(t, "agent not verified", createErr.Message)
	assert.Equal(t, "https://hol.org/verify/demo", createErr.VerificationURL)
	assert.Len(t, fb.createCalls, 2, "terminal after the negotiator's one fallback")
}

func TestChat_SendRetryWithoutTransport(t *testing.T) {
	fb := &fakeBroker{}
	fb.sendFn = func(req broker.SendMessageRequest) (*broker.ChatResponse, error) {
		if req.Transport == DefaultTransport {
			return &broker.ChatResponse{Error: "xmtp delivery failed"}, nil
		}
		return &broker.ChatResponse{Message: "made it"}, nil
	}

	o := newOrchestrator(fb, session.NewMemoryStore())
	res, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{})
	require.NoError(t, err)

	require.Len(t, fb.sendCalls, 2, "exactly one send retry, no second")
	assert.Equal(t, DefaultTransport, fb.sendCalls[0].Transport)
	assert.Empty(t, fb.sendCalls[1].Transport)
	assert.Equal(t, "made it", res.Reply)
}

func TestChat_InsufficientCreditsEscalation(t *testing.T) {
	fb := &fakeBroker{}
	fb.sendFn = func(req broker.SendMessageRequest) (*broker.ChatResponse, error) {
		if req.Transport == "" {
			return &broker.ChatResponse{Error: "Insufficient Credits for this operation"}, nil
		}
		return &broker.ChatResponse{Message: "paid path worked"}, nil
	}

	// Cached session bound to the server default (no transport).
	cache := session.NewMemoryStore()
	require.NoError(t, cache.Put(context.Background(), "uaid:aid:demo", "sess-1", "", ""))

	o := newOrchestrator(fb, cache)
	res, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{})
	require.NoError(t, err)

	require.Len(t, fb.sendCalls, 2, "exactly one escalation retry")
	assert.Empty(t, fb.sendCalls[0].Transport)
	assert.Equal(t, DefaultTransport, fb.sendCalls[1].Transport)
	assert.Equal(t, "paid path worked", res.Reply)

	rec, err := cache.Get(context.Background(), "uaid:aid:demo")
	require.NoError(t, err)
	assert.Equal(t, DefaultTransport, rec.Transport, "successful escalation rebinds the default transport")
}

func TestChat_NoCreditsEscalationForExplicitTransport(t *testing.T) {
	fb := &fakeBroker{}
	fb.sendFn = func(req broker.SendMessageRequest) (*broker.ChatResponse, error) {
		return &broker.ChatResponse{Error: "insufficient credits"}, nil
	}

	cache := session.NewMemoryStore()
	require.NoError(t, cache.Put(context.Background(), "uaid:aid:demo", "sess-1", "", "http"))

	o := newOrchestrator(fb, cache)
	_, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{})

	var rejected *SendRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Len(t, fb.sendCalls, 1, "explicit transport choice is respected: no escalation")
}

func TestChat_DeliveryConfirmationRoutesToPolling(t *testing.T) {
	phrases := []string{
		"Message sent via XMTP; waiting for delivery",
		"message delivered to moltbook outbox",
		"Queued in mailbox-style delivery",
	}

	for _, phrase := range phrases {
		t.Run(phrase, func(t *testing.T) {
			fb := &fakeBroker{}
			fb.sendFn = func(req broker.SendMessageRequest) (*broker.ChatResponse, error) {
				return &broker.ChatResponse{Message: phrase}, nil
			}
			fb.historyFn = func(sessionID string) (*broker.SessionHistory, error) {
				return &broker.SessionHistory{History: []broker.HistoryEntry{
					{Role: "user", Content: "Hello!"},
					{Role: "agent", Content: "Message sent via xmtp"},
					{Role: "agent", Content: "Actual answer"},
				}}, nil
			}

			o := newOrchestrator(fb, session.NewMemoryStore())
			res, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{})
			require.NoError(t, err)

			assert.True(t, fb.historyCalls > 0, "confirmation must route to polling")
			assert.Equal(t, "Actual answer", res.Reply)
			assert.False(t, res.Pending)
		})
	}
}

func TestChat_PlainReplySkipsPolling(t *testing.T) {
	fb := &fakeBroker{}
	fb.sendFn = func(req broker.SendMessageRequest) (*broker.ChatResponse, error) {
		return &broker.ChatResponse{Message: "Just a normal answer"}, nil
	}

	o := newOrchestrator(fb, session.NewMemoryStore())
	res, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{})
	require.NoError(t, err)

	assert.Equal(t, "Just a normal answer", res.Reply)
	assert.Zero(t, fb.historyCalls)
}

func TestChat_PollTimeoutIsPendingNotError(t *testing.T) {
	fb := &fakeBroker{}
	fb.sendFn = func(req broker.SendMessageRequest) (*broker.ChatResponse, error) {
		return &broker.ChatResponse{Message: "message sent via xmtp"}, nil
	}
	fb.historyFn = func(sessionID string) (*broker.SessionHistory, error) {
		// Only confirmations ever show up.
		return &broker.SessionHistory{History: []broker.HistoryEntry{
			{Role: "agent", Content: "message sent via xmtp"},
		}}, nil
	}

	o := newOrchestrator(fb, session.NewMemoryStore())
	res, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{})
	require.NoError(t, err, "an unanswered poll window is a defined outcome, not a failure")

	assert.True(t, res.Pending)
	assert.Empty(t, res.Reply)
}

func TestChat_PollSkipsTransientErrors(t *testing.T) {
	fb := &fakeBroker{}
	fb.sendFn = func(req broker.SendMessageRequest) (*broker.ChatResponse, error) {
		return &broker.ChatResponse{Message: "message sent via xmtp"}, nil
	}
	tick := 0
	fb.historyFn = func(sessionID string) (*broker.SessionHistory, error) {
		tick++
		if tick < 3 {
			return nil, &broker.APIError{Status: 502, Message: "bad gateway"}
		}
		return &broker.SessionHistory{History: []broker.HistoryEntry{
			{Role: "agent", Content: "Recovered answer"},
		}}, nil
	}

	o := newOrchestrator(fb, session.NewMemoryStore())
	res, err := o.Chat(context.Background(), "uaid:aid:demo", "Hello!", Options{})
	require.NoError(t, err)

	assert.Equal(t, "Recovered answer", res.Reply)
	assert.GreaterOrEqual(t, tick, 3, "transient fetch errors skip the tick rather than aborting")
}

func TestChat_AgentURLTarget(t *testing.T) {
	fb := &fakeBroker{}
	cache := session.NewMemoryStore()
	o := newOrchestrator(fb, cache)

	_, err := o.Chat(context.Background(), "", "Hello!", Options{AgentURL: "https://agent.example.com/a2a"})
	require.NoError(t, err)

	require.Len(t, fb.createCalls, 1)
	assert.Equal(t, "https://agent.example.com/a2a", fb.createCalls[0].AgentURL)
	assert.Empty(t, fb.createCalls[0].UAID)

	// The URL itself is the cache key for agent-URL targets.
	_, err = cache.Get(context.Background(), "https://agent.example.com/a2a")
	require.NoError(t, err)
}

func TestChat_EndToEndScenario(t *testing.T) {
	fb := &fakeBroker{}
	cache := session.NewMemoryStore()
	o := newOrchestrator(fb, cache)
	ctx := context.Background()

	res, err := o.Chat(ctx, "uaid:aid:demo", "Hello!", Options{})
	require.NoError(t, err)

	require.Len(t, fb.createCalls, 1)
	assert.Equal(t, "xmtp", fb.createCalls[0].Transport, "xmtp attempted first")
	require.Len(t, fb.sendCalls, 1)
	assert.Equal(t, res.SessionID, fb.sendCalls[0].SessionID)

	rec, err := cache.Get(ctx, "uaid:aid:demo")
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, rec.SessionID)
	assert.Equal(t, "xmtp", rec.Transport)

	// Second call: probe succeeds, create is skipped entirely.
	_, err = o.Chat(ctx, "uaid:aid:demo", "Again", Options{})
	require.NoError(t, err)
	assert.Len(t, fb.createCalls, 1)
	assert.Len(t, fb.sendCalls, 2)
	assert.Equal(t, res.SessionID, fb.sendCalls[1].SessionID)
}

func TestNormalizeTransport(t *testing.T) {
	for _, valid := range []string{"xmtp", "MOLTBOOK", " http ", "a2a", "acp"} {
		got, err := NormalizeTransport(valid)
		require.NoError(t, err, valid)
		assert.NotEmpty(t, got)
	}

	got, err := NormalizeTransport("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NormalizeTransport("smoke-signal")
	assert.Error(t, err)
}

func TestIsDeliveryConfirmation(t *testing.T) {
	assert.True(t, IsDeliveryConfirmation("Message SENT via XMTP"))
	assert.True(t, IsDeliveryConfirmation("your message delivered to moltbook inbox"))
	assert.True(t, IsDeliveryConfirmation("using mailbox-style delivery"))
	assert.False(t, IsDeliveryConfirmation("Here is your answer"))
	assert.False(t, IsDeliveryConfirmation(""))
}
