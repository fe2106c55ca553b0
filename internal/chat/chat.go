// ABOUTME: Chat orchestrator: session resolution, creation, send, and reply classification
// ABOUTME: Drives the cache, transport negotiator, and polling loop for one chat exchange

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hol-org/registry-cli/internal/broker"
	"github.com/hol-org/registry-cli/internal/session"
)

// BrokerAPI is the broker surface the orchestrator consumes.
type BrokerAPI interface {
	CreateSession(ctx context.Context, req broker.CreateSessionRequest) (*broker.CreateSessionResult, error)
	SendMessage(ctx context.Context, req broker.SendMessageRequest) (*broker.ChatResponse, error)
	GetSessionHistory(ctx context.Context, sessionID string) (*broker.SessionHistory, error)
}

// CreateSessionError is a terminal session-create failure reported by the
// broker after the negotiator's fallback. VerificationURL, when present,
// points the caller at the agent-claiming remediation.
type CreateSessionError struct {
	Message         string
	VerificationURL string
}

func (e *CreateSessionError) Error() string {
	return fmt.Sprintf("failed to create session: %s", e.Message)
}

// SendRejectedError is a broker-rejected message send after all retries.
type SendRejectedError struct {
	Message string
}

func (e *SendRejectedError) Error() string { return e.Message }

// Options modify a single Chat invocation.
type Options struct {
	SenderUAID string
	Transport  string
	AgentURL   string
}

// Result is the outcome of a Chat invocation.
type Result struct {
	SessionID string
	Transport string // transport bound for future sends; empty means server default
	Created   bool   // a new remote session was established
	Reply     string // the agent's reply, synchronous or polled
	Pending   bool   // delivery confirmed but no reply within the poll window
	Response  *broker.ChatResponse
}

// Orchestrator coordinates the session cache, transport negotiation, and
// reply polling for chat exchanges.
type Orchestrator struct {
	api          BrokerAPI
	cache        session.Store
	ensureAuth   func(ctx context.Context) error
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithAuth installs the authentication step run before any broker call.
func WithAuth(ensure func(ctx context.Context) error) OrchestratorOption {
	return func(o *Orchestrator) { o.ensureAuth = ensure }
}

// WithPolling overrides the reply-poll cadence (used in tests).
func WithPolling(interval, timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.pollInterval = interval
		o.pollTimeout = timeout
	}
}

// NewOrchestrator creates a chat orchestrator over a broker API and cache.
func NewOrchestrator(api BrokerAPI, cache session.Store, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		api:          api,
		cache:        cache,
		pollInterval: 2 * time.Second,
		pollTimeout:  60 * time.Second,
		logger:       slog.Default().With("component", "chat"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TargetKey returns the cache key for a chat target: the UAID when one is
// given, otherwise the agent URL itself.
func TargetKey(uaid, agentURL string) string {
	if agentURL != "" && (uaid == "" || uaid == "agent-url") {
		return agentURL
	}
	return uaid
}

// Chat resolves or creates a session for the target and, when a message is
// given, sends it and classifies the response. An empty message leaves the
// session ready and returns its identifier.
func (o *Orchestrator) Chat(ctx context.Context, uaid, message string, opts Options) (*Result, error) {
	if o.ensureAuth != nil {
		if err := o.ensureAuth(ctx); err != nil {
			return nil, err
		}
	}

	requested, err := NormalizeTransport(opts.Transport)
	if err != nil {
		return nil, err
	}

	key := TargetKey(uaid, opts.AgentURL)

	sessionID, bound := o.resolveCached(ctx, key, requested)
	created := false

	if sessionID == "" {
		base := broker.CreateSessionRequest{SenderUAID: opts.SenderUAID}
		if opts.AgentURL != "" {
			base.AgentURL = opts.AgentURL
		}
		if uaid != "" && uaid != "agent-url" {
			base.UAID = uaid
		}

		var failure *broker.SessionFailure
		sessionID, bound, failure, err = createWithFallback(ctx, o.api, base, requested)
		if err != nil {
			return nil, err
		}
		if failure != nil {
			return nil, &CreateSessionError{
				Message:         failure.Message,
				VerificationURL: failure.VerificationURL,
			}
		}
		created = true
		o.logger.Info("session created", "session_id", sessionID, "transport", bound)

		// Persist before sending so a follow-up invocation can resume even if
		// the send below fails.
		if err := o.cache.Put(ctx, key, sessionID, "", bound); err != nil {
			return nil, fmt.Errorf("caching session: %w", err)
		}
	}

	result := &Result{SessionID: sessionID, Transport: bound, Created: created}
	if message == "" {
		return result, nil
	}

	req := broker.SendMessageRequest{
		SessionID:  sessionID,
		Message:    message,
		SenderUAID: opts.SenderUAID,
	}
	if opts.AgentURL != "" {
		req.AgentURL = opts.AgentURL
		if uaid != "" && uaid != "agent-url" {
			req.UAID = uaid
		}
	} else {
		req.UAID = uaid
	}

	resp, bound, err := sendWithRetry(ctx, o.api, req, bound)
	if err != nil {
		return nil, err
	}
	result.Transport = bound
	result.Response = resp

	// Update the cache after the exchange regardless of outcome.
	if err := o.cache.Put(ctx, key, sessionID, "", bound); err != nil {
		return nil, fmt.Errorf("caching session: %w", err)
	}

	if resp.Error != "" {
		return result, &SendRejectedError{Message: resp.Error}
	}

	if IsDeliveryConfirmation(resp.Message) {
		o.logger.Info("message delivered, waiting for agent response", "session_id", sessionID)
		initialCount := len(agentReplies(resp.History))

		poll, err := o.pollForReply(ctx, sessionID, initialCount)
		if err != nil {
			return nil, err
		}
		if poll.Found {
			result.Reply = poll.Message
		} else {
			result.Pending = true
		}
		return result, nil
	}

	result.Reply = resp.Message
	return result, nil
}

// resolveCached returns the cached session for a target key after a liveness
// probe, or empty when absent or no longer live. A requested transport hint
// overrides the cached binding.
func (o *Orchestrator) resolveCached(ctx context.Context, key, requested string) (sessionID, bound string) {
	rec, err := o.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			o.logger.Debug("session cache read failed", "target", key, "error", err)
		}
		return "", requested
	}

	bound = rec.Transport
	if requested != "" && requested != bound {
		bound = requested
	}

	// Liveness probe: the other party or server-side expiry can invalidate
	// the session at any time, so a failed history fetch means start over.
	if _, err := o.api.GetSessionHistory(ctx, rec.SessionID); err != nil {
		o.logger.Debug("cached session no longer live", "session_id", rec.SessionID, "error", err)
		return "", bound
	}

	o.logger.Info("resuming session", "session_id", rec.SessionID)
	return rec.SessionID, bound
}
