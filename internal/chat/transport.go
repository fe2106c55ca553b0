// ABOUTME: Transport negotiation policy for session creation and message sends
// ABOUTME: Allow-list validation plus the one-shot fallback and credits-escalation retries

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/hol-org/registry-cli/internal/broker"
)

// DefaultTransport is the canonical transport probed first when the caller
// expresses no preference.
const DefaultTransport = "xmtp"

// LedgerTransport marks a session as ledger-only/mirrored: traffic flows over
// the peer-to-peer network and is ingested into the broker's history, rather
// than being broker-routed.
const LedgerTransport = "moltbook"

var allowedTransports = []string{"xmtp", "moltbook", "http", "a2a", "acp"}

// NormalizeTransport validates and canonicalizes a caller-supplied transport
// hint. Empty input means "no preference". An unrecognized value is a fatal
// input error, never retried.
func NormalizeTransport(hint string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(hint))
	if normalized == "" {
		return "", nil
	}
	for _, allowed := range allowedTransports {
		if normalized == allowed {
			return normalized, nil
		}
	}
	return "", fmt.Errorf("transport must be one of: %s", strings.Join(allowedTransports, ", "))
}

// createWithFallback creates a session probing the requested transport first
// (or the canonical default when none was requested). If the broker rejects
// that transport, it retries exactly once with no transport at all so the
// server picks its own default. The returned transport is the one actually
// bound: empty when the fallback was used.
func createWithFallback(ctx context.Context, api BrokerAPI, base broker.CreateSessionRequest, requested string) (sessionID, transport string, failure *broker.SessionFailure, err error) {
	transport = requested
	if transport == "" {
		transport = DefaultTransport
	}

	req := base
	req.Transport = transport
	res, err := api.CreateSession(ctx, req)
	if err != nil {
		return "", "", nil, err
	}

	if res.Failure != nil {
		transport = ""
		req = base
		res, err = api.CreateSession(ctx, req)
		if err != nil {
			return "", "", nil, err
		}
	}

	if res.Failure != nil {
		return "", "", res.Failure, nil
	}
	return res.SessionID, transport, nil, nil
}

// sendWithRetry sends a message applying the negotiator's retry policy:
//
//   - A rejected send on the canonical default transport is retried once with
//     the transport omitted (server default), leaving the binding unchanged.
//   - A rejected send with no bound transport whose error indicates an
//     insufficient-credits condition is retried once forcing the canonical
//     default; on success the binding moves to the default for future sends.
//
// The asymmetry (no credits escalation when an explicit transport was bound)
// respects the caller's explicit choice.
func sendWithRetry(ctx context.Context, api BrokerAPI, req broker.SendMessageRequest, bound string) (*broker.ChatResponse, string, error) {
	req.Transport = bound
	resp, err := api.SendMessage(ctx, req)
	if err != nil {
		return nil, bound, err
	}

	if resp.Error != "" && bound == DefaultTransport {
		retry := req
		retry.Transport = ""
		resp, err = api.SendMessage(ctx, retry)
		if err != nil {
			return nil, bound, err
		}
	} else if resp.Error != "" && bound == "" &&
		strings.Contains(strings.ToLower(resp.Error), "insufficient credits") {
		retry := req
		retry.Transport = DefaultTransport
		resp, err = api.SendMessage(ctx, retry)
		if err != nil {
			return nil, bound, err
		}
		if resp.Error == "" {
			bound = DefaultTransport
		}
	}

	return resp, bound, nil
}
