// ABOUTME: Transport-agnostic peer messaging contract and its blocking helpers
// ABOUTME: Reachability-gated sends and bounded waits over any Messenger implementation

package p2p

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Message is one inbound peer message.
type Message struct {
	From    string
	Content string
	SentAt  time.Time
}

// Messenger is a live connection to the peer-to-peer messaging network under
// one derived identity.
type Messenger interface {
	// Address is this identity's network address, lowercased.
	Address() string
	// CanMessage reports whether the peer address is reachable yet. Peers
	// appear asynchronously after their own Dial.
	CanMessage(ctx context.Context, addr string) (bool, error)
	// Send delivers a message to a reachable peer.
	Send(ctx context.Context, addr, content string) error
	// Recent returns messages from the peer observed at or after since.
	Recent(ctx context.Context, addr string, since time.Time) ([]Message, error)
	// Allow records consent to receive from the peer.
	Allow(ctx context.Context, addr string) error
	Close() error
}

// Dialer establishes a Messenger for a derived key.
type Dialer interface {
	Dial(ctx context.Context, key *secp256k1.PrivateKey) (Messenger, error)
}

const (
	reachabilityPollInterval = time.Second
	replyPollInterval        = 2 * time.Second

	// DefaultLegTimeout bounds one delivery or wait leg of an exchange.
	DefaultLegTimeout = 180 * time.Second

	// matchGrace widens the wait window backwards to absorb clock skew
	// between peers and the network.
	matchGrace = 60 * time.Second
)

// SendMessage waits for the recipient to become reachable and then delivers
// the message. Reachability is polled because the peer may still be
// registering its own identity.
func SendMessage(ctx context.Context, m Messenger, to, content string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultLegTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(reachabilityPollInterval)
	defer ticker.Stop()

	for {
		ok, err := m.CanMessage(ctx, to)
		if err == nil && ok {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("peer %s never became reachable: %w", to, ctx.Err())
		case <-ticker.C:
		}
	}

	if err := m.Send(ctx, to, content); err != nil {
		return fmt.Errorf("sending to %s: %w", to, err)
	}
	return nil
}

// WaitForMessage polls for an inbound message from the peer whose trimmed
// content equals want, arriving at or after since minus a grace window.
// Returns the matched message, or an error when the timeout elapses first.
func WaitForMessage(ctx context.Context, m Messenger, from, want string, since time.Time, timeout time.Duration) (*Message, error) {
	if timeout <= 0 {
		timeout = DefaultLegTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wanted := strings.TrimSpace(want)
	cutoff := since.Add(-matchGrace)

	ticker := time.NewTicker(replyPollInterval)
	defer ticker.Stop()

	for {
		msgs, err := m.Recent(ctx, from, cutoff)
		if err == nil {
			for i := range msgs {
				msg := msgs[i]
				if strings.TrimSpace(msg.Content) == wanted && !msg.SentAt.Before(cutoff) {
					return &msg, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no message %q from %s within %s: %w", wanted, from, timeout, context.Cause(ctx))
		case <-ticker.C:
		}
	}
}
