// ABOUTME: Ledger authentication against the Registry Broker
// ABOUTME: Challenge/sign/verify handshake issuing an API key scoped to the broker base URL

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hol-org/registry-cli/internal/broker"
	"github.com/hol-org/registry-cli/internal/identity"
)

// Authenticator performs the ledger handshake and manages the cached API key.
type Authenticator struct {
	client  *broker.Client
	store   identity.Store
	network string
	logger  *slog.Logger
}

// New creates an Authenticator bound to a broker client and identity store.
func New(client *broker.Client, store identity.Store, network string) *Authenticator {
	return &Authenticator{
		client:  client,
		store:   store,
		network: network,
		logger:  slog.Default().With("component", "auth"),
	}
}

// EnsureAPIKey returns a usable API key for the identity and binds it to the
// broker client. The cached key is reused when it is scoped to the current
// base URL and still accepted; a rejected key triggers exactly one re-run of
// the handshake before failing.
func (a *Authenticator) EnsureAPIKey(ctx context.Context, id *identity.Identity) (string, error) {
	key := id.APIKeyFor(a.client.BaseURL())
	if key == "" {
		return a.Authenticate(ctx, id)
	}

	// JWT-shaped keys carry their expiry; an unexpired claim skips the probe
	// round-trip and an expired one skips straight to re-authentication.
	if expired, known := keyExpired(key); known {
		if !expired {
			a.client.SetAPIKey(key)
			return key, nil
		}
		a.logger.Debug("cached API key expired, re-authenticating")
		return a.Authenticate(ctx, id)
	}

	a.client.SetAPIKey(key)
	if _, err := a.client.GetBalance(ctx); err != nil {
		var apiErr *broker.APIError
		if errors.As(err, &apiErr) &&
			(apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			a.logger.Debug("cached API key rejected, re-authenticating", "status", apiErr.Status)
			return a.Authenticate(ctx, id)
		}
		// Other failures (broker errors, connectivity) do not invalidate the key.
	}
	return key, nil
}

// Authenticate runs the two-step ledger handshake: request a challenge, sign
// it with the identity's master key, and exchange the signature for a bearer
// API key. The issued key is persisted with its scoping base URL.
func (a *Authenticator) Authenticate(ctx context.Context, id *identity.Identity) (string, error) {
	a.logger.Info("authenticating with registry broker", "network", a.network)

	challenge, err := a.client.RequestChallenge(ctx, broker.ChallengeRequest{
		AccountID: id.Address,
		Network:   a.network,
	})
	if err != nil {
		return "", fmt.Errorf("requesting ledger challenge: %w", err)
	}

	key, err := identity.ParsePrivateKey(id.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("loading identity key: %w", err)
	}
	signature := identity.SignPersonalMessage(key, challenge.Message)

	result, err := a.client.VerifyChallenge(ctx, broker.VerifyRequest{
		ChallengeID:   challenge.ChallengeID,
		Signature:     signature,
		SignatureKind: "evm",
	})
	if err != nil {
		return "", fmt.Errorf("verifying ledger challenge: %w", err)
	}
	if result.Key == "" {
		return "", fmt.Errorf("broker did not issue an API key")
	}

	id.APIKey = result.Key
	id.APIKeyBaseURL = result.BaseURL
	if id.APIKeyBaseURL == "" {
		id.APIKeyBaseURL = a.client.BaseURL()
	}
	if err := a.store.Save(id); err != nil {
		return "", fmt.Errorf("persisting API key: %w", err)
	}

	a.client.SetAPIKey(result.Key)
	a.logger.Info("authentication successful")
	return result.Key, nil
}

// keyExpired inspects a JWT-shaped API key's exp claim without verifying the
// signature. known is false for opaque (non-JWT) keys or keys without exp.
func keyExpired(key string) (expired, known bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return false, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, false
	}
	return exp.Before(time.Now()), true
}
