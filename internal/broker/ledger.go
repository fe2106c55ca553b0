// ABOUTME: Ledger-authentication handshake endpoints
// ABOUTME: Two-step challenge/verify exchange that issues a scoped bearer API key

package broker

import (
	"context"
	"net/http"
)

// ChallengeRequest asks the broker for a signing challenge.
type ChallengeRequest struct {
	AccountID string `json:"accountId"`
	Network   string `json:"network"`
}

// Challenge is the broker-issued message the caller must sign.
type Challenge struct {
	ChallengeID string `json:"challengeId"`
	Message     string `json:"message"`
}

// RequestChallenge starts the ledger authentication handshake.
func (c *Client) RequestChallenge(ctx context.Context, req ChallengeRequest) (*Challenge, error) {
	var ch Challenge
	if err := c.do(ctx, http.MethodPost, "/auth/ledger/challenge", req, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// VerifyRequest submits the signed challenge.
type VerifyRequest struct {
	ChallengeID   string `json:"challengeId"`
	Signature     string `json:"signature"`
	SignatureKind string `json:"signatureKind"`
}

// AuthResult carries the issued bearer key and the base URL it is scoped to.
type AuthResult struct {
	Key     string `json:"key"`
	BaseURL string `json:"baseUrl"`
}

// VerifyChallenge completes the handshake and returns the issued API key.
func (c *Client) VerifyChallenge(ctx context.Context, req VerifyRequest) (*AuthResult, error) {
	var res AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/ledger/verify", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
