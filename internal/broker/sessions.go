// ABOUTME: Chat session operations against the Registry Broker
// ABOUTME: Session create/send/history plus the invite/patch/ingest surface used for mirroring

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// CreateSessionRequest is the payload for POST /chat/session. The target is
// either a UAID or an agent URL; Transport is omitted for the server default.
type CreateSessionRequest struct {
	UAID       string `json:"uaid,omitempty"`
	AgentURL   string `json:"agentUrl,omitempty"`
	SenderUAID string `json:"senderUaid,omitempty"`
	Transport  string `json:"transport,omitempty"`
}

// SessionFailure is the error variant of a session-create result. The
// verification URL, when present, signals an ownership-verification
// remediation path.
type SessionFailure struct {
	Message         string
	VerificationURL string
}

// CreateSessionResult is a discriminated result: exactly one of SessionID or
// Failure is set.
type CreateSessionResult struct {
	SessionID string
	Failure   *SessionFailure
}

// CreateSession creates a chat session. The returned error is non-nil only
// for connectivity failures; broker rejections come back as a Failure variant
// so the negotiator can decide whether to retry.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error) {
	status, data, err := c.doRaw(ctx, http.MethodPost, "/chat/session", req)
	if err != nil {
		return nil, err
	}

	var body struct {
		SessionID       string `json:"sessionId"`
		Error           string `json:"error"`
		VerificationURL string `json:"verificationUrl"`
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}

	if body.Error != "" {
		return &CreateSessionResult{Failure: &SessionFailure{
			Message:         body.Error,
			VerificationURL: body.VerificationURL,
		}}, nil
	}
	if status < 200 || status >= 300 {
		return &CreateSessionResult{Failure: &SessionFailure{
			Message: fmt.Sprintf("HTTP %d", status),
		}}, nil
	}
	if body.SessionID == "" {
		return &CreateSessionResult{Failure: &SessionFailure{
			Message: "broker response missing sessionId",
		}}, nil
	}
	return &CreateSessionResult{SessionID: body.SessionID}, nil
}

// SendMessageRequest is the payload for POST /chat/message.
type SendMessageRequest struct {
	SessionID  string `json:"sessionId"`
	Message    string `json:"message"`
	UAID       string `json:"uaid,omitempty"`
	AgentURL   string `json:"agentUrl,omitempty"`
	SenderUAID string `json:"senderUaid,omitempty"`
	Transport  string `json:"transport,omitempty"`
}

// ChatMetadata carries transport attribution for a reply.
type ChatMetadata struct {
	Provider       string `json:"provider"`
	ConversationID string `json:"conversationId"`
}

// HistoryEntry is one role-tagged message in a session's history.
type HistoryEntry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ChatResponse is the reply payload from a message send. Error is the broker's
// in-band rejection; an empty Error means the send was accepted.
type ChatResponse struct {
	Message           string         `json:"message"`
	Error             string         `json:"error"`
	History           []HistoryEntry `json:"history"`
	Metadata          *ChatMetadata  `json:"metadata"`
	HistoryTTLSeconds int            `json:"historyTtlSeconds"`
}

// SendMessage sends a chat message. The returned error is non-nil only for
// connectivity failures; broker rejections are reported in ChatResponse.Error.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*ChatResponse, error) {
	status, data, err := c.doRaw(ctx, http.MethodPost, "/chat/message", req)
	if err != nil {
		return nil, err
	}

	var resp ChatResponse
	if len(data) > 0 {
		_ = json.Unmarshal(data, &resp)
	}
	if resp.Error == "" && (status < 200 || status >= 300) {
		resp.Error = fmt.Sprintf("HTTP %d", status)
	}
	return &resp, nil
}

// SessionHistory is the ordered message history of a session plus its
// remaining TTL.
type SessionHistory struct {
	History           []HistoryEntry `json:"history"`
	HistoryTTLSeconds int            `json:"historyTtlSeconds"`
}

// GetSessionHistory fetches a session's history. A non-2xx response means the
// session is gone (expired or unknown) and is returned as *APIError.
func (c *Client) GetSessionHistory(ctx context.Context, sessionID string) (*SessionHistory, error) {
	var hist SessionHistory
	path := "/chat/session/" + url.PathEscape(sessionID) + "/history"
	if err := c.do(ctx, http.MethodGet, path, nil, &hist); err != nil {
		return nil, err
	}
	return &hist, nil
}

// InviteRequest is the payload for inviting a member into a session.
type InviteRequest struct {
	SenderUAID   string `json:"senderUaid"`
	UAID         string `json:"uaid"`
	HistoryScope string `json:"historyScope"`
}

// InviteResult reports the session membership after an invite.
type InviteResult struct {
	Members []string `json:"members"`
}

// InviteMember invites another agent into a session.
func (c *Client) InviteMember(ctx context.Context, sessionID string, req InviteRequest) (*InviteResult, error) {
	var res InviteResult
	path := "/chat/session/" + url.PathEscape(sessionID) + "/invite"
	if err := c.do(ctx, http.MethodPost, path, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PatchSessionRequest updates session visibility and labels.
type PatchSessionRequest struct {
	SenderUAID string `json:"senderUaid"`
	Visibility string `json:"visibility,omitempty"`
	Title      string `json:"title,omitempty"`
	Tags       string `json:"tags,omitempty"`
	Categories string `json:"categories,omitempty"`
}

// PatchSession updates a session's visibility/labels.
func (c *Client) PatchSession(ctx context.Context, sessionID string, req PatchSessionRequest) error {
	path := "/chat/session/" + url.PathEscape(sessionID)
	return c.do(ctx, http.MethodPatch, path, req, nil)
}

// IngestRequest mirrors an externally-delivered message into a session ledger.
type IngestRequest struct {
	SenderUAID    string `json:"senderUaid"`
	RecipientUAID string `json:"recipientUaid"`
	Role          string `json:"role"`
	Content       string `json:"content"`
}

// IngestMessage appends an externally-sourced message to the session ledger.
// Mirroring is append-only; there is no corresponding delete.
func (c *Client) IngestMessage(ctx context.Context, sessionID string, req IngestRequest) error {
	path := "/chat/session/" + url.PathEscape(sessionID) + "/ingest"
	return c.do(ctx, http.MethodPost, path, req, nil)
}
