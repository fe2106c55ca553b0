// ABOUTME: HTTP client for the Registry Broker API
// ABOUTME: Provides typed requests with API errors kept distinct from connectivity failures

package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnreachable wraps transport-level failures where no broker response was
// received. Callers use this to tell "the server said no" from "we couldn't
// reach the server".
var ErrUnreachable = errors.New("registry broker unreachable")

// APIError is an error reported by the broker itself (non-2xx response with
// an error payload).
type APIError struct {
	Status          int
	Message         string
	VerificationURL string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// IsNotFound reports whether err is a broker 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client communicates with the Registry Broker HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the x-api-key header for all requests.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a broker client for the given API base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default().With("component", "broker"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base URL this client is bound to.
func (c *Client) BaseURL() string { return c.baseURL }

// SetAPIKey rebinds the client to a new API key after authentication.
func (c *Client) SetAPIKey(key string) { c.apiKey = key }

// errorBody is the broker's generic error payload shape.
type errorBody struct {
	Error           string `json:"error"`
	VerificationURL string `json:"verificationUrl"`
}

// doRaw performs a request and returns the status code and body. The returned
// error is non-nil only for transport-level failures (wrapped ErrUnreachable);
// broker-reported errors are left to the caller to interpret from the payload.
func (c *Client) doRaw(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-request-id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}

	c.logger.Debug("broker request", "method", method, "path", path, "status", resp.StatusCode)
	return resp.StatusCode, data, nil
}

// do performs a request and decodes a successful response into out. Non-2xx
// responses become *APIError; transport failures wrap ErrUnreachable.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	status, data, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 {
		return apiErrorFrom(status, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// apiErrorFrom builds an *APIError from a non-2xx response body.
func apiErrorFrom(status int, data []byte) *APIError {
	var eb errorBody
	if len(data) > 0 {
		_ = json.Unmarshal(data, &eb)
	}
	msg := eb.Error
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", status)
	}
	return &APIError{Status: status, Message: msg, VerificationURL: eb.VerificationURL}
}
