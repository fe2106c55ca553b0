// ABOUTME: Credit account operations against the Registry Broker
// ABOUTME: Balance fetch doubles as the API key liveness probe

package broker

import (
	"context"
	"net/http"
)

// Balance is the credit balance of the authenticated account.
type Balance struct {
	AccountID string  `json:"accountId"`
	Balance   float64 `json:"balance"`
}

// GetBalance fetches the caller's credit balance. A 401/403 *APIError means
// the bound API key is no longer valid.
func (c *Client) GetBalance(ctx context.Context) (*Balance, error) {
	var bal Balance
	if err := c.do(ctx, http.MethodGet, "/credits/balance", nil, &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}
