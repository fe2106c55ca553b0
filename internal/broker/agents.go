// ABOUTME: Agent directory operations: search, resolve, verification status, seeding
// ABOUTME: Read side of the broker's registry surface plus staging-only seed support

package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// AgentProfile is the nested profile shape some registries return.
type AgentProfile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Agent is a directory entry for a registered agent. The availability and
// trust fields are populated by the broker's health probing and may be absent
// for agents it has never probed.
type Agent struct {
	UAID        string        `json:"uaid"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Registry    string        `json:"registry"`
	Profile     *AgentProfile `json:"profile,omitempty"`

	AvailabilityStatus     string   `json:"availabilityStatus,omitempty"` // online, stale, offline
	AvailabilityScore      *float64 `json:"availabilityScore,omitempty"`
	AvailabilityLatencyMs  int      `json:"availabilityLatencyMs,omitempty"`
	TrustScore             *float64 `json:"trustScore,omitempty"`
	CommunicationSupported bool     `json:"communicationSupported,omitempty"`
	LastSeen               string   `json:"lastSeen,omitempty"`
}

// DisplayName returns the best available human-readable name.
func (a *Agent) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if a.Profile != nil && a.Profile.Name != "" {
		return a.Profile.Name
	}
	return "Unknown"
}

// Describe returns the best available description.
func (a *Agent) Describe() string {
	if a.Description != "" {
		return a.Description
	}
	if a.Profile != nil {
		return a.Profile.Description
	}
	return ""
}

// SearchResult is the response of the directory search.
type SearchResult struct {
	Total   int     `json:"total"`
	Hits    []Agent `json:"hits"`
	Results []Agent `json:"results"`
}

// Agents returns the hit list regardless of which field the broker used.
func (r *SearchResult) Agents() []Agent {
	if len(r.Hits) > 0 {
		return r.Hits
	}
	return r.Results
}

// Search queries the agent directory.
func (c *Client) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	var res SearchResult
	path := fmt.Sprintf("/search?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Resolve looks up a single agent by UAID. A 404 comes back as *APIError.
func (c *Client) Resolve(ctx context.Context, uaid string) (*Agent, error) {
	var agent Agent
	if err := c.do(ctx, http.MethodGet, "/resolve/"+url.PathEscape(uaid), nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// VerificationStatus reports whether an agent's ownership is verified and,
// when it is, which principal owns it.
type VerificationStatus struct {
	UAID       string `json:"uaid"`
	Verified   bool   `json:"verified"`
	OwnerType  string `json:"ownerType,omitempty"` // "ledger" or "api-key"
	OwnerID    string `json:"ownerId,omitempty"`
	VerifiedAt string `json:"verifiedAt,omitempty"`
}

// GetVerificationStatus fetches an agent's ownership verification state.
func (c *Client) GetVerificationStatus(ctx context.Context, uaid string) (*VerificationStatus, error) {
	var status VerificationStatus
	path := "/verification/status/" + url.PathEscape(uaid)
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SeedAgent is one record in a staging seed request.
type SeedAgent struct {
	UAID        string `json:"uaid"`
	Name        string `json:"name"`
	Registry    string `json:"registry"`
	Description string `json:"description"`
}

// SeedAgents registers placeholder agent records on a staging broker.
func (c *Client) SeedAgents(ctx context.Context, agents []SeedAgent) error {
	body := map[string]any{"agents": agents}
	return c.do(ctx, http.MethodPost, "/agents/seed", body, nil)
}

// Stats is the broker's directory statistics payload.
type Stats struct {
	TotalAgents int            `json:"totalAgents"`
	Registries  map[string]int `json:"registries"`
}

// GetStats fetches directory statistics.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
