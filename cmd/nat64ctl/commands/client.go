package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// adminClient is a thin JSON client for nat64d's read-only admin surface
// (internal/server): no generated stubs, just GET + decode, since the
// surface is three fixed endpoints rather than a full RPC service.
type adminClient struct {
	http    *http.Client
	baseURL string
}

func newAdminClient(addr string) *adminClient {
	return &adminClient{
		http:    http.DefaultClient,
		baseURL: "http://" + addr,
	}
}

// healthResponse mirrors internal/server's GET /healthz body.
type healthResponse struct {
	Status string `json:"status"`
}

// statsResponse mirrors internal/server's GET /stats body.
type statsResponse struct {
	Forwarded4to6 uint64 `json:"forwarded_4to6"`
	Forwarded6to4 uint64 `json:"forwarded_6to4"`
	Dropped       uint64 `json:"dropped"`
	Rejected      uint64 `json:"rejected"`
	Hairpinned    uint64 `json:"hairpinned"`
	ICMPErrorsOut uint64 `json:"icmp_errors_out"`
}

// mapEntryResponse mirrors one entry of internal/server's GET /maptable body.
type mapEntryResponse struct {
	Type    string `json:"type"`
	Prefix4 string `json:"prefix4"`
	Prefix6 string `json:"prefix6"`
}

func (c *adminClient) Health(ctx context.Context) (*healthResponse, error) {
	var resp healthResponse
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *adminClient) Stats(ctx context.Context) (*statsResponse, error) {
	var resp statsResponse
	if err := c.get(ctx, "/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *adminClient) MapTable(ctx context.Context) ([]mapEntryResponse, error) {
	var resp []mapEntryResponse
	if err := c.get(ctx, "/maptable", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *adminClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
