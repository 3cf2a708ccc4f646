package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client is meridianctl's HTTP client for a running meridiand's admin API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client against a meridiand admin API listening at
// baseURL (e.g. "http://127.0.0.1:8088").
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{}}
}

// Topology fetches GET /topology.
func (c *Client) Topology(ctx context.Context) ([]SwitchInfo, error) {
	var out []SwitchInfo
	if err := c.get(ctx, "/topology", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Routes fetches GET /routes.
func (c *Client) Routes(ctx context.Context) ([]RouteInfo, error) {
	var out []RouteInfo
	if err := c.get(ctx, "/routes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Neighbors fetches GET /neighbors?dpid=N.
func (c *Client) Neighbors(ctx context.Context, dpid uint64) ([]NeighborInfo, error) {
	var out []NeighborInfo
	if err := c.get(ctx, fmt.Sprintf("/neighbors?dpid=%d", dpid), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TapStats fetches GET /tapstats.
func (c *Client) TapStats(ctx context.Context) (TapStats, error) {
	var out TapStats
	if err := c.get(ctx, "/tapstats", &out); err != nil {
		return TapStats{}, err
	}
	return out, nil
}

// SetLogLevel issues POST /loglevel.
func (c *Client) SetLogLevel(ctx context.Context, level string) error {
	body, err := json.Marshal(logLevelRequest{Level: level})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loglevel", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("adminapi: POST /loglevel: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("adminapi: POST /loglevel: unexpected status %s", resp.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("adminapi: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("adminapi: GET %s: unexpected status %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
