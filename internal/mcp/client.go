package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ravenabot/ravena/internal/api"
	"github.com/ravenabot/ravena/internal/biz/domain"
)

// Client is the HTTP client of the ravena status API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fleet gets the status of every session
func (c *Client) Fleet(ctx context.Context) ([]domain.SessionStatus, error) {
	var result api.FleetResponse
	if err := c.get(ctx, "/api/fleet", &result); err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

// Groups lists the known groups
func (c *Client) Groups(ctx context.Context) ([]api.GroupSummary, error) {
	var result []api.GroupSummary
	if err := c.get(ctx, "/api/groups", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Group gets the full configuration of a group
func (c *Client) Group(ctx context.Context, id string) (*domain.GroupConfig, error) {
	var result domain.GroupConfig
	if err := c.get(ctx, "/api/groups/"+url.PathEscape(id), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetPaused pauses or resumes a group
func (c *Client) SetPaused(ctx context.Context, id string, paused bool) (*api.GroupSummary, error) {
	var result api.GroupSummary
	body := api.PauseRequest{Paused: paused}
	if err := c.post(ctx, "/api/groups/"+url.PathEscape(id)+"/pause", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History gets the recent messages of a chat
func (c *Client) History(ctx context.Context, id string, limit int) ([]domain.HistoryEntry, error) {
	var result api.HistoryResponse
	path := fmt.Sprintf("/api/groups/%s/history?limit=%d", url.PathEscape(id), limit)
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// ============ HTTP Helpers ============

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s failed: %w", req.Method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(bytes.TrimSpace(body)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
