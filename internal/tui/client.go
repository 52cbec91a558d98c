package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kidzoona/kiosk/internal/output"
)

// Fetcher returns the current payment status
type Fetcher interface {
	Fetch(ctx context.Context) (output.Status, error)
}

// StatusClient polls a running kiosk server
type StatusClient struct {
	baseURL string
	client  *http.Client
}

// NewStatusClient creates a client targeting baseURL (e.g. "http://127.0.0.1:3000")
func NewStatusClient(baseURL string) *StatusClient {
	return &StatusClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Fetch calls GET /api/payment-status
func (c *StatusClient) Fetch(ctx context.Context) (output.Status, error) {
	var st output.Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/payment-status", nil)
	if err != nil {
		return st, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return st, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("payment-status: HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decode payment-status: %w", err)
	}
	return st, nil
}
