// Package upstream is the enclave's only outbound API client. It holds a
// credential that could reach other endpoints but only ever calls the
// watch-history endpoint.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WatchHistoryPath is the single endpoint this client calls.
const WatchHistoryPath = "/api/watch_history"

// APIError carries the upstream status so handlers can mirror it.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream %s: %d %s", e.Endpoint, e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// WatchHistory returns the upstream JSON body unchanged.
func (c *Client) WatchHistory(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+WatchHistoryPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{StatusCode: http.StatusBadGateway, Endpoint: WatchHistoryPath, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: WatchHistoryPath, Message: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &APIError{StatusCode: http.StatusBadGateway, Endpoint: WatchHistoryPath, Message: err.Error()}
	}
	if !json.Valid(body) {
		return nil, &APIError{StatusCode: http.StatusBadGateway, Endpoint: WatchHistoryPath, Message: "invalid JSON from upstream"}
	}
	return body, nil
}
