// Package tool implements the Shopify and Skio action catalog. Every tool
// posts JSON to a commerce backend and reports its outcome as a ToolResponse
// rather than a Go error, so the agent loop can relay failures to the model.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/natpat/caz/agent/contract"
)

// maxResponseBytes caps how much of a backend response body is read.
const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL string        `split_words:"true" required:"true"`
	Timeout time.Duration `split_words:"true" default:"15s"`
}

// Client posts tool invocations to the commerce backend. All actions live
// under the /hackathon path prefix.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("tool base url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// post sends params to <base>/hackathon/<action>. Transport failures are
// reported with a "Network error:" prefix; the loop's outage detection keys
// on that prefix, so it must not change.
func (c *Client) post(ctx context.Context, action string, params map[string]any) contract.ToolResponse {
	body, err := json.Marshal(params)
	if err != nil {
		return contract.ToolResponse{Success: false, Error: fmt.Sprintf("invalid tool params: %v", err)}
	}

	endpoint := c.baseURL + "/hackathon/" + strings.TrimLeft(action, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return contract.ToolResponse{Success: false, Error: fmt.Sprintf("Network error: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contract.ToolResponse{Success: false, Error: fmt.Sprintf("Network error: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return contract.ToolResponse{Success: false, Error: fmt.Sprintf("Network error: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return contract.ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("API error: %s - %s", resp.Status, strings.TrimSpace(string(raw))),
		}
	}

	var out contract.ToolResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		// Backend returned 2xx with a non-envelope body; pass it through.
		var data map[string]any
		if jsonErr := json.Unmarshal(raw, &data); jsonErr != nil {
			return contract.ToolResponse{Success: false, Error: fmt.Sprintf("API error: unreadable response: %v", err)}
		}
		return contract.ToolResponse{Success: true, Data: data}
	}
	return out
}
