package gateway

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
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 4 << 20 // 4 MiB

	agentHeader = "X-Feedsync-Agent"
)

// Config contains the remote API connection options.
type Config struct {
	// BaseURL is the API root, e.g. https://dummyjson.com.
	BaseURL string
	// Timeout bounds one request round trip end to end.
	Timeout time.Duration
	// AgentID identifies this agent instance to the backend.
	AgentID string
	// Transport overrides the HTTP transport, used to attach token handling.
	Transport http.RoundTripper
}

// Client performs JSON round trips against the remote API and translates
// every failure into NetworkError or ServerError. Nothing above the client
// observes raw transport errors.
type Client struct {
	baseURL *url.URL
	agentID string
	http    *http.Client
}

// NewClient constructs a Client for the configured API root.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway: base URL is required")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("gateway: unsupported base URL scheme %q", parsed.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: parsed,
		agentID: strings.TrimSpace(cfg.AgentID),
		http: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
	}, nil
}

// errorPayload is the backend's error body shape.
type errorPayload struct {
	Message string `json:"message"`
}

// do performs one round trip. A nil out skips response decoding.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}

	target := *c.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + path
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &ServerError{Op: op, Message: "unexpected error", Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return &ServerError{Op: op, Message: "unexpected error", Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.agentID != "" {
		req.Header.Set(agentHeader, c.agentID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := fmt.Sprintf("request failed with status %d", resp.StatusCode)
		var payload errorPayload
		if decodeErr := json.Unmarshal(raw, &payload); decodeErr == nil && payload.Message != "" {
			message = payload.Message
		}
		return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ServerError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    "unexpected response payload",
			Err:        err,
		}
	}
	return nil
}
