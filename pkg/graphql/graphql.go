package graphql

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

const maxResponseSizeBytes = 8 << 20

var ErrRequest = errors.New("graphql request failed")

type Config struct {
	Endpoint string        `split_words:"true" default:"http://localhost:8000/graphql/"`
	Timeout  time.Duration `split_words:"true" default:"30s"`
}

// Result is the decoded response body, {"data": ..., "errors": [...]}.
type Result map[string]any

// ErrorMessages returns the message of every entry in "errors".
func (r Result) ErrorMessages() []string {
	list, _ := r["errors"].([]any)
	out := make([]string, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			if msg, _ := m["message"].(string); msg != "" {
				out = append(out, msg)
			}
		}
	}
	return out
}

func (r Result) Data() map[string]any {
	data, _ := r["data"].(map[string]any)
	return data
}

type Client struct {
	endpoint   string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("graphql endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid graphql endpoint: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type tokenKey struct{}

// WithToken attaches the caller's Authorization header value to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, strings.TrimSpace(token))
}

func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// NormalizeQuery swaps single quotes for double quotes. Models tend to emit
// single-quoted string arguments, which GraphQL rejects.
func NormalizeQuery(query string) string {
	return strings.ReplaceAll(strings.TrimSpace(query), "'", `"`)
}

// Execute posts query and returns the decoded body. GraphQL errors, including
// those sent with a non-200 status, are returned inside Result rather than as
// a Go error.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (Result, error) {
	query = NormalizeQuery(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrRequest)
	}

	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRequest, err)
	}

	var result Result
	decodeErr := json.Unmarshal(raw, &result)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && len(result.ErrorMessages()) > 0 {
			return result, nil
		}
		return nil, fmt.Errorf("%w: http status=%d body=%s", ErrRequest, resp.StatusCode, truncate(string(raw), 512))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRequest, decodeErr)
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
