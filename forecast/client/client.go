package client

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

	"github.com/tanpawarit/bizai-insight/forecast/service"
)

const maxResponseSizeBytes = 4 << 20

var ErrModelNotFound = errors.New("forecast model not found")

type Config struct {
	URL        string        `envconfig:"URL" split_words:"true" default:"http://localhost:8080"`
	Timeout    time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	BusinessID string        `envconfig:"BUSINESS_ID" split_words:"true" default:"biz_001"`
	// RetrainURL is where QStash delivers retrain jobs. Empty means retrains
	// are sent directly.
	RetrainURL string `envconfig:"RETRAIN_URL" split_words:"true"`
}

// APIError is a non-2xx answer from the forecast service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("forecast service status=%d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrModelNotFound && e.Status == http.StatusNotFound
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid forecast url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}, nil
}

func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

func (c *Client) PredictFast(ctx context.Context, req service.PredictFastRequest) (service.PredictResponse, error) {
	var out service.PredictResponse
	err := c.post(ctx, "/predict-fast", req, &out)
	return out, err
}

func (c *Client) Predict(ctx context.Context, req service.PredictRequest) (service.PredictResponse, error) {
	var out service.PredictResponse
	err := c.post(ctx, "/predict", req, &out)
	return out, err
}

func (c *Client) Retrain(ctx context.Context, req service.RetrainRequest) (service.RetrainResponse, error) {
	var out service.RetrainResponse
	err := c.post(ctx, "/retrain", req, &out)
	return out, err
}

// SubmitRetrain trains synchronously and reports the result.
func (c *Client) SubmitRetrain(ctx context.Context, req service.RetrainRequest) (RetrainReceipt, error) {
	res, err := c.Retrain(ctx, req)
	if err != nil {
		return RetrainReceipt{}, err
	}
	return RetrainReceipt{Status: StatusTrained, Result: &res}, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal forecast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build forecast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute forecast request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read forecast response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode forecast response: %w", err)
	}
	return nil
}
