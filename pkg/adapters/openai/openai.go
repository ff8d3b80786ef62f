package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/FrenchMajesty/doc-classifier/internal/retry"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultTimeout = 30 * time.Second
)

// Client talks to any OpenAI-compatible chat completions endpoint
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Retry      retry.Config
	Logger     *slog.Logger
}

var _ LanguageModelClient = (*Client)(nil)

func NewClient(apiKey string) *Client {
	return &Client{
		APIKey:     apiKey,
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		Retry:      retry.DefaultConfig(),
		Logger:     slog.Default(),
	}
}

// SetBaseURL points the client at another provider. Empty keeps the current URL.
func (c *Client) SetBaseURL(baseURL string) {
	if baseURL != "" {
		c.BaseURL = baseURL
	}
}

// ChatCompletion sends req, retrying transient failures
func (c *Client) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	opts := retry.Options{
		Config:       c.Retry,
		ErrorChecker: isRetryable,
		Logger:       c.Logger,
		APIName:      "chat completions",
	}
	url := strings.TrimSuffix(c.BaseURL, "/") + "/chat/completions"

	raw, err := retry.Do(ctx, opts, c.attempt(ctx, url, body))
	if err != nil {
		return nil, err
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ChatCompletionError{Message: fmt.Sprintf("failed to parse chat response: %v", err)}
	}
	return &resp, nil
}
