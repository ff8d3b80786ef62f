package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/FrenchMajesty/doc-classifier/internal/retry"
)

const maxErrorMessageLen = 256

// isRetryable retries network errors, 5xx, 429 and the 400 some compatible
// providers return for a malformed generation.
func isRetryable(err error, statusCode int, body []byte) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if err != nil && statusCode == 0 {
		return true
	}
	if statusCode >= 500 || statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode == http.StatusBadRequest {
		var eb errorBody
		return json.Unmarshal(body, &eb) == nil && eb.Error.FailedGeneration != ""
	}
	return false
}

// attempt posts body once
func (c *Client) attempt(ctx context.Context, url string, body []byte) retry.Func[[]byte] {
	return func(int) ([]byte, int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, 0, nil, fmt.Errorf("failed to create chat request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, nil, ctx.Err()
			}
			return nil, 0, nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resp.StatusCode, nil, fmt.Errorf("failed to read chat response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resp.StatusCode, raw, &ChatCompletionError{
				Message:    errorMessage(raw),
				StatusCode: resp.StatusCode,
			}
		}
		return raw, resp.StatusCode, raw, nil
	}
}

// errorMessage prefers the provider's message over the raw body
func errorMessage(raw []byte) string {
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	if len(raw) > maxErrorMessageLen {
		return string(raw[:maxErrorMessageLen]) + "..."
	}
	return string(raw)
}
