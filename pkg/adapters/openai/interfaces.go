package openai

import (
	"context"
	"fmt"
)

// LanguageModelClient is what the llm stage needs from a chat model
type LanguageModelClient interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// ChatCompletionRequest is the request body for the chat completion endpoint
type ChatCompletionRequest struct {
	Model               string        `json:"model"`
	Messages            []ChatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	Temperature         float32       `json:"temperature,omitempty"`
}

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content *string     `json:"content,omitempty"`
}

type ChatCompletionChoice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletionResponse keeps only what the llm stage reads
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Choices []ChatCompletionChoice `json:"choices"`
}

// errorBody is the provider's error payload
type errorBody struct {
	Error struct {
		Message          string `json:"message"`
		FailedGeneration string `json:"failed_generation,omitempty"`
	} `json:"error"`
}

// ChatCompletionError is a non-200 answer or an unreadable response.
// StatusCode is 0 when the body could not be decoded.
type ChatCompletionError struct {
	Message    string
	StatusCode int
}

func (e *ChatCompletionError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("chat completion failed with status %d: %s", e.StatusCode, e.Message)
}
