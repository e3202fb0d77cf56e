package llm

import (
	"context"
	"fmt"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is a single turn of provider-visible conversation context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request carries everything a provider needs for one completion call.
// System blocks are joined by the provider in order; Messages must not
// contain system-role entries for providers that take system out of band.
type Request struct {
	Model            string
	System           []string
	Messages         []ChatMessage
	MaxTokens        int32
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	Stop             []string
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// Client is the completion-provider contract. One implementation per backend.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ProviderError is a typed completion failure carrying enough context for the
// caller to surface a retryable message.
type ProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm: %s completion failed for model %s: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
