// Package llm implements the model backends the chat service can select:
// OpenAI, DeepSeek (OpenAI-compatible wire format) and the Python sidecar.
package llm

import (
	"context"
	"errors"
	"io"
	"time"
)

// MaxErrorBodySize limits how much of an error response body is read.
const MaxErrorBodySize = 1 * 1024 * 1024

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrNoChoices          = errors.New("no choices in response")
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider is one model backend.
//
// Complete returns the provider's native response shape: a string, a
// *ChatResponse, or a decoded JSON object. Callers extract the answer text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (any, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	SystemPrompt string
	History      []Message
	Query        string
	Temperature  float64
	MaxTokens    int
}

// Messages flattens the request into the role-tagged sequence sent on the wire.
func (r *Request) Messages() []Message {
	msgs := make([]Message, 0, len(r.History)+2)
	if r.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	msgs = append(msgs, r.History...)
	if r.Query != "" {
		msgs = append(msgs, Message{Role: RoleUser, Content: r.Query})
	}
	return msgs
}

type ChatResponse struct {
	Content          string        `json:"content"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	FinishReason     string        `json:"finish_reason,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// ProviderConfig is the resolved per-provider settings.
type ProviderConfig struct {
	Name        string
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func readLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxBytes))
}
