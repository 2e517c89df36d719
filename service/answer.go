package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"procure-agent/internal/llm"
)

var (
	ErrEmptyAnswer       = errors.New("empty answer")
	ErrMalformedResponse = errors.New("malformed response")
)

// answerKeys are tried in order on object-shaped responses.
var answerKeys = []string{"content", "reply", "output", "text", "answer", "action_input"}

// extractAnswer pulls the answer text out of whatever shape the provider
// returned. An empty result is an error, never a valid answer.
func extractAnswer(raw any) (string, error) {
	text, err := answerText(raw)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyAnswer
	}
	return text, nil
}

func answerText(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", fmt.Errorf("%w: nil response", ErrMalformedResponse)
	case string:
		return v, nil
	case *llm.ChatResponse:
		if v == nil {
			return "", fmt.Errorf("%w: nil response", ErrMalformedResponse)
		}
		return v.Content, nil
	case llm.ChatResponse:
		return v.Content, nil
	case interface{ GetContent() string }:
		return v.GetContent(), nil
	case map[string]any:
		return answerFromObject(v)
	case map[string]string:
		obj := make(map[string]any, len(v))
		for k, s := range v {
			obj[k] = s
		}
		return answerFromObject(obj)
	case json.RawMessage:
		return answerFromJSON(v)
	case []byte:
		return answerFromJSON(v)
	default:
		return "", fmt.Errorf("%w: unsupported type %T", ErrMalformedResponse, raw)
	}
}

func answerFromObject(obj map[string]any) (string, error) {
	for _, key := range answerKeys {
		val, ok := obj[key]
		if !ok || val == nil {
			continue
		}
		switch s := val.(type) {
		case string:
			if strings.TrimSpace(s) != "" {
				return s, nil
			}
		case map[string]any:
			// nested {"message": {"content": ...}} style payloads
			if text, err := answerFromObject(s); err == nil {
				return text, nil
			}
		}
	}
	if msg, ok := obj["message"].(map[string]any); ok {
		return answerFromObject(msg)
	}
	return "", fmt.Errorf("%w: no answer field in object", ErrMalformedResponse)
}

func answerFromJSON(bs []byte) (string, error) {
	var decoded any
	if err := json.Unmarshal(bs, &decoded); err != nil {
		// plain text body
		return string(bs), nil
	}
	return answerText(decoded)
}

// LabelClassifier asks a model for a short label.
type LabelClassifier interface {
	ClassifyLabel(ctx context.Context, systemPrompt, text string) (string, error)
}

// ProviderLabeler runs label prompts on the provider chosen by resolve,
// which is called per request so runtime provider switches apply.
type ProviderLabeler struct {
	resolve   func() (llm.Provider, error)
	maxTokens int
}

func NewProviderLabeler(resolve func() (llm.Provider, error), maxTokens int) *ProviderLabeler {
	return &ProviderLabeler{resolve: resolve, maxTokens: maxTokens}
}

func (l *ProviderLabeler) ClassifyLabel(ctx context.Context, systemPrompt, text string) (string, error) {
	p, err := l.resolve()
	if err != nil {
		return "", err
	}
	raw, err := p.Complete(ctx, &llm.Request{
		SystemPrompt: systemPrompt,
		Query:        text,
		Temperature:  0.2,
		MaxTokens:    l.maxTokens,
	})
	if err != nil {
		return "", err
	}
	out, err := extractAnswer(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
