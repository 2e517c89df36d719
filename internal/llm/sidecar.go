package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SidecarProvider calls the Python AI service's /chat endpoint. Its reply
// shape has drifted across versions (reply/output/answer/...), so the decoded
// JSON object is returned as-is.
type SidecarProvider struct {
	baseURL string
	httpCli *http.Client
}

func NewSidecarProvider(cfg ProviderConfig) (*SidecarProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: sidecar endpoint is empty", ErrMissingCredentials)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &SidecarProvider{
		baseURL: strings.TrimRight(cfg.Endpoint, "/"),
		httpCli: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (s *SidecarProvider) Name() string {
	return "sidecar"
}

type sidecarChatRequest struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	History      []Message `json:"history"`
	Message      string    `json:"message"`
}

func (s *SidecarProvider) Complete(ctx context.Context, req *Request) (any, error) {
	bs, err := json.Marshal(sidecarChatRequest{
		SystemPrompt: req.SystemPrompt,
		History:      req.History,
		Message:      req.Query,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat", bytes.NewReader(bs))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpCli.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := readLimitedBody(resp.Body, MaxErrorBodySize)
		return nil, fmt.Errorf("sidecar error (status %d): %s", resp.StatusCode, string(errBody))
	}

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
