package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"procure-agent/model"
)

// Client talks to the Python AI sidecar: similarity search over the user's
// documents, OCR for attachments, and the policy-update monitor.
type Client struct {
	baseURL string
	httpCli *http.Client

	ocrEndpoint    string
	ocrAPIKey      string
	policyEndpoint string
	policyAPIKey   string
	attachmentDir  string
}

// ErrAttachmentPath is returned for attachment paths outside the upload root.
var ErrAttachmentPath = errors.New("attachment path outside upload dir")

type Option func(*Client)

func WithOCR(endpoint, apiKey string) Option {
	return func(c *Client) {
		c.ocrEndpoint = endpoint
		c.ocrAPIKey = apiKey
	}
}

func WithPolicyMonitor(endpoint, apiKey string) Option {
	return func(c *Client) {
		c.policyEndpoint = strings.TrimRight(endpoint, "/")
		c.policyAPIKey = apiKey
	}
}

// WithAttachmentDir sets the upload root attachment paths are resolved against.
// Without it no attachment is read.
func WithAttachmentDir(dir string) Option {
	return func(c *Client) {
		c.attachmentDir = dir
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpCli.Timeout = d
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCli: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type SearchRequest struct {
	Query     string  `json:"query"`
	UserID    string  `json:"user_id"`
	TopK      int     `json:"match_count"`
	Threshold float64 `json:"match_threshold"`
}

type searchResponse struct {
	Documents []struct {
		Content    string  `json:"content"`
		Similarity float64 `json:"similarity"`
		Score      float64 `json:"score"`
	} `json:"documents"`
}

// Search runs the match_documents similarity lookup scoped to one user.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]model.RetrievedDocument, error) {
	var out searchResponse
	if err := c.postJSON(ctx, c.baseURL+"/match_documents", req, &out); err != nil {
		return nil, err
	}

	docs := make([]model.RetrievedDocument, 0, len(out.Documents))
	for _, d := range out.Documents {
		sim := d.Similarity
		if sim == 0 {
			sim = d.Score
		}
		docs = append(docs, model.RetrievedDocument{Content: d.Content, Similarity: sim})
	}
	return docs, nil
}

// OCREnabled reports whether attachments can be converted to text.
func (c *Client) OCREnabled() bool {
	return c.ocrEndpoint != "" && c.ocrAPIKey != ""
}

// OCR uploads one attachment and returns the extracted text.
func (c *Client) OCR(ctx context.Context, att model.Attachment) (string, error) {
	if !c.OCREnabled() {
		return "", fmt.Errorf("ocr service not configured")
	}

	path, err := c.resolveAttachment(att.Path)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ocrEndpoint, &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.ocrAPIKey)

	resp, err := c.httpCli.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr status %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// resolveAttachment maps a client-supplied relative path to a file under the
// upload root. Absolute paths and paths escaping the root are rejected.
func (c *Client) resolveAttachment(p string) (string, error) {
	if c.attachmentDir == "" {
		return "", fmt.Errorf("%w: upload dir not configured", ErrAttachmentPath)
	}
	if p == "" || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("%w: %q", ErrAttachmentPath, p)
	}
	root, err := filepath.Abs(c.attachmentDir)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.Clean(p))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrAttachmentPath, p)
	}
	return full, nil
}

type PolicyUpdate struct {
	HasUpdate     bool   `json:"has_update"`
	UpdateSummary string `json:"update_summary"`
}

func (c *Client) PolicyMonitorEnabled() bool {
	return c.policyEndpoint != "" && c.policyAPIKey != ""
}

// CheckPolicyUpdates asks the policy monitor whether regulations changed since lastCheck.
func (c *Client) CheckPolicyUpdates(ctx context.Context, lastCheck time.Time) (*PolicyUpdate, error) {
	if !c.PolicyMonitorEnabled() {
		return &PolicyUpdate{}, nil
	}

	q := url.Values{}
	q.Set("last_check", lastCheck.Format(time.RFC3339))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.policyEndpoint+"/updates?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-API-KEY", c.policyAPIKey)

	resp, err := c.httpCli.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("policy monitor status %d", resp.StatusCode)
	}

	var out PolicyUpdate
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, in, out any) error {
	bs, err := json.Marshal(in)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sidecar %s status %d: %s", endpoint, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
