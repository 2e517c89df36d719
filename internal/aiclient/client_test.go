package aiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procure-agent/model"
)

func TestSearch(t *testing.T) {
	var got SearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/match_documents", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"documents":[{"content":"A","similarity":0.9},{"content":"B","score":0.6}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	docs, err := c.Search(context.Background(), SearchRequest{Query: "q", UserID: "u1", TopK: 3, Threshold: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []model.RetrievedDocument{
		{Content: "A", Similarity: 0.9},
		{Content: "B", Similarity: 0.6},
	}, docs)
	assert.Equal(t, SearchRequest{Query: "q", UserID: "u1", TopK: 3, Threshold: 0.5}, got)
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Search(context.Background(), SearchRequest{Query: "q"})
	assert.Error(t, err)
}

func TestOCR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ocr-key", r.Header.Get("Authorization"))
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "scan.png", hdr.Filename)
		assert.Equal(t, "image-bytes", string(body))
		_, _ = w.Write([]byte(`{"text":"识别出的文字"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "u1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "u1", "scan.png"), []byte("image-bytes"), 0o644))

	c := NewClient("http://unused", WithOCR(srv.URL, "ocr-key"), WithAttachmentDir(dir))
	require.True(t, c.OCREnabled())
	text, err := c.OCR(context.Background(), model.Attachment{Path: "u1/scan.png", Type: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "识别出的文字", text)
}

func TestOCRRejectsPathsOutsideUploadDir(t *testing.T) {
	var uploads int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads++
		_, _ = w.Write([]byte(`{"text":"leaked"}`))
	}))
	defer srv.Close()

	base := t.TempDir()
	dir := filepath.Join(base, "uploads")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	secret := filepath.Join(base, "secret.env")
	require.NoError(t, os.WriteFile(secret, []byte("DB_PASSWORD=hunter2"), 0o600))

	tests := []struct {
		name string
		dir  string
		path string
	}{
		{"absolute system file", dir, "/etc/passwd"},
		{"absolute file beside root", dir, secret},
		{"parent traversal", dir, "../secret.env"},
		{"nested traversal", dir, "u1/../../secret.env"},
		{"root itself", dir, "."},
		{"empty", dir, ""},
		{"no upload dir", "", "secret.env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient("http://unused", WithOCR(srv.URL, "ocr-key"), WithAttachmentDir(tt.dir))
			_, err := c.OCR(context.Background(), model.Attachment{Path: tt.path})
			assert.ErrorIs(t, err, ErrAttachmentPath)
		})
	}
	assert.Zero(t, uploads)
}

func TestOCRNotConfigured(t *testing.T) {
	c := NewClient("http://unused")
	assert.False(t, c.OCREnabled())
	_, err := c.OCR(context.Background(), model.Attachment{Path: "x"})
	assert.Error(t, err)
}

func TestCheckPolicyUpdates(t *testing.T) {
	last := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/updates", r.URL.Path)
		assert.Equal(t, "policy-key", r.Header.Get("X-API-KEY"))
		assert.Equal(t, last.Format(time.RFC3339), r.URL.Query().Get("last_check"))
		_, _ = w.Write([]byte(`{"has_update":true,"update_summary":"新规"}`))
	}))
	defer srv.Close()

	c := NewClient("http://unused", WithPolicyMonitor(srv.URL+"/", "policy-key"))
	upd, err := c.CheckPolicyUpdates(context.Background(), last)
	require.NoError(t, err)
	assert.True(t, upd.HasUpdate)
	assert.Equal(t, "新规", upd.UpdateSummary)
}

func TestCheckPolicyUpdatesDisabled(t *testing.T) {
	upd, err := NewClient("http://unused").CheckPolicyUpdates(context.Background(), time.Now())
	require.NoError(t, err)
	assert.False(t, upd.HasUpdate)
}
