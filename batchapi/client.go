// Package batchapi is a thin client for an OpenAI-style batch API:
// file upload, batch creation, status retrieval and result download.
package batchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"lawagent/models"
)

const defaultBaseURL = "https://api.openai.com/v1"

const (
	maxRetries     = 3
	initialBackoff = time.Second
)

// Client talks to the batch API. The zero value is not usable; use New.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a batch API client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fileObject is the API's file resource.
type fileObject struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
}

// batchObject is the API's batch resource.
type batchObject struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OutputFileID string `json:"output_file_id"`
	ErrorFileID  string `json:"error_file_id"`
	CreatedAt    int64  `json:"created_at"`
	RequestCounts struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"request_counts"`
}

// Batch is the client-side view of a submitted batch.
type Batch struct {
	ID           string
	Status       models.BatchStatus
	OutputFileID string
	ErrorFileID  string
	Total        int
	Completed    int
	Failed       int
}

func toBatch(o *batchObject) *Batch {
	return &Batch{
		ID:           o.ID,
		Status:       models.NormalizeBatchStatus(o.Status),
		OutputFileID: o.OutputFileID,
		ErrorFileID:  o.ErrorFileID,
		Total:        o.RequestCounts.Total,
		Completed:    o.RequestCounts.Completed,
		Failed:       o.RequestCounts.Failed,
	}
}

// UploadFile uploads JSONL content with purpose "batch" and returns the
// file id.
func (c *Client) UploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "batch"); err != nil {
		return "", fmt.Errorf("failed to write purpose field: %w", err)
	}
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fw.Write(content); err != nil {
		return "", fmt.Errorf("failed to write file content: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	body, err := c.do(ctx, "POST", "/files", w.FormDataContentType(), buf.Bytes())
	if err != nil {
		return "", err
	}
	var f fileObject
	if err := json.Unmarshal(body, &f); err != nil {
		return "", fmt.Errorf("failed to decode file response: %w", err)
	}
	if f.ID == "" {
		return "", fmt.Errorf("file upload returned no id")
	}
	return f.ID, nil
}

// CreateBatch submits a batch over an uploaded input file.
func (c *Client) CreateBatch(ctx context.Context, inputFileID string) (*Batch, error) {
	reqBody := map[string]string{
		"input_file_id":     inputFileID,
		"endpoint":          "/v1/responses",
		"completion_window": "24h",
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.do(ctx, "POST", "/batches", "application/json", jsonData)
	if err != nil {
		return nil, err
	}
	var o batchObject
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}
	if o.ID == "" {
		return nil, fmt.Errorf("batch creation returned no id")
	}
	return toBatch(&o), nil
}

// GetBatch retrieves the current state of a batch.
func (c *Client) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	body, err := c.do(ctx, "GET", "/batches/"+batchID, "", nil)
	if err != nil {
		return nil, err
	}
	var o batchObject
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}
	return toBatch(&o), nil
}

// DownloadFile returns the raw content of a file, typically the JSONL
// output of a completed batch.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	return c.do(ctx, "GET", "/files/"+fileID+"/content", "", nil)
}

// do sends one API request with retry on transient failures and returns
// the response body.
func (c *Client) do(ctx context.Context, method, path, contentType string, payload []byte) ([]byte, error) {
	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}
		// Client errors do not recover on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("API error: %d - %s", resp.StatusCode, string(body))
		}
		lastErr = fmt.Errorf("API error: %d - %s", resp.StatusCode, string(body))
	}
	return nil, fmt.Errorf("request %s %s failed after %d attempts: %w", method, path, maxRetries, lastErr)
}
