// Package ocr coordinates attachment capture and recognition: images are
// sent to the external verification service, PDFs are read locally.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/garitadev/garita/internal/flow"
)

// Client communicates with the external verification service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client targeting the given verification service base
// URL. A timeout of zero disables the client-side deadline.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Healthy returns true if the verification service responds to its health
// endpoint with 200.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// verifyRequest is the JSON body for POST /verify. Content is
// base64-encoded by encoding/json.
type verifyRequest struct {
	QuestionID  string `json:"question_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// VerifyResponse is the recognition outcome returned by the service.
type VerifyResponse struct {
	RecognizedText string `json:"recognized_text"`
	Valid          bool   `json:"valid"`
	Message        string `json:"message,omitempty"`
}

// Verify submits an attachment for recognition and returns the service's
// verdict.
func (c *Client) Verify(ctx context.Context, questionID string, att flow.Attachment) (VerifyResponse, error) {
	body, err := json.Marshal(verifyRequest{
		QuestionID:  questionID,
		Filename:    att.Filename,
		ContentType: att.ContentType,
		Content:     att.Content,
	})
	if err != nil {
		return VerifyResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return VerifyResponse{}, fmt.Errorf("creating verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return VerifyResponse{}, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return VerifyResponse{}, fmt.Errorf("verify: unexpected status %d", resp.StatusCode)
	}

	var result VerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return VerifyResponse{}, fmt.Errorf("decoding verify response: %w", err)
	}
	return result, nil
}
