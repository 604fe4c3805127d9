// Package docextract handles getting usable text out of published disclosure
// documents: an HTTP client for the text-extraction service that renders PDFs
// to plain text, and an LLM-backed structured extractor for documents the
// regex strategies cannot read.
package docextract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client calls the text-extraction service to turn a PDF URL into plain text.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// ExtractText downloads and renders the document behind url. PDF rendering
// happens service-side so document size does not bound this process.
func (c *Client) ExtractText(ctx context.Context, url string) (string, error) {
	body, err := json.Marshal(extractRequest{URL: url})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("extraction service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("extraction service error: status %d: %s", resp.StatusCode, b)
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("extraction failed for %s: %s", url, out.Error)
	}

	c.logger.Debug("document text extracted", "url", url, "chars", len(out.Text))
	return out.Text, nil
}

type extractRequest struct {
	URL string `json:"url"`
}

type extractResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
	Error string `json:"error"`
}
