// Package websearch implements the document search collaborator against a
// Firecrawl-compatible search and scrape API.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tapsafe/chlorine-data-service/internal/acquire"
)

// Client implements acquire.DocumentSearcher over the Firecrawl v1 API.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a search client. baseURL is overridable for self-hosted
// deployments; empty selects the hosted API.
func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.firecrawl.dev"
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// Search returns candidate documents for a query, best-effort relevance.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]acquire.SearchResult, error) {
	var resp searchResponse
	err := c.doRequest(ctx, "/v1/search", searchRequest{Query: query, Limit: limit}, &resp)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	results := make([]acquire.SearchResult, 0, len(resp.Data))
	for _, d := range resp.Data {
		results = append(results, acquire.SearchResult{URL: d.URL, Title: d.Title})
	}
	c.logger.Debug("document search", "query", query, "results", len(results))
	return results, nil
}

// Scrape renders a URL to markdown text.
func (c *Client) Scrape(ctx context.Context, url string) (string, error) {
	var resp scrapeResponse
	err := c.doRequest(ctx, "/v1/scrape", scrapeRequest{URL: url}, &resp)
	if err != nil {
		return "", fmt.Errorf("scrape %s: %w", url, err)
	}
	if resp.Data.Markdown != "" {
		return resp.Data.Markdown, nil
	}
	return resp.Data.Content, nil
}

func (c *Client) doRequest(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("search API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("search API error: status %d: %s", resp.StatusCode, b)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Firecrawl API request/response types.

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Data []searchHit `json:"data"`
}

type searchHit struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type scrapeRequest struct {
	URL string `json:"url"`
}

type scrapeResponse struct {
	Data scrapeData `json:"data"`
}

type scrapeData struct {
	Markdown string `json:"markdown"`
	Content  string `json:"content"`
}
