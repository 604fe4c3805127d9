package websearch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey        = "test-key"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return &Client{
		apiKey:     testAPIKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_Search_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "Bearer "+testAPIKey, r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "Consumer Confidence Report")
		assert.Equal(t, 5, req.Limit)

		resp := searchResponse{
			Data: []searchHit{
				{URL: "https://www.franklintn.gov/ccr-2024.pdf", Title: "2024 Water Quality Report"},
				{URL: "https://example.com/news", Title: "Local news"},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	results, err := c.Search(context.Background(), "City of Franklin Water Franklin TN Consumer Confidence Report", 5)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "https://www.franklintn.gov/ccr-2024.pdf", results[0].URL)
	assert.Equal(t, "2024 Water Quality Report", results[0].Title)
}

func TestClient_Search_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(searchResponse{Data: []searchHit{}}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	results, err := c.Search(context.Background(), "nonexistent utility", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_Scrape_PrefersMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scrape", r.URL.Path)

		var req scrapeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://www.franklintn.gov/water-quality", req.URL)

		resp := scrapeResponse{Data: scrapeData{
			Markdown: "# Water Quality\nChlorine | NO | 0.84 Avg. | 0.23 - 1.82",
			Content:  "plain fallback",
		}}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	text, err := c.Scrape(context.Background(), "https://www.franklintn.gov/water-quality")
	require.NoError(t, err)
	assert.Contains(t, text, "Chlorine | NO | 0.84 Avg.")
}

func TestClient_Scrape_FallsBackToContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := scrapeResponse{Data: scrapeData{Content: "Chlorine: 1.2 ppm"}}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	text, err := c.Scrape(context.Background(), "https://example.com/report")
	require.NoError(t, err)
	assert.Equal(t, "Chlorine: 1.2 ppm", text)
}

func TestClient_Search_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Search(context.Background(), "anything", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_Scrape_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{
		apiKey:     testAPIKey,
		httpClient: &http.Client{Timeout: 50 * time.Millisecond},
		baseURL:    srv.URL,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	_, err := c.Scrape(context.Background(), "https://example.com/slow")
	require.Error(t, err)
}
