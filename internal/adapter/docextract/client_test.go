package docextract

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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_ExtractText_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)

		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://www.franklintn.gov/ccr-2024.pdf", req.URL)

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(extractResponse{
			Text:  "Chlorine | NO | 0.84 Avg. | 0.23 - 1.82",
			Pages: 4,
		}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testLogger())
	text, err := c.ExtractText(context.Background(), "https://www.franklintn.gov/ccr-2024.pdf")
	require.NoError(t, err)
	assert.Contains(t, text, "0.84 Avg.")
}

func TestClient_ExtractText_ServiceReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(extractResponse{
			Error: "encrypted document",
		}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testLogger())
	_, err := c.ExtractText(context.Background(), "https://example.com/locked.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encrypted document")
}

func TestClient_ExtractText_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, testLogger())
	_, err := c.ExtractText(context.Background(), "https://example.com/report.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_ExtractText_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 50*time.Millisecond, testLogger())
	_, err := c.ExtractText(context.Background(), "https://example.com/slow.pdf")
	require.Error(t, err)
}
